package gemini

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

var retryInRe = regexp.MustCompile(`(?i)retry in ([0-9]+(?:\.[0-9]+)?)s`)

// classifyError turns SDK errors into UpstreamError. Quota errors keep the
// API's message and the suggested wait.
func classifyError(ctx context.Context, err error) *domain.UpstreamError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.UpstreamError{Provider: providerName, Kind: domain.KindTimeout, Err: err}
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		if isQuotaText(err.Error()) {
			return &domain.UpstreamError{Provider: providerName, Kind: domain.KindQuota, Message: err.Error(), Err: err}
		}
		return &domain.UpstreamError{Provider: providerName, Kind: domain.KindTransient, Err: err}
	}

	e := &domain.UpstreamError{Provider: providerName, Status: apiErr.Code, Message: apiErr.Message, Err: err}
	switch {
	case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
		e.Kind = domain.KindQuota
		e.RetryAfter = retryDelay(apiErr)
	case apiErr.Code == http.StatusNotFound:
		e.Kind = domain.KindNotFound
	case apiErr.Code >= http.StatusInternalServerError:
		e.Kind = domain.KindTransient
	default:
		e.Kind = domain.KindFatal
	}
	return e
}

func asAPIError(err error) (genai.APIError, bool) {
	var byValue genai.APIError
	if errors.As(err, &byValue) {
		return byValue, true
	}
	var byPtr *genai.APIError
	if errors.As(err, &byPtr) && byPtr != nil {
		return *byPtr, true
	}
	return genai.APIError{}, false
}

func isQuotaText(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "quota") || strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

// retryDelay reads google.rpc.RetryInfo from the error details, falling back
// to a "retry in Ns" phrase in the message.
func retryDelay(apiErr genai.APIError) time.Duration {
	for _, d := range apiErr.Details {
		typ, _ := d["@type"].(string)
		if !strings.HasSuffix(typ, "RetryInfo") {
			continue
		}
		if raw, ok := d["retryDelay"].(string); ok {
			if dur, err := time.ParseDuration(raw); err == nil && dur > 0 {
				return dur
			}
		}
	}
	if m := retryInRe.FindStringSubmatch(apiErr.Message); m != nil {
		if secs, err := strconv.ParseFloat(m[1], 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}
