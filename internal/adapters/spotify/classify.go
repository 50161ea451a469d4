package spotify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

// classifyStatus maps a non-200 response to an UpstreamError. No retries are
// attempted here; the caller owns that decision.
func classifyStatus(resp *http.Response) *domain.UpstreamError {
	e := &domain.UpstreamError{Provider: providerName, Status: resp.StatusCode}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Kind = domain.KindQuota
		e.RetryAfter = parseRetryAfter(resp)
		e.Message = "spotify rate limit reached"
	case resp.StatusCode >= http.StatusInternalServerError:
		e.Kind = domain.KindTransient
	case resp.StatusCode == http.StatusUnauthorized:
		e.Kind = domain.KindUnavailable
		e.Message = "spotify rejected credentials"
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
		e.Kind = domain.KindNotFound
	default:
		e.Kind = domain.KindFatal
	}
	return e
}

// classifyTransportError separates timeouts (skippable per query) from a
// provider that cannot be reached at all.
func classifyTransportError(ctx context.Context, err error) *domain.UpstreamError {
	e := &domain.UpstreamError{Provider: providerName, Err: err}

	var retrieve *oauth2.RetrieveError
	var opErr *net.OpError
	var netErr net.Error
	switch {
	case errors.As(err, &retrieve):
		e.Kind = domain.KindUnavailable
		e.Message = "token request failed"
		if retrieve.Response != nil {
			e.Status = retrieve.Response.StatusCode
		}
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		e.Kind = domain.KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Kind = domain.KindTimeout
	case errors.As(err, &opErr) && opErr.Op == "dial":
		e.Kind = domain.KindUnavailable
	default:
		e.Kind = domain.KindTransient
	}
	return e
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if when, err := http.ParseTime(retryAfter); err == nil {
		until := time.Until(when)
		if until > 0 {
			return until
		}
	}

	return 0
}
