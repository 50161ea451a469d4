package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
	"github.com/ewilliams-labs/moodlist/internal/core/ports"
	"github.com/ewilliams-labs/moodlist/internal/observability"
	"github.com/ewilliams-labs/moodlist/internal/validation"
)

const (
	defaultPlaylistTitle = "Mood Mix"
	defaultFollowup      = "Tell me a bit more about the mood you're after. What are you doing right now, and how do you want to feel?"
)

// requiredPlanKeys must be present in a ready response. Notes may also arrive as notes_for_backend.
var requiredPlanKeys = []string{"mood_summary", "track_requests", "fallback_queries", "reasoning"}

// AnalyzerConfig tunes a ConversationAnalyzer.
type AnalyzerConfig struct {
	Limit         int
	AllowedGenres []string
	Timeout       time.Duration
}

// ConversationAnalyzer asks the language model whether the conversation is
// ready and, if so, for a structured playlist plan.
type ConversationAnalyzer struct {
	llm         ports.LanguageModelClient
	limit       int
	timeout     time.Duration
	instruction string
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewConversationAnalyzer constructs a ConversationAnalyzer.
func NewConversationAnalyzer(llm ports.LanguageModelClient, cfg AnalyzerConfig, logger *zap.Logger, metrics *observability.Metrics) *ConversationAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &ConversationAnalyzer{
		llm:         llm,
		limit:       limit,
		timeout:     cfg.Timeout,
		instruction: systemInstruction(limit, cfg.AllowedGenres),
		logger:      logger,
		metrics:     metrics,
	}
}

// wirePlan mirrors the model's JSON. Nullable strings decode to "".
type wirePlan struct {
	Ready            *bool                  `json:"ready"`
	Status           string                 `json:"status"`
	Reply            string                 `json:"reply"`
	FollowupQuestion string                 `json:"followup_question"`
	PlaylistTitle    string                 `json:"playlist_title"`
	MoodSummary      string                 `json:"mood_summary"`
	Notes            string                 `json:"notes"`
	NotesForBackend  string                 `json:"notes_for_backend"`
	Reasoning        string                 `json:"reasoning"`
	TrackRequests    []domain.TrackRequest  `json:"track_requests" validate:"dive"`
	FallbackQueries  []domain.FallbackQuery `json:"fallback_queries" validate:"dive"`
	Genres           []string               `json:"genres"`
	TargetFeatures   map[string]float64     `json:"target_features"`
}

func (w wirePlan) ready() bool {
	if w.Ready != nil {
		return *w.Ready
	}
	switch strings.ToLower(strings.TrimSpace(w.Status)) {
	case "ready", "complete":
		return true
	}
	return false
}

func (w wirePlan) reply() string {
	if s := strings.TrimSpace(w.Reply); s != "" {
		return s
	}
	return strings.TrimSpace(w.FollowupQuestion)
}

// Analyze sends the turns to the model and classifies its answer. The error
// return is reserved for upstream failures; malformed output is a ParseFailure.
func (a *ConversationAnalyzer) Analyze(ctx context.Context, turns []domain.Turn) (domain.Analysis, error) {
	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	raw, err := a.llm.Generate(callCtx, a.instruction, turns)
	if err != nil {
		classified := classifyModelError(callCtx, err)
		a.metrics.ObserveUpstreamError(classified.Provider, string(classified.Kind))
		return domain.Analysis{}, fmt.Errorf("analyzer: %w", classified)
	}

	analysis := a.parse(raw)
	a.metrics.ObserveAnalysis(analysis.Kind.String())
	return analysis, nil
}

func (a *ConversationAnalyzer) parse(raw string) domain.Analysis {
	obj, _, ok := extractJSONObject(raw)
	if !ok {
		return domain.Analysis{Kind: domain.AnalysisNotReady, Reply: fallbackReply(visibleText(raw)), Raw: raw}
	}

	var wire wirePlan
	if err := decodeInto(obj, &wire); err != nil {
		return a.parseFailure(raw, err)
	}
	if !wire.ready() {
		if _, hasReady := obj["ready"]; !hasReady && wire.Status == "" {
			return a.parseFailure(raw, errors.New("missing ready flag"))
		}
		return domain.Analysis{Kind: domain.AnalysisNotReady, Reply: fallbackReply(wire.reply(), visibleText(raw)), Raw: raw}
	}

	for _, key := range requiredPlanKeys {
		if _, ok := obj[key]; !ok {
			return a.parseFailure(raw, fmt.Errorf("missing key %q", key))
		}
	}
	_, hasNotes := obj["notes"]
	_, hasBackendNotes := obj["notes_for_backend"]
	if !hasNotes && !hasBackendNotes {
		return a.parseFailure(raw, errors.New(`missing key "notes"`))
	}

	wire.FallbackQueries = dropEmptyQueries(wire.FallbackQueries)
	wire.TrackRequests = dropUntitledRequests(wire.TrackRequests)
	if err := validation.Struct(wire); err != nil {
		return a.parseFailure(raw, err)
	}

	// the cap counts only requests that survived filtering
	requests := wire.TrackRequests
	if len(requests) > a.limit {
		requests = requests[:a.limit]
	}
	notes := strings.TrimSpace(wire.Notes)
	if notes == "" {
		notes = strings.TrimSpace(wire.NotesForBackend)
	}
	title := strings.TrimSpace(wire.PlaylistTitle)
	if title == "" {
		title = defaultPlaylistTitle
	}

	plan := &domain.AnalysisPlan{
		PlaylistTitle:   title,
		MoodSummary:     strings.TrimSpace(wire.MoodSummary),
		Notes:           notes,
		Reasoning:       strings.TrimSpace(wire.Reasoning),
		Reply:           wire.reply(),
		TrackRequests:   append([]domain.TrackRequest(nil), requests...),
		FallbackQueries: wire.FallbackQueries,
		Genres:          wire.Genres,
		TargetFeatures:  wire.TargetFeatures,
	}
	return domain.Analysis{Kind: domain.AnalysisReady, Plan: plan, Raw: raw}
}

func (a *ConversationAnalyzer) parseFailure(raw string, cause error) domain.Analysis {
	a.logger.Warn("model output failed validation, continuing conversation",
		zap.Error(cause),
		zap.Int("raw_len", len(raw)))
	return domain.Analysis{Kind: domain.AnalysisParseFailure, Reply: defaultFollowup, Raw: raw}
}

func decodeInto(obj map[string]json.RawMessage, dst *wirePlan) error {
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// dropUntitledRequests trims every field and skips requests without a title.
func dropUntitledRequests(in []domain.TrackRequest) []domain.TrackRequest {
	out := make([]domain.TrackRequest, 0, len(in))
	for _, tr := range in {
		tr.Title = strings.TrimSpace(tr.Title)
		if tr.Title == "" {
			continue
		}
		tr.Artist = strings.TrimSpace(tr.Artist)
		tr.Rationale = strings.TrimSpace(tr.Rationale)
		tr.SearchHint = strings.TrimSpace(tr.SearchHint)
		out = append(out, tr)
	}
	return out
}

func dropEmptyQueries(in []domain.FallbackQuery) []domain.FallbackQuery {
	out := make([]domain.FallbackQuery, 0, len(in))
	for _, q := range in {
		if q.Query != "" {
			out = append(out, q)
		}
	}
	return out
}

func fallbackReply(candidates ...string) string {
	for _, c := range candidates {
		if s := strings.TrimSpace(c); s != "" {
			return s
		}
	}
	return defaultFollowup
}

// classifyModelError keeps quota errors as they are and folds everything else
// into timeout or fatal. Neither of those is retryable.
func classifyModelError(ctx context.Context, err error) *domain.UpstreamError {
	var up *domain.UpstreamError
	hasUp := errors.As(err, &up)

	if hasUp && up.Kind == domain.KindQuota {
		return up
	}

	provider := "llm"
	status := 0
	if hasUp {
		provider = up.Provider
		status = up.Status
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) || (hasUp && up.Kind == domain.KindTimeout) {
		return &domain.UpstreamError{Provider: provider, Kind: domain.KindTimeout, Status: status, Err: err}
	}
	return &domain.UpstreamError{Provider: provider, Kind: domain.KindFatal, Status: status, Err: err}
}
