package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
	"github.com/ewilliams-labs/moodlist/internal/core/ports"
	"github.com/ewilliams-labs/moodlist/internal/observability"
)

const noTracksReply = "I couldn't find playable tracks for that mood. Could you describe it another way, or name a few artists you like?"

// OrchestratorConfig holds the values the pipeline needs at runtime.
type OrchestratorConfig struct {
	Limit           int
	DefaultGenres   []string
	DeliveryTimeout time.Duration
}

// Orchestrator runs one chat message through sessions, analysis,
// normalization, resolution and delivery.
type Orchestrator struct {
	sessions   *SessionStore
	analyzer   *ConversationAnalyzer
	normalizer *FeatureNormalizer
	resolver   *CatalogResolver
	sinks      []ports.BackendSink
	cfg        OrchestratorConfig
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	newID      func() string
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(
	sessions *SessionStore,
	analyzer *ConversationAnalyzer,
	normalizer *FeatureNormalizer,
	resolver *CatalogResolver,
	sinks []ports.BackendSink,
	cfg OrchestratorConfig,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 5 * time.Second
	}
	return &Orchestrator{
		sessions:   sessions,
		analyzer:   analyzer,
		normalizer: normalizer,
		resolver:   resolver,
		sinks:      sinks,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// HandleMessage appends the user's message and answers it. A conversation
// reply means the model wants more input; a recommendation reply carries the
// delivered payload. Errors are classified upstream failures or ErrSessionBusy;
// the user turn is kept and the session stays in gathering when one occurs.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, text string) (domain.ChatReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatReply{}, domain.ErrEmptyMessage
	}

	lease, err := o.sessions.TryAcquire(sessionID)
	if err != nil {
		o.metrics.ObserveChat("busy")
		return domain.ChatReply{}, fmt.Errorf("orchestrator: session %q: %w", sessionID, err)
	}
	defer lease.Release()

	log := o.logger.With(zap.String("session_id", sessionID))
	lease.AppendTurn(domain.RoleUser, text)

	start := time.Now()
	analysis, err := o.analyzer.Analyze(ctx, lease.Turns())
	o.metrics.ObserveStage("analyze", time.Since(start))
	if err != nil {
		o.metrics.ObserveChat("error")
		log.Warn("analysis failed", zap.String("kind", string(domain.KindOf(err))), zap.Error(err))
		return domain.ChatReply{}, err
	}
	if !analysis.Ready() {
		o.metrics.ObserveChat("conversation")
		return o.converse(lease, analysis.Reply), nil
	}

	plan := analysis.Plan
	genres, features := o.normalizer.Normalize(plan.Genres, plan.TargetFeatures)
	if len(genres) == 0 {
		genres, _ = o.normalizer.Normalize(o.cfg.DefaultGenres, nil)
	}

	start = time.Now()
	res, err := o.resolver.ResolveWithGenres(ctx, plan.TrackRequests, plan.FallbackQueries, genres, o.cfg.Limit)
	o.metrics.ObserveStage("resolve", time.Since(start))
	if err != nil {
		o.metrics.ObserveChat("error")
		log.Warn("track resolution failed", zap.String("kind", string(domain.KindOf(err))), zap.Error(err))
		return domain.ChatReply{}, err
	}
	tracks := res.Tracks
	if len(tracks) == 0 {
		o.metrics.ObserveChat("conversation")
		log.Info("plan produced no playable tracks")
		return o.converse(lease, noTracksReply), nil
	}

	payload := BuildPayload(PayloadInput{
		ID:             o.newID(),
		SessionID:      sessionID,
		Provider:       ProviderSpotify,
		PlaylistTitle:  plan.PlaylistTitle,
		MoodSummary:    plan.MoodSummary,
		Notes:          plan.Notes,
		Reasoning:      plan.Reasoning,
		Tracks:         tracks,
		Genres:         genres,
		GenreSearched:  res.GenreSearched,
		TargetFeatures: features,
		CreatedAt:      o.now().UTC(),
	})

	message := summarize(plan, payload)
	lease.CompleteAnalysis(plan)
	lease.AppendTurn(domain.RoleAssistant, message)
	lease.Release()

	o.deliver(ctx, log, payload)
	o.metrics.ObserveChat("recommendation")
	return domain.ChatReply{
		Type:      domain.ReplyRecommendation,
		Message:   message,
		SessionID: sessionID,
		Payload:   &payload,
	}, nil
}

func (o *Orchestrator) converse(lease *SessionLease, reply string) domain.ChatReply {
	lease.AppendTurn(domain.RoleAssistant, reply)
	return domain.ChatReply{Type: domain.ReplyConversation, Message: reply, SessionID: lease.ID()}
}

// deliver hands the payload to every sink. Failures are logged and counted only.
func (o *Orchestrator) deliver(ctx context.Context, log *zap.Logger, p domain.RecommendationPayload) {
	base := context.WithoutCancel(ctx)
	for _, sink := range o.sinks {
		dctx, cancel := context.WithTimeout(base, o.cfg.DeliveryTimeout)
		err := sink.Deliver(dctx, p)
		cancel()
		if err != nil {
			o.metrics.ObserveDelivery(sink.Name(), "failed")
			log.Warn("payload delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("payload_id", p.ID),
				zap.Error(err))
			continue
		}
		o.metrics.ObserveDelivery(sink.Name(), "ok")
		log.Debug("payload delivered", zap.String("sink", sink.Name()), zap.String("payload_id", p.ID))
	}
}

func summarize(plan *domain.AnalysisPlan, p domain.RecommendationPayload) string {
	var b strings.Builder
	if plan.Reply != "" {
		b.WriteString(plan.Reply)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "🎵 %s", p.PlaylistTitle)
	if p.MoodSummary != "" {
		b.WriteString("\n\n")
		b.WriteString(p.MoodSummary)
	}
	fmt.Fprintf(&b, "\n\n%d tracks ready", len(p.Tracks))
	return b.String()
}

// Reset drops a session's history.
func (o *Orchestrator) Reset(sessionID string) {
	o.sessions.Reset(sessionID)
}

// Sessions lists the ids of live sessions.
func (o *Orchestrator) Sessions() []string {
	return o.sessions.IDs()
}

// Session returns a snapshot of one session.
func (o *Orchestrator) Session(sessionID string) (domain.Session, bool) {
	return o.sessions.Snapshot(sessionID)
}
