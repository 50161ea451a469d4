package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
	"github.com/ewilliams-labs/moodlist/internal/core/ports"
	"github.com/ewilliams-labs/moodlist/internal/observability"
)

const (
	// DefaultLimit is the playlist size used when the caller asks for none.
	DefaultLimit = 5

	requestSearchLimit = 5
	maxSearchLimit     = 50
)

// ResolverConfig tunes a CatalogResolver.
type ResolverConfig struct {
	Market             string
	SearchTimeout      time.Duration
	FeatureTimeout     time.Duration
	FeatureConcurrency int
	// GenreFill enables genre:"x" searches once fallback queries are exhausted.
	GenreFill bool
}

// CatalogResolver turns track requests and fallback queries into playable,
// feature-enriched tracks.
type CatalogResolver struct {
	catalog ports.CatalogClient
	cfg     ResolverConfig
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewCatalogResolver constructs a CatalogResolver. Zero durations and
// concurrency fall back to sensible defaults.
func NewCatalogResolver(catalog ports.CatalogClient, cfg ResolverConfig, logger *zap.Logger, metrics *observability.Metrics) *CatalogResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 8 * time.Second
	}
	if cfg.FeatureTimeout <= 0 {
		cfg.FeatureTimeout = 5 * time.Second
	}
	if cfg.FeatureConcurrency <= 0 {
		cfg.FeatureConcurrency = 4
	}
	return &CatalogResolver{catalog: catalog, cfg: cfg, logger: logger, metrics: metrics}
}

// Resolve runs requests first, then fallback queries, until limit unique
// playable tracks are collected. A limit <= 0 means DefaultLimit.
func (r *CatalogResolver) Resolve(ctx context.Context, requests []domain.TrackRequest, fallbacks []domain.FallbackQuery, limit int) ([]domain.ResolvedTrack, error) {
	res, err := r.ResolveWithGenres(ctx, requests, fallbacks, nil, limit)
	return res.Tracks, err
}

// Resolution is the outcome of ResolveWithGenres.
type Resolution struct {
	Tracks []domain.ResolvedTrack
	// GenreSearched is set once at least one genre:"x" search was issued.
	GenreSearched bool
}

// ResolveWithGenres is Resolve plus genre fill when enabled in the config.
// Tracks found that way carry their SeedGenre.
func (r *CatalogResolver) ResolveWithGenres(ctx context.Context, requests []domain.TrackRequest, fallbacks []domain.FallbackQuery, genres []string, limit int) (Resolution, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	run := &resolution{r: r, limit: limit, seen: make(map[string]struct{})}

	for _, req := range requests {
		if run.full() {
			break
		}
		q := domain.CatalogQuery{Title: req.Title, Artist: req.Artist, Hint: req.SearchHint, Limit: requestSearchLimit}
		cands, err := run.search(ctx, q)
		if err != nil {
			return Resolution{}, err
		}
		for _, c := range cands {
			if !c.PlayableIn(r.cfg.Market) {
				continue
			}
			// Only the best playable match counts; a duplicate adds nothing.
			run.accept(c, domain.SourceRequested, req.Rationale, "")
			break
		}
	}

	for _, fq := range fallbacks {
		if run.full() {
			break
		}
		if fq.Query == "" {
			continue
		}
		cands, err := run.search(ctx, domain.CatalogQuery{Text: fq.Query, Limit: searchLimit(limit)})
		if err != nil {
			return Resolution{}, err
		}
		run.acceptAll(cands, fq.Reason, "")
	}

	genreSearched := false
	if r.cfg.GenreFill {
		for _, g := range genres {
			if run.full() {
				break
			}
			genreSearched = true
			q := domain.CatalogQuery{Text: fmt.Sprintf("genre:%q", g), Limit: searchLimit(limit)}
			cands, err := run.search(ctx, q)
			if err != nil {
				return Resolution{}, err
			}
			run.acceptAll(cands, "", g)
		}
	}

	if run.attempted > 0 && run.succeeded == 0 {
		return Resolution{}, &domain.UpstreamError{
			Provider: "catalog",
			Kind:     domain.KindUnavailable,
			Message:  "every catalog search failed",
			Err:      run.lastErr,
		}
	}

	r.enrich(ctx, run.tracks)
	return Resolution{Tracks: run.tracks, GenreSearched: genreSearched}, nil
}

func searchLimit(limit int) int {
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}

type resolution struct {
	r      *CatalogResolver
	limit  int
	seen   map[string]struct{}
	tracks []domain.ResolvedTrack

	attempted int
	succeeded int
	lastErr   error
}

func (s *resolution) full() bool {
	return len(s.tracks) >= s.limit
}

// search runs one query. Skippable failures return (nil, nil); only an
// unreachable provider or a cancelled caller returns an error.
func (s *resolution) search(ctx context.Context, q domain.CatalogQuery) ([]domain.CatalogTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}

	s.attempted++
	sctx, cancel := context.WithTimeout(ctx, s.r.cfg.SearchTimeout)
	cands, err := s.r.catalog.Search(sctx, q)
	cancel()

	log := s.r.logger.With(zap.String("query", describeQuery(q)))
	switch {
	case err == nil:
		s.succeeded++
		s.r.metrics.ObserveSearch("ok")
		return cands, nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, ports.ErrNoConfidentMatch):
		s.succeeded++
		s.r.metrics.ObserveSearch("empty")
		log.Debug("catalog search found nothing", zap.Error(err))
		return nil, nil
	case errors.Is(err, domain.ErrCatalogUnavailable):
		s.r.metrics.ObserveSearch("unavailable")
		return nil, fmt.Errorf("resolver: catalog unreachable: %w", err)
	case ctx.Err() != nil:
		return nil, fmt.Errorf("resolver: %w", ctx.Err())
	default:
		s.lastErr = err
		s.r.metrics.ObserveSearch("failed")
		log.Warn("catalog search failed, skipping", zap.String("kind", string(domain.KindOf(err))), zap.Error(err))
		return nil, nil
	}
}

func (s *resolution) accept(c domain.CatalogTrack, source domain.TrackSource, rationale, seedGenre string) bool {
	if s.full() {
		return false
	}
	if _, dup := s.seen[c.ID]; dup {
		return false
	}
	s.seen[c.ID] = struct{}{}
	s.tracks = append(s.tracks, domain.ResolvedTrack{
		ID:            c.ID,
		Name:          c.Name,
		Artists:       append([]string(nil), c.Artists...),
		URL:           c.URL,
		PreviewURL:    c.PreviewURL,
		AlbumImageURL: c.AlbumImageURL,
		Popularity:    c.Popularity,
		DurationMs:    c.DurationMs,
		Source:        source,
		Rationale:     rationale,
		SeedGenre:     seedGenre,
	})
	return true
}

func (s *resolution) acceptAll(cands []domain.CatalogTrack, rationale, seedGenre string) {
	for _, c := range cands {
		if s.full() {
			return
		}
		if !c.PlayableIn(s.r.cfg.Market) {
			continue
		}
		s.accept(c, domain.SourceFallback, rationale, seedGenre)
	}
}

// enrich fetches features for every track in place. Failures leave an empty map.
func (r *CatalogResolver) enrich(ctx context.Context, tracks []domain.ResolvedTrack) {
	var g errgroup.Group
	g.SetLimit(r.cfg.FeatureConcurrency)

	for i := range tracks {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, r.cfg.FeatureTimeout)
			defer cancel()

			features, err := r.catalog.AudioFeatures(fctx, tracks[i].ID)
			if err != nil {
				r.metrics.ObserveFeatureFetch("degraded")
				r.logger.Warn("audio features unavailable, keeping track",
					zap.String("track_id", tracks[i].ID),
					zap.String("kind", string(domain.KindOf(err))),
					zap.Error(err))
				tracks[i].AudioFeatures = domain.AudioFeatures{}
				return nil
			}
			r.metrics.ObserveFeatureFetch("ok")
			tracks[i].AudioFeatures = features.Clone()
			return nil
		})
	}
	_ = g.Wait()
}

func describeQuery(q domain.CatalogQuery) string {
	if q.Title == "" {
		return q.Text
	}
	if q.Artist == "" {
		return q.Title
	}
	return q.Title + " - " + q.Artist
}
