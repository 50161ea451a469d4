package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ewilliams-labs/moodlist/internal/adapters/backend"
	"github.com/ewilliams-labs/moodlist/internal/adapters/gemini"
	"github.com/ewilliams-labs/moodlist/internal/adapters/ollama"
	"github.com/ewilliams-labs/moodlist/internal/adapters/postgres"
	"github.com/ewilliams-labs/moodlist/internal/adapters/spotify"
	"github.com/ewilliams-labs/moodlist/internal/adapters/sqlite"
	"github.com/ewilliams-labs/moodlist/internal/config"
	"github.com/ewilliams-labs/moodlist/internal/core/ports"
	"github.com/ewilliams-labs/moodlist/internal/core/services"
	"github.com/ewilliams-labs/moodlist/internal/observability"
)

// genreFetchTimeout bounds the one-time seed genre lookup at startup.
const genreFetchTimeout = 5 * time.Second

// app holds the wired pipeline and everything that needs closing.
type app struct {
	orchestrator *services.Orchestrator
	metrics      *observability.Metrics
	closers      []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	if err := cfg.ValidatePipeline(); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)
	a := &app{metrics: metrics}

	llm, err := newLanguageModel(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	catalog, err := spotify.NewClient(ctx, spotify.Config{
		ClientID:        cfg.Spotify.ClientID,
		ClientSecret:    cfg.Spotify.ClientSecret,
		BaseURL:         cfg.Spotify.BaseURL,
		TokenURL:        cfg.Spotify.TokenURL,
		Market:          cfg.Spotify.Market,
		Timeout:         cfg.Spotify.Timeout,
		BreakerFailures: cfg.Spotify.BreakerFailures,
		BreakerCooldown: cfg.Spotify.BreakerCooldown,
	}, logger.Named("spotify"), metrics)
	if err != nil {
		return nil, err
	}

	allowed := allowedGenres(ctx, cfg.Recommend.AllowedGenres, catalog, logger)

	sinks, closers, err := newSinks(ctx, cfg.Delivery, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closers...)

	normalizer := services.NewFeatureNormalizer(allowed)
	analyzer := services.NewConversationAnalyzer(llm, services.AnalyzerConfig{
		Limit:         cfg.Recommend.Limit,
		AllowedGenres: normalizer.AllowedGenres(),
		Timeout:       cfg.LLM.Timeout,
	}, logger.Named("analyzer"), metrics)
	resolver := services.NewCatalogResolver(catalog, services.ResolverConfig{
		Market:             cfg.Spotify.Market,
		SearchTimeout:      cfg.Recommend.SearchTimeout,
		FeatureTimeout:     cfg.Recommend.FeatureTimeout,
		FeatureConcurrency: cfg.Recommend.FeatureConcurrency,
		GenreFill:          cfg.Recommend.GenreFill,
	}, logger.Named("resolver"), metrics)

	a.orchestrator = services.NewOrchestrator(
		services.NewSessionStore(),
		analyzer,
		normalizer,
		resolver,
		sinks,
		services.OrchestratorConfig{
			Limit:           cfg.Recommend.Limit,
			DefaultGenres:   cfg.Recommend.DefaultGenres,
			DeliveryTimeout: cfg.Delivery.Timeout,
		},
		logger.Named("orchestrator"),
		metrics,
	)

	logger.Info("pipeline ready",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("market", cfg.Spotify.Market),
		zap.Int("limit", cfg.Recommend.Limit),
		zap.Int("allowed_genres", len(normalizer.AllowedGenres())),
		zap.Strings("sinks", cfg.Delivery.Drivers),
	)
	return a, nil
}

func newLanguageModel(ctx context.Context, cfg config.LLMConfig) (ports.LanguageModelClient, error) {
	switch cfg.Provider {
	case "gemini":
		c, err := gemini.NewClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		c.SetTemperature(cfg.Temperature)
		return c, nil
	case "ollama":
		return ollama.NewClient(cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// allowedGenres prefers the configured list, then the catalog's seed genres,
// then the built-in defaults (signalled by nil).
func allowedGenres(ctx context.Context, configured []string, catalog ports.CatalogClient, logger *zap.Logger) []string {
	if len(configured) > 0 {
		return configured
	}
	ctx, cancel := context.WithTimeout(ctx, genreFetchTimeout)
	defer cancel()
	genres, err := catalog.SeedGenres(ctx)
	if err != nil || len(genres) == 0 {
		logger.Warn("seed genre lookup failed, using built-in genres", zap.Error(err))
		return nil
	}
	return genres
}

func newSinks(ctx context.Context, cfg config.DeliveryConfig, logger *zap.Logger) ([]ports.BackendSink, []func(), error) {
	var sinks []ports.BackendSink
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	for _, driver := range cfg.Drivers {
		switch driver {
		case config.DriverBackend:
			c, err := backend.NewClient(&http.Client{Timeout: cfg.Timeout}, cfg.BackendURL)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			sinks = append(sinks, c)
		case config.DriverSQLite:
			a, err := sqlite.NewAdapter(cfg.SQLitePath)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			sinks = append(sinks, a)
			closers = append(closers, func() { _ = a.Close() })
		case config.DriverPostgres:
			s, err := postgres.NewStore(ctx, cfg.PostgresURL)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			sinks = append(sinks, s)
			closers = append(closers, s.Close)
		default:
			closeAll()
			return nil, nil, errors.New("unknown delivery driver " + driver)
		}
		logger.Debug("delivery sink enabled", zap.String("sink", driver))
	}
	return sinks, closers, nil
}
