// Package postgres archives delivered recommendations in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
	"github.com/ewilliams-labs/moodlist/internal/core/ports"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ ports.PayloadArchive = (*Store)(nil)

func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS recommendations (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			title TEXT NOT NULL,
			mood_summary TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			reasoning TEXT NOT NULL DEFAULT '',
			seed_genres JSONB NOT NULL DEFAULT '[]'::jsonb,
			target_features JSONB NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_recommendations_created ON recommendations (created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS recommendation_tracks (
			recommendation_id TEXT NOT NULL REFERENCES recommendations(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			track JSONB NOT NULL,
			PRIMARY KEY (recommendation_id, position)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init recommendation schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) Deliver(ctx context.Context, p domain.RecommendationPayload) error {
	genres := p.SeedGenres
	if genres == nil {
		genres = []string{}
	}
	genresJSON, err := json.Marshal(genres)
	if err != nil {
		return fmt.Errorf("encode seed genres: %w", err)
	}
	var targetsJSON []byte
	if len(p.TargetFeatures) > 0 {
		if targetsJSON, err = json.Marshal(p.TargetFeatures); err != nil {
			return fmt.Errorf("encode target features: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO recommendations (
			id, session_id, provider, title, mood_summary, notes, reasoning, seed_genres, target_features, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			session_id=EXCLUDED.session_id,
			provider=EXCLUDED.provider,
			title=EXCLUDED.title,
			mood_summary=EXCLUDED.mood_summary,
			notes=EXCLUDED.notes,
			reasoning=EXCLUDED.reasoning,
			seed_genres=EXCLUDED.seed_genres,
			target_features=EXCLUDED.target_features,
			created_at=EXCLUDED.created_at`,
		p.ID,
		p.SessionID,
		p.Provider,
		p.PlaylistTitle,
		p.MoodSummary,
		p.Notes,
		p.Reasoning,
		genresJSON,
		targetsJSON,
		p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert recommendation: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM recommendation_tracks WHERE recommendation_id=$1`, p.ID); err != nil {
		return fmt.Errorf("delete prior tracks: %w", err)
	}

	batch := &pgx.Batch{}
	for i, t := range p.Tracks {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode track %s: %w", t.ID, err)
		}
		batch.Queue(`INSERT INTO recommendation_tracks (recommendation_id, position, track) VALUES ($1,$2,$3)`, p.ID, i, raw)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert tracks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit recommendation: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]domain.RecommendationPayload, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, provider, title, mood_summary, notes, reasoning, seed_genres, target_features, created_at
		FROM recommendations
		ORDER BY created_at DESC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	var out []domain.RecommendationPayload
	for rows.Next() {
		var p domain.RecommendationPayload
		var genres, targets []byte
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Provider, &p.PlaylistTitle, &p.MoodSummary,
			&p.Notes, &p.Reasoning, &genres, &targets, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		if err := json.Unmarshal(genres, &p.SeedGenres); err != nil {
			return nil, fmt.Errorf("decode seed genres: %w", err)
		}
		if len(targets) > 0 {
			if err := json.Unmarshal(targets, &p.TargetFeatures); err != nil {
				return nil, fmt.Errorf("decode target features: %w", err)
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recommendations: %w", err)
	}

	for i := range out {
		tracks, err := s.tracks(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Tracks = tracks
	}
	return out, nil
}

// GetByID loads one archived recommendation, or domain.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (domain.RecommendationPayload, error) {
	var p domain.RecommendationPayload
	var genres, targets []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, provider, title, mood_summary, notes, reasoning, seed_genres, target_features, created_at
		FROM recommendations WHERE id=$1`, id).
		Scan(&p.ID, &p.SessionID, &p.Provider, &p.PlaylistTitle, &p.MoodSummary,
			&p.Notes, &p.Reasoning, &genres, &targets, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, domain.ErrNotFound
		}
		return p, fmt.Errorf("load recommendation: %w", err)
	}
	if err := json.Unmarshal(genres, &p.SeedGenres); err != nil {
		return p, fmt.Errorf("decode seed genres: %w", err)
	}
	if len(targets) > 0 {
		if err := json.Unmarshal(targets, &p.TargetFeatures); err != nil {
			return p, fmt.Errorf("decode target features: %w", err)
		}
	}
	p.Tracks, err = s.tracks(ctx, id)
	return p, err
}

func (s *Store) tracks(ctx context.Context, id string) ([]domain.ResolvedTrack, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT track FROM recommendation_tracks WHERE recommendation_id=$1 ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	out := []domain.ResolvedTrack{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		var t domain.ResolvedTrack
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode track: %w", err)
		}
		if t.AudioFeatures == nil {
			t.AudioFeatures = domain.AudioFeatures{}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
