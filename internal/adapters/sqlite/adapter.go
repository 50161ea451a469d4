// Package sqlite provides a SQLite-backed archive of delivered recommendations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // Import the driver anonymously

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
	"github.com/ewilliams-labs/moodlist/internal/core/ports"
)

// Adapter implements the archive sink for SQLite
type Adapter struct {
	db *sql.DB
}

// compile-time interface assertion
var _ ports.PayloadArchive = (*Adapter)(nil)

// NewAdapter creates a connection and runs the schema migration
func NewAdapter(storagePath string) (*Adapter, error) {
	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	adapter := &Adapter{db: db}

	if err := adapter.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return adapter, nil
}

// Close ensures the DB connection is closed gracefully
func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) Name() string { return "sqlite" }

// Deliver archives the payload. Re-delivering the same id replaces it.
func (a *Adapter) Deliver(ctx context.Context, p domain.RecommendationPayload) error {
	genres, err := json.Marshal(nonNilStrings(p.SeedGenres))
	if err != nil {
		return fmt.Errorf("failed to encode seed genres: %w", err)
	}
	targets, err := json.Marshal(p.TargetFeatures)
	if err != nil {
		return fmt.Errorf("failed to encode target features: %w", err)
	}

	// 1. Start Transaction
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	// 2. Upsert the recommendation row
	queryPlaylist := `
		INSERT INTO recommendations (id, session_id, provider, title, mood_summary, notes, reasoning, seed_genres, target_features, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id=excluded.session_id,
			provider=excluded.provider,
			title=excluded.title,
			mood_summary=excluded.mood_summary,
			notes=excluded.notes,
			reasoning=excluded.reasoning,
			seed_genres=excluded.seed_genres,
			target_features=excluded.target_features,
			created_at=excluded.created_at;
	`
	if _, err := tx.ExecContext(ctx, queryPlaylist,
		p.ID, p.SessionID, p.Provider, p.PlaylistTitle, p.MoodSummary, p.Notes, p.Reasoning,
		string(genres), string(targets), p.CreatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to save recommendation metadata: %w", err)
	}

	// 3. Reset Links
	if _, err := tx.ExecContext(ctx, "DELETE FROM recommendation_tracks WHERE recommendation_id = ?", p.ID); err != nil {
		return fmt.Errorf("failed to clear old tracks: %w", err)
	}

	// 4. Upsert Tracks & Re-link
	stmtTrack, err := tx.PrepareContext(ctx, `
		INSERT INTO tracks (id, name, artists, url, preview_url, album_image, popularity, duration_ms, audio_features)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			artists=excluded.artists,
			url=excluded.url,
			preview_url=excluded.preview_url,
			album_image=excluded.album_image,
			popularity=excluded.popularity,
			duration_ms=excluded.duration_ms,
			audio_features=excluded.audio_features;
	`)
	if err != nil {
		return err
	}
	defer stmtTrack.Close()

	stmtLink, err := tx.PrepareContext(ctx, `
		INSERT INTO recommendation_tracks (recommendation_id, track_id, position, source, rationale, seed_genre)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmtLink.Close()

	for i, t := range p.Tracks {
		artists, err := json.Marshal(nonNilStrings(t.Artists))
		if err != nil {
			return fmt.Errorf("failed to encode artists for %s: %w", t.ID, err)
		}
		features, err := json.Marshal(t.AudioFeatures.Clone())
		if err != nil {
			return fmt.Errorf("failed to encode features for %s: %w", t.ID, err)
		}
		if _, err := stmtTrack.ExecContext(ctx,
			t.ID, t.Name, string(artists), t.URL, t.PreviewURL, t.AlbumImageURL,
			t.Popularity, t.DurationMs, string(features),
		); err != nil {
			return fmt.Errorf("failed to save track %s: %w", t.ID, err)
		}
		if _, err := stmtLink.ExecContext(ctx, p.ID, t.ID, i, string(t.Source), t.Rationale, t.SeedGenre); err != nil {
			return fmt.Errorf("failed to link track %s: %w", t.ID, err)
		}
	}

	// 5. Commit Transaction
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}

	return nil
}

// GetByID loads one archived recommendation.
func (a *Adapter) GetByID(ctx context.Context, id string) (domain.RecommendationPayload, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, session_id, provider, title, mood_summary, notes, reasoning, seed_genres, target_features, created_at
		FROM recommendations WHERE id = ?`, id)
	p, err := scanRecommendation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RecommendationPayload{}, domain.ErrNotFound
		}
		return domain.RecommendationPayload{}, fmt.Errorf("failed to load recommendation: %w", err)
	}
	if err := a.loadTracks(ctx, &p); err != nil {
		return domain.RecommendationPayload{}, err
	}
	return p, nil
}

// Recent returns the newest recommendations first.
func (a *Adapter) Recent(ctx context.Context, limit int) ([]domain.RecommendationPayload, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, session_id, provider, title, mood_summary, notes, reasoning, seed_genres, target_features, created_at
		FROM recommendations
		ORDER BY created_at DESC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}

	var out []domain.RecommendationPayload
	for rows.Next() {
		p, err := scanRecommendation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate recommendations: %w", err)
	}
	rows.Close()

	// tracks are loaded after the cursor closes; the pool has a single connection
	for i := range out {
		if err := a.loadTracks(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecommendation(s scanner) (domain.RecommendationPayload, error) {
	var p domain.RecommendationPayload
	var genres, targets, created string
	if err := s.Scan(&p.ID, &p.SessionID, &p.Provider, &p.PlaylistTitle, &p.MoodSummary,
		&p.Notes, &p.Reasoning, &genres, &targets, &created); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(genres), &p.SeedGenres); err != nil {
		return p, fmt.Errorf("decode seed genres: %w", err)
	}
	if targets != "" && targets != "null" {
		if err := json.Unmarshal([]byte(targets), &p.TargetFeatures); err != nil {
			return p, fmt.Errorf("decode target features: %w", err)
		}
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return p, fmt.Errorf("decode created_at: %w", err)
	}
	p.CreatedAt = ts
	return p, nil
}

func (a *Adapter) loadTracks(ctx context.Context, p *domain.RecommendationPayload) error {
	trackRows, err := a.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.artists, t.url, IFNULL(t.preview_url, ''), IFNULL(t.album_image, ''),
			t.popularity, t.duration_ms, t.audio_features, rt.source, rt.rationale, rt.seed_genre
		FROM recommendation_tracks rt
		JOIN tracks t ON t.id = rt.track_id
		WHERE rt.recommendation_id = ?
		ORDER BY rt.position ASC
	`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to load recommendation tracks: %w", err)
	}
	defer trackRows.Close()

	p.Tracks = []domain.ResolvedTrack{}
	for trackRows.Next() {
		var t domain.ResolvedTrack
		var artists, features, source string
		if err := trackRows.Scan(
			&t.ID,
			&t.Name,
			&artists,
			&t.URL,
			&t.PreviewURL,
			&t.AlbumImageURL,
			&t.Popularity,
			&t.DurationMs,
			&features,
			&source,
			&t.Rationale,
			&t.SeedGenre,
		); err != nil {
			return fmt.Errorf("failed to scan recommendation track: %w", err)
		}
		if err := json.Unmarshal([]byte(artists), &t.Artists); err != nil {
			return fmt.Errorf("failed to decode artists: %w", err)
		}
		t.AudioFeatures = domain.AudioFeatures{}
		if err := json.Unmarshal([]byte(features), &t.AudioFeatures); err != nil {
			return fmt.Errorf("failed to decode audio features: %w", err)
		}
		t.Source = domain.TrackSource(source)
		p.Tracks = append(p.Tracks, t)
	}
	if err := trackRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate recommendation tracks: %w", err)
	}
	return nil
}

func (a *Adapter) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		artists TEXT NOT NULL,
		url TEXT NOT NULL,
		preview_url TEXT,
		album_image TEXT,
		popularity INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		audio_features TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS recommendations (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		title TEXT NOT NULL,
		mood_summary TEXT NOT NULL,
		notes TEXT NOT NULL,
		reasoning TEXT NOT NULL,
		seed_genres TEXT NOT NULL DEFAULT '[]',
		target_features TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recommendation_tracks (
		recommendation_id TEXT,
		track_id TEXT,
		position INTEGER NOT NULL,
		source TEXT NOT NULL,
		rationale TEXT NOT NULL DEFAULT '',
		seed_genre TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (recommendation_id, position),
		FOREIGN KEY(recommendation_id) REFERENCES recommendations(id) ON DELETE CASCADE,
		FOREIGN KEY(track_id) REFERENCES tracks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_recommendations_created ON recommendations(created_at);
	`
	_, err := a.db.Exec(query)
	return err
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
