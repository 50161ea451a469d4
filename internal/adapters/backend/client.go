// Package backend delivers recommendation payloads to the downstream HTTP backend.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
	"github.com/ewilliams-labs/moodlist/internal/core/ports"
)

const recommendPath = "/api/recommend"

// Client posts payloads to {baseURL}/api/recommend.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// compile-time interface assertion
var _ ports.BackendSink = (*Client)(nil)

// NewClient constructs a backend sink. Deadlines come from the caller's context.
func NewClient(httpClient *http.Client, baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend: base url is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, baseURL: baseURL}, nil
}

func (c *Client) Name() string { return "backend" }

// wirePayload is the backend's view of a recommendation.
type wirePayload struct {
	ID             string             `json:"id"`
	SessionID      string             `json:"session_id"`
	Provider       string             `json:"provider"`
	PlaylistTitle  string             `json:"playlist_title"`
	MoodSummary    string             `json:"mood_summary"`
	Notes          string             `json:"notes"`
	Reasoning      string             `json:"reasoning"`
	SeedGenres     []string           `json:"seed_genres"`
	TargetFeatures map[string]float64 `json:"target_features,omitempty"`
	Tracks         []wireTrack        `json:"tracks"`
	CreatedAt      string             `json:"created_at"`
}

type wireTrack struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Artists       []string           `json:"artists"`
	URL           string             `json:"url"`
	PreviewURL    string             `json:"preview_url,omitempty"`
	AlbumImage    string             `json:"album_image,omitempty"`
	Popularity    int                `json:"popularity"`
	DurationMs    int                `json:"duration_ms"`
	AudioFeatures map[string]float64 `json:"audio_features"`
	Source        string             `json:"source"`
	Rationale     string             `json:"rationale"`
}

func toWire(p domain.RecommendationPayload) wirePayload {
	tracks := make([]wireTrack, len(p.Tracks))
	for i, t := range p.Tracks {
		features := map[string]float64(t.AudioFeatures)
		if features == nil {
			features = map[string]float64{}
		}
		tracks[i] = wireTrack{
			ID:            t.ID,
			Name:          t.Name,
			Artists:       t.Artists,
			URL:           t.URL,
			PreviewURL:    t.PreviewURL,
			AlbumImage:    t.AlbumImageURL,
			Popularity:    t.Popularity,
			DurationMs:    t.DurationMs,
			AudioFeatures: features,
			Source:        string(t.Source),
			Rationale:     t.Rationale,
		}
	}
	genres := p.SeedGenres
	if genres == nil {
		genres = []string{}
	}
	return wirePayload{
		ID:             p.ID,
		SessionID:      p.SessionID,
		Provider:       p.Provider,
		PlaylistTitle:  p.PlaylistTitle,
		MoodSummary:    p.MoodSummary,
		Notes:          p.Notes,
		Reasoning:      p.Reasoning,
		SeedGenres:     genres,
		TargetFeatures: p.TargetFeatures,
		Tracks:         tracks,
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
	}
}

// Deliver posts the payload once. Any non-2xx answer is an error.
func (c *Client) Deliver(ctx context.Context, p domain.RecommendationPayload) error {
	body, err := json.Marshal(toWire(p))
	if err != nil {
		return fmt.Errorf("backend: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+recommendPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: post payload: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.UpstreamError{Provider: "backend", Kind: domain.KindFatal, Status: resp.StatusCode}
	}
	return nil
}
