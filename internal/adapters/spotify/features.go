package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

// AudioFeatures fetches the feature vector for a track. Spotify answers 403 for
// apps without access to this endpoint; that and 404 yield an empty map.
func (c *Client) AudioFeatures(ctx context.Context, trackID string) (domain.AudioFeatures, error) {
	if trackID == "" {
		return domain.AudioFeatures{}, nil
	}

	var raw map[string]any
	err := c.getJSON(ctx, "/audio-features/"+url.PathEscape(trackID), nil, &raw)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.logger.Debug("audio features not available", zap.String("track_id", trackID))
			return domain.AudioFeatures{}, nil
		}
		return nil, fmt.Errorf("spotify adapter: audio features %s: %w", trackID, err)
	}

	features := make(domain.AudioFeatures, len(raw))
	for k, v := range raw {
		if n, ok := v.(float64); ok {
			features[k] = n
		}
	}
	if allFeaturesZero(features) {
		return domain.AudioFeatures{}, nil
	}
	return features, nil
}

func allFeaturesZero(features domain.AudioFeatures) bool {
	for _, v := range features {
		if v != 0 {
			return false
		}
	}
	return true
}

// SeedGenres returns the genre seeds Spotify accepts.
func (c *Client) SeedGenres(ctx context.Context) ([]string, error) {
	var body genreSeedsResponse
	if err := c.getJSON(ctx, "/recommendations/available-genre-seeds", nil, &body); err != nil {
		return nil, fmt.Errorf("spotify adapter: genre seeds: %w", err)
	}
	return body.Genres, nil
}
