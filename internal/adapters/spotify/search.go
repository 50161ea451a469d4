package spotify

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// Search runs a track search. Title searches are ranked by match confidence;
// free-text searches keep Spotify's order.
func (c *Client) Search(ctx context.Context, q domain.CatalogQuery) ([]domain.CatalogTrack, error) {
	text := buildQuery(q)
	if text == "" {
		return nil, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	params := url.Values{}
	params.Set("q", text)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(limit))
	if c.market != "" {
		params.Set("market", c.market)
	}

	c.logger.Debug("spotify search", zap.String("query", text))

	var body searchResponse
	if err := c.getJSON(ctx, "/search", params, &body); err != nil {
		return nil, fmt.Errorf("spotify adapter: search %q: %w", text, err)
	}

	items := body.Tracks.Items
	if q.Title != "" {
		items = rankCandidates(q.Title, q.Artist, items)
	}

	out := make([]domain.CatalogTrack, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		out = append(out, mapTrackToDomain(it))
	}
	return out, nil
}

func buildQuery(q domain.CatalogQuery) string {
	if q.Title == "" {
		return strings.TrimSpace(q.Text)
	}

	normalizedTitle, normalizedArtist := normalizeTitleArtist(q.Title, q.Artist)
	parts := []string{"track:" + fallbackIfEmpty(normalizedTitle, q.Title)}
	if strings.TrimSpace(q.Artist) != "" {
		parts = append(parts, "artist:"+fallbackIfEmpty(normalizedArtist, q.Artist))
	}
	if hint := strings.TrimSpace(q.Hint); hint != "" {
		parts = append(parts, hint)
	}
	return strings.Join(parts, " ")
}

// rankCandidates moves confident matches to the front, best first. The rest
// keep their relative order.
func rankCandidates(title, artist string, items []spotifyTrack) []spotifyTrack {
	type scored struct {
		track     spotifyTrack
		score     float64
		confident bool
	}

	ranked := make([]scored, len(items))
	for i, it := range items {
		score, ok := trackMatchScore(title, artist, it)
		ranked[i] = scored{track: it, score: score, confident: ok}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].confident != ranked[j].confident {
			return ranked[i].confident
		}
		if ranked[i].confident {
			return ranked[i].score > ranked[j].score
		}
		return false
	})

	out := make([]spotifyTrack, len(ranked))
	for i, r := range ranked {
		out[i] = r.track
	}
	return out
}
