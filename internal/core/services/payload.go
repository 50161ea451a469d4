package services

import (
	"time"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

// ProviderSpotify tags payloads resolved against the Spotify catalog.
const ProviderSpotify = "spotify"

// PayloadInput is everything BuildPayload needs. Slices are copied.
type PayloadInput struct {
	ID             string
	SessionID      string
	Provider       string
	PlaylistTitle  string
	MoodSummary    string
	Notes          string
	Reasoning      string
	Tracks         []domain.ResolvedTrack
	Genres         []string
	TargetFeatures domain.AudioFeatures
	CreatedAt      time.Time
	// GenreSearched marks that genre seeds were searched; Genres is then
	// narrowed to the seeds that produced a track, possibly none.
	GenreSearched bool
}

// BuildPayload assembles the recommendation. When genre seeds were searched,
// only the genres that produced a surviving track are reported; otherwise the
// normalized genre list is informational and kept whole.
func BuildPayload(in PayloadInput) domain.RecommendationPayload {
	provider := in.Provider
	if provider == "" {
		provider = ProviderSpotify
	}

	tracks := make([]domain.ResolvedTrack, len(in.Tracks))
	seeded := make(map[string]struct{})
	for i, t := range in.Tracks {
		t.Artists = append([]string(nil), t.Artists...)
		t.AudioFeatures = t.AudioFeatures.Clone()
		tracks[i] = t
		if t.SeedGenre != "" {
			seeded[t.SeedGenre] = struct{}{}
		}
	}

	narrow := in.GenreSearched || len(seeded) > 0
	genres := make([]string, 0, len(in.Genres))
	for _, g := range in.Genres {
		if narrow {
			if _, ok := seeded[g]; !ok {
				continue
			}
		}
		genres = append(genres, g)
	}

	var features domain.AudioFeatures
	if len(in.TargetFeatures) > 0 {
		features = in.TargetFeatures.Clone()
	}

	return domain.RecommendationPayload{
		ID:             in.ID,
		SessionID:      in.SessionID,
		Provider:       provider,
		PlaylistTitle:  in.PlaylistTitle,
		MoodSummary:    in.MoodSummary,
		Notes:          in.Notes,
		Reasoning:      in.Reasoning,
		Tracks:         tracks,
		SeedGenres:     genres,
		TargetFeatures: features,
		CreatedAt:      in.CreatedAt,
	}
}
