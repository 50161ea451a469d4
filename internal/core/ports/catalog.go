package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

// ErrNoConfidentMatch indicates search results did not meet the confidence threshold.
var ErrNoConfidentMatch = errors.New("no confident match")

// NoConfidentMatchError provides context for a failed track match.
type NoConfidentMatchError struct {
	Title  string
	Artist string
}

func (e NoConfidentMatchError) Error() string {
	if e.Title == "" && e.Artist == "" {
		return ErrNoConfidentMatch.Error()
	}
	return fmt.Sprintf("no confident match found for title %q artist %q", e.Title, e.Artist)
}

func (e NoConfidentMatchError) Is(target error) bool {
	return target == ErrNoConfidentMatch
}

// CatalogClient is the music catalog. Search returns candidates ranked best first.
// AudioFeatures returns an empty map when the provider has no features for the id.
type CatalogClient interface {
	Search(ctx context.Context, q domain.CatalogQuery) ([]domain.CatalogTrack, error)
	AudioFeatures(ctx context.Context, trackID string) (domain.AudioFeatures, error)
	SeedGenres(ctx context.Context) ([]string, error)
}
