package ports

import (
	"context"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

// BackendSink receives finished recommendations. Delivery is one-shot.
type BackendSink interface {
	Name() string
	Deliver(ctx context.Context, p domain.RecommendationPayload) error
}

// PayloadArchive is a sink that can also list what it stored.
type PayloadArchive interface {
	BackendSink
	Recent(ctx context.Context, limit int) ([]domain.RecommendationPayload, error)
}
