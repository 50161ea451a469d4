package ports

import (
	"context"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

// LanguageModelClient sends an instruction plus the ordered turn history to a model
// and returns its raw text. Quota failures must be returned as *domain.UpstreamError
// with Kind domain.KindQuota.
type LanguageModelClient interface {
	Generate(ctx context.Context, instruction string, turns []domain.Turn) (string, error)
}
