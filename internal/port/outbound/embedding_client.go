package outbound

import (
	"context"

	"github.com/vectorbound/boundaryplane/internal/domain/intent"
	"github.com/vectorbound/boundaryplane/internal/domain/vector"
)

// EmbeddingClient turns an IntentEvent into a 128-d intent vector, per the
// `POST /encode` contract (spec.md §6). Implementations own their own
// connect/request timeouts; callers apply the 500ms/1500ms budget from
// spec.md §4.6 via ctx.
type EmbeddingClient interface {
	Encode(ctx context.Context, event *intent.Event) (vector.IntentVector, error)
}
