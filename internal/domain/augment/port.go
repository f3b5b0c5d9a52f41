package augment

import (
	"context"

	"github.com/veriscope/veriscope/internal/domain/catalog"
)

// Augmenter port: given an agent and a natural-language query, return
// supporting text. Implementations are best-effort; an error means "no
// context", never a pipeline failure.
type Augmenter interface {
	Lookup(ctx context.Context, agent *catalog.Agent, query string) (string, error)
}
