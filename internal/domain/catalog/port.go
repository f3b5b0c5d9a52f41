package catalog

import (
	"context"
	"errors"
)

// ErrNotFound indicates a referenced item/collection/agent does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Repository port (read-only key lookups; the pipeline never writes here)
type Repository interface {
	GetItem(ctx context.Context, id string) (*Item, error)
	GetCollection(ctx context.Context, id string) (*Collection, error)
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgentsForItem(ctx context.Context, itemID string) ([]*Agent, error)
}
