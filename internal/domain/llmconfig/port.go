package llmconfig

import (
	"context"
	"errors"
)

// ErrNotSet indicates no active value exists for a config type.
var ErrNotSet = errors.New("llmconfig: not set")

// Store port: versioned append-only configuration history with one active
// value per type.
type Store interface {
	Active(ctx context.Context, configType string) (string, error)
	Save(ctx context.Context, e Entry) (*Entry, error)
	History(ctx context.Context, configType string, limit int) ([]Entry, error)
}

// Load assembles a Snapshot from the store, falling back to defaults for
// unset values.
func Load(ctx context.Context, s Store, defaults Snapshot) (Snapshot, error) {
	snap := defaults

	if v, err := s.Active(ctx, TypeSystemPrompt); err == nil {
		snap.SystemPrompt = v
	} else if !errors.Is(err, ErrNotSet) {
		return Snapshot{}, err
	}
	if v, err := s.Active(ctx, TypeSecondPassPrompt); err == nil {
		snap.SecondPassPrompt = v
	} else if !errors.Is(err, ErrNotSet) {
		return Snapshot{}, err
	}
	if v, err := s.Active(ctx, TypeModelID); err == nil {
		snap.ModelID = v
	} else if !errors.Is(err, ErrNotSet) {
		return Snapshot{}, err
	}
	if v, err := s.Active(ctx, TypeSecondPass); err == nil {
		snap.SecondPass = v == "true"
	} else if !errors.Is(err, ErrNotSet) {
		return Snapshot{}, err
	}
	return snap, nil
}
