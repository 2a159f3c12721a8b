// Package hooks provides default notification hooks.
package hooks

import (
	"context"

	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, []types.Entity) error           = (*NopHooks)(nil).OnEntitiesDiscarded
	_ func(context.Context, error) error                    = (*NopHooks)(nil).OnProcessException
	_ func(context.Context, int) error                      = (*NopHooks)(nil).OnUnpublishedSamples
	_ func(context.Context, types.State, types.State) error = (*NopHooks)(nil).OnStateChanged
	_ func(context.Context) error                           = (*NopHooks)(nil).OnDisposed
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnEntitiesDiscarded:  h.OnEntitiesDiscarded,
		OnProcessException:   h.OnProcessException,
		OnUnpublishedSamples: h.OnUnpublishedSamples,
		OnStateChanged:       h.OnStateChanged,
		OnDisposed:           h.OnDisposed,
	}
}

// Merge returns h with every nil callback replaced by its no-op counterpart.
func Merge(h *types.Hooks) types.Hooks {
	merged := NewNop()
	if h == nil {
		return merged
	}

	if h.OnEntitiesDiscarded != nil {
		merged.OnEntitiesDiscarded = h.OnEntitiesDiscarded
	}
	if h.OnProcessException != nil {
		merged.OnProcessException = h.OnProcessException
	}
	if h.OnUnpublishedSamples != nil {
		merged.OnUnpublishedSamples = h.OnUnpublishedSamples
	}
	if h.OnStateChanged != nil {
		merged.OnStateChanged = h.OnStateChanged
	}
	if h.OnDisposed != nil {
		merged.OnDisposed = h.OnDisposed
	}

	return merged
}

// OnEntitiesDiscarded is a no-op implementation.
func (h *NopHooks) OnEntitiesDiscarded(_ context.Context, _ []types.Entity) error {
	return nil
}

// OnProcessException is a no-op implementation.
func (h *NopHooks) OnProcessException(_ context.Context, _ error) error {
	return nil
}

// OnUnpublishedSamples is a no-op implementation.
func (h *NopHooks) OnUnpublishedSamples(_ context.Context, _ int) error {
	return nil
}

// OnStateChanged is a no-op implementation.
func (h *NopHooks) OnStateChanged(_ context.Context, _, _ types.State) error {
	return nil
}

// OnDisposed is a no-op implementation.
func (h *NopHooks) OnDisposed(_ context.Context) error {
	return nil
}
