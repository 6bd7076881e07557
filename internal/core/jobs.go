package core

import (
	"context"
)

// Hook is a side effect triggered after a judgement has been committed.
// A hook failure never affects the stored interaction or other hooks.
type Hook interface {
	// Name returns the unique registry name of the hook.
	Name() string
	// Handle performs the side effect for a committed interaction.
	Handle(ctx context.Context, interaction Interaction) error
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc struct {
	HookName string
	Fn       func(ctx context.Context, interaction Interaction) error
}

// Name implements Hook.
func (h HookFunc) Name() string { return h.HookName }

// Handle implements Hook.
func (h HookFunc) Handle(ctx context.Context, interaction Interaction) error {
	return h.Fn(ctx, interaction)
}

// HookDispatcher defines the contract for a system that fans a committed
// interaction out to every registered hook. Dispatch must not block on hook
// completion; it returns an error only if the interaction could not be queued.
type HookDispatcher interface {
	Dispatch(ctx context.Context, interaction Interaction) error
}

// RevisionLookup resolves revisions by key. Missing revisions are simply absent
// from the returned map.
type RevisionLookup interface {
	LookupRevisions(ctx context.Context, keys []RevisionKey) (map[RevisionKey]RevisionInfo, error)
}
