package action

import (
	"context"
	"encoding/json"

	"github.com/solenne/vesper/errors"
)

// MemoryAddAction is reserved for the assistant's long-term memory store.
// It is registered so schedule-time validation accepts it, but it reports an
// explicit failure at run time rather than silently succeeding.
type MemoryAddAction struct{}

// NewMemoryAddAction creates the memory_add placeholder action
func NewMemoryAddAction() *MemoryAddAction {
	return &MemoryAddAction{}
}

// Name returns the action identifier
func (a *MemoryAddAction) Name() string { return "memory_add" }

// Execute always fails until the memory store is wired up
func (a *MemoryAddAction) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	return "", errors.Wrap(errors.ErrUnimplemented, "memory_add is not wired to a memory store yet")
}
