package action

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// MaxResultLen bounds every stored result string so history rows stay small
const MaxResultLen = 1000

// Dispatcher executes actions from a closed registry. It is the fault
// boundary of the execution layer: unknown actions, errors, and panics all
// become (false, message). Nothing propagates to the caller.
type Dispatcher struct {
	registry *Registry
	log      *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher over a registry
func NewDispatcher(registry *Registry, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		log:      log,
	}
}

// Known reports whether an action name is registered
func (d *Dispatcher) Known(name string) bool {
	return d.registry.Has(name)
}

// Names returns the registered action names
func (d *Dispatcher) Names() []string {
	return d.registry.Names()
}

// Execute runs a named action with JSON parameters. Execution is never
// attempted for unlisted actions. The result is truncated to MaxResultLen.
func (d *Dispatcher) Execute(ctx context.Context, name string, params json.RawMessage) (success bool, result string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorw("Action panicked", "action", name, "panic", r)
			success = false
			result = Truncate(fmt.Sprintf("action %s panicked: %v", name, r))
		}
	}()

	a := d.registry.Get(name)
	if a == nil {
		return false, fmt.Sprintf("unknown action: %s (known: %s)",
			name, strings.Join(d.registry.Names(), ", "))
	}

	output, err := a.Execute(ctx, params)
	if err != nil {
		d.log.Debugw("Action failed", "action", name, "error", err)
		return false, Truncate(err.Error())
	}
	return true, Truncate(output)
}

// Truncate bounds a result string to MaxResultLen characters
func Truncate(s string) string {
	if len(s) <= MaxResultLen {
		return s
	}
	return s[:MaxResultLen]
}
