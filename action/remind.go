package action

import (
	"context"
	"encoding/json"
	"fmt"
)

// RemindAction is a pure no-op that always succeeds, echoing the message.
// The recorded result is what the assistant reads back to the user.
type RemindAction struct{}

// RemindParams is the JSON parameter shape for the remind action
type RemindParams struct {
	Message string `json:"message"`
}

// NewRemindAction creates the remind action
func NewRemindAction() *RemindAction {
	return &RemindAction{}
}

// Name returns the action identifier
func (a *RemindAction) Name() string { return "remind" }

// Execute echoes the reminder message
func (a *RemindAction) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var p RemindParams
	// Best effort: a reminder with unreadable params still fires
	_ = json.Unmarshal(params, &p)

	if p.Message == "" {
		return "Reminder", nil
	}
	return fmt.Sprintf("Reminder: %s", p.Message), nil
}
