package action

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerStatusSnapshot(t *testing.T) {
	a := NewServerStatusAction()

	out, err := a.Execute(context.Background(), nil)
	require.NoError(t, err)

	// All three probes report, available or not
	assert.Contains(t, out, "cpu:")
	assert.Contains(t, out, "mem:")
	assert.Contains(t, out, "disk:")
}

func TestServerStatusDegradesOnBadDiskPath(t *testing.T) {
	a := &ServerStatusAction{diskPath: "/definitely/not/a/mount"}

	out, err := a.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "disk: unavailable")
}

func TestRemindEchoesMessage(t *testing.T) {
	a := NewRemindAction()

	out, err := a.Execute(context.Background(), json.RawMessage(`{"message":"stand up"}`))
	require.NoError(t, err)
	assert.Equal(t, "Reminder: stand up", out)

	out, err = a.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Reminder", out)

	// Unreadable params still fire the reminder
	out, err = a.Execute(context.Background(), json.RawMessage(`{broken`))
	require.NoError(t, err)
	assert.Equal(t, "Reminder", out)
}

func TestMemoryAddIsUnimplemented(t *testing.T) {
	a := NewMemoryAddAction()

	_, err := a.Execute(context.Background(), json.RawMessage(`{"fact":"x"}`))
	assert.Error(t, err)
}
