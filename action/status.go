package action

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

const bytesPerGB = 1024 * 1024 * 1024

// ServerStatusAction snapshots CPU, memory, and disk utilization as a
// compact string. Partial failures degrade the snapshot rather than failing
// it: a host where one probe is unavailable still reports the rest.
type ServerStatusAction struct {
	diskPath string
}

// NewServerStatusAction creates the server_status action
func NewServerStatusAction() *ServerStatusAction {
	return &ServerStatusAction{diskPath: "/"}
}

// Name returns the action identifier
func (a *ServerStatusAction) Name() string { return "server_status" }

// Execute returns the utilization snapshot
func (a *ServerStatusAction) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var parts []string

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		parts = append(parts, fmt.Sprintf("cpu: %.1f%%", percents[0]))
	} else {
		parts = append(parts, "cpu: unavailable")
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		parts = append(parts, fmt.Sprintf("mem: %.1f%% (%.1f/%.1fGB)",
			vm.UsedPercent,
			float64(vm.Used)/bytesPerGB,
			float64(vm.Total)/bytesPerGB))
	} else {
		parts = append(parts, "mem: unavailable")
	}

	if du, err := disk.UsageWithContext(ctx, a.diskPath); err == nil {
		parts = append(parts, fmt.Sprintf("disk: %.1f%% (%.1f/%.1fGB)",
			du.UsedPercent,
			float64(du.Used)/bytesPerGB,
			float64(du.Total)/bytesPerGB))
	} else {
		parts = append(parts, "disk: unavailable")
	}

	return strings.Join(parts, " | "), nil
}
