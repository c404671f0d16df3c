package action

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/solenne/vesper/errors"
)

// DefaultCommandTimeout is the hard timeout for whitelisted commands
const DefaultCommandTimeout = 30 * time.Second

// CommandAction runs a named entry from the command whitelist.
// Success means the process exited with code 0; output is combined
// stdout/stderr.
type CommandAction struct {
	whitelist *Whitelist
	timeout   time.Duration
	log       *zap.SugaredLogger
}

// CommandParams is the JSON parameter shape for the command action
type CommandParams struct {
	Command string `json:"command"`
}

// NewCommandAction creates a command action over a whitelist.
// A non-positive timeout selects DefaultCommandTimeout.
func NewCommandAction(whitelist *Whitelist, timeout time.Duration, log *zap.SugaredLogger) *CommandAction {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &CommandAction{
		whitelist: whitelist,
		timeout:   timeout,
		log:       log,
	}
}

// Name returns the action identifier
func (a *CommandAction) Name() string { return "command" }

// Execute looks up the named command in the whitelist and runs it with a hard
// timeout. A name missing from the whitelist fails without spawning anything.
func (a *CommandAction) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var p CommandParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "", errors.Wrap(err, "invalid command params")
	}
	if p.Command == "" {
		return "", errors.New("command name is required")
	}

	cmdLine, ok := a.whitelist.Lookup(p.Command)
	if !ok {
		return "", errors.Newf("command not in whitelist: %s", p.Command)
	}

	argv, err := shellquote.Split(cmdLine)
	if err != nil {
		return "", errors.Wrapf(err, "malformed whitelist entry for %s", p.Command)
	}
	if len(argv) == 0 {
		return "", errors.Newf("empty whitelist entry for %s", p.Command)
	}

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.log.Debugw("Running whitelisted command", "name", p.Command, "argv", argv)

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	output, err := cmd.CombinedOutput()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", errors.Wrapf(errors.ErrTimeout, "command %s exceeded %s", p.Command, a.timeout)
	}
	if err != nil {
		return "", errors.Wrapf(err, "command %s failed: %s", p.Command, strings.TrimSpace(string(output)))
	}

	return strings.TrimSpace(string(output)), nil
}
