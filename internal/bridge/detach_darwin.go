//go:build darwin

package bridge

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shinji-kodama/espbridge/internal/model"
)

// shellDetacher backgrounds the bridge through /bin/sh so that launchd,
// not this process, becomes its parent once the shell exits.
type shellDetacher struct{}

func newPlatformDetacher() Detacher {
	return shellDetacher{}
}

func (shellDetacher) Mode() model.DetachMode {
	return model.DetachShellDisown
}

// StartDetached runs the disown script and reads back the child's PID.
// The shell returns immediately; only its own errors are reported here.
func (shellDetacher) StartDetached(ctx context.Context, c Command) (int, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", disownScript(c))
	cmd.Dir = c.Dir

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return 0, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("unexpected PID output %q from shell: %w", strings.TrimSpace(string(out)), err)
	}
	return pid, nil
}
