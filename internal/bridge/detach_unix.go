//go:build unix && !darwin

package bridge

import (
	"context"
	"os/exec"
	"syscall"

	"github.com/shinji-kodama/espbridge/internal/model"
)

// sessionDetacher puts the bridge in a new session, so it has no
// controlling terminal and survives the launcher's terminal closing.
type sessionDetacher struct{}

func newPlatformDetacher() Detacher {
	return sessionDetacher{}
}

func (sessionDetacher) Mode() model.DetachMode {
	return model.DetachNewSession
}

// StartDetached deliberately ignores ctx for the child's lifetime:
// exec.CommandContext would kill the bridge when the run finishes.
func (sessionDetacher) StartDetached(_ context.Context, c Command) (int, error) {
	logFile, err := openLog(c.LogPath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = logFile.Close() }()

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	// Reap the child if it dies while we are still running, otherwise it
	// lingers as a zombie and the liveness check reports it alive.
	go func() { _ = cmd.Wait() }()

	return cmd.Process.Pid, nil
}
