//go:build windows

package bridge

import (
	"context"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/shinji-kodama/espbridge/internal/model"
)

// flagsDetacher creates the bridge without a console and outside the
// launcher's process group, so closing the terminal does not deliver
// CTRL_C/CTRL_CLOSE to it.
type flagsDetacher struct{}

func newPlatformDetacher() Detacher {
	return flagsDetacher{}
}

func (flagsDetacher) Mode() model.DetachMode {
	return model.DetachCreationFlags
}

// StartDetached deliberately ignores ctx for the child's lifetime:
// exec.CommandContext would kill the bridge when the run finishes.
func (flagsDetacher) StartDetached(_ context.Context, c Command) (int, error) {
	logFile, err := openLog(c.LogPath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = logFile.Close() }()

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.DETACHED_PROCESS | windows.CREATE_NEW_PROCESS_GROUP,
		HideWindow:    true,
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	// Wait in the background so the process handle is released when the
	// bridge exits during the grace period.
	go func() { _ = cmd.Wait() }()

	return cmd.Process.Pid, nil
}
