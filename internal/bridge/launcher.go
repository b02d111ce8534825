package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/shinji-kodama/espbridge/internal/config"
	"github.com/shinji-kodama/espbridge/internal/model"
)

// maxSurfacedOutput caps how much of the bridge log is echoed back when
// the bridge dies during startup.
const maxSurfacedOutput = 8 << 10

// StartupError reports a bridge that exited within the grace period and
// left error output behind.
type StartupError struct {
	PID    int
	Output string
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("RFC2217 server (PID %d) exited during startup:\n%s", e.PID, e.Output)
}

// RecordStore persists the launched bridge. state.Store satisfies it.
type RecordStore interface {
	Save(rec model.BridgeRecord) error
	LogPath() string
}

// Launcher starts the RFC2217 bridge for a serial device.
type Launcher struct {
	cfg      config.BridgeConfig
	detacher Detacher
	records  RecordStore
	workDir  string
	logger   *zap.Logger

	// alive and now are swapped in tests.
	alive func(ctx context.Context, pid int) (bool, error)
	now   func() time.Time
}

// NewLauncher creates a Launcher. workDir is where the bridge script is
// resolved and run from.
func NewLauncher(cfg config.BridgeConfig, detacher Detacher, records RecordStore, workDir string, logger *zap.Logger) *Launcher {
	return &Launcher{
		cfg:      cfg,
		detacher: detacher,
		records:  records,
		workDir:  workDir,
		logger:   logger.With(zap.String("component", "bridge")),
		alive:    pidExists,
		now:      time.Now,
	}
}

// pidExists asks gopsutil whether pid is still present.
func pidExists(ctx context.Context, pid int) (bool, error) {
	return process.PidExistsWithContext(ctx, int32(pid))
}

// Command returns the bridge command line for device.
func (l *Launcher) Command(device string) Command {
	args := []string{l.cfg.Script}
	if l.cfg.Verbose {
		args = append(args, "-v")
	}
	args = append(args, "-p", strconv.Itoa(l.cfg.Port), device)

	return Command{
		Path:    l.cfg.Python,
		Args:    args,
		Dir:     l.workDir,
		LogPath: l.records.LogPath(),
	}
}

// Launch starts the bridge detached, waits the grace period, and checks
// that it is still running. A bridge that died in that window with output
// in its log is a fatal launch failure; one that died silently, or is
// still running, is presumed healthy. There is no later health check.
func (l *Launcher) Launch(ctx context.Context, device string) (model.BridgeProcess, error) {
	cmd := l.Command(device)
	log := l.logger.With(zap.String("device", device), zap.Int("port", l.cfg.Port))

	if err := resetLog(cmd.LogPath); err != nil {
		return model.BridgeProcess{}, model.WrapCLIError(model.ExitBridgeLaunchFailed,
			"failed to prepare RFC2217 server log", err)
	}

	log.Debug("starting RFC2217 server", zap.String("command", cmd.String()), zap.String("mode", string(l.detacher.Mode())))
	pid, err := l.detacher.StartDetached(ctx, cmd)
	if err != nil {
		return model.BridgeProcess{}, model.WrapCLIError(model.ExitBridgeLaunchFailed,
			"failed to start RFC2217 server", err)
	}

	bp := model.BridgeProcess{
		Device:  device,
		Port:    l.cfg.Port,
		Mode:    l.detacher.Mode(),
		PID:     pid,
		LogPath: cmd.LogPath,
	}

	if err := sleepContext(ctx, l.cfg.GracePeriod); err != nil {
		return bp, err
	}

	running, err := l.alive(ctx, pid)
	if err != nil {
		// Liveness is a heuristic; an unreadable process table is not a
		// reason to fail a launch that reported success.
		log.Warn("could not check RFC2217 server liveness", zap.Int("pid", pid), zap.Error(err))
		running = true
	}

	if !running {
		output := readTail(cmd.LogPath, maxSurfacedOutput)
		if output != "" {
			return bp, model.WrapCLIError(model.ExitBridgeLaunchFailed,
				"failed to start RFC2217 server", &StartupError{PID: pid, Output: output})
		}
		log.Warn("RFC2217 server exited during startup without output", zap.Int("pid", pid))
		return bp, nil
	}

	rec := model.BridgeRecord{
		PID:       pid,
		Device:    device,
		Port:      l.cfg.Port,
		LogPath:   cmd.LogPath,
		StartedAt: l.now().UTC(),
	}
	if err := l.records.Save(rec); err != nil {
		// Without a record the next run falls back to the port scan.
		log.Warn("failed to record RFC2217 server", zap.Error(err))
	}

	log.Info("RFC2217 server started", zap.Int("pid", pid))
	return bp, nil
}

// resetLog truncates the bridge log so a startup failure only surfaces
// output from this launch.
func resetLog(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// readTail returns at most limit trailing bytes of path, trimmed. Read
// errors yield an empty string.
func readTail(path string, limit int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if len(data) > limit {
		data = data[len(data)-limit:]
	}
	return strings.TrimSpace(string(data))
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
