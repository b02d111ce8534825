// container.go builds and runs the `docker run` invocation for the
// ESP-IDF toolchain container.
//
// The argument list is assembled in one pure function, BuildRunArgs, so
// the exact command line can be printed, tested, and compared between
// platforms. Runner clears a leftover container when the daemon answers
// and then hands the terminal (or the background log) to the docker CLI
// until it exits.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/shinji-kodama/espbridge/internal/config"
	"github.com/shinji-kodama/espbridge/internal/model"
)

// hostGatewayAlias maps host.docker.internal to the host on Linux, where
// Docker Engine does not define it automatically.
const hostGatewayAlias = "host.docker.internal:host-gateway"

// RunOptions describes one toolchain run.
type RunOptions struct {
	// ProjectDir is the host directory mounted at the container workdir.
	ProjectDir string

	// Flash appends the idf.py flash arguments pointing at the bridge.
	Flash bool

	// Mode selects interactive (-it, terminal passthrough) or headless runs.
	Mode model.Mode

	// OS is the host platform; Linux needs an explicit host-gateway alias.
	OS model.OS

	// Device is the serial device behind the bridge, recorded as a label.
	// Empty when no device matched.
	Device string

	// Stdin, Stdout and Stderr are connected to the docker CLI process.
	// In background mode Stdin is ignored.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// BuildRunArgs returns the docker CLI arguments (without the leading
// "docker") for a toolchain run.
//
// The result has the shape:
//
//	run --rm -v <project>:<workdir> -w <workdir> -e HOME=<home> [-it]
//	    --name <name> [--add-host ...] --label k=v ... <image>
//	    [idf.py --port <bridge address> flash]
func BuildRunArgs(cfg *config.Config, opts RunOptions) []string {
	c := cfg.Container

	args := []string{
		"run", "--rm",
		"-v", opts.ProjectDir + ":" + c.Workdir,
		"-w", c.Workdir,
		"-e", "HOME=" + c.Home,
	}
	if opts.Mode.IsInteractive() {
		args = append(args, "-it")
	}
	args = append(args, "--name", c.Name)

	if opts.OS == model.OSLinux && c.BridgeHost == "host.docker.internal" {
		args = append(args, "--add-host", hostGatewayAlias)
	}

	args = append(args, labelArgs(BuildLabels(opts.Flash, opts.Device, cfg.Bridge.Port))...)
	args = append(args, c.Image)

	if opts.Flash {
		args = append(args, "idf.py", "--port", cfg.BridgeAddress(), "flash")
	}
	return args
}

// FormatCommand renders args as a single printable docker command line.
func FormatCommand(args []string) string {
	return "docker " + strings.Join(args, " ")
}

// Daemon is the subset of Docker daemon operations Runner performs
// before a run. *Client satisfies it.
type Daemon interface {
	Ping(ctx context.Context) error
	RemoveManaged(ctx context.Context, name string) (int, error)
	Close() error
}

// CommandRunner executes a prepared command. It exists so tests can
// observe the docker invocation without a Docker installation.
type CommandRunner interface {
	Run(cmd *exec.Cmd) error
}

type execRunner struct{}

func (execRunner) Run(cmd *exec.Cmd) error { return cmd.Run() }

// Runner runs the toolchain container.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger

	connect func() (Daemon, error)
	exec    CommandRunner
}

// NewRunner creates a Runner that talks to the local Docker daemon.
func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "docker")),
		connect: func() (Daemon, error) {
			return NewClient()
		},
		exec: execRunner{},
	}
}

// Run prints the docker command line, removes a leftover managed
// container with the same name when the daemon is reachable, and runs the
// container to completion. Only the docker CLI's exit status decides
// success; its output is never parsed.
//
// There is no timeout beyond ctx; an interactive run lasts as long as the
// user keeps the shell open.
func (r *Runner) Run(ctx context.Context, opts RunOptions) error {
	args := BuildRunArgs(r.cfg, opts)
	line := FormatCommand(args)

	if opts.Stdout != nil {
		fmt.Fprintf(opts.Stdout, "\nRunning Docker command:\n%s\n\n", line)
	}
	r.logger.Debug("running toolchain container",
		zap.String("command", line),
		zap.Bool("flash", opts.Flash),
		zap.String("mode", opts.Mode.String()))

	r.prepare(ctx)

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Dir = opts.ProjectDir
	if opts.Mode.IsInteractive() {
		cmd.Stdin = opts.Stdin
	}
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := r.exec.Run(cmd); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return model.WrapCLIError(
				model.ExitGeneralError,
				fmt.Sprintf("toolchain container exited with status %d", exitErr.ExitCode()),
				err,
			)
		}
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to run docker",
			err,
		)
	}

	r.logger.Info("toolchain container finished", zap.Bool("flash", opts.Flash))
	return nil
}

// prepare clears the container name through the SDK. It is best-effort:
// the docker CLI may reach a daemon the SDK cannot (a docker context, an
// socket outside the default paths), and it reports its own failure if there is none.
func (r *Runner) prepare(ctx context.Context) {
	daemon, err := r.connect()
	if err != nil {
		r.logger.Warn("skipping leftover container cleanup", zap.Error(err))
		return
	}
	defer daemon.Close()

	if err := daemon.Ping(ctx); err != nil {
		r.logger.Warn("skipping leftover container cleanup", zap.Error(err))
		return
	}

	removed, err := daemon.RemoveManaged(ctx, r.cfg.Container.Name)
	if err != nil {
		r.logger.Warn("failed to remove leftover toolchain container",
			zap.String("name", r.cfg.Container.Name), zap.Error(err))
		return
	}
	if removed > 0 {
		r.logger.Info("removed leftover toolchain container",
			zap.String("name", r.cfg.Container.Name),
			zap.Int("count", removed))
	}
}
