package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/shinji-kodama/espbridge/internal/bridge"
	"github.com/shinji-kodama/espbridge/internal/docker"
	"github.com/shinji-kodama/espbridge/internal/model"
	"github.com/shinji-kodama/espbridge/internal/port"
)

// Outcome names the branch a run ended in.
type Outcome string

const (
	// OutcomeNoDevice means no serial ports were found and no container
	// was requested. The user was told to connect the device.
	OutcomeNoDevice Outcome = "no-device"

	// OutcomeNoMatch means ports were found but none matched the adapter
	// signature and no container was requested.
	OutcomeNoMatch Outcome = "no-match"

	// OutcomeContainer means the toolchain container ran without a bridge.
	OutcomeContainer Outcome = "container"

	// OutcomeBridge means the bridge was launched and no container ran.
	OutcomeBridge Outcome = "bridge"

	// OutcomeBridgeContainer means the bridge was launched and the
	// toolchain container ran against it.
	OutcomeBridgeContainer Outcome = "bridge-container"
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	return string(o)
}

// Installer installs the bridge's Python dependencies.
type Installer interface {
	Install(ctx context.Context) error
}

// Enumerator lists the serial ports visible to the OS.
type Enumerator interface {
	List(ctx context.Context) ([]model.SerialPortInfo, error)
}

// Matcher picks the adapter's port for the given OS.
type Matcher interface {
	Match(ports []model.SerialPortInfo, os model.OS) (model.SerialPortInfo, bool)
}

// Launcher starts the RFC2217 bridge for a device.
type Launcher interface {
	Launch(ctx context.Context, device string) (model.BridgeProcess, error)
}

// ContainerRunner runs the toolchain container.
type ContainerRunner interface {
	Run(ctx context.Context, opts docker.RunOptions) error
}

// Occupancy reports whether a local port can be bound.
type Occupancy interface {
	IsPortAvailable(port int, protocol string) bool
}

// Dependencies are the collaborators a run sequences. Scanner is
// optional; when set, a freed port is re-checked before continuing.
type Dependencies struct {
	Installer  Installer
	Reaper     port.UnsafeReaper
	Scanner    Occupancy
	Enumerator Enumerator
	Matcher    Matcher
	Launcher   Launcher
	Container  ContainerRunner
}

// Options are the per-run flags.
type Options struct {
	// Flash runs the container in flashing mode after the bridge starts.
	Flash bool

	// StartContainer runs the container without flashing when flashing
	// was not requested or no device matched.
	StartContainer bool

	// Mode is foreground (interactive) or background (headless).
	Mode model.Mode

	// OS selects the device signature and container networking.
	OS model.OS

	// Port is the bridge port to free. Zero means model.DefaultBridgePort.
	Port int

	// ProjectDir is mounted into the container.
	ProjectDir string

	// Container streams. In background mode these normally point at a log.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Orchestrator runs the espbridge sequence.
type Orchestrator struct {
	deps   Dependencies
	out    io.Writer
	logger *zap.Logger
}

// New creates an Orchestrator writing status messages to out.
func New(deps Dependencies, out io.Writer, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		out:    out,
		logger: logger.With(zap.String("component", "orchestrator")),
	}
}

// Run executes one pass of the sequence:
//
//  1. install dependencies (a failure aborts the run)
//  2. free the bridge port
//  3. enumerate serial ports and report them
//  4. with no ports, run the container if requested, else ask for a device
//  5. match the adapter for opts.OS
//  6. on a match, launch the bridge, then run the container if requested
//  7. with no match, run the container if requested, else ask for a driver
//
// The no-device and no-match branches are not errors.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Outcome, error) {
	if opts.Port == 0 {
		opts.Port = model.DefaultBridgePort
	}
	if opts.Mode == "" {
		opts.Mode = model.ModeForeground
	}
	log := o.logger.With(zap.String("mode", opts.Mode.String()), zap.String("os", opts.OS.String()))
	log.Debug("starting run", zap.Bool("flash", opts.Flash), zap.Bool("startContainer", opts.StartContainer))

	if err := o.deps.Installer.Install(ctx); err != nil {
		return "", err
	}

	if err := o.reap(ctx, opts.Port); err != nil {
		return "", err
	}

	ports, err := o.deps.Enumerator.List(ctx)
	if err != nil {
		return "", err
	}

	if len(ports) == 0 {
		o.printf("No serial ports found.\n")
		if opts.StartContainer {
			if err := o.runContainer(ctx, opts, false, ""); err != nil {
				return "", err
			}
			return OutcomeContainer, nil
		}
		o.printf("Please connect the device and try again.\n")
		return OutcomeNoDevice, nil
	}

	o.printf("Available serial ports:\n")
	for _, p := range ports {
		o.printf(" - %s\n", p)
	}

	o.printf("Your operating system is: %s\n", opts.OS.DisplayName())
	match, ok := o.deps.Matcher.Match(ports, opts.OS)
	if !ok {
		log.Debug("no port matched the adapter signature", zap.Int("ports", len(ports)))
		if opts.StartContainer {
			if err := o.runContainer(ctx, opts, false, ""); err != nil {
				return "", err
			}
			return OutcomeContainer, nil
		}
		o.printf("No matching serial port found. Install the CP2102 driver, connect the device, and retry.\n")
		return OutcomeNoMatch, nil
	}

	o.printf("Match found: %s -> %s\n", match.Device, match.Description)
	if err := o.launch(ctx, match.Device); err != nil {
		return "", err
	}

	switch {
	case opts.Flash:
		if err := o.runContainer(ctx, opts, true, match.Device); err != nil {
			return "", err
		}
		return OutcomeBridgeContainer, nil
	case opts.StartContainer:
		if err := o.runContainer(ctx, opts, false, match.Device); err != nil {
			return "", err
		}
		return OutcomeBridgeContainer, nil
	}
	return OutcomeBridge, nil
}

// reap frees the bridge port and reports what it found.
func (o *Orchestrator) reap(ctx context.Context, p int) error {
	res, err := o.deps.Reaper.Reap(ctx, p)
	if err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			return err
		}
		return model.WrapCLIError(model.ExitPortReapFailed,
			fmt.Sprintf("failed to free port %d", p), err)
	}

	if res.Freed {
		o.printf("Port %d in use by process %s. Terminating...\n", p, res.Process)
		o.printf("Terminated successfully.\n\n")
		o.printf("Port %d was in use and has been terminated.\n\n", p)
		if o.deps.Scanner != nil && !o.deps.Scanner.IsPortAvailable(p, "tcp") {
			// A listener in TIME_WAIT or a second occupant; the bridge's
			// own bind error will surface it if it matters.
			o.logger.Warn("port still busy after reaping", zap.Int("port", p))
		}
		return nil
	}
	o.printf("Port %d is free.\n\n", p)
	return nil
}

// launch starts the bridge, echoing the bridge's own output when it dies
// during startup.
func (o *Orchestrator) launch(ctx context.Context, device string) error {
	o.printf("\nStarting RFC2217 server on %s...\n\n", device)

	if _, err := o.deps.Launcher.Launch(ctx, device); err != nil {
		var startErr *bridge.StartupError
		if errors.As(err, &startErr) {
			o.printf("Failed to start RFC2217 server. Error output:\n\n%s\n", startErr.Output)
		}
		return err
	}

	o.printf("RFC2217 server started successfully.\n\n")
	return nil
}

func (o *Orchestrator) runContainer(ctx context.Context, opts Options, flash bool, device string) error {
	return o.deps.Container.Run(ctx, docker.RunOptions{
		ProjectDir: opts.ProjectDir,
		Flash:      flash,
		Mode:       opts.Mode,
		OS:         opts.OS,
		Device:     device,
		Stdin:      opts.Stdin,
		Stdout:     opts.Stdout,
		Stderr:     opts.Stderr,
	})
}

func (o *Orchestrator) printf(format string, args ...any) {
	fmt.Fprintf(o.out, format, args...)
}
