package model

import (
	"fmt"
	"strings"
	"time"
)

// DefaultBridgePort is the TCP port the RFC2217 bridge always listens on.
// The containerized toolchain addresses the bridge at this same port through
// the host loopback identity, so the two sides must agree on it.
const DefaultBridgePort = 4000

// OS identifies the host operating system family for device matching and
// process detachment. Values match runtime.GOOS so the current OS can be
// converted directly with ParseOS(runtime.GOOS).
type OS string

const (
	// OSWindows is Microsoft Windows.
	OSWindows OS = "windows"

	// OSDarwin is macOS.
	OSDarwin OS = "darwin"

	// OSLinux is Linux.
	OSLinux OS = "linux"
)

// String returns the string representation of OS.
func (o OS) String() string {
	return string(o)
}

// DisplayName returns the human-facing operating system name used in
// status output ("Windows", "Darwin", "Linux").
func (o OS) DisplayName() string {
	switch o {
	case OSWindows:
		return "Windows"
	case OSDarwin:
		return "Darwin"
	case OSLinux:
		return "Linux"
	default:
		return string(o)
	}
}

// IsValid checks whether the OS value is one of the supported systems.
func (o OS) IsValid() bool {
	switch o {
	case OSWindows, OSDarwin, OSLinux:
		return true
	default:
		return false
	}
}

// ParseOS converts a string (typically runtime.GOOS) to an OS.
// Returns an error if the string does not name a supported system.
func ParseOS(s string) (OS, error) {
	o := OS(strings.ToLower(s))
	if !o.IsValid() {
		return "", fmt.Errorf("unsupported operating system: %q (supported: windows, darwin, linux)", s)
	}
	return o, nil
}

// Mode selects how the orchestrator interacts with the user.
//
// Foreground runs with terminal passthrough: the container gets an
// interactive TTY and status messages go to stdout. Background runs
// headlessly: no TTY is requested and nothing blocks on user input.
type Mode string

const (
	// ModeForeground is the default interactive mode.
	ModeForeground Mode = "foreground"

	// ModeBackground is the headless mode selected by --non-interactive.
	ModeBackground Mode = "background"
)

// String returns the string representation of Mode.
func (m Mode) String() string {
	return string(m)
}

// IsInteractive reports whether the mode expects a terminal.
func (m Mode) IsInteractive() bool {
	return m != ModeBackground
}

// SerialPortInfo describes one serial interface visible to the OS at
// enumeration time. It is an immutable snapshot; enumerating again
// produces a fresh slice.
type SerialPortInfo struct {
	// Device is the OS-specific device identifier, e.g. "/dev/ttyUSB0",
	// "/dev/cu.SLAB_USBtoUART" or "COM3".
	Device string `json:"device"`

	// Description is the human-readable description reported by the OS
	// driver (the USB product string on most platforms).
	Description string `json:"description"`

	// IsUSB is true when the port is backed by a USB device.
	IsUSB bool `json:"isUsb"`

	// VID and PID are the USB vendor and product IDs in hex, empty for
	// non-USB ports.
	VID string `json:"vid,omitempty"`
	PID string `json:"pid,omitempty"`

	// SerialNumber is the USB serial number, if the driver reports one.
	SerialNumber string `json:"serialNumber,omitempty"`
}

// String returns the "device: description" form used in port listings.
func (p SerialPortInfo) String() string {
	if p.Description == "" {
		return p.Device + ": n/a"
	}
	return p.Device + ": " + p.Description
}

// ProcessHandle is a read-only view of an OS process used by the port
// reaper for matching and termination. The process is owned by the OS,
// not by this program.
type ProcessHandle struct {
	// PID is the OS process identifier.
	PID int32 `json:"pid"`

	// Name is the executable name, may be empty if it could not be read.
	Name string `json:"name"`

	// LocalPorts lists the local ports of the process's inet connections.
	LocalPorts []uint32 `json:"localPorts,omitempty"`
}

// String returns a "name (PID: n)" representation for status output.
func (h ProcessHandle) String() string {
	name := h.Name
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf("%s (PID: %d)", name, h.PID)
}

// DetachMode names the platform strategy used to decouple the bridge
// process from the orchestrator's lifetime.
type DetachMode string

const (
	// DetachShellDisown launches through a shell with nohup and disown (macOS).
	DetachShellDisown DetachMode = "shell-disown"

	// DetachCreationFlags uses DETACHED_PROCESS creation flags (Windows).
	DetachCreationFlags DetachMode = "creation-flags"

	// DetachNewSession starts the process in a new session via setsid (Linux
	// and other Unix systems).
	DetachNewSession DetachMode = "new-session"
)

// BridgeProcess describes the detached RFC2217 bridge started by this
// invocation. No handle is retained after detachment; PID is informational
// and may be zero when the platform strategy cannot report it.
type BridgeProcess struct {
	// Device is the serial device the bridge exposes.
	Device string `json:"device"`

	// Port is the TCP port the bridge listens on.
	Port int `json:"port"`

	// Mode is the detachment strategy that was used.
	Mode DetachMode `json:"mode"`

	// PID is the bridge's process ID as reported at launch.
	PID int `json:"pid"`

	// LogPath is the file receiving the bridge's stdout and stderr.
	LogPath string `json:"logPath"`
}

// BridgeRecord is the on-disk record of the last launched bridge. The
// reaper uses it to prefer killing the bridge it started over whatever
// else might hold the port.
type BridgeRecord struct {
	PID       int       `yaml:"pid"`
	Device    string    `yaml:"device"`
	Port      int       `yaml:"port"`
	LogPath   string    `yaml:"logPath"`
	StartedAt time.Time `yaml:"startedAt"`
}

// ExitCode defines standard CLI exit codes. These codes allow scripts to
// programmatically determine the outcome of a run.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully. The
	// "no device" and "no matching device" guidance exits also use it.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitDependencyInstallFailed indicates pip could not install the
	// bridge's Python requirements.
	ExitDependencyInstallFailed ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible
	// or the toolchain container could not be run.
	ExitDockerNotRunning ExitCode = 3

	// ExitBridgeLaunchFailed indicates the bridge process exited
	// immediately with error output.
	ExitBridgeLaunchFailed ExitCode = 4

	// ExitPortReapFailed indicates the bridge port could not be freed.
	ExitPortReapFailed ExitCode = 5
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
