package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOS_IsValid checks that only the three supported systems pass validation.
func TestOS_IsValid(t *testing.T) {
	assert.True(t, OSWindows.IsValid())
	assert.True(t, OSDarwin.IsValid())
	assert.True(t, OSLinux.IsValid())
	assert.False(t, OS("freebsd").IsValid())
	assert.False(t, OS("").IsValid())
}

// TestParseOS verifies string-to-OS conversion, including case
// normalization and unsupported systems.
func TestParseOS(t *testing.T) {
	tests := []struct {
		input    string
		expected OS
		hasError bool
	}{
		{"windows", OSWindows, false},
		{"darwin", OSDarwin, false},
		{"linux", OSLinux, false},
		{"Linux", OSLinux, false}, // case insensitive
		{"plan9", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseOS(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

// TestOS_DisplayName verifies the names printed in the status line.
func TestOS_DisplayName(t *testing.T) {
	assert.Equal(t, "Windows", OSWindows.DisplayName())
	assert.Equal(t, "Darwin", OSDarwin.DisplayName())
	assert.Equal(t, "Linux", OSLinux.DisplayName())
	assert.Equal(t, "solaris", OS("solaris").DisplayName())
}

func TestMode_IsInteractive(t *testing.T) {
	assert.True(t, ModeForeground.IsInteractive())
	assert.True(t, Mode("").IsInteractive(), "zero value behaves as foreground")
	assert.False(t, ModeBackground.IsInteractive())
}

// TestSerialPortInfo_String verifies the listing format, including ports
// whose driver reports no description.
func TestSerialPortInfo_String(t *testing.T) {
	p := SerialPortInfo{Device: "/dev/ttyUSB0", Description: "CP2102 USB to UART Bridge Controller"}
	assert.Equal(t, "/dev/ttyUSB0: CP2102 USB to UART Bridge Controller", p.String())

	bare := SerialPortInfo{Device: "/dev/ttyS0"}
	assert.Equal(t, "/dev/ttyS0: n/a", bare.String())
}

func TestProcessHandle_String(t *testing.T) {
	assert.Equal(t, "python3 (PID: 4242)", ProcessHandle{PID: 4242, Name: "python3"}.String())
	assert.Equal(t, "unknown (PID: 7)", ProcessHandle{PID: 7}.String())
}

// TestCLIError verifies the custom error type used for exit code mapping.
func TestCLIError(t *testing.T) {
	t.Run("simple error", func(t *testing.T) {
		err := NewCLIError(ExitBridgeLaunchFailed, "RFC2217 server exited immediately")
		assert.Equal(t, ExitBridgeLaunchFailed, err.Code)
		assert.Equal(t, "RFC2217 server exited immediately", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("wrapped error", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := WrapCLIError(ExitDockerNotRunning, "Docker daemon is not running", inner)
		assert.Equal(t, ExitDockerNotRunning, err.Code)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, inner, err.Unwrap())
	})

	t.Run("errors.As finds the exit code", func(t *testing.T) {
		inner := WrapCLIError(ExitPortReapFailed, "could not free port 4000", errors.New("denied"))
		var wrapped error = inner
		var cliErr *CLIError
		require.True(t, errors.As(wrapped, &cliErr))
		assert.Equal(t, ExitPortReapFailed, cliErr.Code)
	})
}
