package serialport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"github.com/shinji-kodama/espbridge/internal/model"
)

func newTestEnumerator(list listFunc) *SystemEnumerator {
	e := NewSystemEnumerator(zap.NewNop())
	e.list = list
	return e
}

func TestSystemEnumerator_List(t *testing.T) {
	e := newTestEnumerator(func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "10C4", PID: "EA60", SerialNumber: "0001", Product: "CP2102 USB to UART Bridge Controller"},
			nil,
			{Name: "/dev/ttyS0", IsUSB: false, VID: "ignored", Product: ""},
		}, nil
	})

	ports, err := e.List(context.Background())
	require.NoError(t, err)
	require.Len(t, ports, 2)

	assert.Equal(t, model.SerialPortInfo{
		Device:       "/dev/ttyUSB0",
		Description:  "CP2102 USB to UART Bridge Controller",
		IsUSB:        true,
		VID:          "10C4",
		PID:          "EA60",
		SerialNumber: "0001",
	}, ports[0])

	// USB identifiers are dropped for non-USB ports.
	assert.Equal(t, model.SerialPortInfo{Device: "/dev/ttyS0"}, ports[1])
}

// TestSystemEnumerator_EmptyIsNotAnError verifies the "no devices" case
// yields an empty, non-nil slice.
func TestSystemEnumerator_EmptyIsNotAnError(t *testing.T) {
	e := newTestEnumerator(func() ([]*enumerator.PortDetails, error) { return nil, nil })

	ports, err := e.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, ports)
	assert.Empty(t, ports)
}

func TestSystemEnumerator_Error(t *testing.T) {
	e := newTestEnumerator(func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("udev unavailable")
	})

	_, err := e.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "udev unavailable")
}

func TestSystemEnumerator_CancelledContext(t *testing.T) {
	called := false
	e := newTestEnumerator(func() ([]*enumerator.PortDetails, error) {
		called = true
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestSortedDevices(t *testing.T) {
	ports := []model.SerialPortInfo{{Device: "COM5"}, {Device: "COM10"}, {Device: "COM1"}}
	assert.Equal(t, []string{"COM1", "COM10", "COM5"}, SortedDevices(ports))
}
