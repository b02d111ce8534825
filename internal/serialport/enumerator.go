package serialport

import (
	"context"
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"github.com/shinji-kodama/espbridge/internal/model"
)

// Enumerator lists serial interfaces currently visible to the OS.
// An empty result is not an error.
type Enumerator interface {
	List(ctx context.Context) ([]model.SerialPortInfo, error)
}

// listFunc matches enumerator.GetDetailedPortsList so tests can inject
// a fixed device list.
type listFunc func() ([]*enumerator.PortDetails, error)

// SystemEnumerator reads serial ports through go.bug.st/serial.
type SystemEnumerator struct {
	logger *zap.Logger
	list   listFunc
}

// NewSystemEnumerator creates an enumerator backed by the OS device tree.
func NewSystemEnumerator(logger *zap.Logger) *SystemEnumerator {
	return &SystemEnumerator{
		logger: logger.With(zap.String("component", "enumerator")),
		list:   enumerator.GetDetailedPortsList,
	}
}

// List returns every serial port the OS reports, unfiltered. Ports are
// returned in the order the OS reported them so "first match wins" is
// stable across calls.
func (e *SystemEnumerator) List(ctx context.Context) ([]model.SerialPortInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	details, err := e.list()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	ports := make([]model.SerialPortInfo, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		ports = append(ports, toPortInfo(d))
	}

	e.logger.Debug("serial ports enumerated",
		zap.Int("count", len(ports)),
		zap.Strings("devices", SortedDevices(ports)))
	return ports, nil
}

// toPortInfo converts an enumerator entry to the domain snapshot. The USB
// product string is the closest equivalent of the OS "description" and is
// what Windows shows as the device's friendly name.
func toPortInfo(d *enumerator.PortDetails) model.SerialPortInfo {
	info := model.SerialPortInfo{
		Device:      d.Name,
		Description: d.Product,
		IsUSB:       d.IsUSB,
	}
	if d.IsUSB {
		info.VID = d.VID
		info.PID = d.PID
		info.SerialNumber = d.SerialNumber
	}
	return info
}

// SortedDevices returns the device names of ports sorted alphabetically,
// for log fields that should not depend on enumeration order.
func SortedDevices(ports []model.SerialPortInfo) []string {
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.Device)
	}
	sort.Strings(names)
	return names
}
