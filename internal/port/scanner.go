package port

import (
	"fmt"
	"net"
)

// Scanner checks whether specific ports are available on the host machine.
//
// It uses the operating system's network stack (net.Listen)
// to determine if a port is free. This asks the OS directly, rather than
// parsing /proc/net/* or relying on external commands like `lsof` or `ss`
// which may require elevated permissions.
type Scanner struct{}

// NewScanner creates a new Scanner instance.
func NewScanner() *Scanner {
	return &Scanner{}
}

// IsPortAvailable checks whether a single port is free on the host machine.
//
// It attempts net.Listen("tcp", ":port"). If the bind succeeds, the port
// is available and the listener is immediately closed. The bridge only
// speaks TCP, so any other protocol is reported as unavailable.
//
// We bind to all interfaces (":port" rather than "127.0.0.1:port") because
// the bridge listens on 0.0.0.0 so Docker Desktop's host gateway can reach
// it, and a loopback-only check would miss a wildcard listener on some OSes.
//
// Returns true if the port is free, false if it is already in use or invalid.
func (s *Scanner) IsPortAvailable(port int, protocol string) bool {
	addr := fmt.Sprintf(":%d", port)

	switch protocol {
	case "tcp":
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = listener.Close() }()
		return true

	default:
		// Unknown protocol, treat as unavailable.
		return false
	}
}
