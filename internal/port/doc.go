// Package port checks and frees the TCP port the RFC2217 bridge listens on.
//
// Two pieces live here:
//   - Scanner asks the OS whether a port can be bound (net.Listen), which is
//     the occupancy check run after a reap.
//   - Reaper finds the process holding a port and terminates it. It first
//     tries the PID recorded by the last bridge launch and falls back to a
//     scan of every process's inet connections, using gopsutil.
//
// The scan fallback is deliberately unsafe: it terminates whatever process
// holds the port without checking who started it. The UnsafeReaper
// interface marks that contract at every call site.
package port
