// Package docker runs the containerized ESP-IDF toolchain for espbridge.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Best-effort removal of a leftover toolchain container carrying the
//     espbridge.managed-by label, which would otherwise block --name.
//     When the daemon cannot be reached through the SDK the run still
//     goes ahead and the docker CLI reports the outcome.
//   - Construction and execution of the `docker run` command line,
//     optionally with the idf.py flash arguments that reach the device
//     through the RFC2217 bridge
//
// The run itself goes through the docker CLI rather than the SDK because
// the interactive mode needs a real TTY passed through to the terminal.
package docker
