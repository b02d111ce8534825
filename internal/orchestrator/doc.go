// Package orchestrator sequences one espbridge run: install the bridge's
// Python dependencies, free the bridge port, find the USB-UART adapter,
// start the RFC2217 bridge against it, and optionally run the toolchain
// container.
//
// The sequence is a single entry function, Run, parameterized by a
// foreground/background mode. Background mode is the same sequence with
// no terminal interaction; the program never re-launches itself.
//
// Human-readable status goes to the orchestrator's output writer. The
// structured logger only carries diagnostics.
package orchestrator
