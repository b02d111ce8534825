// Package bridge starts the RFC2217 serial bridge as a detached process.
//
// The bridge itself is esp_rfc2217_server.py from esptool; this package
// only launches it. Each platform decouples the child from the launcher
// differently, so the strategy sits behind the Detacher interface and the
// implementation is chosen at build time:
//   - macOS: nohup + disown through /bin/sh
//   - Windows: DETACHED_PROCESS | CREATE_NEW_PROCESS_GROUP creation flags
//   - Linux and other Unix: a new session via setsid
//
// No handle to the child is kept. A later run finds it again through the
// bridge record or a scan of the bridge port.
package bridge

import (
	"context"
	"os"
	"strings"

	"github.com/shinji-kodama/espbridge/internal/model"
)

// Command describes a process to run detached from the current one.
type Command struct {
	// Path is the executable, resolved through PATH when not absolute.
	Path string

	// Args are the arguments after Path.
	Args []string

	// Dir is the working directory; empty means the current one.
	Dir string

	// LogPath receives the process's stdout and stderr (appended).
	LogPath string
}

// String renders the command line for status and log output.
func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Detacher starts a command so that it outlives the calling process.
type Detacher interface {
	// StartDetached launches c and returns the child's PID. It must not
	// wait for the child to exit.
	StartDetached(ctx context.Context, c Command) (int, error)

	// Mode names the strategy for status output.
	Mode() model.DetachMode
}

// NewDetacher returns the Detacher for the platform this binary was built
// for.
func NewDetacher() Detacher {
	return newPlatformDetacher()
}

// openLog opens the bridge log for appending. The returned file is handed
// to the child as stdout and stderr; the caller closes its own copy once
// the child has started.
func openLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// shellQuote wraps s in single quotes for /bin/sh, escaping embedded
// single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// disownScript builds the /bin/sh script that backgrounds c with nohup,
// prints the child's PID and disowns it so it survives the session's
// teardown. The script exits 0 even when /bin/sh has no disown builtin
// (dash); nohup alone already detaches the child there.
func disownScript(c Command) string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, shellQuote(c.Path))
	for _, a := range c.Args {
		parts = append(parts, shellQuote(a))
	}
	return "nohup " + strings.Join(parts, " ") +
		" >> " + shellQuote(c.LogPath) + " 2>&1 < /dev/null & echo $!; disown 2>/dev/null || true"
}
