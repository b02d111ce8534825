package serialport

import (
	"strings"

	"github.com/shinji-kodama/espbridge/internal/config"
	"github.com/shinji-kodama/espbridge/internal/model"
)

// Signature is the OS-specific textual pattern that identifies the
// expected USB-to-serial adapter.
type Signature struct {
	// WindowsDescription must be contained in the port description.
	WindowsDescription string

	// DarwinPrefix must prefix the device path.
	DarwinPrefix string

	// LinuxPrefix must prefix the device path.
	LinuxPrefix string
}

// SignatureFromConfig builds a Signature from the match section.
func SignatureFromConfig(cfg config.MatchConfig) Signature {
	return Signature{
		WindowsDescription: cfg.WindowsDescription,
		DarwinPrefix:       cfg.DarwinPrefix,
		LinuxPrefix:        cfg.LinuxPrefix,
	}
}

// Matcher selects the serial port belonging to the known adapter.
type Matcher struct {
	sig Signature
}

// NewMatcher creates a Matcher for the given signature.
func NewMatcher(sig Signature) *Matcher {
	return &Matcher{sig: sig}
}

// Match returns the first port in ports that satisfies the predicate for
// os. The boolean is false when nothing matches or os is unsupported.
func (m *Matcher) Match(ports []model.SerialPortInfo, os model.OS) (model.SerialPortInfo, bool) {
	for _, p := range ports {
		if m.Matches(p, os) {
			return p, true
		}
	}
	return model.SerialPortInfo{}, false
}

// Matches reports whether a single port satisfies the predicate for os.
// An empty signature field never matches, so a blank config entry cannot
// select every port.
func (m *Matcher) Matches(p model.SerialPortInfo, os model.OS) bool {
	switch os {
	case model.OSWindows:
		return m.sig.WindowsDescription != "" && strings.Contains(p.Description, m.sig.WindowsDescription)
	case model.OSDarwin:
		return m.sig.DarwinPrefix != "" && strings.HasPrefix(p.Device, m.sig.DarwinPrefix)
	case model.OSLinux:
		return m.sig.LinuxPrefix != "" && strings.HasPrefix(p.Device, m.sig.LinuxPrefix)
	default:
		return false
	}
}
