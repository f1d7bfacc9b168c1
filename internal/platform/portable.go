package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// PortableProbe is the lowest-common-denominator Probe. Lock state and
// OS idle readings are unavailable, so the agent falls back to its own
// input-derived idle measurement; the process scan reads /proc where it
// exists.
type PortableProbe struct{}

// NewPortableProbe creates a PortableProbe.
func NewPortableProbe() *PortableProbe {
	return &PortableProbe{}
}

// IsSystemLocked always reports false; idle detection covers the locked
// case eventually since a locked machine produces no input.
func (p *PortableProbe) IsSystemLocked() bool {
	return false
}

// SystemIdleSeconds reports no reading.
func (p *PortableProbe) SystemIdleSeconds() float64 {
	return -1
}

// RunningProcessNames walks /proc for command names. On platforms
// without /proc it returns an empty list and the deny-list scan is a
// no-op.
func (p *PortableProbe) RunningProcessNames() ([]string, error) {
	if runtime.GOOS == "windows" {
		return nil, nil
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || !isNumeric(e.Name()) {
			continue
		}
		comm, err := os.ReadFile(filepath.Join("/proc", e.Name(), "comm"))
		if err != nil {
			continue
		}
		if name := strings.TrimSpace(string(comm)); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Hostname returns the machine name, or "unknown" when the OS will not
// say.
func (p *PortableProbe) Hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
