package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanFindsKnownTools(t *testing.T) {
	s := NewScanner()

	hits := s.Scan([]string{"chrome", "slack", "TinyTask.exe", "code"})
	assert.Equal(t, []string{"tinytask"}, hits)
}

func TestScanIgnoresCaseAndExtension(t *testing.T) {
	s := NewScanner()

	assert.Equal(t, []string{"autohotkey"}, s.Scan([]string{"AutoHotkey.EXE"}))
	assert.Equal(t, []string{"xdotool"}, s.Scan([]string{"xdotool"}))
}

func TestScanDeduplicates(t *testing.T) {
	s := NewScanner()

	hits := s.Scan([]string{"tinytask.exe", "TinyTask.exe", "opautoclicker"})
	assert.Equal(t, []string{"tinytask", "opautoclicker"}, hits)
}

func TestScanCleanSystem(t *testing.T) {
	s := NewScanner()
	assert.Empty(t, s.Scan([]string{"chrome", "explorer", "teams"}))
	assert.Empty(t, s.Scan(nil))
}

func TestScanNoSubstringMatches(t *testing.T) {
	s := NewScanner()
	// A process merely containing a banned name is not a hit.
	assert.Empty(t, s.Scan([]string{"myautoclickernotes.txt", "tinytaskmanager"}))
}
