// Package detect scans running processes for known automation tools.
package detect

import "strings"

// denyList holds lowercased base names of known auto-clicker and input
// automation tools. Matching is a blunt instrument and is deliberately
// only one input to the suspicion verdict; renamed binaries are caught
// by the statistical scorer instead.
var denyList = []string{
	"autoclicker",
	"auto-clicker",
	"autohotkey",
	"autoit3",
	"clickstorm",
	"fastclicker",
	"freeautoclicker",
	"gsautoclicker",
	"murgee",
	"opautoclicker",
	"ophclicker",
	"speedautoclicker",
	"tinytask",
	"xdotool",
	"ydotool",
}

// Scanner checks process lists against the deny-list.
type Scanner struct{}

// NewScanner creates a Scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Scan returns the deny-listed names found among the given process
// names. Comparison ignores case and a trailing ".exe".
func (s *Scanner) Scan(processNames []string) []string {
	var hits []string
	seen := make(map[string]struct{})
	for _, name := range processNames {
		n := strings.ToLower(strings.TrimSpace(name))
		n = strings.TrimSuffix(n, ".exe")
		for _, banned := range denyList {
			if n == banned {
				if _, dup := seen[banned]; !dup {
					seen[banned] = struct{}{}
					hits = append(hits, banned)
				}
				break
			}
		}
	}
	return hits
}
