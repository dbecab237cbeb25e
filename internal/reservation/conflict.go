// Package reservation implements the advisory file-locking service (C4):
// conflict detection between path-pattern leases, TTL floors, and renewal.
package reservation

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/jra3/agentmail/internal/model"
)

// expandDirStar widens a simple "dir/*" pattern to "dir/**"-like breadth so
// that it's treated as covering every file under that directory, matching
// the original's fnmatchcase-based comparison against concrete file paths.
func expandDirStar(p string) string {
	if strings.HasSuffix(p, "/*") {
		return p[:len(p)-1] + "**"
	}
	return p
}

func normalize(p string) string {
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}

// patternsMatch reports whether a and b match each other bidirectionally,
// treating either side as a glob pattern over the other (mirrors Python's
// fnmatch.fnmatchcase(a,b) or fnmatch.fnmatchcase(b,a)).
func patternsMatch(a, b string) bool {
	if a == b {
		return true
	}
	if ok, err := filepath.Match(b, a); err == nil && ok {
		return true
	}
	if ok, err := filepath.Match(a, b); err == nil && ok {
		return true
	}
	return false
}

// PatternsOverlap reports whether two path patterns could describe the same
// file, used for the contact-policy auto-allow heuristic that checks for an
// overlapping active reservation (spec §4.4 heuristic 4).
func PatternsOverlap(a, b string) bool {
	return patternsMatch(normalize(a), normalize(b))
}

// AnyPatternsOverlap reports whether any pattern in a overlaps any in b.
func AnyPatternsOverlap(a, b []string) bool {
	for _, pa := range a {
		for _, pb := range b {
			if PatternsOverlap(pa, pb) {
				return true
			}
		}
	}
	return false
}

// Conflicts reports whether an existing active reservation conflicts with a
// candidate reservation request, per spec §4.4:
//   - a released reservation never conflicts
//   - an agent never conflicts with its own reservation
//   - two non-exclusive (shared/read) reservations never conflict
//   - otherwise, conflict requires the path patterns to overlap
func Conflicts(existing model.FileReservation, candidatePath string, candidateExclusive bool, candidateAgentID int64, now time.Time) bool {
	if existing.ReleasedTS != nil {
		return false
	}
	if !existing.ExpiresTS.After(now) {
		return false
	}
	if existing.AgentID == candidateAgentID {
		return false
	}
	if !existing.Exclusive && !candidateExclusive {
		return false
	}
	a := expandDirStar(candidatePath)
	b := expandDirStar(existing.PathPattern)
	// filepath.Match's "*" never crosses "/", so a widened "dir/**" covers
	// deeper paths by prefix.
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		if strings.HasSuffix(pair[0], "/**") && strings.HasPrefix(pair[1], strings.TrimSuffix(pair[0], "**")) {
			return true
		}
	}
	return patternsMatch(a, b)
}
