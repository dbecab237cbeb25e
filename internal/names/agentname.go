package names

import (
	"fmt"
	"math/rand"
	"regexp"
)

// formatRE matches the adjective+noun convention: two capitalized words
// concatenated with no separator, e.g. "BlueLake", "GreenCastle".
var formatRE = regexp.MustCompile(`^[A-Z][a-z]+[A-Z][a-z]+[0-9]*$`)

// ValidateFormat reports whether name matches the strict adjective+noun
// convention (spec §3: Agent invariant).
func ValidateFormat(name string) bool {
	return formatRE.MatchString(name)
}

var adjectives = []string{
	"Blue", "Green", "Crimson", "Golden", "Silver", "Amber", "Violet", "Coral",
	"Indigo", "Scarlet", "Emerald", "Copper", "Ivory", "Onyx", "Jade", "Cobalt",
	"Saffron", "Magenta", "Teal", "Maroon",
}

var nouns = []string{
	"Lake", "Castle", "River", "Forest", "Summit", "Harbor", "Meadow", "Canyon",
	"Bridge", "Orchard", "Glacier", "Prairie", "Delta", "Ridge", "Valley", "Cove",
	"Plateau", "Reef", "Tundra", "Grove",
}

// GenerateName draws random adjective+noun candidates from rng until one is
// not taken according to exists. After len(adjectives)*len(nouns) taken
// draws it returns the first free numbered variant ("BlueLake2", "BlueLake3", ...).
func GenerateName(rng *rand.Rand, exists func(candidate string) bool) string {
	for attempt := 0; attempt < len(adjectives)*len(nouns); attempt++ {
		candidate := adjectives[rng.Intn(len(adjectives))] + nouns[rng.Intn(len(nouns))]
		if !exists(candidate) {
			return candidate
		}
	}
	// Every random draw was taken; fall back to the first free numbered
	// variant of the first adjective+noun pair.
	base := adjectives[0] + nouns[0]
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s%d", base, n)
		if !exists(candidate) {
			return candidate
		}
	}
}

// Sanitize trims a caller-supplied agent name and collapses inner whitespace
// runs to one space. It does not change case; case-insensitive comparison is
// done by callers (spec §8 testable property).
func Sanitize(name string) string {
	return trimAndCollapse(name)
}

func trimAndCollapse(s string) string {
	out := make([]rune, 0, len(s))
	spaceRun := false
	started := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if started {
				spaceRun = true
			}
			continue
		}
		if spaceRun {
			out = append(out, ' ')
			spaceRun = false
		}
		out = append(out, r)
		started = true
	}
	return string(out)
}
