package names

import (
	"regexp"
	"strings"
)

var (
	nonSlugChars  = regexp.MustCompile(`[^a-z0-9]+`)
	repeatedDash  = regexp.MustCompile(`-{2,}`)
)

// Slugify derives a stable, URL/filesystem-safe key from an absolute
// directory path (or any human-supplied identifier). It is pure and
// idempotent: Slugify(Slugify(x)) == Slugify(x).
func Slugify(humanKey string) string {
	s := strings.ToLower(strings.TrimSpace(humanKey))
	s = nonSlugChars.ReplaceAllString(s, "-")
	s = repeatedDash.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "project"
	}
	return s
}
