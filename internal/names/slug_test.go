package names

import "testing"

func TestSlugifyIdempotent(t *testing.T) {
	t.Parallel()
	cases := []string{
		"/data/projects/backend",
		"/data/projects/Backend Service",
		"C:\\projects\\backend",
		"",
	}
	for _, c := range cases {
		once := Slugify(c)
		twice := Slugify(once)
		if once != twice {
			t.Errorf("Slugify(%q) = %q, Slugify(that) = %q; want idempotent", c, once, twice)
		}
	}
}

func TestSlugifyDistinctPaths(t *testing.T) {
	t.Parallel()
	a := Slugify("/data/projects/smartedgar_mcp")
	b := Slugify("/data/projects/smartedgar_mcp_frontend")
	if a == b {
		t.Errorf("expected distinct slugs for sibling directories, got %q == %q", a, b)
	}
}
