package cmd

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// renderMarkdown renders message bodies and thread digests as styled
// terminal markdown, the same glamour.NewTermRenderer(WithAutoStyle,
// WithWordWrap) shape the pack's TUI dashboards use for their own
// recent-output panes. Falls back to the raw markdown if the renderer
// can't be built or fails on this input.
func renderMarkdown(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
