// Package richlog renders small operation summaries as bordered text panels,
// the Go analogue of the original Python server's rich.Console/rich.Panel
// commit-panel rendering (_render_commit_panel). Used to build git commit
// message bodies.
package richlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var panelStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("63")).
	Padding(0, 1)

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))

// Delivery summarizes one message send for the commit-panel and CLI banner.
type Delivery struct {
	Operation  string
	Sender     string
	To, CC, BCC []string
	Subject    string
	Importance string
	AckRequired bool
	Attachments int
	StartedAt  time.Time
	FinishedAt time.Time
	LockToken  string // archive lock lease held for this write, for correlating a stuck sentinel file
}

// RenderCommitPanel builds the structured commit message body (spec §4.2:
// "a structured commit message carrying a rendered panel of the operation").
// The panel itself uses lipgloss width/border rendering so it reads the same
// whether viewed in `git log` or re-rendered by a terminal UI later.
func RenderCommitPanel(d Delivery) string {
	var lines []string
	lines = append(lines, titleStyle.Render(d.Operation))
	lines = append(lines, fmt.Sprintf("from:    %s", d.Sender))
	if len(d.To) > 0 {
		lines = append(lines, fmt.Sprintf("to:      %s", strings.Join(d.To, ", ")))
	}
	if len(d.CC) > 0 {
		lines = append(lines, fmt.Sprintf("cc:      %s", strings.Join(d.CC, ", ")))
	}
	if len(d.BCC) > 0 {
		lines = append(lines, fmt.Sprintf("bcc:     %s", strings.Join(d.BCC, ", ")))
	}
	lines = append(lines, fmt.Sprintf("subject: %s", d.Subject))
	lines = append(lines, fmt.Sprintf("importance: %s  ack_required: %t  attachments: %d",
		d.Importance, d.AckRequired, d.Attachments))
	if !d.StartedAt.IsZero() && !d.FinishedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("elapsed: %s", d.FinishedAt.Sub(d.StartedAt).Round(time.Millisecond)))
	}
	if d.LockToken != "" {
		lines = append(lines, fmt.Sprintf("lock:    %s", d.LockToken))
	}
	body := strings.Join(lines, "\n")

	header := fmt.Sprintf("%s: %s", d.Operation, d.Subject)
	return header + "\n\n" + panelStyle.Render(body)
}
