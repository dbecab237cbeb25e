// Package archive implements the on-disk content-addressed archive (C3):
// per-project directory trees, attachment storage, frontmatter message
// bundles, and the git commit trail that backs every write.
package archive

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Layout resolves paths within a single project's archive directory, per
// the on-disk tree:
//
//	<root>/projects/<slug>/
//	  agents/<Name>/profile.json
//	  agents/<Name>/inbox/<YYYY>/<MM>/<ISO>__<subject-slug>__<id>.md
//	  agents/<Name>/outbox/<YYYY>/<MM>/<ISO>__<subject-slug>__<id>.md
//	  messages/<YYYY>/<MM>/<ISO>__<subject-slug>__<id>.md
//	  attachments/<YYYY>/<MM>/<sha256>.<ext>
//	  file_reservations/<sha1(path_pattern)>.json
type Layout struct {
	Root string // repository root for this project (a git working tree)
	Slug string
}

// NewLayout resolves the project archive root under the configured
// storage root.
func NewLayout(storageRoot, slug string) Layout {
	return Layout{Root: filepath.Join(storageRoot, "projects", slug), Slug: slug}
}

func (l Layout) AgentsDir() string { return filepath.Join(l.Root, "agents") }

func (l Layout) AgentDir(name string) string { return filepath.Join(l.AgentsDir(), name) }

func (l Layout) ProfilePath(name string) string {
	return filepath.Join(l.AgentDir(name), "profile.json")
}

func (l Layout) AgentInboxDir(name string, ts time.Time) string {
	return filepath.Join(l.AgentDir(name), "inbox", yearMonth(ts))
}

func (l Layout) AgentOutboxDir(name string, ts time.Time) string {
	return filepath.Join(l.AgentDir(name), "outbox", yearMonth(ts))
}

func (l Layout) MessagesDir(ts time.Time) string {
	return filepath.Join(l.Root, "messages", yearMonth(ts))
}

func (l Layout) AttachmentsDir(ts time.Time) string {
	return filepath.Join(l.Root, "attachments", yearMonth(ts))
}

func (l Layout) FileReservationsDir() string {
	return filepath.Join(l.Root, "file_reservations")
}

func (l Layout) ReservationRecordPath(pathPattern string) string {
	sum := sha1.Sum([]byte(pathPattern))
	return filepath.Join(l.FileReservationsDir(), hex.EncodeToString(sum[:])+".json")
}

func (l Layout) LockPath() string {
	return filepath.Join(l.Root, ".agentmail.lock")
}

func yearMonth(ts time.Time) string {
	return filepath.Join(fmt.Sprintf("%04d", ts.Year()), fmt.Sprintf("%02d", ts.Month()))
}

var slugNonWord = regexp.MustCompile(`[^a-z0-9]+`)

// SubjectSlug derives the filename fragment used in message bundle names:
// lowercase, non-alphanumerics collapsed to single hyphens, capped to keep
// filenames reasonable, falling back to "message" when nothing survives.
func SubjectSlug(subject string) string {
	s := strings.ToLower(strings.TrimSpace(subject))
	s = slugNonWord.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 60 {
		s = strings.Trim(s[:60], "-")
	}
	if s == "" {
		s = "message"
	}
	return s
}

// MessageFilename builds the "<ISO>__<subject-slug>__<id>.md" bundle name.
func MessageFilename(ts time.Time, subject string, id int64) string {
	return fmt.Sprintf("%s__%s__%d.md", ts.UTC().Format("20060102T150405Z"), SubjectSlug(subject), id)
}

// MessagePath returns the canonical copy location for a message.
func (l Layout) MessagePath(ts time.Time, subject string, id int64) string {
	return filepath.Join(l.MessagesDir(ts), MessageFilename(ts, subject, id))
}

// AgentMessagePath returns a per-agent inbox or outbox copy location.
func (l Layout) AgentMessagePath(name string, ts time.Time, subject string, id int64, outbox bool) string {
	dir := l.AgentInboxDir(name, ts)
	if outbox {
		dir = l.AgentOutboxDir(name, ts)
	}
	return filepath.Join(dir, MessageFilename(ts, subject, id))
}

// AttachmentPath returns the hash-addressed attachment location.
func (l Layout) AttachmentPath(ts time.Time, sha256Hex, ext string) string {
	name := sha256Hex
	if ext != "" {
		name += "." + strings.TrimPrefix(ext, ".")
	}
	return filepath.Join(l.AttachmentsDir(ts), name)
}
