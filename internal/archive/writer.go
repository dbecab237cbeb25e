package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jra3/agentmail/internal/marshal"
	"github.com/jra3/agentmail/internal/model"
	"github.com/jra3/agentmail/internal/richlog"
)

// RecipientCopy names one agent-scoped copy of a message bundle to write
// (an inbox copy for a recipient, or an outbox copy for the sender).
type RecipientCopy struct {
	AgentName string
	Outbox    bool
}

// WriteResult is what a successful WriteMessage produces.
type WriteResult struct {
	Attachments []model.AttachmentMeta
	CommitHash  string
}

// Writer materializes one message delivery into a project's archive: the
// canonical copy, the sender's outbox copy, every recipient's inbox copy,
// and any attachments, then produces a single git commit (spec §4.2, §4.5
// step 9). Every exported method acquires the project's archive lock before
// touching disk and releases it on every return path.
type Writer struct {
	Root                 string
	Registry              *Registry
	AuthorName, AuthorEmail string
	InlineThresholdBytes  int64
	Converter             ImageConverter
}

func NewWriter(root, authorName, authorEmail string, inlineThresholdBytes int64, converter ImageConverter, registry *Registry) *Writer {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Writer{
		Root: root, Registry: registry, AuthorName: authorName, AuthorEmail: authorEmail,
		InlineThresholdBytes: inlineThresholdBytes, Converter: converter,
	}
}

// WriteMessage writes one message's archive bundle and commits it.
// msg.Attachments is overwritten with the resolved, materialized metadata.
func (w *Writer) WriteMessage(ctx context.Context, slug string, msg *model.Message, senderName string, copies []RecipientCopy, namesByKind map[model.RecipientKind][]string, attachmentInputs []AttachmentInput, policy model.AttachmentsPolicy, convertImages bool, operation string) (*WriteResult, error) {
	layout := NewLayout(w.Root, slug)
	lock := w.Registry.Get(layout)
	release, err := lock.Acquire()
	if err != nil {
		return nil, fmt.Errorf("archive write: acquire lock: %w", err)
	}
	defer release()

	started := time.Now()

	repo, err := NewRepo(layout.Root, w.AuthorName, w.AuthorEmail)
	if err != nil {
		return nil, fmt.Errorf("archive write: open repo: %w", err)
	}

	processor := NewProcessor(layout, w.InlineThresholdBytes, w.Converter)
	attachments, err := processor.Process(msg.CreatedTS, attachmentInputs, policy, convertImages)
	if err != nil {
		return nil, fmt.Errorf("archive write: process attachments: %w", err)
	}
	msg.Attachments = attachments

	doc, err := buildFrontMatter(msg, senderName, namesByKind)
	if err != nil {
		return nil, fmt.Errorf("archive write: build frontmatter: %w", err)
	}
	rendered, err := marshal.Render(doc)
	if err != nil {
		return nil, fmt.Errorf("archive write: render frontmatter: %w", err)
	}

	canonical := layout.MessagePath(msg.CreatedTS, msg.Subject, msg.ID)
	if err := mkdirAndWriteFile(canonical, rendered); err != nil {
		return nil, fmt.Errorf("archive write: canonical copy: %w", err)
	}

	seen := map[string]bool{}
	for _, c := range copies {
		dest := layout.AgentMessagePath(c.AgentName, msg.CreatedTS, msg.Subject, msg.ID, c.Outbox)
		if seen[dest] {
			continue
		}
		seen[dest] = true
		if err := mkdirAndWriteFile(dest, rendered); err != nil {
			return nil, fmt.Errorf("archive write: agent copy %s: %w", dest, err)
		}
	}

	panel := richlog.RenderCommitPanel(richlog.Delivery{
		Operation:   operation,
		Sender:      senderName,
		To:          namesByKind[model.RecipientTo],
		CC:          namesByKind[model.RecipientCC],
		BCC:         namesByKind[model.RecipientBCC],
		Subject:     msg.Subject,
		Importance:  string(msg.Importance),
		AckRequired: msg.AckRequired,
		Attachments: len(attachments),
		StartedAt:   started,
		FinishedAt:  time.Now(),
		LockToken:   lock.Token().String(),
	})

	hash, err := repo.CommitAll(ctx, panel)
	if err != nil {
		return nil, fmt.Errorf("archive write: commit: %w", err)
	}
	return &WriteResult{Attachments: attachments, CommitHash: hash}, nil
}

// WriteReservationRecord persists the on-disk JSON artifact for a
// reservation (spec §4.2 layout, §4.3 "must also refresh the on-disk
// record" on renewal) and commits it.
func (w *Writer) WriteReservationRecord(ctx context.Context, slug string, r *model.FileReservation, operation string) (string, error) {
	layout := NewLayout(w.Root, slug)
	lock := w.Registry.Get(layout)
	release, err := lock.Acquire()
	if err != nil {
		return "", fmt.Errorf("archive write: acquire lock: %w", err)
	}
	defer release()

	repo, err := NewRepo(layout.Root, w.AuthorName, w.AuthorEmail)
	if err != nil {
		return "", fmt.Errorf("archive write: open repo: %w", err)
	}

	data, err := reservationJSON(r)
	if err != nil {
		return "", err
	}
	dest := layout.ReservationRecordPath(r.PathPattern)
	if err := mkdirAndWriteFile(dest, data); err != nil {
		return "", fmt.Errorf("archive write: reservation record: %w", err)
	}

	msg := fmt.Sprintf("%s: %s reserves %s (exclusive=%t)\n\nlock: %s", operation, r.Reason, r.PathPattern, r.Exclusive, lock.Token())
	return repo.CommitAll(ctx, msg)
}

// WriteAgentProfile persists an agent's profile.json and commits it (spec
// §4.2 layout: "agents/<Name>/profile.json").
func (w *Writer) WriteAgentProfile(ctx context.Context, slug string, a *model.Agent) (string, error) {
	layout := NewLayout(w.Root, slug)
	lock := w.Registry.Get(layout)
	release, err := lock.Acquire()
	if err != nil {
		return "", fmt.Errorf("archive write: acquire lock: %w", err)
	}
	defer release()

	repo, err := NewRepo(layout.Root, w.AuthorName, w.AuthorEmail)
	if err != nil {
		return "", fmt.Errorf("archive write: open repo: %w", err)
	}

	data, err := profileJSON(a)
	if err != nil {
		return "", err
	}
	if err := mkdirAndWriteFile(layout.ProfilePath(a.Name), data); err != nil {
		return "", fmt.Errorf("archive write: profile: %w", err)
	}
	return repo.CommitAll(ctx, fmt.Sprintf("register agent: %s\n\nlock: %s", a.Name, lock.Token()))
}

func mkdirAndWriteFile(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(dest, data, 0o644)
}
