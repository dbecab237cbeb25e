// Package directory implements the read-only project/agent/reservation
// listings and the derived per-agent views (C9): urgent-unread,
// ack-required-pending, ack-stale, ack-overdue, and mailbox-with-commits.
package directory

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jra3/agentmail/internal/archive"
	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/model"
	"golang.org/x/sync/errgroup"
)

// Service implements the directory/views read model.
type Service struct {
	Store          *db.Store
	StorageRoot    string
	AuthorName     string
	AuthorEmail    string
	IgnorePatterns []string // glob patterns matched against slug or human_key
}

func New(store *db.Store, storageRoot, authorName, authorEmail string, ignorePatterns []string) *Service {
	return &Service{Store: store, StorageRoot: storageRoot, AuthorName: authorName, AuthorEmail: authorEmail, IgnorePatterns: ignorePatterns}
}

// ListProjects returns every registered project, creation order, filtered
// against the configured ignore-pattern set (spec §4.8).
func (s *Service) ListProjects(ctx context.Context) ([]*model.Project, error) {
	all, err := s.Store.Queries().ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Project, 0, len(all))
	for _, p := range all {
		if s.ignored(p) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) ignored(p *model.Project) bool {
	for _, pattern := range s.IgnorePatterns {
		if ok, _ := filepath.Match(pattern, p.Slug); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, p.HumanKey); ok {
			return true
		}
	}
	return false
}

// ProjectDetail is a project with its embedded agent list.
type ProjectDetail struct {
	Project *model.Project
	Agents  []*model.Agent
}

// ProjectDetail loads one project plus its agent roster.
func (s *Service) ProjectDetail(ctx context.Context, slug string) (*ProjectDetail, error) {
	project, err := s.Store.Queries().GetProjectBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	agents, err := s.Store.Queries().ListAgentsByProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	return &ProjectDetail{Project: project, Agents: agents}, nil
}

// AgentDirectory lists every agent in a project with its unread count,
// computed in a single aggregate query (spec §4.8).
func (s *Service) AgentDirectory(ctx context.Context, projectID int64) ([]db.AgentWithUnread, error) {
	return s.Store.Queries().ListAgentsWithUnreadCounts(ctx, projectID)
}

// ListReservations lists a project's active reservations after sweeping
// stale leases (spec §4.8: "lazy expiry applied before listing"). Released
// and expired reservations are never listed, so activeOnly does not change
// the result.
func (s *Service) ListReservations(ctx context.Context, projectID int64, activeOnly bool) ([]*model.FileReservation, error) {
	if _, err := s.Store.Queries().ExpireStaleReservations(ctx, projectID); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	all, err := s.Store.Queries().ListActiveReservations(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return all, nil
	}
	now := db.Now()
	out := make([]*model.FileReservation, 0, len(all))
	for _, r := range all {
		if r.Active(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ViewEntry is one row of a derived inbox view, with the recipient-scoped
// metadata a view needs beyond the raw message.
type ViewEntry struct {
	Message *model.Message
	Kind    model.RecipientKind
	ReadTS  *time.Time
	AckTS   *time.Time
}

// UrgentUnread lists unread messages of urgent importance for an agent
// (spec §4.8 "urgent-unread").
func (s *Service) UrgentUnread(ctx context.Context, agentID int64, limit int) ([]ViewEntry, error) {
	msgs, recips, err := s.Store.Queries().ListInbox(ctx, agentID, db.InboxFilter{UnreadOnly: true, UrgentOnly: true, Limit: limit})
	if err != nil {
		return nil, err
	}
	return toViewEntries(msgs, recips), nil
}

// AckRequiredPending lists ack-required messages for an agent where
// acknowledgement is still missing (spec §4.8 "ack-required-pending").
func (s *Service) AckRequiredPending(ctx context.Context, agentID int64, limit int) ([]ViewEntry, error) {
	msgs, recips, err := s.Store.Queries().ListInbox(ctx, agentID, db.InboxFilter{Limit: 0})
	if err != nil {
		return nil, err
	}
	var out []ViewEntry
	for i, m := range msgs {
		if !m.AckRequired || recips[i].AckTS != nil {
			continue
		}
		out = append(out, ViewEntry{Message: m, Kind: recips[i].Kind, ReadTS: recips[i].ReadTS, AckTS: recips[i].AckTS})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// AckStale lists ack-required, unacknowledged messages older than ttl
// (spec §4.8 "ack-stale (older than TTL)").
func (s *Service) AckStale(ctx context.Context, agentID int64, ttl time.Duration, limit int) ([]ViewEntry, error) {
	return s.ackOlderThan(ctx, agentID, ttl, limit)
}

// AckOverdue lists ack-required, unacknowledged messages older than the
// given number of minutes (spec §4.8 "ack-overdue (older than minutes)").
func (s *Service) AckOverdue(ctx context.Context, agentID int64, minutes int, limit int) ([]ViewEntry, error) {
	return s.ackOlderThan(ctx, agentID, time.Duration(minutes)*time.Minute, limit)
}

func (s *Service) ackOlderThan(ctx context.Context, agentID int64, threshold time.Duration, limit int) ([]ViewEntry, error) {
	msgs, recips, err := s.Store.Queries().ListInbox(ctx, agentID, db.InboxFilter{Limit: 0})
	if err != nil {
		return nil, err
	}
	now := db.Now()
	var out []ViewEntry
	for i, m := range msgs {
		if !m.AckRequired || recips[i].AckTS != nil {
			continue
		}
		if now.Sub(m.CreatedTS) < threshold {
			continue
		}
		out = append(out, ViewEntry{Message: m, Kind: recips[i].Kind, ReadTS: recips[i].ReadTS, AckTS: recips[i].AckTS})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// MailboxEntry is an inbox row enriched with the archive commit that wrote it.
type MailboxEntry struct {
	ViewEntry
	Commit *archive.CommitInfo
}

// MailboxWithCommits lists an agent's inbox enriched with the commit
// hash/timestamp recorded when the canonical message file was written
// (spec §4.8, recovered from _commit_info_for_message). Each message's
// commit lookup is an independent `git log` walk against the project repo,
// so they're resolved concurrently via errgroup rather than one at a time.
func (s *Service) MailboxWithCommits(ctx context.Context, projectSlug string, agentID int64, limit int) ([]MailboxEntry, error) {
	msgs, recips, err := s.Store.Queries().ListInbox(ctx, agentID, db.InboxFilter{Limit: limit})
	if err != nil {
		return nil, err
	}
	layout := archive.NewLayout(s.StorageRoot, projectSlug)
	repo, err := archive.NewRepo(layout.Root, s.AuthorName, s.AuthorEmail)
	if err != nil {
		return nil, fmt.Errorf("mailbox with commits: open repo: %w", err)
	}

	out := make([]MailboxEntry, len(msgs))
	var eg errgroup.Group
	for i, m := range msgs {
		i, m := i, m
		eg.Go(func() error {
			entry := MailboxEntry{ViewEntry: ViewEntry{Message: m, Kind: recips[i].Kind, ReadTS: recips[i].ReadTS, AckTS: recips[i].AckTS}}
			canonical := layout.MessagePath(m.CreatedTS, m.Subject, m.ID)
			if rel, relErr := filepath.Rel(layout.Root, canonical); relErr == nil {
				if info, infoErr := repo.CommitInfoForPath(ctx, rel); infoErr == nil {
					entry.Commit = info
				}
			}
			out[i] = entry
			return nil
		})
	}
	eg.Wait() // per-entry git lookups are best-effort; entry.Commit is left nil on failure
	return out, nil
}

// Dashboard assembles every derived view for an agent in one call, fetching
// urgent-unread, ack-required-pending, ack-stale, and ack-overdue
// concurrently since each is an independent read against the inbox (spec
// §4.8). staleTTL and overdueMinutes parameterize the latter two views.
type Dashboard struct {
	UrgentUnread       []ViewEntry
	AckRequiredPending []ViewEntry
	AckStale           []ViewEntry
	AckOverdue         []ViewEntry
}

func (s *Service) Dashboard(ctx context.Context, agentID int64, staleTTL time.Duration, overdueMinutes, limit int) (*Dashboard, error) {
	var dash Dashboard
	var eg errgroup.Group
	eg.Go(func() (err error) {
		dash.UrgentUnread, err = s.UrgentUnread(ctx, agentID, limit)
		return err
	})
	eg.Go(func() (err error) {
		dash.AckRequiredPending, err = s.AckRequiredPending(ctx, agentID, limit)
		return err
	})
	eg.Go(func() (err error) {
		dash.AckStale, err = s.AckStale(ctx, agentID, staleTTL, limit)
		return err
	})
	eg.Go(func() (err error) {
		dash.AckOverdue, err = s.AckOverdue(ctx, agentID, overdueMinutes, limit)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	return &dash, nil
}

func toViewEntries(msgs []*model.Message, recips []model.MessageRecipient) []ViewEntry {
	out := make([]ViewEntry, 0, len(msgs))
	for i, m := range msgs {
		out = append(out, ViewEntry{Message: m, Kind: recips[i].Kind, ReadTS: recips[i].ReadTS, AckTS: recips[i].AckTS})
	}
	return out
}
