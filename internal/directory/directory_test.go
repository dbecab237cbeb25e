package directory

import (
	"context"
	"testing"
	"time"

	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/model"
)

func newTestService(t *testing.T) (*Service, *db.Store) {
	t.Helper()
	store, err := db.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, t.TempDir(), "agentmail-test", "agentmail@localhost", nil), store
}

func TestListProjectsHonorsIgnorePatterns(t *testing.T) {
	t.Parallel()
	store, err := db.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	if _, err := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := store.Queries().CreateProject(ctx, "scratch-tmp", "/data/projects/scratch-tmp"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	svc := New(store, t.TempDir(), "agentmail-test", "agentmail@localhost", []string{"scratch-*"})
	projects, err := svc.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 1 || projects[0].Slug != "backend" {
		t.Fatalf("expected only backend to survive the ignore pattern, got %v", projects)
	}
}

func TestAckViewsClassifyByAgeAndAckState(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	proj, err := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	sender, _, err := store.Queries().CreateOrGetAgent(ctx, proj.ID, "BlueLake", "", "", "")
	if err != nil {
		t.Fatalf("CreateOrGetAgent: %v", err)
	}
	recipient, _, err := store.Queries().CreateOrGetAgent(ctx, proj.ID, "GreenCastle", "", "", "")
	if err != nil {
		t.Fatalf("CreateOrGetAgent: %v", err)
	}

	msg := &model.Message{
		ProjectID: proj.ID, SenderID: sender.ID, Subject: "Needs ack",
		BodyMD: "please confirm", Importance: model.ImportanceNormal, AckRequired: true,
	}
	if _, err := store.Queries().CreateMessage(ctx, msg, []db.Recipient{{AgentID: recipient.ID, Kind: model.RecipientTo}}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	pending, err := svc.AckRequiredPending(ctx, recipient.ID, 10)
	if err != nil {
		t.Fatalf("AckRequiredPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one ack-required-pending entry, got %d", len(pending))
	}

	stale, err := svc.AckStale(ctx, recipient.ID, 0, 10)
	if err != nil {
		t.Fatalf("AckStale: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected the message to already be stale under a zero TTL, got %d", len(stale))
	}

	fresh, err := svc.AckStale(ctx, recipient.ID, 24*time.Hour, 10)
	if err != nil {
		t.Fatalf("AckStale: %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("expected no stale entries under a generous TTL, got %d", len(fresh))
	}

	if err := store.Queries().MarkRead(ctx, msg.ID, recipient.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := store.Queries().Acknowledge(ctx, msg.ID, recipient.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	pending, err = svc.AckRequiredPending(ctx, recipient.ID, 10)
	if err != nil {
		t.Fatalf("AckRequiredPending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected acknowledgement to clear the pending view, got %d", len(pending))
	}
}

func TestDashboardAssemblesAllViewsConcurrently(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	proj, err := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	sender, _, err := store.Queries().CreateOrGetAgent(ctx, proj.ID, "BlueLake", "", "", "")
	if err != nil {
		t.Fatalf("CreateOrGetAgent: %v", err)
	}
	recipient, _, err := store.Queries().CreateOrGetAgent(ctx, proj.ID, "GreenCastle", "", "", "")
	if err != nil {
		t.Fatalf("CreateOrGetAgent: %v", err)
	}

	urgent := &model.Message{
		ProjectID: proj.ID, SenderID: sender.ID, Subject: "Prod is down",
		BodyMD: "help", Importance: model.ImportanceUrgent,
	}
	if _, err := store.Queries().CreateMessage(ctx, urgent, []db.Recipient{{AgentID: recipient.ID, Kind: model.RecipientTo}}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	needsAck := &model.Message{
		ProjectID: proj.ID, SenderID: sender.ID, Subject: "Needs ack",
		BodyMD: "please confirm", Importance: model.ImportanceNormal, AckRequired: true,
	}
	if _, err := store.Queries().CreateMessage(ctx, needsAck, []db.Recipient{{AgentID: recipient.ID, Kind: model.RecipientTo}}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	dash, err := svc.Dashboard(ctx, recipient.ID, 0, 0, 10)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if len(dash.UrgentUnread) != 1 {
		t.Errorf("expected 1 urgent-unread entry, got %d", len(dash.UrgentUnread))
	}
	if len(dash.AckRequiredPending) != 1 {
		t.Errorf("expected 1 ack-required-pending entry, got %d", len(dash.AckRequiredPending))
	}
	if len(dash.AckStale) != 1 {
		t.Errorf("expected 1 ack-stale entry under a zero TTL, got %d", len(dash.AckStale))
	}
	if len(dash.AckOverdue) != 1 {
		t.Errorf("expected 1 ack-overdue entry under a zero-minute threshold, got %d", len(dash.AckOverdue))
	}
}

func TestSuggestSiblingsSkipsSameHumanKeyAndScoresSharedParent(t *testing.T) {
	t.Parallel()
	a := &model.Project{ID: 1, Slug: "backend", HumanKey: "/data/projects/backend"}
	b := &model.Project{ID: 2, Slug: "backend-frontend", HumanKey: "/data/projects/backend_frontend"}
	c := &model.Project{ID: 3, Slug: "backend", HumanKey: "/data/projects/backend"}

	suggestions := SuggestSiblings([]*model.Project{a, b, c})
	for _, s := range suggestions {
		if (s.ProjectAID == a.ID && s.ProjectBID == c.ID) || (s.ProjectAID == c.ID && s.ProjectBID == a.ID) {
			t.Fatalf("identical human_key pair should have been skipped entirely: %+v", s)
		}
	}
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 surviving pairs, got %d: %+v", len(suggestions), suggestions)
	}
	for _, s := range suggestions {
		if s.ProjectAID == a.ID && s.ProjectBID == b.ID {
			if s.Score < 0.85 {
				t.Fatalf("expected shared-parent-directory floor of 0.85, got %f", s.Score)
			}
		}
	}
}
