package workflow

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jra3/agentmail/internal/archive"
	"github.com/jra3/agentmail/internal/contact"
	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/inbox"
	"github.com/jra3/agentmail/internal/llm"
	"github.com/jra3/agentmail/internal/mailpipeline"
	"github.com/jra3/agentmail/internal/model"
	"github.com/jra3/agentmail/internal/project"
	"github.com/jra3/agentmail/internal/reservation"
)

func newTestService(t *testing.T) (*Service, *db.Store) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	store, err := db.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reservations := reservation.New(store)
	contacts := contact.New(store, reservations, true, 30*24*time.Hour)
	writer := archive.NewWriter(t.TempDir(), "agentmail-test", "agentmail@localhost", 64*1024, nil, archive.NewRegistry())
	pipeline := &mailpipeline.Pipeline{
		Store: store, Writer: writer, Reservations: reservations, Contacts: contacts,
		ReservationsEnforced: true, AttachmentsDefault: model.DefaultAttachmentsPolicy,
	}
	projects := project.New(store)
	inboxSvc := inbox.New(store, llm.Disabled{})

	return New(projects, inboxSvc, reservations, contacts, pipeline), store
}

func TestStartSessionEnsuresProjectRegistersAgentAndFetchesInbox(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.StartSession(ctx, StartSessionRequest{
		ProjectHumanKey: "/data/projects/backend",
		AgentName:       "BlueLake",
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if result.Project.Slug != "backend" {
		t.Fatalf("expected slug backend, got %q", result.Project.Slug)
	}
	if result.Agent.Name != "BlueLake" {
		t.Fatalf("expected agent BlueLake, got %q", result.Agent.Name)
	}
	if len(result.Inbox) != 0 {
		t.Fatalf("expected an empty inbox for a freshly registered agent, got %d", len(result.Inbox))
	}

	again, err := svc.StartSession(ctx, StartSessionRequest{
		ProjectHumanKey: "/data/projects/backend",
		AgentName:       "BlueLake",
	})
	if err != nil {
		t.Fatalf("second StartSession: %v", err)
	}
	if again.Project.ID != result.Project.ID || again.Agent.ID != result.Agent.ID {
		t.Fatalf("expected StartSession to be idempotent on project/agent identity")
	}
}

func TestStartSessionWithReservationHoldsAGrant(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.StartSession(ctx, StartSessionRequest{
		ProjectHumanKey:    "/data/projects/backend",
		AgentName:          "BlueLake",
		ReservePathPattern: "src/**",
		ReserveReason:      "refactor",
		ReserveTTL:         time.Hour,
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if result.Reservation == nil || result.Reservation.Reservation.PathPattern != "src/**" {
		t.Fatalf("expected a held reservation on src/**, got %+v", result.Reservation)
	}
}

func TestContactHandshakeAutoRegistersAndSendsWelcome(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	proj, err := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	requester, _, err := store.Queries().CreateOrGetAgent(ctx, proj.ID, "BlueLake", "", "", "")
	if err != nil {
		t.Fatalf("CreateOrGetAgent: %v", err)
	}

	result, err := svc.ContactHandshake(ctx, ContactHandshakeRequest{
		RequesterProjectID: proj.ID,
		RequesterAgentID:   requester.ID,
		TargetProjectID:    proj.ID,
		TargetAgentName:    "GreenCastle",
		AutoRegisterTarget: true,
		AutoAccept:         true,
		Reason:             "need to coordinate on the release",
		WelcomeSubject:     "Hello",
		WelcomeBodyMD:      "looking forward to working together",
	})
	if err != nil {
		t.Fatalf("ContactHandshake: %v", err)
	}
	if !result.TargetRegistered {
		t.Fatalf("expected the target to be auto-registered")
	}
	if !result.Accepted {
		t.Fatalf("expected auto-accept to mark the link accepted")
	}
	if !result.WelcomeSent {
		t.Fatalf("expected the welcome message to send, got error %q", result.WelcomeError)
	}
}
