package contact

import (
	"context"
	"testing"
	"time"

	"github.com/jra3/agentmail/internal/apierr"
	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/model"
	"github.com/jra3/agentmail/internal/reservation"
)

func openTestStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEvaluateContactsOnlyRequiresApprovedLink(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	p, _ := store.Queries().CreateProject(ctx, "backend", "/data/backend")
	alpha, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "Alpha", "", "", "")
	beta, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "Beta", "", "", "")
	if err := store.Queries().SetContactPolicy(ctx, beta.ID, model.PolicyContactsOnly); err != nil {
		t.Fatalf("SetContactPolicy: %v", err)
	}
	beta.ContactPolicy = model.PolicyContactsOnly

	reservations := reservation.New(store)
	engine := New(store, reservations, true, 30*24*time.Hour)

	decision, err := engine.Evaluate(ctx, Candidate{ProjectID: p.ID, SenderID: alpha.ID, Recipient: beta})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected contacts_only with no link to deny")
	}
	if decision.Err == nil || decision.Err.Kind != apierr.ContactRequired {
		t.Fatalf("expected CONTACT_REQUIRED, got %+v", decision.Err)
	}
}

func TestEvaluateAutoAllowsViaOverlappingReservation(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	p, _ := store.Queries().CreateProject(ctx, "backend", "/data/backend")
	alpha, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "Alpha", "", "", "")
	beta, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "Beta", "", "", "")
	store.Queries().SetContactPolicy(ctx, beta.ID, model.PolicyAuto)
	beta.ContactPolicy = model.PolicyAuto

	reservations := reservation.New(store)
	engine := New(store, reservations, true, 30*24*time.Hour)

	// Without overlapping reservations, auto still denies.
	decision, err := engine.Evaluate(ctx, Candidate{ProjectID: p.ID, SenderID: alpha.ID, Recipient: beta})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected auto with no history to deny")
	}

	if _, err := reservations.Reserve(ctx, p.ID, alpha.ID, "src/*", true, "", time.Minute); err != nil {
		t.Fatalf("Reserve alpha: %v", err)
	}
	if _, err := reservations.Reserve(ctx, p.ID, beta.ID, "src/app.py", true, "", time.Minute); err != nil {
		t.Fatalf("Reserve beta: %v", err)
	}

	decision, err = engine.Evaluate(ctx, Candidate{ProjectID: p.ID, SenderID: alpha.ID, Recipient: beta})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected overlapping reservations to auto-allow, got %+v", decision)
	}
}

func TestEvaluateBlockedLinkOverridesHeuristics(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	p, _ := store.Queries().CreateProject(ctx, "backend", "/data/backend")
	alpha, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "Alpha", "", "", "")
	beta, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "Beta", "", "", "")
	store.Queries().SetContactPolicy(ctx, beta.ID, model.PolicyAuto)
	beta.ContactPolicy = model.PolicyAuto

	link, err := store.Queries().UpsertLinkRequest(ctx, p.ID, alpha.ID, p.ID, beta.ID, "")
	if err != nil {
		t.Fatalf("UpsertLinkRequest: %v", err)
	}
	if err := store.Queries().SetLinkStatus(ctx, link.ID, model.LinkBlocked, nil); err != nil {
		t.Fatalf("SetLinkStatus: %v", err)
	}

	reservations := reservation.New(store)
	engine := New(store, reservations, true, 30*24*time.Hour)
	reservations.Reserve(ctx, p.ID, alpha.ID, "src/*", true, "", time.Minute)
	reservations.Reserve(ctx, p.ID, beta.ID, "src/app.py", true, "", time.Minute)

	decision, err := engine.Evaluate(ctx, Candidate{ProjectID: p.ID, SenderID: alpha.ID, Recipient: beta})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected a blocked link to deny even with an overlapping reservation")
	}
}

func TestEvaluateAckRequiredBypassesGating(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	p, _ := store.Queries().CreateProject(ctx, "backend", "/data/backend")
	alpha, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "Alpha", "", "", "")
	beta, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "Beta", "", "", "")
	store.Queries().SetContactPolicy(ctx, beta.ID, model.PolicyBlockAll)
	beta.ContactPolicy = model.PolicyBlockAll

	reservations := reservation.New(store)
	engine := New(store, reservations, true, 30*24*time.Hour)
	decision, err := engine.Evaluate(ctx, Candidate{ProjectID: p.ID, SenderID: alpha.ID, Recipient: beta, AckRequired: true})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected ack_required to bypass even block_all")
	}
}
