package reservation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/model"
)

func openTestStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func reservationFor(projectID, agentID int64, pathPattern string, exclusive bool) *model.FileReservation {
	return &model.FileReservation{
		ProjectID:   projectID,
		AgentID:     agentID,
		PathPattern: pathPattern,
		Exclusive:   exclusive,
		ExpiresTS:   db.Now().Add(time.Hour),
	}
}

func TestReserveClampsShortTTL(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()
	p, _ := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	agent, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "BlueLake", "", "", "")

	eng := New(store)
	grant, err := eng.Reserve(ctx, p.ID, agent.ID, "src/app.py", true, "editing", time.Second)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if grant.Reservation.ExpiresTS.Sub(db.Now()) < MinTTL-time.Second {
		t.Errorf("expected TTL to be clamped to at least %v, expiry=%v", MinTTL, grant.Reservation.ExpiresTS)
	}
}

func TestReserveReportsConflictButStillGrants(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()
	p, _ := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	a, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "BlueLake", "", "", "")
	b, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "GreenCastle", "", "", "")

	eng := New(store)
	if _, err := eng.Reserve(ctx, p.ID, a.ID, "src/app.py", true, "editing", time.Minute); err != nil {
		t.Fatalf("first Reserve failed: %v", err)
	}

	grant, err := eng.Reserve(ctx, p.ID, b.ID, "src/app.py", true, "also editing", time.Minute)
	if err != nil {
		t.Fatalf("Reserve is advisory and must not fail on conflict, got: %v", err)
	}
	if grant.Reservation == nil {
		t.Fatal("expected the reservation to be granted despite the conflict")
	}
	if len(grant.Conflicts) != 1 {
		t.Fatalf("expected exactly one reported conflict, got %d", len(grant.Conflicts))
	}
}

func TestReserveSameAgentNeverConflicts(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()
	p, _ := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	a, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "BlueLake", "", "", "")

	eng := New(store)
	if _, err := eng.Reserve(ctx, p.ID, a.ID, "src/app.py", true, "editing", time.Minute); err != nil {
		t.Fatalf("first Reserve failed: %v", err)
	}
	grant, err := eng.Reserve(ctx, p.ID, a.ID, "src/app.py", true, "renewing scope", time.Minute)
	if err != nil {
		t.Fatalf("expected an agent to be able to add a second reservation over its own path, got %v", err)
	}
	if len(grant.Conflicts) != 0 {
		t.Errorf("expected no conflicts against the agent's own reservation, got %+v", grant.Conflicts)
	}
}

func TestRenewExtendsExpiry(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()
	p, _ := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	a, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "BlueLake", "", "", "")

	eng := New(store)
	grant, err := eng.Reserve(ctx, p.ID, a.ID, "docs/*.md", true, "writing docs", 2*time.Second)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	original := grant.Reservation.ExpiresTS

	renewed, err := eng.Renew(ctx, grant.Reservation.ID, 60*time.Second)
	if err != nil {
		t.Fatalf("Renew failed: %v", err)
	}
	if !renewed.ExpiresTS.After(original) {
		t.Errorf("expected renewed expiry %v to be after original %v", renewed.ExpiresTS, original)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()
	p, _ := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	a, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "BlueLake", "", "", "")

	eng := New(store)
	grant, err := eng.Reserve(ctx, p.ID, a.ID, "src/app.py", true, "editing", time.Minute)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := eng.Release(ctx, grant.Reservation.ID); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := eng.Release(ctx, grant.Reservation.ID); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}
}

func TestHasOverlappingActiveReservations(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()
	p, _ := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	a, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "BlueLake", "", "", "")
	b, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "GreenCastle", "", "", "")

	eng := New(store)
	if _, err := store.Queries().CreateReservation(ctx, reservationFor(p.ID, a.ID, "src/*", true)); err != nil {
		t.Fatalf("CreateReservation failed: %v", err)
	}
	if _, err := store.Queries().CreateReservation(ctx, reservationFor(p.ID, b.ID, "src/app.py", true)); err != nil {
		t.Fatalf("CreateReservation failed: %v", err)
	}

	overlap, err := eng.HasOverlappingActiveReservations(ctx, p.ID, a.ID, b.ID)
	if err != nil {
		t.Fatalf("HasOverlappingActiveReservations failed: %v", err)
	}
	if !overlap {
		t.Error("expected an overlap between src/* and src/app.py")
	}
}
