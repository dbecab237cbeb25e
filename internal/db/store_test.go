package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jra3/agentmail/internal/model"
)

var errFakeFailure = errors.New("fake failure")

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return store
}

func TestOpenAndClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestCreateAndGetProject(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()
	ctx := context.Background()

	p, err := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	got, err := store.Queries().GetProjectBySlug(ctx, "backend")
	if err != nil {
		t.Fatalf("GetProjectBySlug failed: %v", err)
	}
	if got.ID != p.ID || got.HumanKey != p.HumanKey {
		t.Errorf("project mismatch: got %+v, want %+v", got, p)
	}
}

func TestGetProjectBySlugIfDifferentHumanKey(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if _, err := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend"); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	collision, err := store.Queries().GetProjectBySlugIfDifferentHumanKey(ctx, "backend", "/data/projects/backend-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if collision == nil {
		t.Fatal("expected a collision for a different human_key with the same slug")
	}

	noCollision, err := store.Queries().GetProjectBySlugIfDifferentHumanKey(ctx, "backend", "/data/projects/backend")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if noCollision != nil {
		t.Error("expected no collision when human_key matches")
	}
}

func TestCreateOrGetAgentIsCaseInsensitive(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()
	ctx := context.Background()

	p, err := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	first, created, err := store.Queries().CreateOrGetAgent(ctx, p.ID, "BlueLake", "claude-code", "opus", "ship the thing")
	if err != nil {
		t.Fatalf("CreateOrGetAgent failed: %v", err)
	}
	if !created {
		t.Error("expected first registration to report created=true")
	}

	second, created, err := store.Queries().CreateOrGetAgent(ctx, p.ID, "bluelake", "claude-code", "opus", "ship the thing")
	if err != nil {
		t.Fatalf("CreateOrGetAgent failed: %v", err)
	}
	if created {
		t.Error("expected case-insensitive collision to report created=false")
	}
	if second.ID != first.ID {
		t.Errorf("expected the same agent id back, got %d vs %d", second.ID, first.ID)
	}
}

func TestCreateMessageAndInbox(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()
	ctx := context.Background()

	p, _ := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	sender, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "BlueLake", "", "", "")
	recipient, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "GreenCastle", "", "", "")

	msg := &model.Message{
		ProjectID:  p.ID,
		SenderID:   sender.ID,
		Subject:    "status update",
		BodyMD:     "shipped the fix",
		Importance: model.ImportanceNormal,
	}
	created, err := store.Queries().CreateMessage(ctx, msg, []Recipient{{AgentID: recipient.ID, Kind: model.RecipientTo}})
	if err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected a non-zero message id")
	}

	msgs, recips, err := store.Queries().ListInbox(ctx, recipient.ID, InboxFilter{})
	if err != nil {
		t.Fatalf("ListInbox failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != created.ID {
		t.Fatalf("expected one inbox message, got %+v", msgs)
	}
	if recips[0].ReadTS != nil {
		t.Error("expected unread message to have a nil read_ts")
	}

	if err := store.Queries().MarkRead(ctx, created.ID, recipient.ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	rec, err := store.Queries().GetRecipient(ctx, created.ID, recipient.ID)
	if err != nil {
		t.Fatalf("GetRecipient failed: %v", err)
	}
	if rec.ReadTS == nil {
		t.Fatal("expected read_ts to be set after MarkRead")
	}
	firstRead := *rec.ReadTS

	// set-once: a second MarkRead must not move the timestamp forward
	if err := store.Queries().MarkRead(ctx, created.ID, recipient.ID); err != nil {
		t.Fatalf("second MarkRead failed: %v", err)
	}
	rec, err = store.Queries().GetRecipient(ctx, created.ID, recipient.ID)
	if err != nil {
		t.Fatalf("GetRecipient failed: %v", err)
	}
	if !rec.ReadTS.Equal(firstRead) {
		t.Errorf("MarkRead is not idempotent: got %v, want %v", rec.ReadTS, firstRead)
	}
}

func TestSearchMessagesMatchesSubjectAndBody(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()
	ctx := context.Background()

	p, _ := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	sender, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "BlueLake", "", "", "")

	if _, err := store.Queries().CreateMessage(ctx,
		&model.Message{ProjectID: p.ID, SenderID: sender.ID, Subject: "reservation conflict", BodyMD: "path overlap on api/handlers"},
		nil); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}
	if _, err := store.Queries().CreateMessage(ctx,
		&model.Message{ProjectID: p.ID, SenderID: sender.ID, Subject: "deploy notes", BodyMD: "nothing related"},
		nil); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	results, err := store.Queries().SearchMessages(ctx, p.ID, "overlap", 10)
	if err != nil {
		t.Fatalf("SearchMessages failed: %v", err)
	}
	if len(results) != 1 || results[0].Subject != "reservation conflict" {
		t.Fatalf("expected exactly the overlap message, got %+v", results)
	}
}

func TestReservationLifecycle(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()
	ctx := context.Background()

	p, _ := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	agent, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "BlueLake", "", "", "")

	r, err := store.Queries().CreateReservation(ctx, &model.FileReservation{
		ProjectID:   p.ID,
		AgentID:     agent.ID,
		PathPattern: "api/**",
		Exclusive:   true,
		ExpiresTS:   Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateReservation failed: %v", err)
	}

	active, err := store.Queries().ListActiveReservations(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListActiveReservations failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != r.ID {
		t.Fatalf("expected the reservation to be active, got %+v", active)
	}

	if err := store.Queries().ReleaseReservation(ctx, r.ID); err != nil {
		t.Fatalf("ReleaseReservation failed: %v", err)
	}
	// idempotent: releasing twice must not error
	if err := store.Queries().ReleaseReservation(ctx, r.ID); err != nil {
		t.Fatalf("second ReleaseReservation failed: %v", err)
	}

	active, err = store.Queries().ListActiveReservations(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListActiveReservations failed: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active reservations after release, got %+v", active)
	}
}

func TestExpireStaleReservations(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()
	ctx := context.Background()

	p, _ := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	agent, _, _ := store.Queries().CreateOrGetAgent(ctx, p.ID, "BlueLake", "", "", "")

	if _, err := store.Queries().CreateReservation(ctx, &model.FileReservation{
		ProjectID:   p.ID,
		AgentID:     agent.ID,
		PathPattern: "api/**",
		Exclusive:   true,
		ExpiresTS:   Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("CreateReservation failed: %v", err)
	}

	n, err := store.Queries().ExpireStaleReservations(ctx, p.ID)
	if err != nil {
		t.Fatalf("ExpireStaleReservations failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one reservation expired, got %d", n)
	}

	active, err := store.Queries().ListActiveReservations(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListActiveReservations failed: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active reservations after sweep, got %+v", active)
	}
}

func TestAgentLinkRequestIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()
	ctx := context.Background()

	pa, _ := store.Queries().CreateProject(ctx, "backend", "/data/projects/backend")
	pb, _ := store.Queries().CreateProject(ctx, "frontend", "/data/projects/frontend")
	a, _, _ := store.Queries().CreateOrGetAgent(ctx, pa.ID, "BlueLake", "", "", "")
	b, _, _ := store.Queries().CreateOrGetAgent(ctx, pb.ID, "GreenCastle", "", "", "")

	first, err := store.Queries().UpsertLinkRequest(ctx, pa.ID, a.ID, pb.ID, b.ID, "need to coordinate on the API contract")
	if err != nil {
		t.Fatalf("UpsertLinkRequest failed: %v", err)
	}
	if first.Status != model.LinkPending {
		t.Errorf("expected new link to be pending, got %s", first.Status)
	}

	second, err := store.Queries().UpsertLinkRequest(ctx, pa.ID, a.ID, pb.ID, b.ID, "a different reason")
	if err != nil {
		t.Fatalf("UpsertLinkRequest failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected repeated requests to reuse the same link row, got %d vs %d", second.ID, first.ID)
	}

	if err := store.Queries().SetLinkStatus(ctx, first.ID, model.LinkApproved, nil); err != nil {
		t.Fatalf("SetLinkStatus failed: %v", err)
	}
	updated, err := store.Queries().GetLink(ctx, pa.ID, a.ID, pb.ID, b.ID)
	if err != nil {
		t.Fatalf("GetLink failed: %v", err)
	}
	if updated.Status != model.LinkApproved {
		t.Errorf("expected approved status, got %s", updated.Status)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()
	ctx := context.Background()

	wantErr := errFakeFailure
	err := store.WithTx(ctx, func(q *Queries) error {
		if _, err := q.CreateProject(ctx, "backend", "/data/projects/backend"); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected WithTx to surface the callback error, got %v", err)
	}

	if _, err := store.Queries().GetProjectBySlug(ctx, "backend"); err == nil {
		t.Error("expected the project insert to have been rolled back")
	}
}
