package search

import (
	"context"
	"testing"

	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/model"
)

func TestSearchMessagesFindsBySubjectAndBody(t *testing.T) {
	t.Parallel()
	store, err := db.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
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
		ProjectID: proj.ID, SenderID: sender.ID, Subject: "Deploy pipeline flaky",
		BodyMD: "the deploy pipeline keeps failing on the staging cluster", Importance: model.ImportanceHigh,
	}
	if _, err := store.Queries().CreateMessage(ctx, msg, []db.Recipient{{AgentID: recipient.ID, Kind: model.RecipientTo}}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	svc := New(store)
	results, err := svc.SearchMessages(ctx, proj.ID, "pipeline", 10)
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one match, got %d", len(results))
	}
	if results[0].SenderName != "BlueLake" {
		t.Fatalf("expected sender name BlueLake, got %q", results[0].SenderName)
	}
}
