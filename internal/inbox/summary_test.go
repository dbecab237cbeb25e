package inbox

import "testing"

func TestSummarizeMessagesExtractsKeyPointsActionsAndMentions(t *testing.T) {
	t.Parallel()
	inputs := []summaryInput{
		{senderName: "BlueLake", bodyMD: "- [ ] ship the release\n- [x] write tests\nTODO: update docs\nping @GreenCastle please review `internal/db/store.go`"},
		{senderName: "GreenCastle", bodyMD: "- looks good\nthanks @BlueLake"},
	}
	summary := summarizeMessages(inputs)

	if len(summary.Participants) != 2 || summary.Participants[0] != "BlueLake" {
		t.Fatalf("expected sorted participants [BlueLake GreenCastle], got %v", summary.Participants)
	}
	if summary.OpenActions != 1 || summary.DoneActions != 1 {
		t.Fatalf("expected 1 open and 1 done action, got open=%d done=%d", summary.OpenActions, summary.DoneActions)
	}
	if len(summary.ActionItems) < 2 {
		t.Fatalf("expected at least 2 action items, got %v", summary.ActionItems)
	}
	foundTODO := false
	for _, a := range summary.ActionItems {
		if a == "TODO: update docs" {
			foundTODO = true
		}
	}
	if !foundTODO {
		t.Fatalf("expected keyword-detected TODO action item, got %v", summary.ActionItems)
	}
	if len(summary.Mentions) != 2 {
		t.Fatalf("expected 2 distinct mentions, got %v", summary.Mentions)
	}
	if len(summary.CodeReferences) != 1 || summary.CodeReferences[0] != "internal/db/store.go" {
		t.Fatalf("expected one code reference, got %v", summary.CodeReferences)
	}
}

func TestSummarizeMessagesChecksBoxNormalization(t *testing.T) {
	t.Parallel()
	summary := summarizeMessages([]summaryInput{
		{senderName: "BlueLake", bodyMD: "- [ ] fix the bug"},
	})
	found := false
	for _, kp := range summary.KeyPoints {
		if kp == "fix the bug" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected checkbox-normalized key point, got %v", summary.KeyPoints)
	}
}
