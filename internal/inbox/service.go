package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jra3/agentmail/internal/apierr"
	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/llm"
	"github.com/jra3/agentmail/internal/model"
)

// Service implements fetch-inbox, mark-read/acknowledge, thread summary, and
// multi-thread digest (spec §4.6).
type Service struct {
	Store *db.Store
	LLM   llm.Client // nil or llm.Disabled{} disables augmentation
}

func New(store *db.Store, client llm.Client) *Service {
	if client == nil {
		client = llm.Disabled{}
	}
	return &Service{Store: store, LLM: client}
}

// InboxEntry pairs a message with the recipient-scoped read/ack state and
// the resolved sender display name.
type InboxEntry struct {
	Message    *model.Message
	SenderName string
	Kind       model.RecipientKind
	ReadTS     *string
	AckTS      *string
}

// FetchOptions mirrors the fetch_inbox filters (spec §4.6).
type FetchOptions struct {
	UrgentOnly    bool
	UnreadOnly    bool
	SinceTS       *string // RFC3339; strict greater-than
	Limit         int
	IncludeBodies bool
}

// FetchInbox lists the most recent messages addressed to agentID, newest first.
func (s *Service) FetchInbox(ctx context.Context, agentID int64, opts FetchOptions) ([]InboxEntry, error) {
	filter := db.InboxFilter{UnreadOnly: opts.UnreadOnly, UrgentOnly: opts.UrgentOnly, Limit: opts.Limit}
	if opts.SinceTS != nil {
		t, err := time.Parse(time.RFC3339, *opts.SinceTS)
		if err != nil {
			return nil, apierr.New(apierr.InvalidArgument, "since_ts must be RFC3339", nil)
		}
		filter.Since.Time, filter.Since.Valid = t, true
	}

	msgs, recips, err := s.Store.Queries().ListInbox(ctx, agentID, filter)
	if err != nil {
		return nil, err
	}

	entries := make([]InboxEntry, 0, len(msgs))
	for i, m := range msgs {
		sender, err := s.Store.Queries().GetAgentByID(ctx, m.SenderID)
		senderName := "unknown"
		if err == nil {
			senderName = sender.Name
		}
		if !opts.IncludeBodies {
			stripped := *m
			stripped.BodyMD = ""
			m = &stripped
		}
		entries = append(entries, InboxEntry{
			Message: m, SenderName: senderName, Kind: recips[i].Kind,
			ReadTS: formatPtr(recips[i].ReadTS), AckTS: formatPtr(recips[i].AckTS),
		})
	}
	return entries, nil
}

func formatPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// MarkRead sets read_ts for (message, agent) under the set-once rule (spec §4.1/§4.6).
func (s *Service) MarkRead(ctx context.Context, messageID, agentID int64) error {
	return s.Store.Queries().MarkRead(ctx, messageID, agentID)
}

// Acknowledge sets ack_ts (and, as a side effect, read_ts) under the
// set-once rule (spec §4.6: "Acknowledgement also sets read-timestamp").
func (s *Service) Acknowledge(ctx context.Context, messageID, agentID int64) error {
	if err := s.Store.Queries().MarkRead(ctx, messageID, agentID); err != nil {
		return err
	}
	return s.Store.Queries().Acknowledge(ctx, messageID, agentID)
}

// ThreadExample is a compact preview row returned alongside a thread summary.
type ThreadExample struct {
	ID        int64  `json:"id"`
	Subject   string `json:"subject"`
	From      string `json:"from"`
	CreatedTS string `json:"created_ts"`
}

// ThreadSummary computes the heuristic (and optionally LLM-augmented)
// summary for one thread: every message whose thread_id matches the given
// key, plus (if the key parses as a number) the message whose id equals it
// (spec §4.6, ported from _compute_thread_summary).
func (s *Service) ThreadSummary(ctx context.Context, projectID int64, threadKey string, includeExamples, useLLM bool) (Summary, []ThreadExample, int, error) {
	messages, err := s.collectThreadMessages(ctx, projectID, threadKey)
	if err != nil {
		return Summary{}, nil, 0, err
	}

	inputs := make([]summaryInput, 0, len(messages))
	senderNames := make([]string, 0, len(messages))
	for _, m := range messages {
		sender, err := s.Store.Queries().GetAgentByID(ctx, m.SenderID)
		name := "unknown"
		if err == nil {
			name = sender.Name
		}
		senderNames = append(senderNames, name)
		inputs = append(inputs, summaryInput{senderName: name, bodyMD: m.BodyMD})
	}
	summary := summarizeMessages(inputs)

	if useLLM {
		s.augmentWithLLM(ctx, &summary, messages, senderNames)
	}

	var examples []ThreadExample
	if includeExamples {
		for i := 0; i < len(messages) && i < 3; i++ {
			examples = append(examples, ThreadExample{
				ID: messages[i].ID, Subject: messages[i].Subject, From: senderNames[i],
				CreatedTS: messages[i].CreatedTS.Format("2006-01-02T15:04:05Z07:00"),
			})
		}
	}
	return summary, examples, len(messages), nil
}

// collectThreadMessages gathers messages by thread_id, plus the message
// whose numeric id equals the key (string key OR numeric id fallback, spec
// §4.6), sorted ascending by creation time.
func (s *Service) collectThreadMessages(ctx context.Context, projectID int64, threadKey string) ([]*model.Message, error) {
	byThread, err := s.Store.Queries().ListMessagesByThread(ctx, projectID, threadKey)
	if err != nil {
		return nil, fmt.Errorf("thread summary: %w", err)
	}

	seen := map[int64]bool{}
	for _, m := range byThread {
		seen[m.ID] = true
	}

	if id, err := strconv.ParseInt(threadKey, 10, 64); err == nil && !seen[id] {
		if m, err := s.Store.Queries().GetMessage(ctx, projectID, id); err == nil {
			byThread = append(byThread, m)
		}
	}

	sortMessagesByCreatedThenID(byThread)
	return byThread, nil
}

func sortMessagesByCreatedThenID(msgs []*model.Message) {
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0; j-- {
			a, b := msgs[j-1], msgs[j]
			if a.CreatedTS.After(b.CreatedTS) || (a.CreatedTS.Equal(b.CreatedTS) && a.ID > b.ID) {
				msgs[j-1], msgs[j] = msgs[j], msgs[j-1]
			} else {
				break
			}
		}
	}
}

// augmentWithLLM refines the heuristic summary with a parsed JSON response;
// any error or unparseable output is silently ignored (spec §4.6: "malformed
// LLM output is ignored").
func (s *Service) augmentWithLLM(ctx context.Context, summary *Summary, messages []*model.Message, senderNames []string) {
	if s.LLM == nil {
		return
	}
	limit := len(messages)
	if limit > 15 {
		limit = 15
	}
	var excerpts []string
	for i := 0; i < limit; i++ {
		body := messages[i].BodyMD
		if len(body) > 800 {
			body = body[:800]
		}
		excerpts = append(excerpts, fmt.Sprintf("- %s: %s\n%s", senderNames[i], messages[i].Subject, body))
	}
	if len(excerpts) == 0 {
		return
	}

	system := "You are a senior engineer. Produce a concise JSON summary with keys: " +
		"participants[], key_points[], action_items[], mentions[{name,count}], code_references[], " +
		"total_messages, open_actions, done_actions. Derive from the given thread excerpts."
	user := strings.Join(excerpts, "\n\n")

	raw, err := s.LLM.Complete(ctx, system, user)
	if err != nil {
		return
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return
	}
	applyIfPresent(parsed, "participants", &summary.Participants)
	applyIfPresent(parsed, "key_points", &summary.KeyPoints)
	applyIfPresent(parsed, "action_items", &summary.ActionItems)
	applyIfPresent(parsed, "mentions", &summary.Mentions)
	applyIfPresent(parsed, "code_references", &summary.CodeReferences)
	applyIntIfPresent(parsed, "total_messages", &summary.TotalMessages)
	applyIntIfPresent(parsed, "open_actions", &summary.OpenActions)
	applyIntIfPresent(parsed, "done_actions", &summary.DoneActions)
}

func applyIfPresent[T any](parsed map[string]json.RawMessage, key string, dest *T) {
	raw, ok := parsed[key]
	if !ok {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	*dest = v
}

func applyIntIfPresent(parsed map[string]json.RawMessage, key string, dest *int) {
	raw, ok := parsed[key]
	if !ok {
		return
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	*dest = v
}

// Digest aggregates per-thread summaries across multiple threads, merging
// mention counts, and optionally invoking the LLM with the union of
// per-thread key points for a consolidated top-level digest (spec §4.6).
type Digest struct {
	PerThread map[string]Summary `json:"per_thread"`
	Mentions  []Mention          `json:"mentions"`
	Digest    string             `json:"digest,omitempty"`
}

// MultiThreadDigest summarizes each thread independently, merges mention
// counts across all of them, and optionally asks the LLM for a consolidated
// prose digest from the union of per-thread key points.
func (s *Service) MultiThreadDigest(ctx context.Context, projectID int64, threadKeys []string, useLLM bool) (Digest, error) {
	perThread := map[string]Summary{}
	merged := map[string]int{}
	var allKeyPoints []string

	for _, key := range threadKeys {
		summary, _, _, err := s.ThreadSummary(ctx, projectID, key, false, false)
		if err != nil {
			return Digest{}, err
		}
		perThread[key] = summary
		for _, m := range summary.Mentions {
			merged[m.Name] += m.Count
		}
		allKeyPoints = append(allKeyPoints, summary.KeyPoints...)
	}

	mentions := mergeMentionCounts(merged)
	digest := Digest{PerThread: perThread, Mentions: mentions}

	if useLLM && len(allKeyPoints) > 0 {
		system := "You are a senior engineer producing a one-paragraph digest across multiple threads given their key points."
		user := strings.Join(allKeyPoints, "\n")
		if raw, err := s.LLM.Complete(ctx, system, user); err == nil && strings.TrimSpace(raw) != "" {
			digest.Digest = strings.TrimSpace(raw)
		}
	}
	return digest, nil
}

func mergeMentionCounts(counts map[string]int) []Mention {
	out := make([]Mention, 0, len(counts))
	for name, count := range counts {
		out = append(out, Mention{Name: name, Count: count})
	}
	sortMentions(out)
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}

func sortMentions(mentions []Mention) {
	for i := 1; i < len(mentions); i++ {
		for j := i; j > 0; j-- {
			a, b := mentions[j-1], mentions[j]
			if a.Count < b.Count || (a.Count == b.Count && a.Name > b.Name) {
				mentions[j-1], mentions[j] = mentions[j], mentions[j-1]
			} else {
				break
			}
		}
	}
}
