// Package inbox implements the inbox listing and thread-summarization
// service (C7): filtered listing, set-once read/ack, thread reconstruction,
// a heuristic summarizer, and an optional LLM augmentation pass that is
// ignored whenever it errors or returns unparseable JSON.
package inbox

import (
	"sort"
	"strings"
)

// Mention counts one @name reference across a set of messages.
type Mention struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary is the heuristic (and optionally LLM-augmented) digest of a
// thread or an arbitrary message set, ported from the original's
// _summarize_messages.
type Summary struct {
	Participants   []string  `json:"participants"`
	KeyPoints      []string  `json:"key_points"`
	ActionItems    []string  `json:"action_items"`
	TotalMessages  int       `json:"total_messages"`
	OpenActions    int       `json:"open_actions"`
	DoneActions    int       `json:"done_actions"`
	Mentions       []Mention `json:"mentions"`
	CodeReferences []string  `json:"code_references,omitempty"`
}

var actionKeywords = []string{"TODO", "ACTION", "FIXME", "NEXT", "BLOCKED"}

// summaryInput is one message's worth of text fed to the heuristic.
type summaryInput struct {
	senderName string
	bodyMD     string
}

// summarizeMessages extracts participants, bullet-point key points
// (checkbox-normalized), action items, @mentions, and backtick code/path
// references from a set of messages, oldest-first ordering not required.
func summarizeMessages(messages []summaryInput) Summary {
	participantSet := map[string]bool{}
	var keyPoints []string
	var actionItems []string
	openActions, doneActions := 0, 0
	mentionCounts := map[string]int{}
	codeRefSet := map[string]bool{}

	for _, m := range messages {
		participantSet[m.senderName] = true
		for _, line := range strings.Split(m.bodyMD, "\n") {
			stripped := strings.TrimSpace(line)
			if stripped == "" {
				continue
			}
			recordMentions(stripped, mentionCounts)
			recordCodeReferences(stripped, codeRefSet)

			isBullet := strings.HasPrefix(stripped, "-") || strings.HasPrefix(stripped, "*") || strings.HasPrefix(stripped, "+")
			isOrdered := len(stripped) >= 2 && stripped[1] == '.' && stripped[0] >= '1' && stripped[0] <= '5'
			if isBullet || isOrdered {
				normalized := stripped
				if isCheckboxBullet(stripped) {
					if idx := strings.Index(normalized, "]"); idx >= 0 {
						normalized = strings.TrimSpace(normalized[idx+1:])
					}
				}
				keyPoints = append(keyPoints, strings.TrimLeft(normalized, "-+* "))
			}

			switch {
			case hasOpenCheckbox(stripped):
				openActions++
				actionItems = append(actionItems, stripped)
				continue
			case hasDoneCheckbox(stripped):
				doneActions++
				actionItems = append(actionItems, stripped)
				continue
			}
			upper := strings.ToUpper(stripped)
			for _, kw := range actionKeywords {
				if strings.Contains(upper, kw) {
					actionItems = append(actionItems, stripped)
					break
				}
			}
		}
	}

	participants := make([]string, 0, len(participantSet))
	for p := range participantSet {
		participants = append(participants, p)
	}
	sort.Strings(participants)

	type mentionCount struct {
		name  string
		count int
	}
	var sortedMentions []mentionCount
	for name, count := range mentionCounts {
		sortedMentions = append(sortedMentions, mentionCount{name, count})
	}
	sort.Slice(sortedMentions, func(i, j int) bool {
		if sortedMentions[i].count != sortedMentions[j].count {
			return sortedMentions[i].count > sortedMentions[j].count
		}
		return sortedMentions[i].name < sortedMentions[j].name
	})
	if len(sortedMentions) > 10 {
		sortedMentions = sortedMentions[:10]
	}
	mentions := make([]Mention, 0, len(sortedMentions))
	for _, mc := range sortedMentions {
		mentions = append(mentions, Mention{Name: mc.name, Count: mc.count})
	}

	codeRefs := make([]string, 0, len(codeRefSet))
	for ref := range codeRefSet {
		codeRefs = append(codeRefs, ref)
	}
	sort.Strings(codeRefs)
	if len(codeRefs) > 10 {
		codeRefs = codeRefs[:10]
	}

	summary := Summary{
		Participants:  participants,
		KeyPoints:     capStrings(keyPoints, 10),
		ActionItems:   capStrings(actionItems, 10),
		TotalMessages: len(messages),
		OpenActions:   openActions,
		DoneActions:   doneActions,
		Mentions:      mentions,
	}
	if len(codeRefs) > 0 {
		summary.CodeReferences = codeRefs
	}
	return summary
}

func capStrings(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func isCheckboxBullet(s string) bool {
	return hasAnyPrefix(s, "- [ ]", "- [x]", "- [X]", "* [ ]", "* [x]", "* [X]", "+ [ ]", "+ [x]", "+ [X]")
}

func hasOpenCheckbox(s string) bool {
	return hasAnyPrefix(s, "- [ ]", "* [ ]", "+ [ ]")
}

func hasDoneCheckbox(s string) bool {
	return hasAnyPrefix(s, "- [x]", "- [X]", "* [x]", "* [X]", "+ [x]", "+ [X]")
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// recordMentions is a lightweight @mention scanner: any whitespace-delimited
// token starting with '@' (trimmed of trailing punctuation) counts.
func recordMentions(text string, counts map[string]int) {
	for _, token := range strings.Fields(text) {
		if !strings.HasPrefix(token, "@") || len(token) <= 1 {
			continue
		}
		name := strings.Trim(token[1:], ".,:;()[]{}")
		if name != "" {
			counts[name]++
		}
	}
}

// recordCodeReferences captures backtick-enclosed snippets that look like a
// file path or have a recognized source extension.
func recordCodeReferences(text string, refs map[string]bool) {
	start := 0
	for {
		i := strings.Index(text[start:], "`")
		if i == -1 {
			return
		}
		i += start
		j := strings.Index(text[i+1:], "`")
		if j == -1 {
			return
		}
		j += i + 1
		snippet := strings.TrimSpace(text[i+1 : j])
		if looksLikeCodeReference(snippet) {
			refs[snippet] = true
		}
		start = j + 1
	}
}

func looksLikeCodeReference(snippet string) bool {
	if len(snippet) == 0 || len(snippet) > 120 {
		return false
	}
	return strings.Contains(snippet, "/") || strings.HasSuffix(snippet, ".py") ||
		strings.HasSuffix(snippet, ".ts") || strings.HasSuffix(snippet, ".md") ||
		strings.HasSuffix(snippet, ".go")
}
