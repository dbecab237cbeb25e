package directory

import (
	"path/filepath"
	"strings"

	"github.com/jra3/agentmail/internal/model"
)

// SiblingSuggestion is a heuristic similarity score between two projects,
// recovered from the original implementation's project-sibling refresh job.
type SiblingSuggestion struct {
	ProjectAID int64
	ProjectBID int64
	Score      float64
	Reason     string
}

// SuggestSiblings scores every distinct pair of projects by slug/human-key
// similarity and shared parent directory, skipping pairs that share a
// human_key (those are the same project checked out under two agents, not
// siblings).
func SuggestSiblings(projects []*model.Project) []SiblingSuggestion {
	var out []SiblingSuggestion
	for i, a := range projects {
		for _, b := range projects[i+1:] {
			if a.HumanKey == b.HumanKey {
				continue
			}
			score, reason := heuristicProjectSimilarity(a, b)
			out = append(out, SiblingSuggestion{ProjectAID: a.ID, ProjectBID: b.ID, Score: score, Reason: reason})
		}
	}
	return out
}

func heuristicProjectSimilarity(a, b *model.Project) (float64, string) {
	if a.HumanKey == b.HumanKey {
		return 0, "identical human_key: same project, not siblings"
	}

	slugRatio := stringSimilarity(a.Slug, b.Slug)
	humanRatio := stringSimilarity(a.HumanKey, b.HumanKey)
	prefixRatio := stringSimilarity(strings.ToLower(filepath.Base(a.HumanKey)), strings.ToLower(filepath.Base(b.HumanKey)))

	score := max3(slugRatio, humanRatio, prefixRatio)

	var reasons []string
	if slugRatio > 0.6 {
		reasons = append(reasons, "slugs are similar")
	}
	if humanRatio > 0.6 {
		reasons = append(reasons, "human keys align")
	}
	if filepath.Dir(a.HumanKey) == filepath.Dir(b.HumanKey) {
		if score < 0.85 {
			score = 0.85
		}
		reasons = append(reasons, "projects share the same parent directory")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "heuristic comparison found limited overlap; treating as weak relation")
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, strings.Join(reasons, ", ")
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// stringSimilarity is a Ratcliff/Obershelp-style ratio: 2*M / T, where M is
// the total length of the longest common subsequence of a and b and T is the
// combined length of both strings. This approximates Python's
// difflib.SequenceMatcher.ratio() without depending on its exact matching-
// block recursion.
func stringSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	m := longestCommonSubsequenceLen(a, b)
	return 2 * float64(m) / float64(len(a)+len(b))
}

func longestCommonSubsequenceLen(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
