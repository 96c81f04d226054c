// Package picker provides a small full-screen fuzzy selector used to choose
// a host, peer, workspace, or mode from a list of candidates.
package picker

import (
	"sort"
	"strings"
)

// Item is one selectable candidate.
type Item struct {
	// ID is the stable identity returned to the caller.
	ID string

	// Display is the rendered list line.
	Display string

	// SearchText is what the query matches against (lowercased by Rank).
	// Empty means Display is used.
	SearchText string
}

func (it Item) searchable() string {
	if it.SearchText != "" {
		return strings.ToLower(it.SearchText)
	}
	return strings.ToLower(it.Display)
}

// Rank filters and sorts items by fuzzy score against query.
//
// Query semantics (simple, fzf-like tokenization):
// - Split query on whitespace into tokens.
// - All tokens must match (AND).
// - Score is the sum of token scores (higher is better).
func Rank(items []Item, query string) []Item {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(tokens) == 0 {
		out := make([]Item, len(items))
		copy(out, items)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Display < out[j].Display })
		return out
	}

	type scored struct {
		it Item
		s  int
	}
	scoreds := make([]scored, 0, len(items))
	for _, it := range items {
		text := it.searchable()
		total := 0
		okAll := true
		for _, t := range tokens {
			s, ok := Score(t, text)
			if !ok {
				okAll = false
				break
			}
			total += s
		}
		if okAll {
			scoreds = append(scoreds, scored{it: it, s: total})
		}
	}

	sort.SliceStable(scoreds, func(i, j int) bool {
		if scoreds[i].s != scoreds[j].s {
			return scoreds[i].s > scoreds[j].s
		}
		return scoreds[i].it.Display < scoreds[j].it.Display
	})

	out := make([]Item, len(scoreds))
	for i := range scoreds {
		out[i] = scoreds[i].it
	}
	return out
}

// Score performs a simple subsequence fuzzy match.
// Returns (score, true) if query is a subsequence of text; otherwise (0, false).
// The score rewards consecutive matches, word boundaries, and early positions.
// Both arguments are expected to be lowercase.
func Score(query, text string) (int, bool) {
	if query == "" {
		return 0, true
	}
	rt := []rune(text)

	ti := 0
	lastPos := -1
	consecutive := 0
	score := 0
	firstPos := -1

	for _, qch := range query {
		found := false
		for i := ti; i < len(rt); i++ {
			if rt[i] == qch {
				score += 10
				if firstPos == -1 {
					firstPos = i
				}
				if lastPos >= 0 && i == lastPos+1 {
					consecutive++
					score += 5 * consecutive // escalating bonus
				} else {
					consecutive = 0
				}
				if i == 0 || !isAlphaNum(rt[i-1]) {
					score += 10
				}
				lastPos = i
				ti = i + 1
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	if firstPos >= 0 {
		if bonus := 20 - firstPos; bonus > 0 {
			score += bonus
		}
	}
	return score, true
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
