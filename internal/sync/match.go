package sync

import (
	"fmt"
	"regexp"
	"strings"

	"storysync/internal/story"
)

var (
	trailingParenRe = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
	nonAlnumRe      = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeTitle reduces a title to its comparable core: lowercased, one
// trailing parenthetical suffix stripped, non-alphanumeric runs replaced
// by single spaces, whitespace collapsed. "Add Login (Future)" and
// "add-login" normalize identically.
func NormalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = trailingParenRe.ReplaceAllString(t, "")
	t = nonAlnumRe.ReplaceAllString(t, " ")

	return strings.TrimSpace(t)
}

// matchTable is the outcome of one matching pass.
type matchTable struct {
	pairs     map[story.ID]story.IssueKey
	matches   []MatchedPair
	unmatched []story.ID
	warnings  []string
}

// Match runs the title matcher standalone, outside an engine run.
// Returns the matched pairs, the stories no issue claimed, and any
// ambiguity warnings.
func Match(stories []story.UserStory, issues []story.IssueData) ([]MatchedPair, []story.ID, []string) {
	table := matchStories(stories, issues)

	return table.matches, table.unmatched, table.warnings
}

// matchStories maps local stories to remote issues by normalized title.
// Exact matches win; otherwise containment in either direction, first
// remote issue in iteration order. Each remote issue is claimed by at
// most one story. More than one containment candidate is surfaced as a
// warning; the first still wins.
func matchStories(stories []story.UserStory, issues []story.IssueData) matchTable {
	normalized := make([]string, len(issues))
	for i, issue := range issues {
		normalized[i] = NormalizeTitle(issue.Summary)
	}

	claimed := make([]bool, len(issues))
	table := matchTable{pairs: make(map[story.ID]story.IssueKey, len(stories))}

	for _, st := range stories {
		local := NormalizeTitle(st.Title)
		if local == "" {
			table.unmatched = append(table.unmatched, st.ID)

			continue
		}

		idx := -1

		for i := range issues {
			if !claimed[i] && normalized[i] == local {
				idx = i

				break
			}
		}

		if idx < 0 {
			var candidates []int

			for i := range issues {
				if claimed[i] || normalized[i] == "" {
					continue
				}

				if strings.Contains(normalized[i], local) || strings.Contains(local, normalized[i]) {
					candidates = append(candidates, i)
				}
			}

			if len(candidates) > 0 {
				idx = candidates[0]
			}

			if len(candidates) > 1 {
				table.warnings = append(table.warnings, fmt.Sprintf(
					"ambiguous title match for %s: %d candidates, using %s",
					st.ID, len(candidates), issues[idx].Key))
			}
		}

		if idx < 0 {
			table.unmatched = append(table.unmatched, st.ID)

			continue
		}

		claimed[idx] = true
		table.pairs[st.ID] = issues[idx].Key
		table.matches = append(table.matches, MatchedPair{StoryID: st.ID, IssueKey: issues[idx].Key})
	}

	return table
}
