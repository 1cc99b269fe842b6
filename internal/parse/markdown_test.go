package parse

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"storysync/internal/story"
)

const canonicalDoc = `# Epic: User Management (PROJ-100)

### US-001: User Registration

| Field | Value |
|-------|-------|
| **Story Points** | 5 |
| **Priority** | 🔴 Critical |
| **Status** | ✅ Done |

> **As a** new user,
> **I want** to register with email and password,
> **So that** I can access the platform.

## Acceptance Criteria

- [x] Email format is validated
- [ ] Password is at least 12 characters

## Subtasks

| # | Subtask | Description | SP | Status |
|---|---------|-------------|----|--------|
| 1 | Registration endpoint | POST /register | 2 | ✅ Done |
| 2 | Password hashing | argon2id | 1 | 📋 Planned |

## Technical Notes

Rate-limit registration attempts.

## Related Commits

| Commit | Message |
|--------|---------|
| ` + "`a1b2c3d`" + ` | feat: add registration endpoint |
`

func countCode(warnings []Warning, code string) int {
	n := 0

	for _, w := range warnings {
		if w.Code == code {
			n++
		}
	}

	return n
}

func findWarning(t *testing.T, warnings []Warning, code string) Warning {
	t.Helper()

	for _, w := range warnings {
		if w.Code == code {
			return w
		}
	}

	t.Fatalf("no %s warning in %v", code, warnings)

	return Warning{}
}

// Contract: a well-formed document parses without warnings, and every
// field, section, and table lands on the domain story.
func Test_MarkdownParser_ParsesCanonicalDocument_WithoutWarnings(t *testing.T) {
	t.Parallel()

	res, err := NewMarkdownParser(nil).Parse(canonicalDoc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(res.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", res.Warnings)
	}

	if res.EpicKey != "PROJ-100" || res.EpicTitle != "User Management" {
		t.Fatalf("epic = %q %q", res.EpicKey, res.EpicTitle)
	}

	want := []story.UserStory{{
		ID:          "US-001",
		Title:       "User Registration",
		StoryPoints: 5,
		Priority:    story.PriorityCritical,
		Status:      story.StatusDone,
		Description: story.Description{
			Role:    "new user",
			Want:    "to register with email and password",
			Benefit: "I can access the platform",
		},
		AcceptanceCriteria: []story.AcceptanceCriterion{
			{Text: "Email format is validated", Checked: true},
			{Text: "Password is at least 12 characters", Checked: false},
		},
		Subtasks: []story.Subtask{
			{Number: 1, Name: "Registration endpoint", Description: "POST /register", StoryPoints: 2, Status: story.StatusDone},
			{Number: 2, Name: "Password hashing", Description: "argon2id", StoryPoints: 1, Status: story.StatusPlanned},
		},
		Commits:        []story.CommitRef{{Hash: "a1b2c3d", Message: "feat: add registration endpoint"}},
		TechnicalNotes: "Rate-limit registration attempts.",
	}}

	if diff := cmp.Diff(want, res.Stories); diff != "" {
		t.Fatalf("stories mismatch (-want +got):\n%s", diff)
	}
}

// Contract: alias field names, alias section headers, sloppy checkboxes
// and inline subtasks all parse, each with its own warning code, and
// none of them aborts the document.
func Test_MarkdownParser_RecoversToleratedForms_WithWarnings(t *testing.T) {
	t.Parallel()

	doc := strings.Join([]string{
		"## ✅ #42: Quick Fix",
		"",
		"**Points**: 3  ",
		"**Prio**: High",
		"",
		"**As a** admin, **I want** quick fixes, **So that** downtime stays low.",
		"",
		"### AC",
		"",
		"* [x] Fix is deployed",
		"- [] Regression test added",
		"",
		"### Tasks",
		"",
		"- [ ] *Patch* the handler - hotfix (2 SP)",
		"- [x] Verify",
		"- [ ] X",
		"",
	}, "\n")

	res, err := NewMarkdownParser(nil).Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(res.Stories) != 1 {
		t.Fatalf("stories = %d, want 1", len(res.Stories))
	}

	st := res.Stories[0]

	if st.ID != "#42" || st.Title != "Quick Fix" {
		t.Fatalf("header parsed as %q %q", st.ID, st.Title)
	}

	if st.StoryPoints != 3 || st.Priority != story.PriorityHigh || st.Status != story.StatusPlanned {
		t.Fatalf("fields = %d %q %q", st.StoryPoints, st.Priority, st.Status)
	}

	wantDesc := story.Description{Role: "admin", Want: "quick fixes", Benefit: "downtime stays low"}
	if diff := cmp.Diff(wantDesc, st.Description); diff != "" {
		t.Fatalf("description mismatch (-want +got):\n%s", diff)
	}

	if len(st.AcceptanceCriteria) != 2 {
		t.Fatalf("criteria = %d, want 2", len(st.AcceptanceCriteria))
	}

	wantSubtasks := []story.Subtask{
		{Number: 1, Name: "Patch the handler", Description: "hotfix", StoryPoints: 2, Status: story.StatusPlanned},
		{Number: 2, Name: "Verify", StoryPoints: 1, Status: story.StatusDone},
	}
	if diff := cmp.Diff(wantSubtasks, st.Subtasks); diff != "" {
		t.Fatalf("subtasks mismatch (-want +got):\n%s", diff)
	}

	wantCodes := map[string]int{
		CodeFieldAlias:          2,
		CodeSectionAlias:        2,
		CodeNonstandardCheckbox: 1,
		CodeEmptyCheckbox:       1,
		CodeShortSubtaskName:    1,
	}
	for code, n := range wantCodes {
		if got := countCode(res.Warnings, code); got != n {
			t.Errorf("%s count = %d, want %d (warnings: %v)", code, got, n, res.Warnings)
		}
	}

	if len(res.Warnings) != 7 {
		t.Errorf("total warnings = %d, want 7: %v", len(res.Warnings), res.Warnings)
	}
}

// Contract: checkbox warnings carry the line number of the offending
// item, not the story header.
func Test_MarkdownParser_LocatesCheckboxWarnings_ByLine(t *testing.T) {
	t.Parallel()

	doc := strings.Join([]string{
		"### US-007: Lines", // 1
		"",                  // 2
		"**Story Points**: 1",
		"",
		"> **As a** dev, **I want** lines, **So that** warnings point home.",
		"",
		"## Acceptance Criteria", // 7
		"",
		"- [x] fine",                // 9
		"* [ ] flagged marker",      // 10
		"- [] flagged empty",        // 11
		"",
	}, "\n")

	res, err := NewMarkdownParser(nil).Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	nonstandard := findWarning(t, res.Warnings, CodeNonstandardCheckbox)
	if nonstandard.Location.Line != 10 {
		t.Errorf("nonstandard checkbox line = %d, want 10", nonstandard.Location.Line)
	}

	empty := findWarning(t, res.Warnings, CodeEmptyCheckbox)
	if empty.Location.Line != 11 {
		t.Errorf("empty checkbox line = %d, want 11", empty.Location.Line)
	}

	if nonstandard.Location.StoryID != "US-007" || nonstandard.Location.Section != SectionAcceptanceCriteria {
		t.Errorf("location = %+v", nonstandard.Location)
	}
}

// Contract: the story ID grammar is strict. Lowercase or mixed-case
// prefixes, prefixes containing digits, and bare numbers are not story
// headers at all.
func Test_MarkdownParser_RejectsMalformedStoryIDs(t *testing.T) {
	t.Parallel()

	doc := strings.Join([]string{
		"### us-001: lowercase prefix",
		"",
		"### Us-002: mixed case prefix",
		"",
		"### PROJ2024-003: digit in prefix",
		"",
		"### 12345: bare number",
		"",
		"### US-100: the only real one",
		"",
		"**Story Points**: 1",
	}, "\n")

	stories, err := NewMarkdownParser(nil).ParseStories(doc)
	if err != nil {
		t.Fatalf("ParseStories: %v", err)
	}

	if len(stories) != 1 || stories[0].ID != "US-100" {
		t.Fatalf("stories = %+v, want only US-100", stories)
	}
}

// Contract: when the same ID appears twice, the first occurrence wins
// and the duplicate is reported.
func Test_MarkdownParser_KeepsFirstStory_When_IDDuplicated(t *testing.T) {
	t.Parallel()

	doc := strings.Join([]string{
		"### US-001: First",
		"",
		"**Story Points**: 1",
		"",
		"### US-001: Second",
		"",
		"**Story Points**: 2",
	}, "\n")

	res, err := NewMarkdownParser(nil).Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(res.Stories) != 1 || res.Stories[0].Title != "First" {
		t.Fatalf("stories = %+v, want the first US-001", res.Stories)
	}

	if countCode(res.Warnings, CodeDuplicateStoryID) != 1 {
		t.Errorf("expected one DUPLICATE_STORY_ID warning, got %v", res.Warnings)
	}
}

// Contract: the description cascade degrades gracefully. Partial
// narratives keep the parts that exist; fully absent narratives are
// reported as a missing section.
func Test_MarkdownParser_DescriptionCascade_DegradesWithWarnings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		wantCode string
		check    func(t *testing.T, d story.Description)
	}{
		{
			name:     "partial narrative keeps found parts",
			body:     "**As a** operator\n",
			wantCode: CodeIncompleteDescription,
			check: func(t *testing.T, d story.Description) {
				t.Helper()

				if d.Role != "operator" || d.Want != "" || d.Benefit != "" {
					t.Errorf("description = %+v", d)
				}
			},
		},
		{
			name:     "absent narrative reports missing section",
			body:     "plain prose, no narrative markers\n",
			wantCode: CodeMissingSection,
			check: func(t *testing.T, d story.Description) {
				t.Helper()

				if !d.IsZero() {
					t.Errorf("description = %+v, want zero", d)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc := "### US-010: Cascade\n\n**Story Points**: 2\n\n" + tt.body +
				"\n## Acceptance Criteria\n\n- [ ] something\n"

			res, err := NewMarkdownParser(nil).Parse(doc)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}

			if len(res.Stories) != 1 {
				t.Fatalf("stories = %d, want 1", len(res.Stories))
			}

			if countCode(res.Warnings, tt.wantCode) == 0 {
				t.Errorf("expected a %s warning, got %v", tt.wantCode, res.Warnings)
			}

			tt.check(t, res.Stories[0].Description)
		})
	}
}

// Contract: a missing Story Points field defaults to zero with a
// MISSING_FIELD warning; a non-numeric value degrades to zero with
// INVALID_STORY_POINTS.
func Test_MarkdownParser_StoryPoints_DefaultToZero(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		field    string
		wantCode string
	}{
		{"absent field", "", CodeMissingField},
		{"non-numeric value", "**Story Points**: soon\n\n", CodeInvalidStoryPoints},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc := "### US-011: Points\n\n" + tt.field +
				"> **As a** dev, **I want** points, **So that** sizing works.\n\n" +
				"## Acceptance Criteria\n\n- [ ] something\n"

			res, err := NewMarkdownParser(nil).Parse(doc)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}

			if res.Stories[0].StoryPoints != 0 {
				t.Errorf("points = %d, want 0", res.Stories[0].StoryPoints)
			}

			if countCode(res.Warnings, tt.wantCode) != 1 {
				t.Errorf("expected one %s warning, got %v", tt.wantCode, res.Warnings)
			}
		})
	}
}

// Contract: sections end at the next level 2-4 header or a horizontal
// rule; level 5+ headers stay inside the section body.
func Test_MarkdownParser_SectionBoundaries(t *testing.T) {
	t.Parallel()

	doc := strings.Join([]string{
		"### US-020: Sections",
		"",
		"**Story Points**: 1",
		"",
		"> **As a** dev, **I want** sections, **So that** parsing is bounded.",
		"",
		"## Acceptance Criteria",
		"",
		"- [ ] kept before nested header",
		"",
		"##### deep note",
		"",
		"- [x] kept after nested header",
		"",
		"---",
		"",
		"- [x] cut off by the rule",
		"",
		"## Technical Notes",
		"",
		"note text",
	}, "\n")

	res, err := NewMarkdownParser(nil).Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	st := res.Stories[0]

	if len(st.AcceptanceCriteria) != 2 {
		t.Fatalf("criteria = %+v, want the two kept items", st.AcceptanceCriteria)
	}

	if st.TechnicalNotes != "note text" {
		t.Errorf("technical notes = %q", st.TechnicalNotes)
	}
}

// Contract: YAML frontmatter pins the epic key and title, is stripped
// before story parsing, and line numbers still refer to the original
// file.
func Test_MarkdownParser_Frontmatter_PinsEpicAndPreservesLines(t *testing.T) {
	t.Parallel()

	doc := strings.Join([]string{
		"---",            // 1
		"epic: PROJ-200", // 2
		"title: Payments",
		"---", // 4
		"",
		"### US-001: Pay", // 6
		"",
		"> **As a** payer, **I want** to pay, **So that** goods ship.",
		"",
		"## Acceptance Criteria",
		"",
		"- [ ] paid",
	}, "\n")

	res, err := NewMarkdownParser(nil).Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if res.EpicKey != "PROJ-200" || res.EpicTitle != "Payments" {
		t.Fatalf("epic = %q %q", res.EpicKey, res.EpicTitle)
	}

	if len(res.Stories) != 1 {
		t.Fatalf("stories = %d, want 1", len(res.Stories))
	}

	// The story has no points field; its warning should point at the
	// header's real line in the file, behind the frontmatter.
	missing := findWarning(t, res.Warnings, CodeMissingField)
	if missing.Location.Line != 6 {
		t.Errorf("warning line = %d, want 6", missing.Location.Line)
	}
}

// Contract: parsing is deterministic; the same source yields the same
// stories and warnings every time.
func Test_MarkdownParser_IsDeterministic(t *testing.T) {
	t.Parallel()

	p := NewMarkdownParser(nil)

	first, err := p.Parse(canonicalDoc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	second, err := p.Parse(canonicalDoc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("parse not deterministic (-first +second):\n%s", diff)
	}
}

// Contract: a path-looking source that does not exist is an unreadable
// source, not inline content.
func Test_MarkdownParser_ReturnsError_When_PathMissing(t *testing.T) {
	t.Parallel()

	_, err := NewMarkdownParser(nil).Parse(filepath.Join(t.TempDir(), "absent.md"))
	if !errors.Is(err, ErrUnreadableSource) {
		t.Fatalf("err = %v, want ErrUnreadableSource", err)
	}
}

// Contract: file sources parse identically to their inline content.
func Test_MarkdownParser_ReadsFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stories.md")
	if err := os.WriteFile(path, []byte(canonicalDoc), 0o600); err != nil {
		t.Fatal(err)
	}

	fromFile, err := NewMarkdownParser(nil).Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if fromFile.Source != path {
		t.Errorf("source = %q, want %q", fromFile.Source, path)
	}

	inline, err := NewMarkdownParser(nil).Parse(canonicalDoc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if diff := cmp.Diff(inline.Stories, fromFile.Stories); diff != "" {
		t.Fatalf("file and inline disagree (-inline +file):\n%s", diff)
	}
}

// Contract: Validate reports one line per completeness problem and an
// explicit line when no stories were found at all.
func Test_MarkdownParser_Validate_ReportsCompletenessProblems(t *testing.T) {
	t.Parallel()

	doc := "### US-030: Bare\n\njust a title\n"

	problems := NewMarkdownParser(nil).Validate(doc)

	joined := strings.Join(problems, "\n")
	for _, want := range []string{"missing story points", "description", "acceptance criteria"} {
		if !strings.Contains(joined, want) {
			t.Errorf("problems %v missing %q", problems, want)
		}
	}

	empty := NewMarkdownParser(nil).Validate("no stories here\nat all\n")
	if len(empty) != 1 || !strings.Contains(empty[0], "no user stories found") {
		t.Errorf("empty doc problems = %v", empty)
	}
}

// Contract: CanParse claims markdown extensions and story-bearing
// content, and leaves YAML content alone.
func Test_MarkdownParser_CanParse(t *testing.T) {
	t.Parallel()

	p := NewMarkdownParser(nil)

	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{"markdown extension", "stories.md", true},
		{"yaml extension", "stories.yaml", false},
		{"story content", "### US-001: Content\n", true},
		{"yaml content", "stories:\n  - id: US-001\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := p.CanParse(tt.source); got != tt.want {
				t.Errorf("CanParse(%q) = %v, want %v", tt.source, got, tt.want)
			}
		})
	}
}
