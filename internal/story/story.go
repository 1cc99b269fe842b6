// Package story holds the canonical domain model for user stories parsed
// from documents and their remote tracker counterparts.
//
// Parsers construct UserStory values and hand off ownership; nothing mutates
// a story after it is returned. Remote state is mirrored in IssueData, which
// only the tracker adapter produces.
package story

import "strings"

// Description is the structured "As a / I want / So that" triple.
// The zero value means the story has no description.
type Description struct {
	Role    string `json:"role,omitempty"`
	Want    string `json:"want,omitempty"`
	Benefit string `json:"benefit,omitempty"`
}

// IsZero reports whether no description part is present.
func (d Description) IsZero() bool {
	return d.Role == "" && d.Want == "" && d.Benefit == ""
}

// Markdown renders the description in the canonical document form.
func (d Description) Markdown() string {
	if d.IsZero() {
		return ""
	}

	var b strings.Builder

	if d.Role != "" {
		b.WriteString("**As a** " + d.Role)
	}

	if d.Want != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}

		b.WriteString("**I want** " + d.Want)
	}

	if d.Benefit != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}

		b.WriteString("**So that** " + d.Benefit)
	}

	return b.String()
}

// AcceptanceCriterion is one checklist entry. Order and duplicates are
// preserved as authored.
type AcceptanceCriterion struct {
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

// Subtask is a unit of work under a story. Number is the local ordinal from
// the document; identity for matching against remote subtasks is the
// normalized name, never the number.
type Subtask struct {
	Number      int    `json:"number"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	StoryPoints int    `json:"story_points,omitempty"`
	Status      Status `json:"status,omitempty"`
}

// CommitRef links a story to a commit by short hash and message.
type CommitRef struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

// UserStory is one requirement unit parsed from a document.
type UserStory struct {
	ID                 ID                    `json:"id"`
	Title              string                `json:"title"`
	StoryPoints        int                   `json:"story_points,omitempty"`
	Priority           Priority              `json:"priority,omitempty"`
	Status             Status                `json:"status,omitempty"`
	Description        Description           `json:"description"`
	AcceptanceCriteria []AcceptanceCriterion `json:"acceptance_criteria,omitempty"`
	Subtasks           []Subtask             `json:"subtasks,omitempty"`
	Commits            []CommitRef           `json:"commits,omitempty"`
	TechnicalNotes     string                `json:"technical_notes,omitempty"`
}

// DescriptionMarkdown composes the markdown pushed to the tracker as the
// story description: the role/want/benefit triple, the acceptance criteria
// checklist, and the technical notes.
func (s UserStory) DescriptionMarkdown() string {
	parts := make([]string, 0, 2+len(s.AcceptanceCriteria))

	if !s.Description.IsZero() {
		parts = append(parts, s.Description.Markdown())
	}

	if len(s.AcceptanceCriteria) > 0 {
		parts = append(parts, "\n## Acceptance Criteria\n")

		for _, ac := range s.AcceptanceCriteria {
			box := "[ ]"
			if ac.Checked {
				box = "[x]"
			}

			parts = append(parts, "- "+box+" "+ac.Text)
		}
	}

	if s.TechnicalNotes != "" {
		parts = append(parts, "\n## Technical Notes\n"+s.TechnicalNotes)
	}

	return strings.Join(parts, "\n")
}

// Epic groups the stories parsed from one whole document. Key is a
// placeholder until the epic is bound to a real remote issue during sync.
type Epic struct {
	Key     IssueKey    `json:"key"`
	Title   string      `json:"title,omitempty"`
	Stories []UserStory `json:"stories,omitempty"`
}

// Comment is an opaque remote comment record. Body is the raw rich-text
// payload; idempotence checks substring-match against its serialized form.
type Comment struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// IssueData mirrors one remote issue. It is produced only by the tracker
// port, fresh on every call.
type IssueData struct {
	Key         IssueKey    `json:"key"`
	Summary     string      `json:"summary"`
	Description string      `json:"description,omitempty"`
	Status      string      `json:"status,omitempty"`
	IssueType   string      `json:"issue_type,omitempty"`
	Subtasks    []IssueData `json:"subtasks,omitempty"`
	Comments    []Comment   `json:"comments,omitempty"`
}

// HasDescription reports whether the remote issue carries a non-empty
// description document.
func (d IssueData) HasDescription() bool {
	return strings.TrimSpace(d.Description) != "" && d.Description != "null"
}
