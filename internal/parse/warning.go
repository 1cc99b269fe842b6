package parse

import (
	"fmt"
	"strings"

	"storysync/internal/story"
)

// Warning codes. Each code names one class of recoverable irregularity
// so callers can filter or count without string-matching messages.
const (
	CodeFieldAlias            = "FIELD_ALIAS"
	CodeSectionAlias          = "SECTION_ALIAS"
	CodeMissingField          = "MISSING_FIELD"
	CodeMissingSection        = "MISSING_SECTION"
	CodeIncompleteDescription = "INCOMPLETE_DESCRIPTION"
	CodeEmptyCheckbox         = "EMPTY_CHECKBOX"
	CodeNonstandardCheckbox   = "NONSTANDARD_CHECKBOX"
	CodeShortSubtaskName      = "SHORT_SUBTASK_NAME"
	CodeDuplicateStoryID      = "DUPLICATE_STORY_ID"
	CodeInvalidStoryPoints    = "INVALID_STORY_POINTS"
	CodeInvalidStoryID        = "INVALID_STORY_ID"
)

// Location pins a warning to a place in the source document. Zero
// fields are omitted from the rendered form.
type Location struct {
	Line    int
	Section string
	StoryID story.ID
}

func (l Location) String() string {
	parts := make([]string, 0, 3)

	if l.StoryID != "" {
		parts = append(parts, string(l.StoryID))
	}

	if l.Section != "" {
		parts = append(parts, "section "+l.Section)
	}

	if l.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", l.Line))
	}

	return strings.Join(parts, ", ")
}

// Warning records one recoverable parsing irregularity. Parsing always
// continues after a warning; the document author decides whether to
// clean up the source.
type Warning struct {
	Code       string
	Message    string
	Location   Location
	Suggestion string
}

func (w Warning) String() string {
	var b strings.Builder

	b.WriteString(w.Code)
	b.WriteString(": ")
	b.WriteString(w.Message)

	if loc := w.Location.String(); loc != "" {
		b.WriteString(" (")
		b.WriteString(loc)
		b.WriteString(")")
	}

	if w.Suggestion != "" {
		b.WriteString("; ")
		b.WriteString(w.Suggestion)
	}

	return b.String()
}
