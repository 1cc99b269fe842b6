package parse

import (
	"regexp"
	"strings"
)

// Canonical field names.
const (
	FieldStoryPoints = "Story Points"
	FieldPriority    = "Priority"
	FieldStatus      = "Status"
	FieldStoryID     = "Story ID"
)

// Canonical section names.
const (
	SectionDescription        = "Description"
	SectionAcceptanceCriteria = "Acceptance Criteria"
	SectionSubtasks           = "Subtasks"
	SectionTechnicalNotes     = "Technical Notes"
	SectionRelatedCommits     = "Related Commits"
)

// fieldAliases maps canonical field names to accepted alternates in
// lookup order. The canonical spelling always wins over any alias.
//
//nolint:gochecknoglobals // package-level constant
var fieldAliases = map[string][]string{
	FieldStoryPoints: {"Points", "SP", "Estimate", "Story Point"},
	FieldPriority:    {"Prio", "P"},
	FieldStatus:      {"State"},
	FieldStoryID:     {"ID", "Issue ID"},
}

// sectionAliases maps canonical section names to accepted alternate
// headers in lookup order.
//
//nolint:gochecknoglobals // package-level constant
var sectionAliases = map[string][]string{
	SectionDescription:        {"User Story", "Story"},
	SectionAcceptanceCriteria: {"AC", "Acceptance Criterion", "Criteria"},
	SectionSubtasks:           {"Subtask", "Tasks", "Task List", "Sub Tasks"},
	SectionTechnicalNotes:     {"Tech Notes", "Notes", "Implementation Notes"},
	SectionRelatedCommits:     {"Commits", "Git Commits"},
}

// storyHeaderRe bounds story blocks. It captures the story ID and the
// title from headers like "### US-001: Title" or "## ✅ #42: Title".
// The ID grammar is deliberately strict: an uppercase prefix joined to
// digits by a hyphen, or a hash followed by digits. Lowercase prefixes
// and bare numbers are not story headers.
//
//nolint:gochecknoglobals // compiled once
var storyHeaderRe = regexp.MustCompile(
	`(?m)^#{2,4}[ \t]*(?:[^\n]*?[ \t])?([A-Z]+-[0-9]+|#[0-9]+)[ \t]*:[ \t]*([^\n]+?)[ \t]*$`,
)

// epicTitleRe matches the document's single h1 title line.
//
//nolint:gochecknoglobals // compiled once
var epicTitleRe = regexp.MustCompile(`(?m)^#[ \t]+(?:Epic[ \t]*:[ \t]*)?(.+?)[ \t]*$`)

// epicKeyInTitleRe pulls a trailing "(PROJ-100)" issue key out of an
// epic title.
//
//nolint:gochecknoglobals // compiled once
var epicKeyInTitleRe = regexp.MustCompile(`\(([A-Z]+-[0-9]+)\)[ \t]*$`)

// flexName turns a field or section name into a pattern fragment that
// tolerates repeated inner whitespace.
func flexName(name string) string {
	return strings.ReplaceAll(regexp.QuoteMeta(name), ` `, `[ \t]+`)
}

// compiledField holds the three accepted notations for one field
// spelling: a table row, a bold inline pair, and a blockquoted pair.
// The notations are tried in that order.
type compiledField struct {
	name   string
	alias  bool
	table  *regexp.Regexp
	inline *regexp.Regexp // applied per line, skipping blockquotes
	quote  *regexp.Regexp
}

func tableFieldPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\|[ \t]*\*?\*?` + flexName(name) + `\*?\*?[ \t]*\|[ \t]*([^|\n]+?)[ \t]*\|`)
}

func inlineFieldPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\*\*` + flexName(name) + `\*\*[ \t]*:[ \t]*(.+?)[ \t]*(?:$|  )`)
}

func blockquoteFieldPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?mi)^[ \t]*>[ \t]*\*\*` + flexName(name) + `\*\*[ \t]*:[ \t]*(.+?)[ \t]*$`)
}

//nolint:gochecknoglobals // compiled once
var compiledFields = compileFields()

func compileFields() map[string][]compiledField {
	out := make(map[string][]compiledField, len(fieldAliases))

	for canonical, aliases := range fieldAliases {
		names := append([]string{canonical}, aliases...)
		list := make([]compiledField, 0, len(names))

		for i, name := range names {
			list = append(list, compiledField{
				name:   name,
				alias:  i > 0,
				table:  tableFieldPattern(name),
				inline: inlineFieldPattern(name),
				quote:  blockquoteFieldPattern(name),
			})
		}

		out[canonical] = list
	}

	return out
}

// compiledSection holds the header matcher for one section spelling.
type compiledSection struct {
	name  string
	alias bool
	re    *regexp.Regexp
}

func sectionHeaderPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?mi)^#{2,4}[ \t]*` + flexName(name) + `[ \t]*$`)
}

//nolint:gochecknoglobals // compiled once
var compiledSections = compileSections()

func compileSections() map[string][]compiledSection {
	out := make(map[string][]compiledSection, len(sectionAliases))

	for canonical, aliases := range sectionAliases {
		names := append([]string{canonical}, aliases...)
		list := make([]compiledSection, 0, len(names))

		for i, name := range names {
			list = append(list, compiledSection{name: name, alias: i > 0, re: sectionHeaderPattern(name)})
		}

		out[canonical] = list
	}

	return out
}

// sectionBoundaryRe ends a section body at the next level 2-4 header.
// Level 5+ headers stay inside the section.
//
//nolint:gochecknoglobals // compiled once
var sectionBoundaryRe = regexp.MustCompile(`^#{2,4}(?:[ \t]|$)`)

// isSectionTerminator reports whether line ends the current section
// body: another level 2-4 header or a horizontal rule.
func isSectionTerminator(line string) bool {
	if strings.HasPrefix(line, "---") {
		return true
	}

	return sectionBoundaryRe.MatchString(line)
}

// descriptionRules are the accepted "As a / I want / So that" shapes,
// tried in order. Each rule captures role, want, and benefit.
//
//nolint:gochecknoglobals // compiled once
var descriptionRules = []struct {
	name string
	re   *regexp.Regexp
}{
	{
		name: "multiline",
		re: regexp.MustCompile(
			`(?msi)\*\*As\s+an?\*\*\s*(.+?)(?:,?\s*\n\s*(?:>\s*)?)?` +
				`\*\*I\s+want\*\*\s*(.+?)(?:,?\s*\n\s*(?:>\s*)?)?` +
				`\*\*So\s+that\*\*\s*(.+?)$`,
		),
	},
	{
		name: "single-line",
		re: regexp.MustCompile(
			`(?i)\*\*As\s+an?\*\*\s*([^,\n]+)[,\s]+\*\*I\s+want\*\*\s*([^,\n]+)[,\s]+\*\*So\s+that\*\*\s*([^.\n]+)`,
		),
	},
	{
		name: "blockquote",
		re: regexp.MustCompile(
			`(?i)>\s*\*\*As\s+an?\*\*\s*([^,\n]+)[\s\S]*?\*\*I\s+want\*\*\s*([^,\n]+)[\s\S]*?\*\*So\s+that\*\*\s*([^.\n]+)`,
		),
	},
}

// Partial description parts, used when no full rule matches.
//
//nolint:gochecknoglobals // compiled once
var descriptionParts = []struct {
	label string
	re    *regexp.Regexp
}{
	{"As a", regexp.MustCompile(`(?i)\*\*As\s+an?\*\*[ \t]*([^,\n*]+)`)},
	{"I want", regexp.MustCompile(`(?i)\*\*I\s+want\*\*[ \t]*([^,\n*]+)`)},
	{"So that", regexp.MustCompile(`(?i)\*\*So\s+that\*\*[ \t]*([^,.\n*]+)`)},
}

//nolint:gochecknoglobals // compiled once
var (
	// checkboxRe matches one checklist item, capturing the list marker,
	// the checkbox state, and the item text.
	checkboxRe = regexp.MustCompile(`(?m)^[ \t]*([-*+])[ \t]*\[([xX ]?)\][ \t]*(.+?)[ \t]*$`)

	// pointsSuffixRe matches a trailing "(3 SP)" style estimate on an
	// inline subtask.
	pointsSuffixRe = regexp.MustCompile(`(?i)\s*\((\d+)\s*(?:sp|pts?|points?|story\s*points?)\)\s*$`)

	// subtaskSplitRe splits "Name - description" or "Name: description".
	// A hyphen splits only when surrounded by whitespace, so hyphenated
	// names stay intact.
	subtaskSplitRe = regexp.MustCompile(`^(.+?)(?:\s*[-–—:]\s+(.+))?$`)

	// subtaskRowRe matches one "| n | name | description | sp | status |"
	// table row. The header and separator rows fail the leading digit.
	subtaskRowRe = regexp.MustCompile(
		`(?m)^[ \t]*\|[ \t]*(\d+)[ \t]*\|[ \t]*([^|\n]+?)[ \t]*\|[ \t]*([^|\n]*?)[ \t]*\|[ \t]*(\d+)[ \t]*\|[ \t]*([^|\n]+?)[ \t]*\|`,
	)

	// commitRowRe matches one "| `hash` | message |" table row.
	commitRowRe = regexp.MustCompile("\\|[ \t]*`([^`\\n]+)`[ \t]*\\|[ \t]*([^|\\n]+?)[ \t]*\\|")

	// inlineMarkupRe strips bold, italic, code and strikethrough
	// punctuation from subtask names.
	inlineMarkupRe = regexp.MustCompile("[*_~`]")

	// intRe extracts the first digit run from a field value.
	intRe = regexp.MustCompile(`\d+`)

	// quoteMarkRe removes leading blockquote markers from captured text.
	quoteMarkRe = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)

	// wsRunRe collapses whitespace runs inside captured text.
	wsRunRe = regexp.MustCompile(`\s+`)
)

// cleanCapture normalizes a regex capture: blockquote markers removed,
// whitespace collapsed, trailing sentence punctuation dropped.
func cleanCapture(s string) string {
	s = quoteMarkRe.ReplaceAllString(s, "")
	s = wsRunRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ",.")

	return strings.TrimSpace(s)
}
