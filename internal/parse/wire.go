package parse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"storysync/internal/story"
)

// docFile is the structured document schema shared by the YAML and JSON
// variants. The yaml and json tags line up key for key so both formats
// agree on the same documents.
type docFile struct {
	Epic      string     `yaml:"epic"       json:"epic"`
	EpicTitle string     `yaml:"epic_title" json:"epic_title"`
	Stories   []docStory `yaml:"stories"    json:"stories"`
}

type docStory struct {
	ID                 string         `yaml:"id"                  json:"id"`
	Title              string         `yaml:"title"               json:"title"`
	StoryPoints        *int           `yaml:"story_points"        json:"story_points"`
	Points             *int           `yaml:"points"              json:"points"`
	Priority           string         `yaml:"priority"            json:"priority"`
	Status             string         `yaml:"status"              json:"status"`
	Description        docDescription `yaml:"description"         json:"description"`
	AcceptanceCriteria []docCriterion `yaml:"acceptance_criteria" json:"acceptance_criteria"`
	Subtasks           []docSubtask   `yaml:"subtasks"            json:"subtasks"`
	Commits            []docCommit    `yaml:"commits"             json:"commits"`
	TechnicalNotes     string         `yaml:"technical_notes"     json:"technical_notes"`
}

// docDescription accepts either a role/want/benefit mapping or a plain
// "As a ..., I want ..., so that ..." sentence.
type docDescription struct {
	Role    string `yaml:"role"    json:"role"`
	Want    string `yaml:"want"    json:"want"`
	Benefit string `yaml:"benefit" json:"benefit"`

	text string
}

func (d *docDescription) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		d.text = node.Value

		return nil
	}

	type bare docDescription

	var b bare
	if err := node.Decode(&b); err != nil {
		return fmt.Errorf("decoding description: %w", err)
	}

	*d = docDescription(b)

	return nil
}

func (d *docDescription) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &d.text); err != nil {
			return fmt.Errorf("decoding description: %w", err)
		}

		return nil
	}

	type bare docDescription

	var b bare
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("decoding description: %w", err)
	}

	*d = docDescription(b)

	return nil
}

// plainDescRe parses the sentence form of a description.
//
//nolint:gochecknoglobals // compiled once
var plainDescRe = regexp.MustCompile(`(?i)^as an?\s+(.+?),\s*i\s+want\s+(.+?),?\s*so\s+that\s+(.+?)\.?\s*$`)

// toDomain converts the union to a domain description. The second
// return is false when a sentence form was given but not understood.
func (d docDescription) toDomain() (story.Description, bool) {
	if d.text != "" {
		m := plainDescRe.FindStringSubmatch(strings.TrimSpace(d.text))
		if m == nil {
			return story.Description{}, false
		}

		return story.Description{
			Role:    cleanCapture(m[1]),
			Want:    cleanCapture(m[2]),
			Benefit: cleanCapture(m[3]),
		}, true
	}

	return story.Description{
		Role:    strings.TrimSpace(d.Role),
		Want:    strings.TrimSpace(d.Want),
		Benefit: strings.TrimSpace(d.Benefit),
	}, true
}

// docCriterion accepts either a {text, checked} mapping or a plain
// string, optionally prefixed with a "[x]" / "[ ]" state.
type docCriterion struct {
	Text    string `yaml:"text"    json:"text"`
	Checked bool   `yaml:"checked" json:"checked"`
}

func (c *docCriterion) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Text, c.Checked = splitCheckPrefix(node.Value)

		return nil
	}

	type bare docCriterion

	var b bare
	if err := node.Decode(&b); err != nil {
		return fmt.Errorf("decoding criterion: %w", err)
	}

	*c = docCriterion(b)

	return nil
}

func (c *docCriterion) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding criterion: %w", err)
		}

		c.Text, c.Checked = splitCheckPrefix(s)

		return nil
	}

	type bare docCriterion

	var b bare
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("decoding criterion: %w", err)
	}

	*c = docCriterion(b)

	return nil
}

// splitCheckPrefix peels a leading checkbox state off a scalar criterion.
func splitCheckPrefix(s string) (string, bool) {
	s = strings.TrimSpace(s)

	switch {
	case strings.HasPrefix(s, "[x] "), strings.HasPrefix(s, "[X] "):
		return strings.TrimSpace(s[4:]), true
	case strings.HasPrefix(s, "[ ] "):
		return strings.TrimSpace(s[4:]), false
	}

	return s, false
}

type docSubtask struct {
	Number      int    `yaml:"number"       json:"number"`
	Name        string `yaml:"name"         json:"name"`
	Description string `yaml:"description"  json:"description"`
	StoryPoints int    `yaml:"story_points" json:"story_points"`
	Status      string `yaml:"status"       json:"status"`
}

type docCommit struct {
	Hash    string `yaml:"hash"    json:"hash"`
	Message string `yaml:"message" json:"message"`
}

// buildStories converts a decoded document into domain stories,
// enforcing the same ID grammar and defaults as the markdown variant.
func buildStories(doc docFile, res *Result) {
	if doc.Epic != "" {
		res.EpicKey = story.IssueKey(strings.TrimSpace(doc.Epic))
	}

	if doc.EpicTitle != "" {
		res.EpicTitle = strings.TrimSpace(doc.EpicTitle)
	}

	stories := make([]story.UserStory, 0, len(doc.Stories))

	for i, ds := range doc.Stories {
		st, ok := buildStory(i, ds, res)
		if !ok {
			continue
		}

		stories = append(stories, st)
	}

	dedupeStories(stories, res)
}

//nolint:cyclop // straight-line field mapping with per-field defaults
func buildStory(idx int, ds docStory, res *Result) (story.UserStory, bool) {
	id, ok := story.ParseID(strings.TrimSpace(ds.ID))
	if !ok {
		res.add(Warning{
			Code:       CodeInvalidStoryID,
			Message:    fmt.Sprintf("story %d has invalid ID %q; skipped", idx+1, ds.ID),
			Suggestion: "use PREFIX-NUMBER (uppercase) or #NUMBER",
		})

		return story.UserStory{}, false
	}

	st := story.UserStory{
		ID:             id,
		Title:          strings.TrimSpace(ds.Title),
		Priority:       story.ParsePriority(ds.Priority),
		Status:         story.ParseStatus(ds.Status),
		TechnicalNotes: strings.TrimSpace(ds.TechnicalNotes),
	}
	loc := Location{StoryID: id}

	switch {
	case ds.StoryPoints != nil:
		st.StoryPoints = *ds.StoryPoints
	case ds.Points != nil:
		st.StoryPoints = *ds.Points

		res.add(Warning{
			Code:       CodeFieldAlias,
			Message:    `field "Story Points" written as "points"`,
			Location:   loc,
			Suggestion: `rename the key to "story_points"`,
		})
	default:
		res.add(Warning{
			Code:       CodeMissingField,
			Message:    "no Story Points field found",
			Location:   loc,
			Suggestion: `add a "story_points" key`,
		})
	}

	desc, parsed := ds.Description.toDomain()
	st.Description = desc

	switch {
	case !parsed:
		res.add(Warning{
			Code:       CodeIncompleteDescription,
			Message:    "description text is not an 'As a / I want / So that' narrative",
			Location:   loc,
			Suggestion: "use role/want/benefit keys or the full sentence form",
		})
	case desc.IsZero():
		res.add(Warning{
			Code:       CodeMissingSection,
			Message:    "no user story description found",
			Location:   loc,
			Suggestion: `add a "description" entry`,
		})
	}

	for _, c := range ds.AcceptanceCriteria {
		st.AcceptanceCriteria = append(st.AcceptanceCriteria, story.AcceptanceCriterion{
			Text:    strings.TrimSpace(c.Text),
			Checked: c.Checked,
		})
	}

	if len(st.AcceptanceCriteria) == 0 {
		res.add(Warning{
			Code:       CodeMissingSection,
			Message:    "no Acceptance Criteria section found",
			Location:   loc,
			Suggestion: `add an "acceptance_criteria" list`,
		})
	}

	st.Subtasks = buildSubtasks(ds.Subtasks, loc, res)

	for _, c := range ds.Commits {
		if strings.TrimSpace(c.Hash) == "" {
			continue
		}

		st.Commits = append(st.Commits, story.CommitRef{
			Hash:    strings.TrimSpace(c.Hash),
			Message: strings.TrimSpace(c.Message),
		})
	}

	return st, true
}

func buildSubtasks(in []docSubtask, loc Location, res *Result) []story.Subtask {
	subtasks := make([]story.Subtask, 0, len(in))

	for _, ds := range in {
		name := strings.TrimSpace(ds.Name)

		if utf8.RuneCountInString(name) < minSubtaskNameRunes {
			res.add(Warning{
				Code:       CodeShortSubtaskName,
				Message:    fmt.Sprintf("subtask name %q is too short; skipped", name),
				Location:   loc,
				Suggestion: "give the subtask a descriptive name",
			})

			continue
		}

		number := ds.Number
		if number == 0 {
			number = len(subtasks) + 1
		}

		points := ds.StoryPoints
		if points == 0 {
			points = 1
		}

		subtasks = append(subtasks, story.Subtask{
			Number:      number,
			Name:        name,
			Description: strings.TrimSpace(ds.Description),
			StoryPoints: points,
			Status:      story.ParseStatus(ds.Status),
		})
	}

	return subtasks
}
