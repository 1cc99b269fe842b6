package parse

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"storysync/internal/story"
)

const frontmatterDelim = "---"

// minSubtaskNameRunes is the shortest subtask name worth creating a
// tracker issue for.
const minSubtaskNameRunes = 2

// MarkdownParser reads user stories from markdown documents. It is
// tolerant by design: alias field names, blockquoted fields, sloppy
// checkboxes and partial descriptions all parse, each with a warning
// that tells the author how to clean up the source.
type MarkdownParser struct {
	log *zap.SugaredLogger
}

// NewMarkdownParser returns a markdown parser. A nil logger disables
// logging.
func NewMarkdownParser(log *zap.SugaredLogger) *MarkdownParser {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &MarkdownParser{log: log}
}

// Name implements Parser.
func (p *MarkdownParser) Name() string { return "markdown" }

// Extensions implements Parser.
func (p *MarkdownParser) Extensions() []string { return []string{".md", ".markdown"} }

// CanParse claims markdown files by extension and raw content by the
// presence of at least one story header.
func (p *MarkdownParser) CanParse(source string) bool {
	if ext := sourceExt(source); ext != "" {
		return ext == ".md" || ext == ".markdown"
	}

	content, readErr := readSource(source)
	if readErr != nil {
		return false
	}

	return storyHeaderRe.MatchString(content)
}

// Parse implements Parser.
func (p *MarkdownParser) Parse(source string) (Result, error) {
	content, readErr := readSource(source)
	if readErr != nil {
		return Result{}, readErr
	}

	res := Result{Source: sourceLabel(source)}

	content, lineOffset := p.consumeFrontmatter(content, &res)
	p.parseEpicTitle(content, &res)

	blocks := splitStoryBlocks(content, lineOffset)
	stories := make([]story.UserStory, 0, len(blocks))

	for _, b := range blocks {
		stories = append(stories, p.parseStoryBlock(b, &res))
	}

	dedupeStories(stories, &res)

	p.log.Debugw("parsed markdown document",
		"source", res.Source,
		"stories", len(res.Stories),
		"warnings", len(res.Warnings))

	return res, nil
}

// ParseStories implements Parser.
func (p *MarkdownParser) ParseStories(source string) ([]story.UserStory, error) {
	res, err := p.Parse(source)
	if err != nil {
		return nil, err
	}

	return res.Stories, nil
}

// Validate implements Parser.
func (p *MarkdownParser) Validate(source string) []string {
	res, err := p.Parse(source)
	if err != nil {
		return []string{err.Error()}
	}

	return validateStories(res.Stories)
}

// consumeFrontmatter strips a leading YAML frontmatter block and lifts
// the epic key and title out of it. Malformed frontmatter is left in
// place untouched. Returns the remaining content and the number of
// lines consumed.
func (p *MarkdownParser) consumeFrontmatter(content string, res *Result) (string, int) {
	meta, body, ok := splitFrontmatter(content)
	if !ok {
		return content, 0
	}

	var fm struct {
		Epic  string `yaml:"epic"`
		Title string `yaml:"title"`
	}

	if err := yaml.Unmarshal([]byte(meta), &fm); err != nil {
		return content, 0
	}

	if fm.Epic != "" {
		res.EpicKey = story.IssueKey(strings.TrimSpace(fm.Epic))
	}

	if fm.Title != "" {
		res.EpicTitle = strings.TrimSpace(fm.Title)
	}

	return body, strings.Count(content[:len(content)-len(body)], "\n")
}

func splitFrontmatter(content string) (meta, body string, ok bool) {
	if !strings.HasPrefix(content, frontmatterDelim+"\n") {
		return "", content, false
	}

	rest := strings.TrimPrefix(content, frontmatterDelim+"\n")

	idx := strings.Index(rest, "\n"+frontmatterDelim+"\n")
	if idx < 0 {
		return "", content, false
	}

	return rest[:idx], rest[idx+len(frontmatterDelim)+2:], true
}

// parseEpicTitle records the h1 title, preferring frontmatter values
// when both are present.
func (p *MarkdownParser) parseEpicTitle(content string, res *Result) {
	m := epicTitleRe.FindStringSubmatch(content)
	if m == nil {
		return
	}

	title := strings.TrimSpace(m[1])

	if km := epicKeyInTitleRe.FindStringSubmatch(title); km != nil {
		if res.EpicKey == "" {
			res.EpicKey = story.IssueKey(km[1])
		}

		title = strings.TrimSpace(strings.TrimSuffix(title, km[0]))
	}

	if res.EpicTitle == "" {
		res.EpicTitle = title
	}
}

// storyBlock is one story's slice of the document.
type storyBlock struct {
	id    story.ID
	title string
	body  string // includes the header line
	line  int    // 1-based header line in the original source
}

// splitStoryBlocks bounds each story at its header; a block runs to the
// next story header or the end of the document.
func splitStoryBlocks(content string, lineOffset int) []storyBlock {
	matches := storyHeaderRe.FindAllStringSubmatchIndex(content, -1)
	blocks := make([]storyBlock, 0, len(matches))

	for i, m := range matches {
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		blocks = append(blocks, storyBlock{
			id:    story.ID(content[m[2]:m[3]]),
			title: strings.TrimSpace(content[m[4]:m[5]]),
			body:  content[m[0]:end],
			line:  lineOffset + 1 + strings.Count(content[:m[0]], "\n"),
		})
	}

	return blocks
}

// lineOf converts a byte offset inside the block into a 1-based line
// number in the original source.
func (b storyBlock) lineOf(offset int) int {
	if offset > len(b.body) {
		offset = len(b.body)
	}

	return b.line + strings.Count(b.body[:offset], "\n")
}

func (p *MarkdownParser) parseStoryBlock(b storyBlock, res *Result) story.UserStory {
	st := story.UserStory{
		ID:       b.id,
		Title:    b.title,
		Priority: story.PriorityMedium,
		Status:   story.StatusPlanned,
	}
	loc := Location{StoryID: b.id, Line: b.line}

	if raw, ok := p.fieldValue(b.body, FieldStoryPoints, loc, res); ok {
		st.StoryPoints = p.parsePoints(raw, loc, res)
	} else {
		res.add(Warning{
			Code:       CodeMissingField,
			Message:    "no Story Points field found",
			Location:   loc,
			Suggestion: "add a '**Story Points**: N' line or table row",
		})
	}

	if raw, ok := p.fieldValue(b.body, FieldPriority, loc, res); ok {
		st.Priority = story.ParsePriority(raw)
	}

	if raw, ok := p.fieldValue(b.body, FieldStatus, loc, res); ok {
		st.Status = story.ParseStatus(raw)
	}

	p.parseDescription(b, &st, res)
	p.parseAcceptanceCriteria(b, &st, res)

	if sec, off, ok := p.sectionBody(b.body, SectionSubtasks, loc, res); ok {
		st.Subtasks = p.parseSubtasks(sec, off, b, res)
	}

	if sec, _, ok := p.sectionBody(b.body, SectionRelatedCommits, loc, res); ok {
		st.Commits = parseCommitRows(sec)
	}

	if sec, _, ok := p.sectionBody(b.body, SectionTechnicalNotes, loc, res); ok {
		st.TechnicalNotes = strings.TrimSpace(sec)
	}

	return st
}

// fieldValue finds the first value written for the canonical field,
// trying the canonical spelling then each alias, and within each
// spelling the table, inline, and blockquote notations.
func (p *MarkdownParser) fieldValue(block, canonical string, loc Location, res *Result) (string, bool) {
	for _, cf := range compiledFields[canonical] {
		val, ok := matchField(block, cf)
		if !ok {
			continue
		}

		if cf.alias {
			res.add(Warning{
				Code:       CodeFieldAlias,
				Message:    fmt.Sprintf("field %q written as %q", canonical, cf.name),
				Location:   loc,
				Suggestion: fmt.Sprintf("rename to %q", canonical),
			})
		}

		return val, true
	}

	return "", false
}

func matchField(block string, cf compiledField) (string, bool) {
	if m := cf.table.FindStringSubmatch(block); m != nil {
		return strings.TrimSpace(m[1]), true
	}

	// The inline notation is matched per line so blockquoted fields are
	// left for the blockquote notation.
	for _, line := range strings.Split(block, "\n") {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), ">") {
			continue
		}

		if m := cf.inline.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}

	if m := cf.quote.FindStringSubmatch(block); m != nil {
		return strings.TrimSpace(m[1]), true
	}

	return "", false
}

// parsePoints extracts the first integer from a field value; anything
// else degrades to zero with a warning.
func (p *MarkdownParser) parsePoints(raw string, loc Location, res *Result) int {
	digits := intRe.FindString(raw)
	if digits == "" {
		res.add(Warning{
			Code:       CodeInvalidStoryPoints,
			Message:    fmt.Sprintf("story points %q is not a number", raw),
			Location:   loc,
			Suggestion: "use a whole number",
		})

		return 0
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}

	return n
}

// sectionBody returns the body of the named section and the byte offset
// of the body within the block. Alias headers match too, with a warning.
func (p *MarkdownParser) sectionBody(block, canonical string, loc Location, res *Result) (string, int, bool) {
	for _, cs := range compiledSections[canonical] {
		m := cs.re.FindStringIndex(block)
		if m == nil {
			continue
		}

		if cs.alias {
			res.add(Warning{
				Code:       CodeSectionAlias,
				Message:    fmt.Sprintf("section %q written as %q", canonical, cs.name),
				Location:   loc,
				Suggestion: fmt.Sprintf("rename the header to %q", canonical),
			})
		}

		body, offset := sectionBodyAfter(block, m[1])

		return body, offset, true
	}

	return "", 0, false
}

// sectionBodyAfter collects lines after the header until the next
// level 2-4 header, a horizontal rule, or the end of the block.
func sectionBodyAfter(block string, headerEnd int) (string, int) {
	rest := block[headerEnd:]
	offset := headerEnd

	if strings.HasPrefix(rest, "\n") {
		rest = rest[1:]
		offset++
	}

	end := len(rest)

	for pos := 0; pos < len(rest); {
		lineEnd := strings.IndexByte(rest[pos:], '\n')
		if lineEnd < 0 {
			lineEnd = len(rest) - pos
		}

		if isSectionTerminator(rest[pos : pos+lineEnd]) {
			end = pos

			break
		}

		pos += lineEnd + 1
	}

	return rest[:end], offset
}

// descPartCount is the number of narrative parts a full description has.
const descPartCount = 3

// parseDescription runs the description rule cascade over the
// Description section when one exists, or the whole block otherwise.
func (p *MarkdownParser) parseDescription(b storyBlock, st *story.UserStory, res *Result) {
	loc := Location{StoryID: b.id, Line: b.line}

	space := b.body
	if sec, _, ok := p.sectionBody(b.body, SectionDescription, loc, res); ok {
		space = sec
	}

	for _, rule := range descriptionRules {
		m := rule.re.FindStringSubmatch(space)
		if m == nil {
			continue
		}

		st.Description = story.Description{
			Role:    cleanCapture(m[1]),
			Want:    cleanCapture(m[2]),
			Benefit: cleanCapture(m[3]),
		}

		return
	}

	// No full rule matched; salvage whatever parts exist on their own.
	var missing []string

	for _, part := range descriptionParts {
		m := part.re.FindStringSubmatch(space)
		if m == nil {
			missing = append(missing, part.label)

			continue
		}

		switch part.label {
		case "As a":
			st.Description.Role = cleanCapture(m[1])
		case "I want":
			st.Description.Want = cleanCapture(m[1])
		case "So that":
			st.Description.Benefit = cleanCapture(m[1])
		}
	}

	switch {
	case len(missing) == descPartCount:
		res.add(Warning{
			Code:       CodeMissingSection,
			Message:    "no user story description found",
			Location:   loc,
			Suggestion: "add '**As a** ..., **I want** ..., **So that** ...'",
		})
	case len(missing) > 0:
		res.add(Warning{
			Code:       CodeIncompleteDescription,
			Message:    "description missing: " + strings.Join(missing, ", "),
			Location:   loc,
			Suggestion: "complete the 'As a / I want / So that' narrative",
		})
	}
}

func (p *MarkdownParser) parseAcceptanceCriteria(b storyBlock, st *story.UserStory, res *Result) {
	loc := Location{StoryID: b.id, Line: b.line}

	sec, off, ok := p.sectionBody(b.body, SectionAcceptanceCriteria, loc, res)
	if !ok {
		res.add(Warning{
			Code:       CodeMissingSection,
			Message:    "no Acceptance Criteria section found",
			Location:   loc,
			Suggestion: "add an '## Acceptance Criteria' checklist",
		})

		return
	}

	items := checkboxRe.FindAllStringSubmatchIndex(sec, -1)
	criteria := make([]story.AcceptanceCriterion, 0, len(items))

	for _, m := range items {
		marker := sec[m[2]:m[3]]
		state := sec[m[4]:m[5]]
		text := strings.TrimSpace(sec[m[6]:m[7]])
		itemLoc := Location{StoryID: b.id, Section: SectionAcceptanceCriteria, Line: b.lineOf(off + m[0])}

		p.checkboxWarnings(marker, state, itemLoc, res)

		criteria = append(criteria, story.AcceptanceCriterion{
			Text:    text,
			Checked: strings.EqualFold(state, "x"),
		})
	}

	st.AcceptanceCriteria = criteria
}

// checkboxWarnings flags non-dash list markers and stateless "[]" boxes.
func (p *MarkdownParser) checkboxWarnings(marker, state string, loc Location, res *Result) {
	if marker != "-" {
		res.add(Warning{
			Code:       CodeNonstandardCheckbox,
			Message:    fmt.Sprintf("checkbox uses %q list marker", marker),
			Location:   loc,
			Suggestion: "use '- [ ]'",
		})
	}

	if state == "" {
		res.add(Warning{
			Code:       CodeEmptyCheckbox,
			Message:    "checkbox has no state",
			Location:   loc,
			Suggestion: "use '[ ]' or '[x]'",
		})
	}
}

// parseSubtasks reads the table notation when present, otherwise the
// inline checklist notation.
func (p *MarkdownParser) parseSubtasks(sec string, off int, b storyBlock, res *Result) []story.Subtask {
	rows := subtaskRowRe.FindAllStringSubmatch(sec, -1)
	if len(rows) > 0 {
		subtasks := make([]story.Subtask, 0, len(rows))

		for _, row := range rows {
			number, _ := strconv.Atoi(row[1])
			points, _ := strconv.Atoi(row[4])

			subtasks = append(subtasks, story.Subtask{
				Number:      number,
				Name:        strings.TrimSpace(row[2]),
				Description: strings.TrimSpace(row[3]),
				StoryPoints: points,
				Status:      story.ParseStatus(strings.TrimSpace(row[5])),
			})
		}

		return subtasks
	}

	return p.parseInlineSubtasks(sec, off, b, res)
}

// parseInlineSubtasks reads "- [ ] Name - description (2 SP)" items.
// Unestimated items default to one story point.
func (p *MarkdownParser) parseInlineSubtasks(sec string, off int, b storyBlock, res *Result) []story.Subtask {
	items := checkboxRe.FindAllStringSubmatchIndex(sec, -1)
	subtasks := make([]story.Subtask, 0, len(items))

	for _, m := range items {
		marker := sec[m[2]:m[3]]
		state := sec[m[4]:m[5]]
		text := strings.TrimSpace(sec[m[6]:m[7]])
		itemLoc := Location{StoryID: b.id, Section: SectionSubtasks, Line: b.lineOf(off + m[0])}

		p.checkboxWarnings(marker, state, itemLoc, res)

		points := 1
		if pm := pointsSuffixRe.FindStringSubmatchIndex(text); pm != nil {
			points, _ = strconv.Atoi(text[pm[2]:pm[3]])
			text = strings.TrimSpace(text[:pm[0]])
		}

		text = inlineMarkupRe.ReplaceAllString(text, "")
		name, desc := splitSubtaskText(text)

		if utf8.RuneCountInString(name) < minSubtaskNameRunes {
			res.add(Warning{
				Code:       CodeShortSubtaskName,
				Message:    fmt.Sprintf("subtask name %q is too short; skipped", name),
				Location:   itemLoc,
				Suggestion: "give the subtask a descriptive name",
			})

			continue
		}

		status := story.StatusPlanned
		if strings.EqualFold(state, "x") {
			status = story.StatusDone
		}

		subtasks = append(subtasks, story.Subtask{
			Number:      len(subtasks) + 1,
			Name:        name,
			Description: desc,
			StoryPoints: points,
			Status:      status,
		})
	}

	return subtasks
}

func splitSubtaskText(text string) (name, desc string) {
	m := subtaskSplitRe.FindStringSubmatch(text)
	if m == nil {
		return strings.TrimSpace(text), ""
	}

	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
}

func parseCommitRows(sec string) []story.CommitRef {
	rows := commitRowRe.FindAllStringSubmatch(sec, -1)
	commits := make([]story.CommitRef, 0, len(rows))

	for _, row := range rows {
		commits = append(commits, story.CommitRef{
			Hash:    strings.TrimSpace(row[1]),
			Message: strings.TrimSpace(row[2]),
		})
	}

	return commits
}
