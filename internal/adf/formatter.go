package adf

import (
	"regexp"
	"strconv"
	"strings"

	"storysync/internal/story"
)

// Formatter converts the constrained markdown subset used in story
// documents (headings 1-3 plus the h2./h3. wiki forms, bullet lists,
// checkbox task lists, inline bold/italic/code) into ADF trees.
type Formatter struct{}

func NewFormatter() *Formatter { return &Formatter{} }

// FormatText classifies each line independently: heading markers win over
// task-item markers, task-item markers over bullet markers, and anything
// else becomes a paragraph. A blank line closes the open list.
func (f *Formatter) FormatText(text string) *Doc {
	b := &docBuilder{}

	for _, raw := range strings.Split(text, "\n") {
		b.line(strings.TrimSpace(raw))
	}

	return NewDoc(b.nodes...)
}

// FormatStoryDescription renders the story description document pushed to
// the tracker: narrative triple, acceptance criteria checklist, technical
// notes.
func (f *Formatter) FormatStoryDescription(st story.UserStory) *Doc {
	return f.FormatText(st.DescriptionMarkdown())
}

// FormatSubtaskDescription renders a subtask description, with the point
// estimate appended when one is set.
func (f *Formatter) FormatSubtaskDescription(sub story.Subtask) *Doc {
	text := sub.Description

	if sub.StoryPoints > 0 {
		if text != "" {
			text += "\n\n"
		}

		text += "Story Points: " + strconv.Itoa(sub.StoryPoints)
	}

	return f.FormatText(text)
}

// FormatCommitsTable renders the commits comment: a level 3 heading over a
// two-column table of short hash and message.
func (f *Formatter) FormatCommitsTable(commits []story.CommitRef) *Doc {
	rows := make([]*Node, 0, len(commits)+1)
	rows = append(rows, tableRow(tableHeaderCell("Commit"), tableHeaderCell("Message")))

	for _, c := range commits {
		rows = append(rows, tableRow(
			tableCell(TextNode(c.Hash, CodeMark())),
			tableCell(inline(c.Message)...),
		))
	}

	return NewDoc(Heading(3, TextNode("Related Commits")), table(rows...))
}

// docBuilder accumulates top-level nodes. list is the currently open
// bulletList or taskList node, nil when no list is open.
type docBuilder struct {
	nodes   []*Node
	list    *Node
	taskSeq int
}

func (b *docBuilder) line(line string) {
	if line == "" {
		b.list = nil

		return
	}

	if level, rest, ok := headingLine(line); ok {
		b.block(Heading(level, inline(rest)...))

		return
	}

	if done, rest, ok := taskLine(line); ok {
		b.task(taskItem(b.nextLocalID(), done, inline(rest)...))

		return
	}

	if rest, ok := bulletLine(line); ok {
		b.bullet(listItem(Paragraph(inline(rest)...)))

		return
	}

	// Markdown table rows are dropped; tables reach the tracker only via
	// FormatCommitsTable.
	if strings.HasPrefix(line, "|") {
		return
	}

	b.block(Paragraph(inline(line)...))
}

func (b *docBuilder) block(n *Node) {
	b.list = nil
	b.nodes = append(b.nodes, n)
}

func (b *docBuilder) bullet(item *Node) {
	if b.list == nil || b.list.Type != nodeBulletList {
		b.list = bulletList()
		b.nodes = append(b.nodes, b.list)
	}

	b.list.Content = append(b.list.Content, item)
}

func (b *docBuilder) task(item *Node) {
	if b.list == nil || b.list.Type != nodeTaskList {
		b.list = taskList(b.nextLocalID())
		b.nodes = append(b.nodes, b.list)
	}

	b.list.Content = append(b.list.Content, item)
}

// nextLocalID numbers task lists and items sequentially within one
// document so the output tree is deterministic.
func (b *docBuilder) nextLocalID() string {
	b.taskSeq++

	return "task-" + strconv.Itoa(b.taskSeq)
}

var headingPrefixes = []struct {
	prefix string
	level  int
}{
	{"### ", 3},
	{"## ", 2},
	{"# ", 1},
	{"h2. ", 2},
	{"h3. ", 3},
}

func headingLine(line string) (level int, rest string, ok bool) {
	for _, h := range headingPrefixes {
		if strings.HasPrefix(line, h.prefix) {
			return h.level, strings.TrimSpace(line[len(h.prefix):]), true
		}
	}

	return 0, "", false
}

var taskPrefixes = []struct {
	prefix string
	done   bool
}{
	{"- [ ] ", false},
	{"- [x] ", true},
	{"- [X] ", true},
}

func taskLine(line string) (done bool, rest string, ok bool) {
	for _, t := range taskPrefixes {
		if strings.HasPrefix(line, t.prefix) {
			return t.done, strings.TrimSpace(line[len(t.prefix):]), true
		}
	}

	return false, "", false
}

func bulletLine(line string) (rest string, ok bool) {
	for _, p := range []string{"- ", "* "} {
		if strings.HasPrefix(line, p) {
			return strings.TrimSpace(line[len(p):]), true
		}
	}

	return "", false
}

// inlineMarkRe matches the first **bold**, `code`, or *italic* span.
// Alternatives are ordered so the double-star form wins over the
// single-star form at the same position.
var inlineMarkRe = regexp.MustCompile(`\*\*(.+?)\*\*|` + "`([^`\n]+)`" + `|\*([^*\n]+)\*`)

// inline splits a line into text nodes, marking non-overlapping bold,
// code, and italic spans. Scanning is leftmost-first; unmatched markup
// characters pass through as literal text.
func inline(line string) []*Node {
	if line == "" {
		return []*Node{TextNode(" ")}
	}

	var nodes []*Node

	rest := line
	for rest != "" {
		m := inlineMarkRe.FindStringSubmatchIndex(rest)
		if m == nil {
			nodes = append(nodes, TextNode(rest))

			break
		}

		if m[0] > 0 {
			nodes = append(nodes, TextNode(rest[:m[0]]))
		}

		switch {
		case m[2] >= 0:
			nodes = append(nodes, TextNode(rest[m[2]:m[3]], StrongMark()))
		case m[4] >= 0:
			nodes = append(nodes, TextNode(rest[m[4]:m[5]], CodeMark()))
		default:
			nodes = append(nodes, TextNode(rest[m[6]:m[7]], EmMark()))
		}

		rest = rest[m[1]:]
	}

	return nodes
}
