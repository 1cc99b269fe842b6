// Package adf builds Atlassian Document Format trees for tracker
// descriptions and comments.
//
// The builders are pure: the same input always yields the same tree, so
// callers can diff or deduplicate rendered documents. Only the node
// types the sync engine emits are modeled; this is not a general ADF
// library.
package adf

// Node type names as they appear on the wire.
const (
	nodeParagraph   = "paragraph"
	nodeText        = "text"
	nodeHeading     = "heading"
	nodeBulletList  = "bulletList"
	nodeListItem    = "listItem"
	nodeTaskList    = "taskList"
	nodeTaskItem    = "taskItem"
	nodeTable       = "table"
	nodeTableRow    = "tableRow"
	nodeTableHeader = "tableHeader"
	nodeTableCell   = "tableCell"
)

// Task item states.
const (
	taskStateTodo = "TODO"
	taskStateDone = "DONE"
)

// Mark decorates a text node.
type Mark struct {
	Type string `json:"type"`
}

// StrongMark marks text bold.
func StrongMark() Mark { return Mark{Type: "strong"} }

// EmMark marks text italic.
func EmMark() Mark { return Mark{Type: "em"} }

// CodeMark marks text monospaced.
func CodeMark() Mark { return Mark{Type: "code"} }

// Node is one ADF content node.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
	Text    string         `json:"text,omitempty"`
	Content []*Node        `json:"content,omitempty"`
}

// Doc is a complete ADF document, version 1.
type Doc struct {
	Type    string  `json:"type"`
	Version int     `json:"version"`
	Content []*Node `json:"content"`
}

// NewDoc wraps content nodes in a version 1 document. An empty document
// gets a single blank paragraph; Jira rejects documents with no content.
func NewDoc(content ...*Node) *Doc {
	if len(content) == 0 {
		content = []*Node{Paragraph(TextNode(" "))}
	}

	return &Doc{Type: "doc", Version: 1, Content: content}
}

// TextNode builds a text leaf with optional marks.
func TextNode(text string, marks ...Mark) *Node {
	return &Node{Type: nodeText, Text: text, Marks: marks}
}

// Paragraph wraps inline nodes.
func Paragraph(children ...*Node) *Node {
	return &Node{Type: nodeParagraph, Content: children}
}

// Heading builds a heading of the given level.
func Heading(level int, children ...*Node) *Node {
	return &Node{
		Type:    nodeHeading,
		Attrs:   map[string]any{"level": level},
		Content: children,
	}
}

func bulletList(items ...*Node) *Node {
	return &Node{Type: nodeBulletList, Content: items}
}

func listItem(children ...*Node) *Node {
	return &Node{Type: nodeListItem, Content: children}
}

// taskList ids are sequential within one document so rendering stays
// deterministic.
func taskList(localID string, items ...*Node) *Node {
	return &Node{
		Type:    nodeTaskList,
		Attrs:   map[string]any{"localId": localID},
		Content: items,
	}
}

func taskItem(localID string, done bool, children ...*Node) *Node {
	state := taskStateTodo
	if done {
		state = taskStateDone
	}

	return &Node{
		Type:    nodeTaskItem,
		Attrs:   map[string]any{"localId": localID, "state": state},
		Content: children,
	}
}

func table(rows ...*Node) *Node {
	return &Node{
		Type:    nodeTable,
		Attrs:   map[string]any{"isNumberColumnEnabled": false, "layout": "default"},
		Content: rows,
	}
}

func tableRow(cells ...*Node) *Node {
	return &Node{Type: nodeTableRow, Content: cells}
}

func tableHeaderCell(text string) *Node {
	return &Node{
		Type:    nodeTableHeader,
		Content: []*Node{Paragraph(TextNode(text, StrongMark()))},
	}
}

func tableCell(children ...*Node) *Node {
	return &Node{
		Type:    nodeTableCell,
		Content: []*Node{Paragraph(children...)},
	}
}
