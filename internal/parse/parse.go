// Package parse turns user-story documents into domain stories.
//
// Three source formats are supported: markdown (the primary format),
// YAML, and JSON. Every variant enforces the same story ID grammar and
// reports recoverable irregularities as warnings on the Result instead
// of failing the whole document. A hard error is returned only when the
// source itself cannot be read or decoded at all.
package parse

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"storysync/internal/story"
)

var (
	// ErrUnreadableSource marks a source path that exists but cannot be
	// read, or a path-looking argument that does not exist.
	ErrUnreadableSource = errors.New("unreadable source")

	// ErrMalformedSource marks YAML or JSON input that cannot be decoded.
	ErrMalformedSource = errors.New("malformed source")
)

// Parser is implemented by every source format variant.
type Parser interface {
	// Name identifies the format ("markdown", "yaml", "json").
	Name() string

	// Extensions lists the file extensions this variant claims.
	Extensions() []string

	// CanParse reports whether source looks like this variant's format.
	// It never returns an error; unreadable sources are simply not claimed.
	CanParse(source string) bool

	// Parse extracts stories plus the warnings collected along the way.
	Parse(source string) (Result, error)

	// ParseStories is Parse reduced to its story list.
	ParseStories(source string) ([]story.UserStory, error)

	// Validate reports human-readable completeness problems, one per line.
	Validate(source string) []string
}

// Result is the outcome of parsing one document.
type Result struct {
	Stories   []story.UserStory
	Warnings  []Warning
	Source    string
	EpicKey   story.IssueKey
	EpicTitle string
}

func (r *Result) add(w Warning) {
	r.Warnings = append(r.Warnings, w)
}

// inlineSource labels results parsed from raw content instead of a file.
const inlineSource = "<inline>"

// readSource accepts either a file path or raw document content.
// Content is recognized by embedded newlines; a newline-free string is
// treated as a path first and falls back to content only when it does
// not look like a path.
func readSource(source string) (string, error) {
	if strings.ContainsRune(source, '\n') {
		return source, nil
	}

	data, readErr := os.ReadFile(source) //nolint:gosec // callers hand us user-chosen document paths
	if readErr == nil {
		return string(data), nil
	}

	if os.IsNotExist(readErr) && !looksLikePath(source) {
		return source, nil
	}

	return "", fmt.Errorf("%w: %v", ErrUnreadableSource, readErr)
}

// looksLikePath guards against silently treating a mistyped document
// path as inline content.
func looksLikePath(source string) bool {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".md", ".markdown", ".yaml", ".yml", ".json":
		return true
	}

	return strings.ContainsAny(source, `/\`)
}

// sourceExt returns the lowercased file extension when source is a
// path, or "" when it is raw content.
func sourceExt(source string) string {
	if strings.ContainsRune(source, '\n') {
		return ""
	}

	return strings.ToLower(filepath.Ext(source))
}

func sourceLabel(source string) string {
	if strings.ContainsRune(source, '\n') {
		return inlineSource
	}

	return source
}

// dedupeStories appends stories to the result, keeping only the first
// occurrence of each ID.
func dedupeStories(stories []story.UserStory, res *Result) {
	seen := make(map[story.ID]bool, len(stories))

	for _, st := range stories {
		if seen[st.ID] {
			res.add(Warning{
				Code:       CodeDuplicateStoryID,
				Message:    fmt.Sprintf("story ID %s appears more than once; keeping the first", st.ID),
				Location:   Location{StoryID: st.ID},
				Suggestion: "give every story a unique ID",
			})

			continue
		}

		seen[st.ID] = true
		res.Stories = append(res.Stories, st)
	}
}

// validateStories reports completeness problems shared by all variants.
func validateStories(stories []story.UserStory) []string {
	if len(stories) == 0 {
		return []string{"no user stories found"}
	}

	var problems []string

	for _, st := range stories {
		if st.StoryPoints == 0 {
			problems = append(problems, fmt.Sprintf("%s: missing story points", st.ID))
		}

		if st.Description.IsZero() {
			problems = append(problems, fmt.Sprintf("%s: missing 'As a / I want / So that' description", st.ID))
		}

		if len(st.AcceptanceCriteria) == 0 {
			problems = append(problems, fmt.Sprintf("%s: no acceptance criteria", st.ID))
		}
	}

	return problems
}
