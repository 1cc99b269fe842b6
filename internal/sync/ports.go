package sync

import (
	"context"

	"storysync/internal/adf"
	"storysync/internal/parse"
	"storysync/internal/story"
)

// Tracker is the engine's port to the remote issue tracker.
// internal/jira is the production implementation. Implementations carry
// their dry-run posture from construction; the engine additionally skips
// mutating calls during a dry run, so a mutation reaching a live tracker
// is always intentional.
type Tracker interface {
	GetIssue(ctx context.Context, key story.IssueKey) (story.IssueData, error)
	GetEpicChildren(ctx context.Context, epicKey story.IssueKey) ([]story.IssueData, error)
	GetComments(ctx context.Context, key story.IssueKey) ([]story.Comment, error)
	GetStatus(ctx context.Context, key story.IssueKey) (string, error)
	UpdateDescription(ctx context.Context, key story.IssueKey, doc *adf.Doc) error
	CreateSubtask(ctx context.Context, parent story.IssueKey, summary string, doc *adf.Doc, projectKey string, points int) (story.IssueKey, error)
	UpdateSubtask(ctx context.Context, key story.IssueKey, doc *adf.Doc, points int) error
	AddComment(ctx context.Context, key story.IssueKey, doc *adf.Doc) error
	TransitionStatus(ctx context.Context, key story.IssueKey, target string) (bool, error)
}

// Parser turns a document source, path or raw text, into stories.
// parse.Registry is the production implementation.
type Parser interface {
	Parse(source string) (parse.Result, error)
}

// Formatter renders story content into tracker documents.
// adf.Formatter is the production implementation.
type Formatter interface {
	FormatStoryDescription(st story.UserStory) *adf.Doc
	FormatSubtaskDescription(sub story.Subtask) *adf.Doc
	FormatCommitsTable(commits []story.CommitRef) *adf.Doc
}
