package sync

import "storysync/internal/story"

// MatchedPair links one local story to the remote issue it claimed.
type MatchedPair struct {
	StoryID  story.ID       `json:"story_id"`
	IssueKey story.IssueKey `json:"issue_key"`
}

// Result aggregates the outcome of one analyze or sync invocation. One
// instance per invocation, never reused. Success flips to false the
// moment an error is recorded; warnings leave it untouched.
type Result struct {
	DryRun bool `json:"dry_run"`

	StoriesMatched  int `json:"stories_matched"`
	StoriesUpdated  int `json:"stories_updated"`
	SubtasksCreated int `json:"subtasks_created"`
	SubtasksUpdated int `json:"subtasks_updated"`
	CommentsAdded   int `json:"comments_added"`
	StatusesUpdated int `json:"statuses_updated"`

	Matches   []MatchedPair `json:"matches"`
	Unmatched []story.ID    `json:"unmatched"`
	Warnings  []string      `json:"warnings"`
	Errors    []string      `json:"errors"`

	Success bool `json:"success"`
}

func newResult(dryRun bool) *Result {
	return &Result{DryRun: dryRun, Success: true}
}

// AddError records a failed operation and marks the run unsuccessful.
func (r *Result) AddError(err error) {
	if err == nil {
		return
	}

	r.Errors = append(r.Errors, err.Error())
	r.Success = false
}

// AddWarning records a non-fatal irregularity.
func (r *Result) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Mutations reports the total number of tracker mutations performed, or
// in a dry run, the number that would have been performed.
func (r *Result) Mutations() int {
	return r.StoriesUpdated + r.SubtasksCreated + r.SubtasksUpdated + r.CommentsAdded + r.StatusesUpdated
}
