// Package sync reconciles user stories parsed from a document with their
// remote tracker issues.
//
// A run walks five ordered phases: analyze (parse, fetch, match), update
// descriptions, sync subtasks, add comments, sync statuses. Only the
// analyze phase is fatal on failure; every later operation that fails is
// recorded on the Result and the run continues with the next item. Each
// mutation phase re-checks remote state before acting, so re-running a
// sync is idempotent for already-synced items.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storysync/internal/hook"
	"storysync/internal/story"
)

// Phase names one mutation phase.
type Phase string

const (
	PhaseDescriptions Phase = "descriptions"
	PhaseSubtasks     Phase = "subtasks"
	PhaseComments     Phase = "comments"
	PhaseStatuses     Phase = "statuses"
)

// ErrUnknownPhase rejects a phase name outside the fixed set.
var ErrUnknownPhase = errors.New("unknown phase")

// ErrNoEpic means neither the caller nor the document named an epic.
var ErrNoEpic = errors.New("no epic key given and none found in the document")

// ParsePhase resolves a user-supplied phase name.
func ParsePhase(name string) (Phase, error) {
	switch Phase(strings.ToLower(strings.TrimSpace(name))) {
	case PhaseDescriptions:
		return PhaseDescriptions, nil
	case PhaseSubtasks:
		return PhaseSubtasks, nil
	case PhaseComments:
		return PhaseComments, nil
	case PhaseStatuses:
		return PhaseStatuses, nil
	default:
		return "", fmt.Errorf("%w: %q (valid: descriptions, subtasks, comments, statuses)", ErrUnknownPhase, name)
	}
}

// Phases toggles the mutation phases of a full Sync.
type Phases struct {
	Descriptions bool
	Subtasks     bool
	Comments     bool
	Statuses     bool
}

// AllPhases enables every mutation phase.
func AllPhases() Phases {
	return Phases{Descriptions: true, Subtasks: true, Comments: true, Statuses: true}
}

// Enable switches one phase on.
func (p *Phases) Enable(ph Phase) {
	switch ph {
	case PhaseDescriptions:
		p.Descriptions = true
	case PhaseSubtasks:
		p.Subtasks = true
	case PhaseComments:
		p.Comments = true
	case PhaseStatuses:
		p.Statuses = true
	}
}

// Any reports whether at least one phase is enabled.
func (p Phases) Any() bool {
	return p.Descriptions || p.Subtasks || p.Comments || p.Statuses
}

// subtaskProbeLen is how much of a local subtask name takes part in the
// already-present containment check against remote summaries.
const subtaskProbeLen = 30

// commitsCommentMarker makes the commits comment recognizable; an issue
// with any comment containing it is treated as already synced.
const commitsCommentMarker = "Related Commits"

// transitionTarget is the status requested for unresolved subtasks of
// completed stories.
const transitionTarget = "Done"

// resolvedStates are remote statuses that need no transition.
var resolvedStates = map[string]struct{}{
	"done":     {},
	"resolved": {},
	"closed":   {},
}

// Options configures an Engine.
type Options struct {
	Tracker   Tracker
	Parser    Parser
	Formatter Formatter

	// Hooks is optional; nil gets a fresh manager with no subscribers.
	Hooks *hook.Manager
	// Log is optional; nil gets a nop logger.
	Log *zap.SugaredLogger

	// DryRun makes every mutation phase log intent, count, and skip the
	// tracker call.
	DryRun bool
	// Phases selects the mutation phases run by Sync. The zero value
	// means all phases.
	Phases Phases
	// StoryFilter, when set, restricts every mutation phase to one story.
	StoryFilter story.ID
	// ProjectKey is used when creating subtasks; empty derives it from
	// the parent issue key.
	ProjectKey string
}

// Engine drives the phased reconciliation. One sync in flight per
// engine; the match table built by analyze is read by the phases of the
// same call.
type Engine struct {
	tracker   Tracker
	parser    Parser
	formatter Formatter
	hooks     *hook.Manager
	log       *zap.SugaredLogger

	dryRun  bool
	phases  Phases
	filter  story.ID
	project string

	matches map[story.ID]story.IssueKey
	remote  map[story.IssueKey]story.IssueData
}

// NewEngine builds an Engine. Tracker, Parser, and Formatter are
// required; passing nil is a programmer error and panics.
func NewEngine(opts Options) *Engine {
	if opts.Tracker == nil {
		panic("sync: nil Tracker")
	}

	if opts.Parser == nil {
		panic("sync: nil Parser")
	}

	if opts.Formatter == nil {
		panic("sync: nil Formatter")
	}

	hooks := opts.Hooks
	if hooks == nil {
		hooks = hook.NewManager(nil)
	}

	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	phases := opts.Phases
	if !phases.Any() {
		phases = AllPhases()
	}

	return &Engine{
		tracker:   opts.Tracker,
		parser:    opts.Parser,
		formatter: opts.Formatter,
		hooks:     hooks,
		log:       log,
		dryRun:    opts.DryRun,
		phases:    phases,
		filter:    opts.StoryFilter,
		project:   opts.ProjectKey,
	}
}

// Hooks exposes the engine's hook manager so callers can subscribe and
// read the event history.
func (e *Engine) Hooks() *hook.Manager { return e.hooks }

// Analyze parses the document, fetches the epic's children, and matches
// stories to issues. Read-only and safe to repeat.
func (e *Engine) Analyze(ctx context.Context, source string, epicKey story.IssueKey) (*Result, error) {
	res := newResult(e.dryRun)

	if _, _, err := e.analyze(ctx, source, epicKey, res); err != nil {
		res.AddError(err)

		return res, err
	}

	return res, nil
}

// Sync runs analyze followed by the configured mutation phases.
func (e *Engine) Sync(ctx context.Context, source string, epicKey story.IssueKey) (*Result, error) {
	return e.run(ctx, source, epicKey, e.phases)
}

// SyncDescriptionsOnly runs analyze plus the description phase.
func (e *Engine) SyncDescriptionsOnly(ctx context.Context, source string, epicKey story.IssueKey) (*Result, error) {
	return e.run(ctx, source, epicKey, Phases{Descriptions: true})
}

// SyncSubtasksOnly runs analyze plus the subtask phase.
func (e *Engine) SyncSubtasksOnly(ctx context.Context, source string, epicKey story.IssueKey) (*Result, error) {
	return e.run(ctx, source, epicKey, Phases{Subtasks: true})
}

// SyncCommentsOnly runs analyze plus the comment phase.
func (e *Engine) SyncCommentsOnly(ctx context.Context, source string, epicKey story.IssueKey) (*Result, error) {
	return e.run(ctx, source, epicKey, Phases{Comments: true})
}

// SyncStatusesOnly runs analyze plus the status phase.
func (e *Engine) SyncStatusesOnly(ctx context.Context, source string, epicKey story.IssueKey) (*Result, error) {
	return e.run(ctx, source, epicKey, Phases{Statuses: true})
}

func (e *Engine) run(ctx context.Context, source string, epicKey story.IssueKey, phases Phases) (*Result, error) {
	res := newResult(e.dryRun)

	e.trigger(ctx, hook.BeforeSync, hook.Event{Phase: "sync"})

	stories, _, analyzeErr := e.analyze(ctx, source, epicKey, res)
	if analyzeErr != nil {
		res.AddError(analyzeErr)
		e.trigger(ctx, hook.OnError, hook.Event{Err: analyzeErr})

		return res, analyzeErr
	}

	steps := []struct {
		enabled bool
		name    Phase
		fn      func(context.Context, []story.UserStory, *Result) error
	}{
		{phases.Descriptions, PhaseDescriptions, e.syncDescriptions},
		{phases.Subtasks, PhaseSubtasks, e.syncSubtasks},
		{phases.Comments, PhaseComments, e.syncComments},
		{phases.Statuses, PhaseStatuses, e.syncStatuses},
	}

	for _, step := range steps {
		if !step.enabled {
			continue
		}

		e.log.Infow("phase start", "phase", string(step.name), "dry_run", e.dryRun)

		if err := step.fn(ctx, stories, res); err != nil {
			res.AddError(err)

			return res, err
		}
	}

	e.trigger(ctx, hook.AfterSync, hook.Event{Phase: "sync"})

	return res, nil
}

// analyze is the shared fatal first phase: parse, verify epic, fetch
// children, match. It fills the engine's match table and remote snapshot.
func (e *Engine) analyze(ctx context.Context, source string, epicKey story.IssueKey, res *Result) ([]story.UserStory, []story.IssueData, error) {
	e.trigger(ctx, hook.BeforeParse, hook.Event{})

	parsed, parseErr := e.parser.Parse(source)
	if parseErr != nil {
		return nil, nil, fmt.Errorf("parsing document: %w", parseErr)
	}

	e.trigger(ctx, hook.AfterParse, hook.Event{})

	for _, w := range parsed.Warnings {
		res.AddWarning(w.String())
	}

	if epicKey == "" {
		epicKey = parsed.EpicKey
	}

	if epicKey == "" {
		return nil, nil, ErrNoEpic
	}

	if _, epicErr := e.tracker.GetIssue(ctx, epicKey); epicErr != nil {
		return nil, nil, fmt.Errorf("verifying epic %s: %w", epicKey, epicErr)
	}

	children, fetchErr := e.tracker.GetEpicChildren(ctx, epicKey)
	if fetchErr != nil {
		return nil, nil, fmt.Errorf("fetching children of %s: %w", epicKey, fetchErr)
	}

	e.log.Infow("analyze", "epic", epicKey.String(), "stories", len(parsed.Stories), "issues", len(children))

	e.trigger(ctx, hook.BeforeMatch, hook.Event{IssueKey: epicKey})

	table := matchStories(parsed.Stories, children)

	e.matches = table.pairs
	e.remote = make(map[story.IssueKey]story.IssueData, len(children))

	for _, issue := range children {
		e.remote[issue.Key] = issue
	}

	res.StoriesMatched = len(table.matches)
	res.Matches = table.matches
	res.Unmatched = table.unmatched

	for _, w := range table.warnings {
		res.AddWarning(w)
	}

	e.trigger(ctx, hook.AfterMatch, hook.Event{IssueKey: epicKey})

	for _, id := range table.unmatched {
		e.log.Infow("no remote match", "story", string(id))
		e.trigger(ctx, hook.OnMatchFailure, hook.Event{StoryID: id})
	}

	return parsed.Stories, children, nil
}

// syncDescriptions pushes the formatted story description to each
// matched issue that does not carry one yet. Stories without a local
// description do not participate.
func (e *Engine) syncDescriptions(ctx context.Context, stories []story.UserStory, res *Result) error {
	for _, st := range stories {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		key, ok := e.matches[st.ID]
		if !ok || e.skipStory(st.ID) || st.Description.IsZero() {
			continue
		}

		if e.remote[key].HasDescription() {
			e.log.Debugw("description already present", "issue", key.String())

			continue
		}

		hc := e.trigger(ctx, hook.BeforeUpdateDescription, hook.Event{StoryID: st.ID, IssueKey: key, Phase: string(PhaseDescriptions)})
		if hc.Cancelled() {
			res.AddWarning(fmt.Sprintf("description update for %s skipped by hook", st.ID))

			continue
		}

		if e.dryRun {
			e.log.Infof("DRY RUN: would update description of %s for %s", key, st.ID)
			res.StoriesUpdated++

			continue
		}

		if err := e.tracker.UpdateDescription(ctx, key, e.formatter.FormatStoryDescription(st)); err != nil {
			e.fail(ctx, res, hook.Event{StoryID: st.ID, IssueKey: key, Phase: string(PhaseDescriptions), Err: fmt.Errorf("updating description of %s: %w", key, err)})

			continue
		}

		res.StoriesUpdated++
		e.trigger(ctx, hook.AfterUpdateDescription, hook.Event{StoryID: st.ID, IssueKey: key, Phase: string(PhaseDescriptions)})
	}

	return nil
}

// syncSubtasks creates missing subtasks and refreshes present ones, using
// the analyze snapshot of remote subtasks for the already-present check.
func (e *Engine) syncSubtasks(ctx context.Context, stories []story.UserStory, res *Result) error {
	for _, st := range stories {
		key, ok := e.matches[st.ID]
		if !ok || e.skipStory(st.ID) {
			continue
		}

		existing := e.remote[key].Subtasks

		for _, sub := range st.Subtasks {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			localName := strings.ToLower(strings.TrimSpace(sub.Name))
			if localName == "" {
				continue
			}

			if remote, present := findRemoteSubtask(existing, localName); present {
				e.updateSubtask(ctx, st.ID, remote.Key, sub, res)

				continue
			}

			e.createSubtask(ctx, st.ID, key, sub, res)
		}
	}

	return nil
}

func (e *Engine) updateSubtask(ctx context.Context, id story.ID, key story.IssueKey, sub story.Subtask, res *Result) {
	if e.dryRun {
		e.log.Infof("DRY RUN: would update subtask %s (%q) for %s", key, sub.Name, id)
		res.SubtasksUpdated++

		return
	}

	if err := e.tracker.UpdateSubtask(ctx, key, e.formatter.FormatSubtaskDescription(sub), sub.StoryPoints); err != nil {
		e.fail(ctx, res, hook.Event{StoryID: id, IssueKey: key, Phase: string(PhaseSubtasks), Err: fmt.Errorf("updating subtask %s: %w", key, err)})

		return
	}

	res.SubtasksUpdated++
}

func (e *Engine) createSubtask(ctx context.Context, id story.ID, parent story.IssueKey, sub story.Subtask, res *Result) {
	hc := e.trigger(ctx, hook.BeforeCreateSubtask, hook.Event{StoryID: id, IssueKey: parent, Phase: string(PhaseSubtasks)})
	if hc.Cancelled() {
		res.AddWarning(fmt.Sprintf("subtask %q for %s skipped by hook", sub.Name, id))

		return
	}

	if e.dryRun {
		e.log.Infof("DRY RUN: would create subtask %q under %s for %s", sub.Name, parent, id)
		res.SubtasksCreated++

		return
	}

	project := e.project
	if project == "" {
		project = parent.ProjectKey()
	}

	doc := e.formatter.FormatSubtaskDescription(sub)

	created, err := e.tracker.CreateSubtask(ctx, parent, sub.Name, doc, project, sub.StoryPoints)
	if err != nil {
		e.fail(ctx, res, hook.Event{StoryID: id, IssueKey: parent, Phase: string(PhaseSubtasks), Err: fmt.Errorf("creating subtask %q under %s: %w", sub.Name, parent, err)})

		return
	}

	res.SubtasksCreated++
	e.trigger(ctx, hook.AfterCreateSubtask, hook.Event{StoryID: id, IssueKey: created, Phase: string(PhaseSubtasks)})
}

// findRemoteSubtask reports the first remote subtask whose summary
// contains the first 30 characters of the local name, or whose summary is
// itself contained in the local name. The probe is cut on runes so a
// multi-byte name is never split mid-character.
func findRemoteSubtask(existing []story.IssueData, localName string) (story.IssueData, bool) {
	probe := localName
	if runes := []rune(probe); len(runes) > subtaskProbeLen {
		probe = string(runes[:subtaskProbeLen])
	}

	for _, remote := range existing {
		summary := strings.ToLower(strings.TrimSpace(remote.Summary))
		if summary == "" {
			continue
		}

		if strings.Contains(summary, probe) || strings.Contains(localName, summary) {
			return remote, true
		}
	}

	return story.IssueData{}, false
}

// syncComments posts the commits table to each matched issue that has
// local commits and no comment carrying the marker yet.
func (e *Engine) syncComments(ctx context.Context, stories []story.UserStory, res *Result) error {
	for _, st := range stories {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		key, ok := e.matches[st.ID]
		if !ok || e.skipStory(st.ID) || len(st.Commits) == 0 {
			continue
		}

		comments, listErr := e.tracker.GetComments(ctx, key)
		if listErr != nil {
			e.fail(ctx, res, hook.Event{StoryID: st.ID, IssueKey: key, Phase: string(PhaseComments), Err: fmt.Errorf("listing comments of %s: %w", key, listErr)})

			continue
		}

		if hasCommitsComment(comments) {
			e.log.Debugw("commits comment already present", "issue", key.String())

			continue
		}

		hc := e.trigger(ctx, hook.BeforeAddComment, hook.Event{StoryID: st.ID, IssueKey: key, Phase: string(PhaseComments)})
		if hc.Cancelled() {
			res.AddWarning(fmt.Sprintf("commits comment for %s skipped by hook", st.ID))

			continue
		}

		if e.dryRun {
			e.log.Infof("DRY RUN: would add commits comment to %s (%d commits)", key, len(st.Commits))
			res.CommentsAdded++

			continue
		}

		if err := e.tracker.AddComment(ctx, key, e.formatter.FormatCommitsTable(st.Commits)); err != nil {
			e.fail(ctx, res, hook.Event{StoryID: st.ID, IssueKey: key, Phase: string(PhaseComments), Err: fmt.Errorf("adding comment to %s: %w", key, err)})

			continue
		}

		res.CommentsAdded++
		e.trigger(ctx, hook.AfterAddComment, hook.Event{StoryID: st.ID, IssueKey: key, Phase: string(PhaseComments)})
	}

	return nil
}

func hasCommitsComment(comments []story.Comment) bool {
	for _, c := range comments {
		if strings.Contains(c.Body, commitsCommentMarker) {
			return true
		}
	}

	return false
}

// syncStatuses transitions unresolved remote subtasks of completed
// stories. The issue is re-fetched here so subtasks created earlier in
// the same run are visible.
func (e *Engine) syncStatuses(ctx context.Context, stories []story.UserStory, res *Result) error {
	for _, st := range stories {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		key, ok := e.matches[st.ID]
		if !ok || e.skipStory(st.ID) || !st.Status.IsComplete() {
			continue
		}

		fresh, fetchErr := e.tracker.GetIssue(ctx, key)
		if fetchErr != nil {
			e.fail(ctx, res, hook.Event{StoryID: st.ID, IssueKey: key, Phase: string(PhaseStatuses), Err: fmt.Errorf("refreshing %s: %w", key, fetchErr)})

			continue
		}

		for _, sub := range fresh.Subtasks {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			if isResolved(sub.Status) {
				continue
			}

			hc := e.trigger(ctx, hook.BeforeTransition, hook.Event{StoryID: st.ID, IssueKey: sub.Key, Phase: string(PhaseStatuses)})
			if hc.Cancelled() {
				res.AddWarning(fmt.Sprintf("transition of %s skipped by hook", sub.Key))

				continue
			}

			if e.dryRun {
				e.log.Infof("DRY RUN: would transition %s to %s", sub.Key, transitionTarget)
				res.StatusesUpdated++

				continue
			}

			done, trErr := e.tracker.TransitionStatus(ctx, sub.Key, transitionTarget)
			if trErr != nil {
				e.fail(ctx, res, hook.Event{StoryID: st.ID, IssueKey: sub.Key, Phase: string(PhaseStatuses), Err: fmt.Errorf("transitioning %s: %w", sub.Key, trErr)})

				continue
			}

			if !done {
				res.AddWarning(fmt.Sprintf("subtask %s did not reach %s", sub.Key, transitionTarget))

				continue
			}

			res.StatusesUpdated++
			e.trigger(ctx, hook.AfterTransition, hook.Event{StoryID: st.ID, IssueKey: sub.Key, Phase: string(PhaseStatuses)})
		}
	}

	return nil
}

func isResolved(status string) bool {
	_, ok := resolvedStates[strings.ToLower(strings.TrimSpace(status))]

	return ok
}

func (e *Engine) skipStory(id story.ID) bool {
	return e.filter != "" && e.filter != id
}

// trigger fires a hook point and logs subscriber errors; they never stop
// the run.
func (e *Engine) trigger(ctx context.Context, point hook.Point, ev hook.Event) *hook.Context {
	hc := hook.NewContext(ev)
	e.hooks.Trigger(ctx, point, hc)

	if hookErr := hc.Err(); hookErr != nil {
		e.log.Warnw("hook subscribers failed", "point", string(point), "error", hookErr)
	}

	return hc
}

// fail records one operation failure and fires OnError; the phase moves
// on to the next item.
func (e *Engine) fail(ctx context.Context, res *Result, ev hook.Event) {
	e.log.Warnw("sync operation failed", "story", string(ev.StoryID), "issue", ev.IssueKey.String(), "error", ev.Err)
	res.AddError(ev.Err)
	e.trigger(ctx, hook.OnError, ev)
}
