// Package jira is the tracker adapter: it implements the sync engine's
// tracker port against the Jira Cloud REST API v3.
//
// The client is deliberately thin. It translates remote JSON into
// story.IssueData on every call (no caching), keeps descriptions as
// opaque raw JSON, and holds its dry-run posture from construction so a
// dry client can never mutate even when called directly.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"storysync/internal/adf"
	"storysync/internal/story"
)

const apiPrefix = "/rest/api/3"

// searchPageSize bounds epic-children queries. Epics in this workflow
// hold far fewer stories than one page.
const searchPageSize = 100

// Reference-instance defaults, overridable via Options.
const (
	defaultPointsField = "customfield_10014"
	defaultSubtaskType = "Sub-task"
	defaultTimeout     = 30 * time.Second
)

// issueFields is the field set requested for issues and epic children.
var issueFields = []string{"summary", "description", "status", "issuetype", "subtasks"}

// Options configures a Client.
type Options struct {
	BaseURL  string
	Email    string
	APIToken string

	// StoryPointsField is the custom field id carrying story points.
	StoryPointsField string
	// SubtaskIssueType is the issue type name used for created subtasks.
	SubtaskIssueType string
	// Timeout applies per request when no HTTPClient is supplied.
	Timeout time.Duration
	// DryRun makes every mutating method log its intent and succeed
	// without a network call.
	DryRun bool
	// Transitions is the workflow table for TransitionStatus; nil means
	// DefaultTransitions.
	Transitions []TransitionRule

	Log *zap.SugaredLogger
	// HTTPClient overrides the default client, for tests.
	HTTPClient *http.Client
}

// Client talks to one Jira instance with basic auth.
type Client struct {
	baseURL     string
	email       string
	apiToken    string
	pointsField string
	subtaskType string
	dryRun      bool
	transitions []TransitionRule
	http        *http.Client
	log         *zap.SugaredLogger
}

// NewClient validates opts and builds a Client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, ErrBaseURLRequired
	}

	pointsField := opts.StoryPointsField
	if pointsField == "" {
		pointsField = defaultPointsField
	}

	subtaskType := opts.SubtaskIssueType
	if subtaskType == "" {
		subtaskType = defaultSubtaskType
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transitions := opts.Transitions
	if transitions == nil {
		transitions = DefaultTransitions()
	}

	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		email:       opts.Email,
		apiToken:    opts.APIToken,
		pointsField: pointsField,
		subtaskType: subtaskType,
		dryRun:      opts.DryRun,
		transitions: transitions,
		http:        httpClient,
		log:         log,
	}, nil
}

// GetIssue fetches one issue with the fields the sync engine reads.
func (c *Client) GetIssue(ctx context.Context, key story.IssueKey) (story.IssueData, error) {
	var issue apiIssue

	path := fmt.Sprintf("/issue/%s?fields=%s", key, strings.Join(issueFields, ","))
	if err := c.do(ctx, http.MethodGet, path, nil, &issue); err != nil {
		return story.IssueData{}, err
	}

	return issue.toIssueData(), nil
}

// GetEpicChildren returns the issues whose parent is epicKey, in key
// order.
func (c *Client) GetEpicChildren(ctx context.Context, epicKey story.IssueKey) ([]story.IssueData, error) {
	body := searchRequest{
		JQL:        fmt.Sprintf("parent = %s ORDER BY key ASC", epicKey),
		MaxResults: searchPageSize,
		Fields:     issueFields,
	}

	var page searchResponse

	if err := c.do(ctx, http.MethodPost, "/search/jql", body, &page); err != nil {
		return nil, err
	}

	children := make([]story.IssueData, 0, len(page.Issues))
	for _, issue := range page.Issues {
		children = append(children, issue.toIssueData())
	}

	return children, nil
}

// GetComments returns the comments on an issue, bodies kept as raw JSON.
func (c *Client) GetComments(ctx context.Context, key story.IssueKey) ([]story.Comment, error) {
	var page commentPage

	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/issue/%s/comment", key), nil, &page); err != nil {
		return nil, err
	}

	comments := make([]story.Comment, 0, len(page.Comments))
	for _, comment := range page.Comments {
		comments = append(comments, story.Comment{ID: comment.ID, Body: rawString(comment.Body)})
	}

	return comments, nil
}

// GetStatus returns the current status name of an issue.
func (c *Client) GetStatus(ctx context.Context, key story.IssueKey) (string, error) {
	var issue apiIssue

	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/issue/%s?fields=status", key), nil, &issue); err != nil {
		return "", err
	}

	return issue.Fields.Status.Name, nil
}

// UpdateDescription replaces the description of an issue.
func (c *Client) UpdateDescription(ctx context.Context, key story.IssueKey, doc *adf.Doc) error {
	if c.dryRun {
		c.log.Infof("DRY RUN: would update description of %s", key)

		return nil
	}

	body := map[string]any{"fields": map[string]any{"description": doc}}

	if err := c.do(ctx, http.MethodPut, "/issue/"+key.String(), body, nil); err != nil {
		return err
	}

	c.log.Debugf("updated description of %s", key)

	return nil
}

// CreateSubtask creates a subtask under parent and returns the new key.
func (c *Client) CreateSubtask(ctx context.Context, parent story.IssueKey, summary string, doc *adf.Doc, projectKey string, points int) (story.IssueKey, error) {
	if c.dryRun {
		c.log.Infof("DRY RUN: would create subtask %q under %s", truncate(summary, 50), parent)

		return "", nil
	}

	fields := map[string]any{
		"project":     map[string]string{"key": projectKey},
		"parent":      map[string]string{"key": parent.String()},
		"summary":     truncate(summary, 255),
		"description": doc,
		"issuetype":   map[string]string{"name": c.subtaskType},
	}

	if points > 0 {
		fields[c.pointsField] = float64(points)
	}

	var created struct {
		Key string `json:"key"`
	}

	if err := c.do(ctx, http.MethodPost, "/issue", map[string]any{"fields": fields}, &created); err != nil {
		return "", err
	}

	c.log.Infof("created subtask %s under %s", created.Key, parent)

	return story.IssueKey(created.Key), nil
}

// UpdateSubtask updates the description and story points of an existing
// subtask. A nil doc leaves the description alone.
func (c *Client) UpdateSubtask(ctx context.Context, key story.IssueKey, doc *adf.Doc, points int) error {
	if c.dryRun {
		c.log.Infof("DRY RUN: would update subtask %s", key)

		return nil
	}

	fields := map[string]any{}

	if doc != nil {
		fields["description"] = doc
	}

	if points > 0 {
		fields[c.pointsField] = float64(points)
	}

	if len(fields) == 0 {
		return nil
	}

	if err := c.do(ctx, http.MethodPut, "/issue/"+key.String(), map[string]any{"fields": fields}, nil); err != nil {
		return err
	}

	c.log.Debugf("updated subtask %s", key)

	return nil
}

// AddComment posts a comment document to an issue.
func (c *Client) AddComment(ctx context.Context, key story.IssueKey, doc *adf.Doc) error {
	if c.dryRun {
		c.log.Infof("DRY RUN: would add comment to %s", key)

		return nil
	}

	body := map[string]any{"body": doc}

	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/issue/%s/comment", key), body, nil); err != nil {
		return err
	}

	c.log.Debugf("added comment to %s", key)

	return nil
}

// TransitionStatus walks the configured workflow path toward target,
// re-fetching the current status before each step and applying a step
// only from its expected source status. It reports whether the issue
// ended at the target.
func (c *Client) TransitionStatus(ctx context.Context, key story.IssueKey, target string) (bool, error) {
	if c.dryRun {
		c.log.Infof("DRY RUN: would transition %s to %s", key, target)

		return true, nil
	}

	current, statusErr := c.GetStatus(ctx, key)
	if statusErr != nil {
		return false, statusErr
	}

	if strings.EqualFold(current, target) {
		return true, nil
	}

	steps := stepsFor(c.transitions, target)
	if steps == nil {
		return false, fmt.Errorf("%w: no transition path to %q", ErrTransition, target)
	}

	for _, step := range steps {
		current, statusErr = c.GetStatus(ctx, key)
		if statusErr != nil {
			return false, statusErr
		}

		if current != step.From {
			continue
		}

		if applyErr := c.applyTransition(ctx, key, step); applyErr != nil {
			return false, applyErr
		}

		c.log.Debugf("transitioned %s from %s via id %d", key, step.From, step.ID)
	}

	final, finalErr := c.GetStatus(ctx, key)
	if finalErr != nil {
		return false, finalErr
	}

	return strings.Contains(strings.ToLower(final), strings.ToLower(target)), nil
}

func (c *Client) applyTransition(ctx context.Context, key story.IssueKey, step TransitionStep) error {
	payload := map[string]any{
		"transition": map[string]string{"id": strconv.Itoa(step.ID)},
	}

	if step.Resolution != "" {
		payload["fields"] = map[string]any{
			"resolution": map[string]string{"name": step.Resolution},
		}
	}

	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/issue/%s/transitions", key), payload, nil); err != nil {
		return fmt.Errorf("%w: %s from %s via id %d: %w", ErrTransition, key, step.From, step.ID, err)
	}

	return nil
}

// do performs one authenticated request. out, when non-nil, receives the
// decoded JSON response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader

	if body != nil {
		data, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return fmt.Errorf("encoding %s %s request: %w", method, path, marshalErr)
		}

		payload = bytes.NewReader(data)
	}

	req, reqErr := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, payload)
	if reqErr != nil {
		return fmt.Errorf("building %s %s request: %w", method, path, reqErr)
	}

	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, doErr := c.http.Do(req)
	if doErr != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTracker, method, path, doErr)
	}
	defer resp.Body.Close()

	if statusErr := classifyStatus(resp, method, path); statusErr != nil {
		return statusErr
	}

	if out == nil {
		return nil
	}

	if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
		return fmt.Errorf("%w: decoding %s %s response: %w", ErrTracker, method, path, decodeErr)
	}

	return nil
}

// classifyStatus maps HTTP error statuses to the sentinel hierarchy.
func classifyStatus(resp *http.Response, method, path string) error {
	status := resp.StatusCode
	if status >= 200 && status < 300 {
		return nil
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s %s", ErrAuthentication, method, path)
	case status == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s", ErrPermission, method, path)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s %s", ErrRateLimit, method, path)
	case status >= 500:
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrTransient, method, path, status, readSnippet(resp.Body))
	default:
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrTracker, method, path, status, readSnippet(resp.Body))
	}
}

// readSnippet returns at most 500 bytes of the response body for error
// messages.
func readSnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 500))

	return strings.TrimSpace(string(data))
}

// truncate clips s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}

// Wire shapes, field subset only.

type apiIssue struct {
	Key    string    `json:"key"`
	Fields apiFields `json:"fields"`
}

type apiFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description"`
	Status      apiName         `json:"status"`
	IssueType   apiName         `json:"issuetype"`
	Subtasks    []apiIssue      `json:"subtasks"`
}

type apiName struct {
	Name string `json:"name"`
}

type searchRequest struct {
	JQL        string   `json:"jql"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields"`
}

type searchResponse struct {
	Issues []apiIssue `json:"issues"`
}

type commentPage struct {
	Comments []apiComment `json:"comments"`
}

type apiComment struct {
	ID   string          `json:"id"`
	Body json.RawMessage `json:"body"`
}

func (i apiIssue) toIssueData() story.IssueData {
	subtasks := make([]story.IssueData, 0, len(i.Fields.Subtasks))
	for _, st := range i.Fields.Subtasks {
		subtasks = append(subtasks, st.toIssueData())
	}

	return story.IssueData{
		Key:         story.IssueKey(i.Key),
		Summary:     i.Fields.Summary,
		Description: rawString(i.Fields.Description),
		Status:      i.Fields.Status.Name,
		IssueType:   i.Fields.IssueType.Name,
		Subtasks:    subtasks,
	}
}

// rawString renders a raw JSON value as an opaque string; an absent
// field becomes "null" so IssueData.HasDescription treats it as empty.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}

	return string(raw)
}
