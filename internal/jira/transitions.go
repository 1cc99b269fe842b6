package jira

import "strings"

// TransitionStep is one workflow move: apply the transition with ID when
// the issue currently sits at the From status. Resolution, when set, is
// written alongside the transition.
type TransitionStep struct {
	From       string `json:"from"`
	ID         int    `json:"id"`
	Resolution string `json:"resolution,omitempty"`
}

// TransitionRule maps a requested target status to the ordered steps that
// reach it. A rule applies when its Target occurs in the lowercased
// requested status, so "progress" covers both "In Progress" and
// "progress". Rules are tried in order; the first hit wins.
type TransitionRule struct {
	Target string           `json:"target"`
	Steps  []TransitionStep `json:"steps"`
}

// DefaultTransitions is the reference workflow path
// Analyze -> Open -> In Progress -> Done with transition ids 7, 4, 5.
// Projects with a different workflow override it via the config file.
func DefaultTransitions() []TransitionRule {
	donePath := []TransitionStep{
		{From: "Analyze", ID: 7},
		{From: "Open", ID: 4},
		{From: "In Progress", ID: 5, Resolution: "Done"},
	}

	return []TransitionRule{
		{Target: "done", Steps: donePath},
		{Target: "resolved", Steps: donePath},
		{Target: "progress", Steps: []TransitionStep{
			{From: "Analyze", ID: 7},
			{From: "Open", ID: 4},
		}},
		{Target: "open", Steps: []TransitionStep{
			{From: "Analyze", ID: 7},
		}},
	}
}

// stepsFor returns the steps of the first rule matching the requested
// target status, nil when no rule applies.
func stepsFor(rules []TransitionRule, target string) []TransitionStep {
	t := strings.ToLower(target)

	for _, r := range rules {
		if r.Target != "" && strings.Contains(t, strings.ToLower(r.Target)) {
			return r.Steps
		}
	}

	return nil
}
