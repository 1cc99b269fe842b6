package jira

import (
	"errors"
	"fmt"
)

// Error variables for tracker operations. ErrTracker is the root; the
// status-specific sentinels wrap it so callers can match either the exact
// condition or the whole family with errors.Is.
var (
	ErrTracker = errors.New("tracker request failed")

	ErrAuthentication = fmt.Errorf("%w: authentication failed (check JIRA_EMAIL and JIRA_API_TOKEN)", ErrTracker)
	ErrPermission     = fmt.Errorf("%w: permission denied", ErrTracker)
	ErrNotFound       = fmt.Errorf("%w: not found", ErrTracker)
	ErrRateLimit      = fmt.Errorf("%w: rate limited", ErrTracker)
	ErrTransient      = fmt.Errorf("%w: server error", ErrTracker)

	ErrTransition = fmt.Errorf("%w: transition failed", ErrTracker)

	ErrBaseURLRequired = errors.New("tracker base URL is required")
)
