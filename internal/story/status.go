package story

import "strings"

// Status is the lifecycle state of a story or subtask as authored in a
// document. Values carry the canonical display form used in documents.
type Status string

// Status values.
const (
	StatusDone       Status = "✅ Done"
	StatusInProgress Status = "🔄 In Progress"
	StatusPlanned    Status = "📋 Planned"
)

// ParseStatus maps free text or emoji onto a Status. Unrecognized input
// falls back to Planned.
func ParseStatus(s string) Status {
	s = strings.TrimSpace(s)

	for _, status := range []Status{StatusDone, StatusInProgress, StatusPlanned} {
		v := string(status)
		if strings.Contains(s, v) || (s != "" && strings.Contains(v, s)) {
			return status
		}
	}

	lower := strings.ToLower(s)

	switch {
	case strings.Contains(lower, "done") || strings.Contains(s, "✅"):
		return StatusDone
	case strings.Contains(lower, "progress") || strings.Contains(s, "🔄"):
		return StatusInProgress
	default:
		return StatusPlanned
	}
}

// IsComplete reports whether the status counts as finished work. Only
// complete stories participate in status synchronization.
func (s Status) IsComplete() bool { return s == StatusDone }

func (s Status) String() string { return string(s) }

// Priority is the story priority as authored in a document.
type Priority string

// Priority values.
const (
	PriorityCritical Priority = "🔴 Critical"
	PriorityHigh     Priority = "🟡 High"
	PriorityMedium   Priority = "🟢 Medium"
	PriorityLow      Priority = "🟢 Low"
)

// ParsePriority maps free text or emoji onto a Priority. Unrecognized input
// falls back to Medium.
func ParsePriority(s string) Priority {
	lower := strings.ToLower(strings.TrimSpace(s))

	switch {
	case strings.Contains(lower, "critical") || strings.Contains(lower, "🔴"):
		return PriorityCritical
	case strings.Contains(lower, "high") || strings.Contains(lower, "🟡"):
		return PriorityHigh
	case strings.Contains(lower, "low"):
		return PriorityLow
	default:
		return PriorityMedium
	}
}

func (p Priority) String() string { return string(p) }
