package story

import "strings"

// ID is a local story identifier as authored in the document, e.g. "US-001"
// or "#42". Accepted forms are an uppercase-only letter prefix, a hyphen and
// digits, or a hash followed by digits. Lowercase or mixed-case prefixes,
// bare numbers and prefixes containing digits are not story IDs; blocks
// using them are not recognized as stories.
type ID string

func (id ID) String() string { return string(id) }

// IssueKey is a remote tracker key, e.g. "PROJ-17". Same shape as ID but
// always tracker-assigned; the separate type keeps local and remote
// identifiers from mixing.
type IssueKey string

func (k IssueKey) String() string { return string(k) }

// ProjectKey returns the project portion of the key ("PROJ-17" -> "PROJ").
func (k IssueKey) ProjectKey() string {
	s := string(k)
	if i := strings.IndexByte(s, '-'); i > 0 {
		return s[:i]
	}

	return s
}

// ValidID reports whether s is an acceptable story ID after trimming.
// The rule is deliberate and strict for cross-parser compatibility:
// `[A-Z]+-[0-9]+` or `#[0-9]+`, nothing else.
func ValidID(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}

	if s[0] == '#' {
		return allDigits(s[1:])
	}

	i := strings.IndexByte(s, '-')
	if i <= 0 || i == len(s)-1 {
		return false
	}

	return allUpper(s[:i]) && allDigits(s[i+1:])
}

// ParseID trims and validates s, returning the ID and whether it is valid.
func ParseID(s string) (ID, bool) {
	s = strings.TrimSpace(s)
	if !ValidID(s) {
		return "", false
	}

	return ID(s), true
}

func allUpper(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}

	return true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
