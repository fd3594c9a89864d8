package git

import (
	"strings"
	"time"
)

// Commit is one non-merge commit together with its first-parent diff
// statistics
type Commit struct {
	Hash         string
	ParentHash   string // empty for root commits
	AuthorName   string // after author map normalization
	AuthorEmail  string
	Message      string // full message, trailing newlines trimmed
	Summary      string // first line of Message
	When         time.Time
	Insertions   int
	Deletions    int
	ChangedFiles []string // unique paths, in diff order
}

// IsRoot reports whether the commit has no parent
func (c *Commit) IsRoot() bool {
	return c.ParentHash == ""
}

// AuthorMap maps author email addresses to display names. Lookups ignore
// case and surrounding whitespace.
type AuthorMap map[string]string

// NewAuthorMap builds an AuthorMap from raw email to name pairs
func NewAuthorMap(raw map[string]string) AuthorMap {
	m := make(AuthorMap, len(raw))
	for email, name := range raw {
		m[normalizeEmail(email)] = name
	}
	return m
}

// Resolve returns the display name configured for email, or name when the
// email is not mapped
func (m AuthorMap) Resolve(email, name string) string {
	if display, ok := m[normalizeEmail(email)]; ok && display != "" {
		return display
	}
	return name
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
