package checks

import (
	"fmt"
	"strings"
)

// DuplicateCheck describes a duplicate-detection query to author.
type DuplicateCheck struct {
	Schema string
	Table  string
	Keys   []string
}

// ParseKeys splits a comma separated key list, dropping blanks.
func ParseKeys(keys string) []string {
	parts := strings.Split(keys, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}

// Validate checks that the check can be rendered.
func (d DuplicateCheck) Validate() error {
	if d.Schema == "" {
		return fmt.Errorf("schema is required")
	}

	if d.Table == "" {
		return fmt.Errorf("table is required")
	}

	if len(d.Keys) == 0 {
		return fmt.Errorf("at least one key column is required")
	}

	return nil
}

// FileName returns the check file name for the given prefix.
func (d DuplicateCheck) FileName(prefix string) string {
	return prefix + strings.ReplaceAll(strings.ToLower(d.Table), ".", "_") + Extension
}

// Render returns the query text. Rows returned are duplicated key sets.
func (d DuplicateCheck) Render() string {
	keys := strings.Join(d.Keys, ", ")

	var sb strings.Builder

	fmt.Fprintf(&sb, "-- Duplicate check for %s.%s\n", d.Schema, d.Table)
	fmt.Fprintf(&sb, "-- Keys: %s\n\n", keys)
	fmt.Fprintf(&sb, "SELECT %s, COUNT(*) AS cnt\n", keys)
	fmt.Fprintf(&sb, "FROM %s.%s\n", d.Schema, d.Table)
	fmt.Fprintf(&sb, "GROUP BY %s\n", keys)
	sb.WriteString("HAVING COUNT(*) > 1\n")
	sb.WriteString("ORDER BY cnt DESC")

	return sb.String()
}

// CommitMessage returns the commit message used when the check is pushed.
func (d DuplicateCheck) CommitMessage() string {
	return fmt.Sprintf("Add duplicate check SQL for %s.%s", d.Schema, d.Table)
}
