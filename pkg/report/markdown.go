package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// maxDetailLines caps how many detail lines are shown per check.
const maxDetailLines = 5

type markdownCheck struct {
	Name   string
	Status string
	Detail []string
	More   int
}

// GenerateMarkdown summarizes the documents in dir as markdown. The output
// is capped at roughly maxChars characters; zero means no cap.
func GenerateMarkdown(fs afero.Fs, dir string, maxChars int) (string, error) {
	docs, err := Load(fs, dir)
	if err != nil {
		return "", err
	}

	counts := make(map[string]int, 3)
	branches := make(map[string]struct{}, 1)

	var (
		started  int64
		problems []markdownCheck
	)

	for _, doc := range docs {
		counts[doc.Status]++

		if b := doc.Label(BranchLabel); b != "" {
			branches[b] = struct{}{}
		}

		if started == 0 || (doc.Start > 0 && doc.Start < started) {
			started = doc.Start
		}

		if doc.Status == "passed" {
			continue
		}

		detail, err := Detail(fs, dir, doc)
		if err != nil {
			return "", err
		}

		problems = append(problems, newMarkdownCheck(doc, detail))
	}

	sort.SliceStable(problems, func(i, j int) bool {
		if problems[i].Status != problems[j].Status {
			return problems[i].Status < problems[j].Status
		}

		return problems[i].Name < problems[j].Name
	})

	var sb strings.Builder

	sb.Grow(4096)

	writeTitle(&sb, sortedKeys(branches))
	writeOverview(&sb, dir, len(docs), started)
	writeCheckResults(&sb, len(docs), counts)
	writeProblems(&sb, problems, maxChars)

	return sb.String(), nil
}

func newMarkdownCheck(doc *Document, detail string) markdownCheck {
	c := markdownCheck{Name: doc.Name, Status: doc.Status}

	if detail == "" {
		return c
	}

	lines := strings.Split(detail, "\n")
	if len(lines) > maxDetailLines {
		c.More = len(lines) - maxDetailLines
		lines = lines[:maxDetailLines]
	}

	c.Detail = lines

	return c
}

func writeTitle(sb *strings.Builder, branches []string) {
	switch len(branches) {
	case 0:
		sb.WriteString("# Duplicate Checks\n\n")
	default:
		fmt.Fprintf(sb, "# Duplicate Checks: %s\n\n", strings.Join(branches, ", "))
	}
}

func writeOverview(sb *strings.Builder, dir string, documents int, started int64) {
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(sb, "| Report Directory | `%s` |\n", dir)
	fmt.Fprintf(sb, "| Documents | %d |\n", documents)

	if started > 0 {
		t := time.UnixMilli(started).UTC()
		fmt.Fprintf(sb, "| Reported | %s |\n", t.Format("2006-01-02 15:04:05 UTC"))
	}

	sb.WriteByte('\n')
}

func writeCheckResults(sb *strings.Builder, total int, counts map[string]int) {
	sb.WriteString("## Check Results\n\n")
	sb.WriteString("| Total | Passed | Failed | Broken |\n")
	sb.WriteString("|---|---|---|---|\n")
	fmt.Fprintf(sb, "| %d | %d | %d | %d |\n\n",
		total, counts["passed"], counts["failed"], counts["broken"])
}

func writeProblems(sb *strings.Builder, problems []markdownCheck, maxChars int) {
	if len(problems) == 0 {
		return
	}

	sb.WriteString("## Failed and Broken Checks\n\n")
	sb.WriteString("| Check | Status | Detail |\n")
	sb.WriteString("|---|---|---|\n")

	// Reserve space for the truncation message.
	const reserveChars = 100

	for i, p := range problems {
		row := fmt.Sprintf("| %s | %s | %s |\n", p.Name, p.Status, markdownDetail(p))

		if maxChars > 0 && sb.Len()+len(row)+reserveChars > maxChars {
			fmt.Fprintf(sb,
				"\n*%d more check(s) not shown (output truncated at %d chars)*\n",
				len(problems)-i, maxChars)

			return
		}

		sb.WriteString(row)
	}
}

func markdownDetail(c markdownCheck) string {
	if len(c.Detail) == 0 {
		return "-"
	}

	escaped := make([]string, 0, len(c.Detail))
	for _, line := range c.Detail {
		escaped = append(escaped, "`"+strings.ReplaceAll(line, "|", `\|`)+"`")
	}

	out := strings.Join(escaped, "<br>")
	if c.More > 0 {
		out += fmt.Sprintf("<br>*+%d more*", c.More)
	}

	return out
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
