// Package executor runs discovered checks against the database and
// classifies their outcome.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethpandaops/dupcheck/pkg/checks"
	"github.com/ethpandaops/dupcheck/pkg/credential"
	"github.com/ethpandaops/dupcheck/pkg/database"
	"github.com/sirupsen/logrus"
)

// Status is the classified outcome of a check.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
	StatusBroken Status = "broken"
)

const (
	summaryPassed = "no duplicates found"
	summaryFailed = "%d duplicate sets found"
	summaryBroken = "execution error"
)

// querySuffix holds the trailing characters stripped from every query.
const querySuffix = " \t\r\n;"

// Result is the outcome of one check. Exactly one is produced per check.
type Result struct {
	Check   checks.Definition
	Status  Status
	Summary string
	// Detail holds one rendered row per line for failed checks and the
	// error message for broken ones.
	Detail string
}

// Target is the database every check of a run is executed against.
type Target struct {
	DSN        string
	Credential credential.Pair
}

// Tally counts results by status.
type Tally struct {
	Passed int
	Failed int
	Broken int
}

// Total returns the number of counted results.
func (t Tally) Total() int {
	return t.Passed + t.Failed + t.Broken
}

// Count tallies results by status.
func Count(results []*Result) Tally {
	var t Tally

	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			t.Passed++
		case StatusFailed:
			t.Failed++
		case StatusBroken:
			t.Broken++
		}
	}

	return t
}

// Executor runs checks one at a time.
type Executor interface {
	// Execute runs a single check. Errors are captured in the result.
	Execute(ctx context.Context, check checks.Definition, target Target) *Result

	// ExecuteAll runs every check in order. A broken check never stops
	// the remaining ones.
	ExecuteAll(ctx context.Context, defs []checks.Definition, target Target) []*Result
}

// NewExecutor creates a new executor instance.
func NewExecutor(log logrus.FieldLogger, connector database.Connector) Executor {
	return &executor{
		log:       log.WithField("component", "executor"),
		connector: connector,
	}
}

type executor struct {
	log       logrus.FieldLogger
	connector database.Connector
}

// Ensure interface compliance.
var _ Executor = (*executor)(nil)

// ExecuteAll implements Executor.
func (e *executor) ExecuteAll(
	ctx context.Context,
	defs []checks.Definition,
	target Target,
) []*Result {
	results := make([]*Result, 0, len(defs))

	for i, def := range defs {
		e.log.WithFields(logrus.Fields{
			"check":    def.ID,
			"progress": fmt.Sprintf("%d/%d", i+1, len(defs)),
		}).Info("Running check")

		results = append(results, e.Execute(ctx, def, target))
	}

	tally := Count(results)

	e.log.WithFields(logrus.Fields{
		"total":  tally.Total(),
		"passed": tally.Passed,
		"failed": tally.Failed,
		"broken": tally.Broken,
	}).Info("All checks executed")

	return results
}

// Execute implements Executor.
func (e *executor) Execute(ctx context.Context, check checks.Definition, target Target) (result *Result) {
	log := e.log.WithField("check", check.ID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = broken(check, fmt.Errorf("panic: %v", r))
		}

		entry := log.WithFields(logrus.Fields{
			"status":   result.Status,
			"duration": time.Since(start).Round(time.Millisecond),
		})

		if result.Status == StatusBroken {
			entry.WithField("error", result.Detail).Warn("Check broken")
		} else {
			entry.Info(result.Summary)
		}
	}()

	rows, err := e.run(ctx, NormalizeQuery(check.Query), target)
	if err != nil {
		return broken(check, err)
	}

	return classify(check, rows)
}

// run holds the session for exactly one query.
func (e *executor) run(ctx context.Context, query string, target Target) ([][]any, error) {
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}

	session, err := e.connector.Connect(ctx, target.DSN, target.Credential)
	if err != nil {
		return nil, err
	}

	defer func() {
		if cerr := session.Close(); cerr != nil {
			e.log.WithError(cerr).Warn("Failed to close database session")
		}
	}()

	return session.Query(ctx, query)
}

// NormalizeQuery strips trailing statement separators and whitespace.
func NormalizeQuery(query string) string {
	return strings.TrimRight(query, querySuffix)
}

func classify(check checks.Definition, rows [][]any) *Result {
	if len(rows) == 0 {
		return &Result{
			Check:   check,
			Status:  StatusPassed,
			Summary: summaryPassed,
		}
	}

	return &Result{
		Check:   check,
		Status:  StatusFailed,
		Summary: fmt.Sprintf(summaryFailed, len(rows)),
		Detail:  FormatRows(rows),
	}
}

func broken(check checks.Definition, err error) *Result {
	return &Result{
		Check:   check,
		Status:  StatusBroken,
		Summary: summaryBroken,
		Detail:  err.Error(),
	}
}
