package engine

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
)

// ErrRepositoriesFailed is returned when failOnRepositoryError is set and at
// least one repository failed.
var ErrRepositoriesFailed = errors.New("one or more repositories failed")

// Outcome is the result of processing one repository.
type Outcome int

const (
	// BackedUp means a new snapshot or archive was written.
	BackedUp Outcome = iota
	// UpToDate means the youngest revision was already backed up.
	UpToDate
	// Skipped means the directory is not a repository.
	Skipped
	// Pruned means outdated backups were deleted (prune runs only).
	Pruned
	Failed
)

var outcomeToString = map[Outcome]string{
	BackedUp: "backed_up",
	UpToDate: "up_to_date",
	Skipped:  "skipped",
	Pruned:   "pruned",
	Failed:   "failed",
}

func (o Outcome) String() string {
	if str, ok := outcomeToString[o]; ok {
		return str
	}
	return fmt.Sprintf("unknown_outcome(%d)", o)
}

// RepositoryResult records what happened to a single repository.
type RepositoryResult struct {
	Name     string
	Path     string
	Outcome  Outcome
	Revision int64
	Err      error
}

// Report collects the results of a run. It is safe for concurrent use.
type Report struct {
	mu      sync.Mutex
	results []RepositoryResult
}

func (r *Report) add(res RepositoryResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

// Results returns a copy of the recorded results sorted by repository name.
func (r *Report) Results() []RepositoryResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.results)
	slices.SortStableFunc(out, func(a, b RepositoryResult) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Result returns the result recorded for the named repository.
func (r *Report) Result(name string) (RepositoryResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		if res.Name == name {
			return res, true
		}
	}
	return RepositoryResult{}, false
}

// Count returns how many repositories ended with outcome o.
func (r *Report) Count(o Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, res := range r.results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Err joins the errors of all failed repositories, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results() {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}
	return errors.Join(errs...)
}

// LogSummary logs the counts of the report as one line.
func (r *Report) LogSummary(msg string) {
	logArgs := []any{
		"backed_up", r.Count(BackedUp),
		"up_to_date", r.Count(UpToDate),
		"skipped", r.Count(Skipped),
	}
	if n := r.Count(Pruned); n > 0 {
		logArgs = append(logArgs, "pruned", n)
	}
	failed := r.Count(Failed)
	logArgs = append(logArgs, "failed", failed)
	if failed > 0 {
		plog.Warn(msg, logArgs...)
		return
	}
	plog.Info(msg, logArgs...)
}
