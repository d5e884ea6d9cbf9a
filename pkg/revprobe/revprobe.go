// Package revprobe determines the youngest revision of a Subversion repository.
package revprobe

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
	"github.com/paulschiretz/pgl-svnbackup/pkg/svntool"
)

// Result is the outcome of a probe. Found is false when the path is not a
// repository or the tool printed nothing usable.
type Result struct {
	Revision int64
	Found    bool
}

// Tag is the revision tag of a found result.
func (r Result) Tag() string {
	return Tag(r.Revision)
}

type Prober struct {
	runner *svntool.Runner
}

func NewProber(runner *svntool.Runner) *Prober {
	return &Prober{runner: runner}
}

// Probe runs "svnlook youngest" against repoPath.
//
// An error is only returned when svnlook could not be run at all. Everything
// else, including a non-zero exit, is reported as a Result without a revision.
func (p *Prober) Probe(ctx context.Context, repoPath string, plan *Plan) (Result, error) {
	out, err := p.runner.Run(ctx, svntool.Invocation{
		ToolPath: plan.ToolPath,
		Tool:     svntool.Svnlook,
		Args:     []string{"youngest", repoPath},
		Timeout:  plan.Timeout,
	})

	if stderr := strings.TrimSpace(string(out.Stderr)); stderr != "" {
		plog.Info("svnlook reported", "path", repoPath, "stderr", stderr)
	}

	var exitErr *svntool.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return Result{}, err
	}

	rev, ok := parseYoungest(out.Stdout)
	if exitErr != nil || !ok {
		plog.Warn("Not a repository", "path", repoPath)
		if stdout := strings.TrimSpace(string(out.Stdout)); stdout != "" {
			plog.Info("svnlook output", "path", repoPath, "stdout", stdout)
		}
		return Result{}, nil
	}
	return Result{Revision: rev, Found: true}, nil
}

func parseYoungest(stdout []byte) (int64, bool) {
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	if !sc.Scan() {
		return 0, false
	}
	rev, err := strconv.ParseInt(strings.TrimSpace(sc.Text()), 10, 64)
	if err != nil || rev < 0 {
		return 0, false
	}
	return rev, true
}
