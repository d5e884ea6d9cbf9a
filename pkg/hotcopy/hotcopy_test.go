package hotcopy_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-svnbackup/pkg/hints"
	"github.com/paulschiretz/pgl-svnbackup/pkg/hotcopy"
	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
	"github.com/paulschiretz/pgl-svnbackup/pkg/svntool"
)

// TestHelperProcess is a helper for testing exec. It mimics
// "svnadmin hotcopy SRC DST".
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	// args: svnadmin hotcopy SRC DST
	src, dst := args[2], args[3]
	switch filepath.Base(src) {
	case "good":
		if err := os.MkdirAll(filepath.Join(dst, "db"), 0755); err != nil {
			os.Exit(3)
		}
		os.WriteFile(filepath.Join(dst, "format"), []byte("5\n"), 0644)
		os.WriteFile(filepath.Join(dst, "db", "current"), []byte("42\n"), 0644)
		fmt.Fprint(os.Stderr, "svnadmin: notice: packed shards skipped")
	case "broken":
		os.MkdirAll(dst, 0755)
		os.WriteFile(filepath.Join(dst, "format"), []byte("partial"), 0644)
		fmt.Fprint(os.Stderr, "svnadmin: E165001: repository is locked")
		os.Exit(1)
	case "silent":
	}
	os.Exit(0)
}

func newExtractor(calls *int) *hotcopy.Extractor {
	return hotcopy.NewExtractor(svntool.NewRunner(func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		if calls != nil {
			*calls++
		}
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, arg...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
		return cmd
	}))
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var logBuf bytes.Buffer
	plog.SetOutput(&logBuf)
	t.Cleanup(func() { plog.SetOutput(os.Stderr) })
	return &logBuf
}

func TestExtract_Success(t *testing.T) {
	logBuf := captureLog(t)
	backupDir := t.TempDir()
	snapshot := filepath.Join(backupDir, "v0000042")

	if err := newExtractor(nil).Extract(context.Background(), filepath.Join("repos", "good"), snapshot, &hotcopy.Plan{}); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(snapshot, "db", "current")); err != nil {
		t.Errorf("expected snapshot content, got %v", err)
	}
	if _, err := os.Stat(snapshot + hotcopy.TempSuffix); !os.IsNotExist(err) {
		t.Errorf("expected temporary snapshot to be gone, got %v", err)
	}
	if !strings.Contains(logBuf.String(), "packed shards skipped") {
		t.Errorf("expected stderr to be logged, got: %s", logBuf.String())
	}
	if strings.Contains(logBuf.String(), "level=ERROR") {
		t.Errorf("stderr must not be logged as error, got: %s", logBuf.String())
	}
}

func TestExtract_FailureLeavesNoPartialSnapshot(t *testing.T) {
	captureLog(t)
	backupDir := t.TempDir()
	snapshot := filepath.Join(backupDir, "v0000042")

	err := newExtractor(nil).Extract(context.Background(), filepath.Join("repos", "broken"), snapshot, &hotcopy.Plan{})
	var exitErr *svntool.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *svntool.ExitError, got %T (%v)", err, err)
	}
	if !strings.Contains(exitErr.Stderr, "E165001") {
		t.Errorf("expected captured stderr in error, got %q", exitErr.Stderr)
	}

	entries, _ := os.ReadDir(backupDir)
	if len(entries) != 0 {
		t.Errorf("expected backup directory to be empty, found %d entries", len(entries))
	}
}

func TestExtract_ToolLeavesNothing(t *testing.T) {
	captureLog(t)
	snapshot := filepath.Join(t.TempDir(), "v0000001")
	err := newExtractor(nil).Extract(context.Background(), filepath.Join("repos", "silent"), snapshot, &hotcopy.Plan{})
	if err == nil {
		t.Fatal("expected an error when no snapshot was written")
	}
	if _, statErr := os.Stat(snapshot); !os.IsNotExist(statErr) {
		t.Errorf("expected no snapshot, got %v", statErr)
	}
}

func TestExtract_RemovesStaleTemp(t *testing.T) {
	captureLog(t)
	backupDir := t.TempDir()
	snapshot := filepath.Join(backupDir, "v0000042")
	stale := snapshot + hotcopy.TempSuffix
	if err := os.MkdirAll(filepath.Join(stale, "db"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stale, "db", "leftover"), []byte("x"), 0444); err != nil {
		t.Fatal(err)
	}

	if err := newExtractor(nil).Extract(context.Background(), filepath.Join("repos", "good"), snapshot, &hotcopy.Plan{}); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(snapshot, "db", "leftover")); !os.IsNotExist(err) {
		t.Errorf("expected stale content to be discarded, got %v", err)
	}
}

func TestExtract_RefusesExistingSnapshot(t *testing.T) {
	captureLog(t)
	snapshot := filepath.Join(t.TempDir(), "v0000042")
	if err := os.Mkdir(snapshot, 0755); err != nil {
		t.Fatal(err)
	}
	calls := 0
	err := newExtractor(&calls).Extract(context.Background(), filepath.Join("repos", "good"), snapshot, &hotcopy.Plan{})
	if !hints.Is(err, hotcopy.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists hint, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected svnadmin not to run, ran %d times", calls)
	}
}

func TestExtract_DryRun(t *testing.T) {
	logBuf := captureLog(t)
	snapshot := filepath.Join(t.TempDir(), "v0000042")
	calls := 0
	if err := newExtractor(&calls).Extract(context.Background(), filepath.Join("repos", "good"), snapshot, &hotcopy.Plan{DryRun: true}); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected svnadmin not to run in dry run")
	}
	if _, err := os.Stat(snapshot); !os.IsNotExist(err) {
		t.Errorf("expected no snapshot in dry run, got %v", err)
	}
	if !strings.Contains(logBuf.String(), "[DRY RUN] HOTCOPY") {
		t.Errorf("expected dry run log, got: %s", logBuf.String())
	}
}
