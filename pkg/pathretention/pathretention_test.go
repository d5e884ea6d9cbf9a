package pathretention_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-svnbackup/pkg/hints"
	"github.com/paulschiretz/pgl-svnbackup/pkg/pathretention"
	"github.com/paulschiretz/pgl-svnbackup/pkg/revprobe"
	"github.com/paulschiretz/pgl-svnbackup/pkg/util"
)

// createEntries creates snapshot directories (names without a dot) and
// files (all other names) in dir.
func createEntries(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		abs := filepath.Join(dir, name)
		if !strings.Contains(name, ".") || strings.HasSuffix(name, ".tmp") {
			if err := os.MkdirAll(filepath.Join(abs, "db"), util.UserWritableDirPerms); err != nil {
				t.Fatalf("failed to create dir %s: %v", name, err)
			}
			// hotcopies contain read-only revision files
			if err := os.WriteFile(filepath.Join(abs, "db", "format"), []byte("5"), 0444); err != nil {
				t.Fatalf("failed to write file: %v", err)
			}
			continue
		}
		if err := os.WriteFile(abs, []byte("archive"), util.UserWritableFilePerms); err != nil {
			t.Fatalf("failed to write file %s: %v", name, err)
		}
	}
}

func listEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestPrune(t *testing.T) {
	testCases := []struct {
		name    string
		initial []string
		plan    pathretention.Plan
		want    []string
		wantErr error
	}{
		{
			name:    "keeps newest snapshots",
			initial: []string{"v0000001", "v0000002", "v0000003", "v0000004"},
			plan:    pathretention.Plan{Enabled: true, History: 2, Extension: ".zip"},
			want:    []string{"v0000003", "v0000004"},
		},
		{
			name:    "keeps newest archives",
			initial: []string{"v0000040.zip", "v0000041.zip", "v0000042.zip"},
			plan:    pathretention.Plan{Enabled: true, History: 1, Extension: ".zip"},
			want:    []string{"v0000042.zip"},
		},
		{
			name:    "counts snapshots and archives independently",
			initial: []string{"v0000001", "v0000002", "v0000003.zip", "v0000004.zip", "v0000005.zip"},
			plan:    pathretention.Plan{Enabled: true, History: 2, Extension: ".zip"},
			want:    []string{"v0000001", "v0000002", "v0000004.zip", "v0000005.zip"},
		},
		{
			name:    "revision mode counts revisions across both forms",
			initial: []string{"v0000001", "v0000002", "v0000003.zip", "v0000004.zip", "v0000005.zip"},
			plan:    pathretention.Plan{Enabled: true, History: 2, Mode: pathretention.Revision, Extension: ".zip"},
			want:    []string{"v0000004.zip", "v0000005.zip"},
		},
		{
			name:    "revision mode deletes both forms of an old revision",
			initial: []string{"v0000001", "v0000001.zip", "v0000002", "v0000003.zip"},
			plan:    pathretention.Plan{Enabled: true, History: 2, Mode: pathretention.Revision, Extension: ".zip"},
			want:    []string{"v0000002", "v0000003.zip"},
		},
		{
			name: "ignores foreign entries",
			initial: []string{
				"v0000001", "v0000002", "v0000003",
				"v0000004.tmp", ".pgl-svnbackup.meta.json", "notes", "v123", "v0000005.tar.gz",
			},
			plan: pathretention.Plan{Enabled: true, History: 1, Extension: ".zip"},
			want: []string{".pgl-svnbackup.meta.json", "notes", "v0000003", "v0000004.tmp", "v0000005.tar.gz", "v123"},
		},
		{
			name:    "orders wide revisions numerically",
			initial: []string{"v9999999", "v10000000", "v10000001"},
			plan:    pathretention.Plan{Enabled: true, History: 2, Extension: ".zip"},
			want:    []string{"v10000000", "v10000001"},
		},
		{
			name:    "disabled with zero history",
			initial: []string{"v0000001", "v0000002"},
			plan:    pathretention.Plan{Enabled: true, History: 0, Extension: ".zip"},
			want:    []string{"v0000001", "v0000002"},
			wantErr: pathretention.ErrDisabled,
		},
		{
			name:    "disabled with negative history",
			initial: []string{"v0000001", "v0000002"},
			plan:    pathretention.Plan{Enabled: true, History: -3, Extension: ".zip"},
			want:    []string{"v0000001", "v0000002"},
			wantErr: pathretention.ErrDisabled,
		},
		{
			name:    "within bound",
			initial: []string{"v0000001", "v0000001.zip"},
			plan:    pathretention.Plan{Enabled: true, History: 1, Extension: ".zip"},
			want:    []string{"v0000001", "v0000001.zip"},
			wantErr: pathretention.ErrNothingToPrune,
		},
		{
			name:    "dry run deletes nothing",
			initial: []string{"v0000001", "v0000002", "v0000003"},
			plan:    pathretention.Plan{Enabled: true, History: 1, Extension: ".zip", DryRun: true},
			want:    []string{"v0000001", "v0000002", "v0000003"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			createEntries(t, dir, tc.initial...)

			err := pathretention.NewPathRetainer(2).Prune(context.Background(), dir, &tc.plan)
			if tc.wantErr != nil {
				if !hints.Is(err, tc.wantErr) {
					t.Fatalf("expected hint %v, got %v", tc.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("Prune failed: %v", err)
			}

			got := listEntries(t, dir)
			want := append([]string{}, tc.want...)
			sort.Strings(want)
			if strings.Join(got, ",") != strings.Join(want, ",") {
				t.Errorf("unexpected entries after prune:\n got %v\nwant %v", got, want)
			}
		})
	}
}

func TestPrune_RetentionBound(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8} {
		dir := t.TempDir()
		var names []string
		for rev := int64(1); rev <= 6; rev++ {
			names = append(names, revprobe.Tag(rev), revprobe.Tag(rev+100)+".zip")
		}
		createEntries(t, dir, names...)

		plan := &pathretention.Plan{Enabled: true, History: n, Extension: ".zip", Metrics: true}
		if err := pathretention.NewPathRetainer(3).Prune(context.Background(), dir, plan); err != nil && !hints.IsHint(err) {
			t.Fatalf("N=%d: Prune failed: %v", n, err)
		}

		var dirs, files int
		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			if e.IsDir() {
				dirs++
			} else {
				files++
			}
		}
		want := min(n, 6)
		if dirs != want || files != want {
			t.Errorf("N=%d: expected %d snapshots and archives, got %d and %d", n, want, dirs, files)
		}
		// The survivors must be the newest ones.
		if _, err := os.Stat(filepath.Join(dir, revprobe.Tag(6))); err != nil {
			t.Errorf("N=%d: newest snapshot was deleted", n)
		}
	}
}

func TestPrune_MissingDirectory(t *testing.T) {
	err := pathretention.NewPathRetainer(1).Prune(context.Background(), filepath.Join(t.TempDir(), "missing"), &pathretention.Plan{Enabled: true, History: 1, Extension: ".zip"})
	if !hints.Is(err, pathretention.ErrNothingToPrune) {
		t.Errorf("expected ErrNothingToPrune, got %v", err)
	}
}

func TestPrune_Cancelled(t *testing.T) {
	dir := t.TempDir()
	createEntries(t, dir, "v0000001", "v0000002")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pathretention.NewPathRetainer(1).Prune(ctx, dir, &pathretention.Plan{Enabled: true, History: 1, Extension: ".zip"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := pathretention.ParseMode(""); err != nil || m != pathretention.Independent {
		t.Errorf("expected empty mode to be independent, got %v, %v", m, err)
	}
	if m, err := pathretention.ParseMode("revision"); err != nil || m != pathretention.Revision {
		t.Errorf("expected revision mode, got %v, %v", m, err)
	}
	if _, err := pathretention.ParseMode("oldest"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
