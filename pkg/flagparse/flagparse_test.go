package flagparse

import (
	"os"
	"testing"
)

// equalSlices is a helper to compare two string slices for equality.
func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}

func TestParseCmdList(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{"Simple List", "echo a,echo b", []string{"echo a", "echo b"}},
		{"List with Spaces", " cmd1 ,  cmd2 ", []string{"cmd1", "cmd2"}},
		{"Empty String", "", nil},
		{"Quoted Comma", "echo 'a,b',cmd2", []string{"echo 'a,b'", "cmd2"}},
		{"Double Quotes Kept", `echo "x y"`, []string{`echo "x y"`}},
		{"Nested Quotes", `echo "it's",cmd2`, []string{`echo "it's"`, "cmd2"}},
		{"Escaped Comma", `echo a\,b,cmd2`, []string{`echo a\,b`, "cmd2"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := ParseCmdList(tc.input)
			if len(tc.expected) == 0 && len(result) == 0 {
				return
			}
			if !equalSlices(result, tc.expected) {
				t.Errorf("expected %v, but got %v", tc.expected, result)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	for _, name := range []string{"backup", "prune", "init", "version"} {
		cmd, err := ParseCommand(name)
		if err != nil {
			t.Errorf("ParseCommand(%q) failed: %v", name, err)
		}
		if cmd.String() != name {
			t.Errorf("expected %q, got %q", name, cmd.String())
		}
	}
	for _, name := range []string{"none", "restore", ""} {
		if _, err := ParseCommand(name); err == nil {
			t.Errorf("expected error for %q", name)
		}
	}
}

func TestParse(t *testing.T) {
	// Silence usage output of the flag sets.
	devNull, _ := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	t.Cleanup(func() { devNull.Close() })

	tests := []struct {
		name        string
		args        []string
		wantCommand Command
		wantFlags   map[string]any
		wantErr     bool
	}{
		{
			name:        "No Arguments",
			args:        nil,
			wantCommand: None,
		},
		{
			name:        "Version",
			args:        []string{"version"},
			wantCommand: Version,
		},
		{
			name:        "Backup Only Set Flags",
			args:        []string{"backup", "-repository-root", "/srv/svn", "-backup-root=/backups", "-compress", "-history", "3"},
			wantCommand: Backup,
			wantFlags: map[string]any{
				"repository-root": "/srv/svn",
				"backup-root":     "/backups",
				"compress":        true,
				"history":         3,
			},
		},
		{
			name:        "Backup Globals",
			args:        []string{"backup", "-dry-run", "-log-level=debug", "-metrics=false"},
			wantCommand: Backup,
			wantFlags: map[string]any{
				"dry-run":   true,
				"log-level": "debug",
				"metrics":   false,
			},
		},
		{
			name:        "Prune",
			args:        []string{"prune", "-backup-root=/b", "-retention-mode=revision", "-force"},
			wantCommand: Prune,
			wantFlags: map[string]any{
				"backup-root":    "/b",
				"retention-mode": "revision",
				"force":          true,
			},
		},
		{
			name:        "Prune Rejects Backup Flag",
			args:        []string{"prune", "-repository-root=/srv"},
			wantCommand: Prune,
			wantErr:     true,
		},
		{
			name:        "Init Default",
			args:        []string{"init", "-backup-root=/b", "-default"},
			wantCommand: Init,
			wantFlags: map[string]any{
				"backup-root": "/b",
				"default":     true,
			},
		},
		{
			name:        "Stray Argument",
			args:        []string{"backup", "extra"},
			wantCommand: Backup,
			wantErr:     true,
		},
		{
			name:        "Unknown Command",
			args:        []string{"restore"},
			wantCommand: None,
			wantErr:     true,
		},
	}

	origStderr := os.Stderr
	os.Stderr = devNull
	t.Cleanup(func() { os.Stderr = origStderr })

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd, flags, err := Parse(tc.args)
			if cmd != tc.wantCommand {
				t.Errorf("expected command %v, got %v", tc.wantCommand, cmd)
			}
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(flags) != len(tc.wantFlags) {
				t.Fatalf("expected %d flags, got %d: %v", len(tc.wantFlags), len(flags), flags)
			}
			for k, want := range tc.wantFlags {
				if got := flags[k]; got != want {
					t.Errorf("flag %q: expected %v, got %v", k, want, got)
				}
			}
		})
	}
}

func TestParse_Hooks(t *testing.T) {
	_, flags, err := Parse([]string{"backup", "-pre-backup-hooks=cmd1, 'cmd2 with space'", "-post-backup-hooks=cmd3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := flags["pre-backup-hooks"].([]string); !equalSlices(got, []string{"cmd1", "'cmd2 with space'"}) {
		t.Errorf("unexpected pre hooks %v", got)
	}
	if got := flags["post-backup-hooks"].([]string); !equalSlices(got, []string{"cmd3"}) {
		t.Errorf("unexpected post hooks %v", got)
	}
}
