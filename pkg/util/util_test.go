package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWithUserWritePermission(t *testing.T) {
	testCases := []struct {
		name     string
		input    os.FileMode
		expected os.FileMode
	}{
		{"Read-only permission", 0444, 0644},
		{"Already has write permission", 0755, 0755},
		{"No permissions", 0000, 0200},
		{"Execute-only permission", 0111, 0311},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := WithUserWritePermission(tc.input)
			if result != tc.expected {
				t.Errorf("expected permission %o, but got %o", tc.expected, result)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	t.Run("Tilde is expanded", func(t *testing.T) {
		got, err := ExpandPath("~/backups")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != filepath.Join(home, "backups") {
			t.Errorf("expected %s, got %s", filepath.Join(home, "backups"), got)
		}
	})

	t.Run("Plain path is unchanged", func(t *testing.T) {
		got, err := ExpandPath("/srv/svn")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "/srv/svn" {
			t.Errorf("expected /srv/svn, got %s", got)
		}
	})
}

func TestResolvePath(t *testing.T) {
	got, err := ResolvePath("some/../relative")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("expected absolute path, got %s", got)
	}
	if strings.Contains(got, "..") {
		t.Errorf("expected cleaned path, got %s", got)
	}

	if _, err := ResolvePath(""); err == nil {
		t.Error("expected error for an empty path")
	}
}

func TestInvertMap(t *testing.T) {
	inv := InvertMap(map[int]string{1: "one", 2: "two"})
	if inv["one"] != 1 || inv["two"] != 2 || len(inv) != 2 {
		t.Errorf("unexpected inverted map: %v", inv)
	}
}

func TestRemoveAllForce(t *testing.T) {
	root := filepath.Join(t.TempDir(), "snapshot")
	dbDir := filepath.Join(root, "db")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		t.Fatal(err)
	}
	format := filepath.Join(dbDir, "format")
	if err := os.WriteFile(format, []byte("8\n"), 0444); err != nil {
		t.Fatal(err)
	}

	if err := RemoveAllForce(root); err != nil {
		t.Fatalf("RemoveAllForce failed: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("expected %s to be removed, stat err: %v", root, err)
	}
}

func TestByteCountIEC(t *testing.T) {
	testCases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{200, "200 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}
	for _, tc := range testCases {
		if got := ByteCountIEC(tc.in); got != tc.want {
			t.Errorf("ByteCountIEC(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
