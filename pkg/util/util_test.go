package util

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestIsSubPath(t *testing.T) {
	testCases := []struct {
		name     string
		root     string
		path     string
		expected bool
	}{
		{name: "Direct child", root: "/spool", path: "/spool/default", expected: true},
		{name: "Nested child", root: "/spool", path: "/spool/default/20240101_000000.abc", expected: true},
		{name: "Root itself", root: "/spool", path: "/spool", expected: false},
		{name: "Sibling with common prefix", root: "/spool", path: "/spool2/default", expected: false},
		{name: "Parent", root: "/spool", path: "/", expected: false},
		{name: "Dot-dot escape", root: "/spool", path: "/spool/../etc", expected: false},
		{name: "Trailing slash on root", root: "/spool/", path: "/spool/x", expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSubPath(tc.root, tc.path); got != tc.expected {
				t.Errorf("IsSubPath(%q, %q) = %v, want %v", tc.root, tc.path, got, tc.expected)
			}
		})
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 10), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 32), 0644); err != nil {
		t.Fatal(err)
	}

	size, err := DirSize(dir)
	if err != nil {
		t.Fatalf("DirSize failed: %v", err)
	}
	if size != 42 {
		t.Errorf("expected 42 bytes, got %d", size)
	}

	t.Run("Missing directory is empty", func(t *testing.T) {
		size, err := DirSize(filepath.Join(dir, "missing"))
		if err != nil {
			t.Fatalf("expected no error for missing dir, got %v", err)
		}
		if size != 0 {
			t.Errorf("expected 0, got %d", size)
		}
	})
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}

	got, err := ExpandPath("~/backups")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, "backups"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	got, err = ExpandPath("/var/spool/holland")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/var/spool/holland" {
		t.Errorf("absolute path should be unchanged, got %q", got)
	}
}

func TestInvertMap(t *testing.T) {
	in := map[int]string{1: "manual", 2: "before-backup"}
	got := InvertMap(in)
	want := map[string]int{"manual": 1, "before-backup": 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"b", "a", "b", "c", "a"})
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
