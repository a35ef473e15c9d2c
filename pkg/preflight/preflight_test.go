package preflight

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckSpoolAccessible(t *testing.T) {
	t.Run("Root Exists", func(t *testing.T) {
		if err := CheckSpoolAccessible(t.TempDir()); err != nil {
			t.Errorf("expected no error for existing directory, got: %v", err)
		}
	})

	t.Run("Root Missing Below Existing Ancestor", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "a", "b", "spool")
		if err := CheckSpoolAccessible(root); err != nil {
			t.Errorf("expected no error, got: %v", err)
		}
	})

	t.Run("Root Is a File", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "spool")
		if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		err := CheckSpoolAccessible(file)
		if err == nil || !strings.Contains(err.Error(), "not a directory") {
			t.Errorf("expected 'not a directory' error, got: %v", err)
		}
	})

	t.Run("Ancestor Is a File", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "blocker")
		if err := os.WriteFile(file, nil, 0644); err != nil {
			t.Fatal(err)
		}
		if err := CheckSpoolAccessible(filepath.Join(file, "spool")); err == nil {
			t.Error("expected an error when an ancestor is a regular file")
		}
	})
}

func TestCheckSpoolWritable(t *testing.T) {
	root := filepath.Join(t.TempDir(), "spool")
	if err := CheckSpoolWritable(root); err != nil {
		t.Fatalf("CheckSpoolWritable failed: %v", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}

	err = Run(root, &Plan{SpoolAccessible: true, SpoolWritable: true})
	if err != nil {
		t.Errorf("Run failed: %v", err)
	}
}

func TestCheckSpace(t *testing.T) {
	if err := CheckSpace("/spool", 10, 10); err != nil {
		t.Errorf("equal sizes must fit, got %v", err)
	}
	err := CheckSpace("/spool", 10<<30, 1<<30)
	var spaceErr *InsufficientSpaceError
	if !errors.As(err, &spaceErr) {
		t.Fatalf("expected *InsufficientSpaceError, got %v", err)
	}
	if spaceErr.Required != 10<<30 || spaceErr.Available != 1<<30 {
		t.Errorf("unexpected error fields %+v", spaceErr)
	}
	if !strings.Contains(err.Error(), "10 GiB") || !strings.Contains(err.Error(), "1.0 GiB") {
		t.Errorf("expected human readable sizes, got %q", err.Error())
	}
}

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()
	u, err := DiskUsage(filepath.Join(dir, "not", "yet"))
	if err != nil {
		t.Fatalf("DiskUsage failed: %v", err)
	}
	if u.Total <= 0 || u.Available < 0 || u.Available > u.Total {
		t.Errorf("implausible usage %+v", u)
	}
	if r := u.FreeRatio(); r < 0 || r > 1 {
		t.Errorf("FreeRatio out of range: %v", r)
	}
	if (Usage{}).FreeRatio() != 1 {
		t.Error("empty usage should report ratio 1")
	}

	free, err := DiskFree(dir)
	if err != nil || free < 0 {
		t.Errorf("DiskFree = %d, %v", free, err)
	}
}

func TestMountPoint(t *testing.T) {
	mp, err := MountPoint(t.TempDir())
	if err != nil {
		t.Fatalf("MountPoint failed: %v", err)
	}
	if !filepath.IsAbs(mp) {
		t.Errorf("expected absolute mount point, got %q", mp)
	}
	root, err := MountPoint("/")
	if err != nil || root != "/" {
		t.Errorf("MountPoint(/) = %q, %v", root, err)
	}

	t.Run("Ancestor on the same device", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		mp, err := MountPoint(filepath.Join(dir, "not-yet-created"))
		if err != nil {
			t.Fatalf("MountPoint failed: %v", err)
		}
		if mp != "/" && !strings.HasPrefix(dir, mp+string(filepath.Separator)) {
			t.Errorf("mount point %q is not an ancestor of %q", mp, dir)
		}
		dirDev, err := deviceOf(dir)
		if err != nil {
			t.Fatalf("deviceOf(%s) failed: %v", dir, err)
		}
		mpDev, err := deviceOf(mp)
		if err != nil {
			t.Fatalf("deviceOf(%s) failed: %v", mp, err)
		}
		if dirDev != mpDev {
			t.Errorf("device of %s = %d, mount point %s = %d", dir, dirDev, mp, mpDev)
		}
	})

	t.Run("Missing path", func(t *testing.T) {
		_, err := deviceOf(filepath.Join(t.TempDir(), "missing"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected ErrNotExist, got %v", err)
		}
	})
}
