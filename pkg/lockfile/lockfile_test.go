package lockfile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "set", LockFileName)
	lock := New(path)

	if err := lock.Acquire(); err != nil {
		t.Fatalf("expected to acquire lock, got: %v", err)
	}
	if !lock.IsLocked() {
		t.Error("IsLocked should report true after Acquire")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("lock file not readable: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != strconv.Itoa(os.Getpid()) {
		t.Errorf("lock file holds %q, want our pid %d", got, os.Getpid())
	}
	if lock.Holder() != os.Getpid() {
		t.Errorf("Holder() = %d, want %d", lock.Holder(), os.Getpid())
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if lock.IsLocked() {
		t.Error("IsLocked should report false after Release")
	}
	data, _ = os.ReadFile(path)
	if len(data) != 0 {
		t.Errorf("lock file should be truncated on release, holds %q", data)
	}

	// Reacquire after release.
	if err := lock.Acquire(); err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	lock.Release()
}

func TestReleaseNotHeld(t *testing.T) {
	lock := ForBackupset(t.TempDir())

	err := lock.Release()
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %T: %v", err, err)
	}
	if !errors.Is(err, ErrNotHeld) {
		t.Errorf("expected ErrNotHeld, got %v", err)
	}

	// A failed release leaves the handle usable.
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire after failed release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); !errors.Is(err, ErrNotHeld) {
		t.Errorf("second release: expected ErrNotHeld, got %v", err)
	}
}

// TestContention checks that two handles on the same path exclude each
// other. flock locks belong to the open file description, so this holds
// within a single process too.
func TestContention(t *testing.T) {
	dir := t.TempDir()
	first := ForBackupset(dir)
	second := ForBackupset(dir)

	if err := first.Acquire(); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer first.Release()

	err := second.Acquire()
	if err == nil {
		second.Release()
		t.Fatal("second handle acquired an active lock")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %T: %v", err, err)
	}
	if !errors.Is(err, ErrLockHeld) {
		t.Errorf("expected ErrLockHeld, got %v", err)
	}
	if lockErr.PID != os.Getpid() {
		t.Errorf("expected holder pid %d, got %d", os.Getpid(), lockErr.PID)
	}
	if second.IsLocked() {
		t.Error("failed handle must not report locked")
	}

	// The holder's PID survives the failed attempt.
	if first.Holder() != os.Getpid() {
		t.Errorf("failed acquire clobbered the lock file")
	}
}

func TestConfigLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.conf")
	content := "[holland:backup]\nplugin = example\n"
	if err := os.WriteFile(path, []byte(content), 0444); err != nil {
		t.Fatal(err)
	}

	first := ForConfig(path)
	if err := first.Acquire(); err != nil {
		t.Fatalf("acquire on a read-only config failed: %v", err)
	}
	err := ForConfig(path).Acquire()
	if !errors.Is(err, ErrLockHeld) {
		t.Errorf("expected ErrLockHeld from a second handle, got %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != content {
		t.Errorf("config file was modified: %q", data)
	}
	if first.Holder() != 0 {
		t.Errorf("config locks record no pid, Holder() = %d", first.Holder())
	}

	t.Run("Missing config", func(t *testing.T) {
		err := ForConfig(filepath.Join(t.TempDir(), "nope.conf")).Acquire()
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected ErrNotExist, got %v", err)
		}
	})
}

func TestAcquireTwiceOnSameHandle(t *testing.T) {
	lock := ForBackupset(t.TempDir())
	if err := lock.Acquire(); err != nil {
		t.Fatal(err)
	}
	defer lock.Release()
	if err := lock.Acquire(); err == nil {
		t.Error("expected an error acquiring an already held handle")
	}
}

// TestHelperProcess is not a real test. It holds a lock in a child process
// until its stdin is closed.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	lock := New(os.Getenv("HOLLAND_TEST_LOCK"))
	if err := lock.Acquire(); err != nil {
		fmt.Fprintln(os.Stdout, "error:", err)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stdout, "locked")
	// Exit without releasing; the kernel drops the lock.
	bufio.NewReader(os.Stdin).ReadString('\n')
	os.Exit(0)
}

func TestCrossProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)

	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "HOLLAND_TEST_LOCK="+path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("could not start helper: %v", err)
	}

	line, err := bufio.NewReader(stdout).ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "locked" {
		stdin.Close()
		cmd.Wait()
		t.Fatalf("helper did not take the lock: %q (%v)", line, err)
	}

	lock := New(path)
	err = lock.Acquire()
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Errorf("expected *LockError while helper holds the lock, got %v", err)
	} else if lockErr.PID != cmd.Process.Pid {
		t.Errorf("expected holder pid %d, got %d", cmd.Process.Pid, lockErr.PID)
	}

	stdin.Close()
	if err := cmd.Wait(); err != nil {
		t.Fatalf("helper failed: %v", err)
	}

	// Process exit released the lock.
	if err := lock.Acquire(); err != nil {
		t.Fatalf("expected lock to be free after helper exit, got %v", err)
	}
	lock.Release()
}
