package plugin

import (
	"errors"
	"slices"
	"testing"
)

type stubPlugin struct{ name string }

func (s *stubPlugin) PluginInfo() Info { return Info{Name: s.name, APIVersion: 1} }

func stubFactory(name string) Factory {
	return func() (Plugin, error) { return &stubPlugin{name: name}, nil }
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(GroupBackup, "tar", stubFactory("tar"), "archive"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(GroupBackup, "broken", func() (Plugin, error) { return nil, errors.New("missing binary") }); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(GroupBackup, "panics", func() (Plugin, error) { panic("init") }); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(GroupHooks, "tar", stubFactory("hook")); err != nil {
		t.Errorf("same name in another group should be allowed: %v", err)
	}

	t.Run("Duplicate names are rejected", func(t *testing.T) {
		if err := r.Register(GroupBackup, "tar", stubFactory("x")); err == nil {
			t.Error("expected duplicate error")
		}
		if err := r.Register(GroupBackup, "other", stubFactory("x"), "archive"); err == nil {
			t.Error("expected duplicate alias error")
		}
	})

	t.Run("Lookup by name and alias", func(t *testing.T) {
		for _, name := range []string{"tar", "archive"} {
			p, err := r.New(GroupBackup, name)
			if err != nil {
				t.Fatalf("New(%s) failed: %v", name, err)
			}
			if p.PluginInfo().Name != "tar" {
				t.Errorf("New(%s) returned %q", name, p.PluginInfo().Name)
			}
		}
	})

	t.Run("Unknown names", func(t *testing.T) {
		_, err := r.Load(GroupBackup, "nope")
		var nf *NotFoundError
		if !errors.As(err, &nf) || !errors.Is(err, ErrPlugin) {
			t.Errorf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("Constructor failures are import errors", func(t *testing.T) {
		for _, name := range []string{"broken", "panics"} {
			_, err := r.New(GroupBackup, name)
			var ie *ImportError
			if !errors.As(err, &ie) {
				t.Errorf("%s: expected ImportError, got %v", name, err)
			}
			if !errors.Is(err, ErrPlugin) {
				t.Errorf("%s: ImportError should match ErrPlugin", name)
			}
		}
	})

	t.Run("Iterate skips broken plugins", func(t *testing.T) {
		var names []string
		for name := range r.Iterate(GroupBackup) {
			names = append(names, name)
		}
		if !slices.Equal(names, []string{"tar"}) {
			t.Errorf("expected only loadable plugins, got %v", names)
		}
		if got := r.Names(GroupBackup); !slices.Equal(got, []string{"tar", "broken", "panics"}) {
			t.Errorf("Names should list primary names in order, got %v", got)
		}
	})
}

func TestBackupError(t *testing.T) {
	cause := errors.New("disk gone")
	be := BackupErrorf("dump failed: %w", cause)
	if !errors.Is(be, cause) || be.Error() != "dump failed: disk gone" {
		t.Errorf("unexpected BackupError %v", be)
	}
	if AsBackupError(nil) != nil {
		t.Error("nil should stay nil")
	}
	wrapped := AsBackupError(cause)
	if wrapped.Msg != "disk gone" || !errors.Is(wrapped, cause) {
		t.Errorf("foreign error not wrapped: %+v", wrapped)
	}
	if AsBackupError(be) != be {
		t.Error("a BackupError should pass through unchanged")
	}
}
