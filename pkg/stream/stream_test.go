package stream

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/configspec"
)

func roundTrip(t *testing.T, cfg Config) {
	t.Helper()
	base := filepath.Join(t.TempDir(), "dump.sql")
	payload := bytes.Repeat([]byte("INSERT INTO t VALUES (1);\n"), 1000)

	w, err := Create(base, cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if w.Name() != base+cfg.Method.Ext() {
		t.Errorf("Name() = %q, want %q", w.Name(), base+cfg.Method.Ext())
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	info, err := os.Stat(w.Name())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Method != None && info.Size() >= int64(len(payload)) {
		t.Errorf("%s output not compressed: %d bytes", cfg.Method, info.Size())
	}

	r, err := Open(w.Name(), cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("reader Close failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("%s round trip mismatch: got %d bytes", cfg.Method, len(got))
	}
}

func TestRoundTrip(t *testing.T) {
	for _, cfg := range []Config{
		{Method: None},
		{Method: Gzip, Level: 1},
		{Method: Gzip, Level: 9},
		{Method: Zstd, Level: 1},
		{Method: Zstd, Level: 9},
	} {
		t.Run(cfg.Method.String(), func(t *testing.T) { roundTrip(t, cfg) })
	}
}

func TestExternalRoundTrip(t *testing.T) {
	for _, m := range []Method{Bzip2, Xz} {
		t.Run(m.String(), func(t *testing.T) {
			if _, err := exec.LookPath(string(m)); err != nil {
				t.Skipf("%s not installed", m)
			}
			roundTrip(t, Config{Method: m, Level: 6})
		})
	}
}

func TestMissingCompressor(t *testing.T) {
	orig := lookPath
	lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	defer func() { lookPath = orig }()

	base := filepath.Join(t.TempDir(), "dump")
	_, err := Create(base, Config{Method: Lzop})
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := os.Stat(base + ".lzo"); !os.IsNotExist(err) {
		t.Error("failed Create must not leave a file behind")
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantExt string
		wantErr bool
	}{
		{"", None, "", false},
		{"gzip", Gzip, ".gz", false},
		{"ZSTD", Zstd, ".zst", false},
		{"lzop", Lzop, ".lzo", false},
		{"rar", "", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMethod(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMethod(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want || got.Ext() != tt.wantExt {
			t.Errorf("ParseMethod(%q) = %q (%q)", tt.in, got, got.Ext())
		}
	}
}

func TestConfigFromSection(t *testing.T) {
	raw, err := config.ParseString("[compression]\nmethod = zstd\noptions = --threads=2 \"-T 0\"\n")
	if err != nil {
		t.Fatal(err)
	}
	validated, err := Configspec.Validate(raw, configspec.Options{})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	cfg, err := ConfigFromSection(validated.Section("compression"))
	if err != nil {
		t.Fatalf("ConfigFromSection failed: %v", err)
	}
	if cfg.Method != Zstd || cfg.Level != 1 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if strings.Join(cfg.Options, "|") != "--threads=2|-T 0" {
		t.Errorf("options not shell-split: %q", cfg.Options)
	}

	none, err := ConfigFromSection(nil)
	if err != nil || none.Method != None {
		t.Errorf("nil section should give None, got %+v (%v)", none, err)
	}
}

func TestWriterReadFrom(t *testing.T) {
	base := filepath.Join(t.TempDir(), "out")
	w, err := Create(base, Config{Method: Gzip})
	if err != nil {
		t.Fatal(err)
	}
	payload := strings.Repeat("select 1;\n", 50000)
	n, err := io.Copy(w, strings.NewReader(payload))
	if err != nil {
		t.Fatalf("io.Copy failed: %v", err)
	}
	if n != int64(len(payload)) || w.Written() != n {
		t.Errorf("copied %d, Written() = %d, want %d", n, w.Written(), len(payload))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := Open(w.Name(), Config{Method: Gzip})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != payload {
		t.Errorf("read back %d bytes, want %d", len(got), len(payload))
	}
}
