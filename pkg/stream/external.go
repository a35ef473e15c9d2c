package stream

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// lookPath is swappable for tests.
var lookPath = exec.LookPath

func compressorArgs(cfg Config, decompress bool) (string, []string, error) {
	bin, err := lookPath(string(cfg.Method))
	if err != nil {
		return "", nil, fmt.Errorf("%s compression requested but %s was not found: %w", cfg.Method, cfg.Method, err)
	}
	if decompress {
		return bin, []string{"-d", "-c"}, nil
	}
	args := []string{"-c"}
	if cfg.Level > 0 {
		args = append(args, "-"+strconv.Itoa(min(cfg.Level, 9)))
	}
	args = append(args, cfg.Options...)
	return bin, args, nil
}

// startCompressor pipes writes through an external compressor into f.
func startCompressor(f *os.File, cfg Config) (*Writer, error) {
	bin, args, err := compressorArgs(cfg, false)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdout = f
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", bin, err)
	}
	wait := func() error {
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("%s failed: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
		}
		return nil
	}
	return &Writer{
		w:       stdin,
		closers: []func() error{stdin.Close, wait, f.Sync, f.Close},
	}, nil
}

type commandReader struct {
	io.ReadCloser
	cmd *exec.Cmd
	f   *os.File
	eof bool
}

func (r *commandReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err == io.EOF {
		r.eof = true
	}
	return n, err
}

func (r *commandReader) Close() error {
	r.ReadCloser.Close()
	err := r.cmd.Wait()
	r.f.Close()
	if !r.eof {
		// Stopped early; the decompressor died of a broken pipe.
		return nil
	}
	return err
}

// startDecompressor reads f through an external decompressor.
func startDecompressor(f *os.File, cfg Config) (io.ReadCloser, error) {
	bin, args, err := compressorArgs(cfg, true)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdin = f
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", bin, err)
	}
	return &commandReader{ReadCloser: stdout, cmd: cmd, f: f}, nil
}
