// Package stream opens plain or compressed output files for plugins. The
// core never looks at what plugins write; it only hands them an Opener.
//
// gzip and zstd are compressed in-process. bzip2, xz and lzop are piped
// through the matching command-line tool found on PATH.
package stream

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/kballard/go-shellquote"

	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/configspec"
	"github.com/paulschiretz/holland/pkg/pool"
	"github.com/paulschiretz/holland/pkg/util"
)

// Configspec is the [compression] section plugins merge into their spec.
var Configspec = configspec.MustParse(`
[compression]
method  = option('none', 'gzip', 'zstd', 'bzip2', 'xz', 'lzop', default='gzip')
level   = integer(min=0, max=9, default=1)
options = string(default='')
`)

// Config selects how a stream is compressed.
type Config struct {
	Method Method
	// Level runs from 0 (fastest) to 9 (smallest).
	Level int
	// Options are extra arguments for external compressors.
	Options []string
}

// ConfigFromSection reads a validated [compression] section. A nil section
// yields an uncompressed config.
func ConfigFromSection(sec *config.Config) (Config, error) {
	if sec == nil {
		return Config{Method: None}, nil
	}
	m, err := ParseMethod(sec.String("method"))
	if err != nil {
		return Config{}, err
	}
	opts, err := shellquote.Split(sec.String("options"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid compression options: %w", err)
	}
	return Config{Method: m, Level: int(sec.Int("level")), Options: opts}, nil
}

// Opener is the capability plugins use to create their output files.
type Opener interface {
	// Create opens base plus the method's extension for writing.
	Create(base string, cfg Config) (*Writer, error)
	// Open opens a file written by Create for reading.
	Open(name string, cfg Config) (io.ReadCloser, error)
}

// copyBuffers backs Writer.ReadFrom, which is how exec.Cmd and io.Copy
// feed command output into a stream.
var copyBuffers = pool.New(256 * 1024)

// Writer is a compressed output file.
type Writer struct {
	name    string
	w       io.Writer
	written int64
	closers []func() error
	closed  bool
}

// Name returns the path of the file being written.
func (w *Writer) Name() string { return w.name }

// Written is the number of uncompressed bytes written so far.
func (w *Writer) Written() int64 { return w.written }

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.written += int64(n)
	return n, err
}

// ReadFrom implements io.ReaderFrom with a pooled copy buffer.
func (w *Writer) ReadFrom(r io.Reader) (int64, error) {
	return copyBuffers.Copy(w, r)
}

// Close flushes every layer and closes the file. It is safe to call twice.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var first error
	for _, c := range w.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// FileOpener is the default Opener.
type FileOpener struct {
	// Perm is the mode of created files; zero means owner read/write only.
	Perm os.FileMode
}

// Create implements Opener.
func (o FileOpener) Create(base string, cfg Config) (*Writer, error) {
	if cfg.Method == "" {
		cfg.Method = None
	}
	if _, ok := methodToString[cfg.Method]; !ok {
		return nil, fmt.Errorf("unsupported compression method %q", cfg.Method)
	}
	perm := o.Perm
	if perm == 0 {
		perm = util.UserOnlyFilePerms
	}
	name := base + cfg.Method.Ext()
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return nil, err
	}

	if cfg.Method.external() {
		w, err := startCompressor(f, cfg)
		if err != nil {
			f.Close()
			os.Remove(name)
			return nil, err
		}
		w.name = name
		return w, nil
	}

	buf := bufio.NewWriterSize(f, 256*1024)
	w := &Writer{name: name}
	enc, err := newEncoder(buf, cfg)
	if err != nil {
		f.Close()
		os.Remove(name)
		return nil, err
	}
	if enc == nil {
		w.w = buf
	} else {
		w.w = enc
		w.closers = append(w.closers, enc.Close)
	}
	w.closers = append(w.closers, buf.Flush, f.Sync, f.Close)
	return w, nil
}

// Open implements Opener.
func (o FileOpener) Open(name string, cfg Config) (io.ReadCloser, error) {
	if cfg.Method == "" {
		cfg.Method = None
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	if cfg.Method.external() && cfg.Method != Bzip2 {
		r, err := startDecompressor(f, cfg)
		if err != nil {
			f.Close()
			return nil, err
		}
		return r, nil
	}
	r, err := newDecoder(bufio.NewReader(f), cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &readCloser{Reader: r, closers: []func() error{r.Close, f.Close}}, nil
}

type readCloser struct {
	io.Reader
	closers []func() error
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Create opens base for writing with the default FileOpener.
func Create(base string, cfg Config) (*Writer, error) {
	return FileOpener{}.Create(base, cfg)
}

// Open opens name for reading with the default FileOpener.
func Open(name string, cfg Config) (io.ReadCloser, error) {
	return FileOpener{}.Open(name, cfg)
}
