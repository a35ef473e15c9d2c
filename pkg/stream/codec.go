package stream

import (
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// newEncoder wraps w for an in-process method. It returns nil for None.
func newEncoder(w io.Writer, cfg Config) (io.WriteCloser, error) {
	switch cfg.Method {
	case None:
		return nil, nil
	case Gzip:
		lvl := cfg.Level
		if lvl <= 0 {
			lvl = pgzip.BestSpeed
		}
		gz, err := pgzip.NewWriterLevel(w, min(lvl, pgzip.BestCompression))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return gz, nil
	case Zstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstdLevel(cfg.Level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return enc, nil
	}
	return nil, fmt.Errorf("method %s is not compressed in-process", cfg.Method)
}

// zstdLevel maps the 0-9 scale onto the encoder's speed presets.
func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 5:
		return zstd.SpeedDefault
	case level <= 7:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// newDecoder wraps r for reading. bzip2 is decoded by the standard library.
func newDecoder(r io.Reader, cfg Config) (io.ReadCloser, error) {
	switch cfg.Method {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gz, nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return zstdReadCloser{dec}, nil
	case Bzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	}
	return nil, fmt.Errorf("unsupported compression method %q", cfg.Method)
}
