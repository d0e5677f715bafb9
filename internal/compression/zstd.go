// Package compression wraps zstd for archive files.
package compression

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// Levels accepted by NewWriter.
const (
	LevelFastest = 1
	LevelDefault = 2
	LevelBetter  = 3
)

func encoderLevel(level int) zstd.EncoderLevel {
	switch level {
	case LevelFastest:
		return zstd.SpeedFastest
	case LevelBetter:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedDefault
	}
}

// NewWriter returns a zstd stream writing to w. Close flushes the stream but
// leaves w open.
func NewWriter(w io.Writer, level int) (*zstd.Encoder, error) {
	return zstd.NewWriter(w,
		zstd.WithEncoderLevel(encoderLevel(level)),
		zstd.WithEncoderConcurrency(1),
	)
}

// NewReader returns a zstd stream reading from r.
func NewReader(r io.Reader) (*zstd.Decoder, error) {
	return zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
}
