// Package archive reads and writes store exports: a zstd-compressed stream of
// records, each holding one blob's key, metadata and content.
//
// Record layout after the magic header:
//
//	[key length 2B][key][metadata length 4B][metadata JSON][data length 8B][data]
package archive

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/aweris/blobs/internal/compression"
)

var magic = []byte("BLOBARC1")

var ErrFormat = errors.New("archive: not a blob archive")

// MaxMetadataSize bounds the metadata JSON of one record. Stored metadata is
// limited to 2 KiB encoded, so anything larger is corruption.
const MaxMetadataSize = 16 << 10

// Record is one blob in an archive.
type Record struct {
	Key      string
	Metadata map[string]any
	Data     []byte
}

// Writer appends records to an archive. It is not safe for concurrent use.
type Writer struct {
	zw  *zstd.Encoder
	buf *bufio.Writer
}

// NewWriter starts an archive on w using the given compression level.
func NewWriter(w io.Writer, level int) (*Writer, error) {
	zw, err := compression.NewWriter(w, level)
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	aw := &Writer{zw: zw, buf: bufio.NewWriter(zw)}
	if _, err := aw.buf.Write(magic); err != nil {
		return nil, err
	}
	return aw, nil
}

func (w *Writer) Write(r Record) error {
	if len(r.Key) > math.MaxUint16 {
		return fmt.Errorf("key too long: %d bytes", len(r.Key))
	}

	var meta []byte
	if len(r.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(r.Metadata); err != nil {
			return fmt.Errorf("marshal metadata of %q: %w", r.Key, err)
		}
		if len(meta) > MaxMetadataSize {
			return fmt.Errorf("metadata of %q exceeds %d bytes", r.Key, MaxMetadataSize)
		}
	}

	var hdr [8]byte
	binary.BigEndian.PutUint16(hdr[:2], uint16(len(r.Key)))
	w.buf.Write(hdr[:2])
	w.buf.WriteString(r.Key)

	binary.BigEndian.PutUint32(hdr[:4], uint32(len(meta)))
	w.buf.Write(hdr[:4])
	w.buf.Write(meta)

	binary.BigEndian.PutUint64(hdr[:], uint64(len(r.Data)))
	w.buf.Write(hdr[:])
	if _, err := w.buf.Write(r.Data); err != nil {
		return fmt.Errorf("write %q: %w", r.Key, err)
	}
	return nil
}

// Close flushes the archive. The underlying writer is left open.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.zw.Close()
}

// Reader iterates over the records of an archive.
type Reader struct {
	zr  *zstd.Decoder
	buf *bufio.Reader
}

// NewReader opens an archive and checks its header.
func NewReader(r io.Reader) (*Reader, error) {
	zr, err := compression.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	ar := &Reader{zr: zr, buf: bufio.NewReader(zr)}

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(ar.buf, head); err != nil || string(head) != string(magic) {
		zr.Close()
		return nil, ErrFormat
	}
	return ar, nil
}

// Next returns the next record, or io.EOF after the last one. Lengths in the
// stream are not trusted: content is read incrementally, so a corrupt length
// fails with io.ErrUnexpectedEOF once the stream runs out.
func (r *Reader) Next() (*Record, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r.buf, hdr[:2]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read key length: %w", err)
	}
	key := make([]byte, binary.BigEndian.Uint16(hdr[:2]))
	if _, err := io.ReadFull(r.buf, key); err != nil {
		return nil, fmt.Errorf("read key: %w", unexpected(err))
	}

	if _, err := io.ReadFull(r.buf, hdr[:4]); err != nil {
		return nil, fmt.Errorf("read metadata length: %w", unexpected(err))
	}
	rec := &Record{Key: string(key)}
	if n := binary.BigEndian.Uint32(hdr[:4]); n > 0 {
		if n > MaxMetadataSize {
			return nil, fmt.Errorf("%w: metadata of %q is %d bytes", ErrFormat, rec.Key, n)
		}
		meta := make([]byte, n)
		if _, err := io.ReadFull(r.buf, meta); err != nil {
			return nil, fmt.Errorf("read metadata: %w", unexpected(err))
		}
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata of %q: %w", rec.Key, err)
		}
	}

	if _, err := io.ReadFull(r.buf, hdr[:]); err != nil {
		return nil, fmt.Errorf("read data length: %w", unexpected(err))
	}
	size := binary.BigEndian.Uint64(hdr[:])
	if size > math.MaxInt64 {
		return nil, fmt.Errorf("%w: data of %q claims %d bytes", ErrFormat, rec.Key, size)
	}
	var data bytes.Buffer
	if _, err := io.CopyN(&data, r.buf, int64(size)); err != nil {
		return nil, fmt.Errorf("read data of %q: %w", rec.Key, unexpected(err))
	}
	rec.Data = data.Bytes()
	if rec.Data == nil {
		rec.Data = []byte{}
	}
	return rec, nil
}

func (r *Reader) Close() { r.zr.Close() }

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
