package remote

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// bodySource hands out the request body once per attempt. Bodies backed by an
// io.Seeker are rewound to where they started; other readers can be sent once.
type bodySource struct {
	r      io.Reader
	seeker io.Seeker
	start  int64
	size   int64
	sent   bool
}

func newBodySource(r io.Reader) (*bodySource, error) {
	b := &bodySource{r: r, size: -1}
	if r == nil {
		return b, nil
	}
	s, ok := r.(io.Seeker)
	if !ok {
		return b, nil
	}
	start, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		// Pipes and terminals implement Seek but cannot rewind.
		return b, nil
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seek body: %w", err)
	}
	if _, err := s.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek body: %w", err)
	}
	b.seeker, b.start, b.size = s, start, end-start
	return b, nil
}

func (b *bodySource) replayable() bool { return b.r == nil || b.seeker != nil }

// next returns the body for one attempt and its length, or -1 when unknown.
func (b *bodySource) next() (io.Reader, int64, error) {
	if b.r == nil {
		return nil, 0, nil
	}
	if b.seeker != nil {
		if b.sent {
			if _, err := b.seeker.Seek(b.start, io.SeekStart); err != nil {
				return nil, 0, fmt.Errorf("rewind body: %w", err)
			}
		}
		b.sent = true
		switch r := b.r.(type) {
		case *bytes.Reader, *strings.Reader:
			return r, b.size, nil
		}
		// Keep the transport from closing a reader the caller owns.
		return io.NopCloser(b.r), b.size, nil
	}
	if b.sent {
		return nil, 0, fmt.Errorf("body already consumed")
	}
	b.sent = true
	return io.NopCloser(b.r), -1, nil
}
