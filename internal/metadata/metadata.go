// Package metadata encodes user metadata into the header value understood by
// the blob storage backend.
//
// Encoded values carry a "b64;" tag followed by base64 JSON, so the decoder can
// tell them apart from raw legacy values.
package metadata

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// Header is the custom header that carries encoded metadata on both
	// the storage request and the storage response.
	Header = "x-amz-meta-user"

	// MaxSize is the largest encoded value the backend accepts.
	MaxSize = 2 * 1024

	prefix = "b64;"
)

var (
	ErrTooLarge  = errors.New("metadata: encoded value exceeds size limit")
	ErrMalformed = errors.New("metadata: malformed header value")
)

// Encode serializes m into a header value. An empty map encodes to "", which
// means no header should be sent.
func Encode(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "", nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	value := prefix + base64.StdEncoding.EncodeToString(data)
	if len(value) > MaxSize {
		return "", fmt.Errorf("%w: %d bytes, maximum is %d", ErrTooLarge, len(value), MaxSize)
	}
	return value, nil
}

// Decode parses a header value produced by Encode. An absent header decodes to
// an empty map.
func Decode(value string) (map[string]any, error) {
	m := map[string]any{}
	if value == "" {
		return m, nil
	}

	encoded, ok := strings.CutPrefix(value, prefix)
	if !ok {
		return nil, ErrMalformed
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMalformed
	}

	// JSON null leaves no object behind.
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return nil, ErrMalformed
	}
	return m, nil
}
