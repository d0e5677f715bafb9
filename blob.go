package blobs

// Info describes a stored blob without its content.
type Info struct {
	ETag     string
	Metadata map[string]any
}

// Entry is a blob together with its etag and metadata. Data is nil when a
// conditional read found the blob unchanged.
type Entry struct {
	Info
	Data []byte
}

// WriteResult reports the outcome of a write. Modified is false when a
// conditional write was rejected because its precondition did not hold.
type WriteResult struct {
	Modified bool
	ETag     string
}

// ListedBlob is one blob returned by a listing.
type ListedBlob struct {
	Key  string `json:"key"`
	ETag string `json:"etag"`
}

// ListResult is one or more pages of a listing.
type ListResult struct {
	Blobs       []ListedBlob
	Directories []string
}

// ListOptions filters a listing.
type ListOptions struct {
	// Prefix restricts results to keys starting with it.
	Prefix string
	// Directories groups keys by their next "/" separated segment, reporting
	// the groups in ListResult.Directories instead of the keys inside them.
	Directories bool
}
