package blobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/aweris/blobs/internal/remote"
)

type listResponse struct {
	Blobs       []ListedBlob `json:"blobs"`
	Directories []string     `json:"directories"`
	NextCursor  string       `json:"next_cursor"`
}

type listStoresResponse struct {
	Stores     []string `json:"stores"`
	NextCursor string   `json:"next_cursor"`
}

// List returns every blob matching opts, following pagination to the end.
func (s *Store) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	result := &ListResult{Blobs: []ListedBlob{}, Directories: []string{}}
	for page, err := range s.ListPages(ctx, opts) {
		if err != nil {
			return nil, err
		}
		result.Blobs = append(result.Blobs, page.Blobs...)
		result.Directories = append(result.Directories, page.Directories...)
	}
	return result, nil
}

// ListPages yields the listing one backend page at a time. Iteration stops at
// the first error.
func (s *Store) ListPages(ctx context.Context, opts ListOptions) iter.Seq2[*ListResult, error] {
	query := url.Values{}
	if opts.Prefix != "" {
		query.Set("prefix", opts.Prefix)
	}
	if opts.Directories {
		query.Set("directories", "true")
	}

	return func(yield func(*ListResult, error) bool) {
		for payload, err := range paginate[listResponse](ctx, s.transport, s.scope, query) {
			if err != nil {
				yield(nil, err)
				return
			}
			page := &ListResult{Blobs: payload.Blobs, Directories: payload.Directories}
			if page.Blobs == nil {
				page.Blobs = []ListedBlob{}
			}
			if page.Directories == nil {
				page.Directories = []string{}
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

// ListStores returns the names of the site-wide stores of a site.
func ListStores(ctx context.Context, opts ...StoreOption) ([]string, error) {
	options := applyOptions(opts)
	c, err := resolveContext(options.explicitContext(), defaultSources...)
	if err != nil {
		return nil, err
	}
	transport, err := newTransport(c, options)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("prefix", siteScopePrefix)

	stores := []string{}
	for payload, err := range paginate[listStoresResponse](ctx, transport, "", query) {
		if err != nil {
			return nil, err
		}
		for _, scope := range payload.Stores {
			if name, ok := strings.CutPrefix(scope, siteScopePrefix); ok {
				stores = append(stores, name)
			}
		}
	}
	return stores, nil
}

// cursorPage is a page of any listing that continues at NextCursor.
type cursorPage interface {
	listResponse | listStoresResponse
}

func nextCursor[T cursorPage](page *T) string {
	switch p := any(page).(type) {
	case *listResponse:
		return p.NextCursor
	case *listStoresResponse:
		return p.NextCursor
	}
	return ""
}

// paginate fetches pages of the collection at scope until the backend stops
// returning a cursor. A missing collection yields a single empty page.
func paginate[T cursorPage](ctx context.Context, transport remote.Transport, scope string, query url.Values) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		cursor := ""
		for {
			q := url.Values{}
			for k, v := range query {
				q[k] = v
			}
			if cursor != "" {
				q.Set("cursor", cursor)
			}

			page, err := fetchPage[T](ctx, transport, scope, q)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) {
				return
			}
			if cursor = nextCursor(page); cursor == "" {
				return
			}
		}
	}
}

func fetchPage[T cursorPage](ctx context.Context, transport remote.Transport, scope string, query url.Values) (*T, error) {
	res, err := transport.Do(ctx, &remote.Request{Method: http.MethodGet, Scope: scope, Query: query})
	if err != nil {
		return nil, err
	}
	defer drain(res)

	page := new(T)
	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return page, nil
	default:
		return nil, remote.NewInternalError(res)
	}

	if err := json.NewDecoder(io.LimitReader(res.Body, 32<<20)).Decode(page); err != nil {
		return nil, remote.NewProtocolError(res, fmt.Errorf("decode listing: %w", err))
	}
	return page, nil
}
