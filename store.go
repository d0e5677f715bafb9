package blobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/aweris/blobs/internal/metadata"
	"github.com/aweris/blobs/internal/remote"
)

const cacheControl = "max-age=0, stale-while-revalidate=60"

// Store is a handle on one store of a site. It holds no mutable state and is
// safe for concurrent use.
type Store struct {
	name        string
	scope       string
	consistency Consistency
	transport   remote.Transport
	log         logrus.FieldLogger
}

// GetStore returns the site-wide store called name.
//
// Credentials come from the options, falling back to EnvironmentVariable and
// then to the global context. Construction does not touch the network.
func GetStore(name string, opts ...StoreOption) (*Store, error) {
	if name == "" {
		return nil, ErrMissingStoreName
	}
	scope, err := siteScope(name)
	if err != nil {
		return nil, err
	}

	options := applyOptions(opts)
	c, err := resolveContext(options.explicitContext(), defaultSources...)
	if err != nil {
		return nil, err
	}
	return newStore(name, scope, c, options)
}

// GetDeployStore returns the store scoped to one deploy. The deploy comes from
// WithDeployID or from the environment; WithStoreName selects a named store
// inside that deploy.
func GetDeployStore(opts ...StoreOption) (*Store, error) {
	options := applyOptions(opts)
	c, err := resolveContext(options.explicitContext(), defaultSources...)
	if err != nil {
		return nil, err
	}
	if c.DeployID == "" {
		return nil, ErrMissingDeployID
	}
	scope, err := deployScope(c.DeployID, options.Name)
	if err != nil {
		return nil, err
	}

	name := options.Name
	if name == "" {
		name = c.DeployID
	}
	return newStore(name, scope, c, options)
}

func applyOptions(opts []StoreOption) *StoreOptions {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func newStore(name, scope string, c Context, options *StoreOptions) (*Store, error) {
	transport, err := newTransport(c, options)
	if err != nil {
		return nil, err
	}
	return &Store{
		name:        name,
		scope:       scope,
		consistency: options.Consistency,
		transport:   transport,
		log:         options.Logger.WithField("store", name),
	}, nil
}

// newTransport validates the routing options and picks the access mode.
func newTransport(c Context, options *StoreOptions) (remote.Transport, error) {
	client := options.HTTPClient
	if client == nil {
		client = DefaultHTTPClient
	}
	if client == nil {
		return nil, ErrMissingTransport
	}

	region := options.Region
	if region == "" {
		region = c.PrimaryRegion
	}
	if region != "" {
		if err := validateRegion(region); err != nil {
			return nil, err
		}
	}
	if c.EdgeURL != "" {
		switch region {
		case "":
			return nil, ErrMissingRegion
		case remote.RegionAuto:
			// The edge is addressed by a concrete region.
			return nil, invalid("region", region, "edge access needs a concrete region")
		}
	}

	switch options.Consistency {
	case "", ConsistencyEventual:
	case ConsistencyStrong:
		if c.EdgeURL != "" && c.UncachedEdgeURL == "" {
			return nil, ErrConsistency
		}
	default:
		return nil, invalid("consistency", string(options.Consistency), `must be "eventual" or "strong"`)
	}

	transport, err := remote.New(remote.Config{
		Client:          client,
		Logger:          options.Logger,
		Retry:           options.Retry,
		Token:           c.Token,
		SiteID:          c.SiteID,
		Region:          region,
		APIURL:          c.APIURL,
		EdgeURL:         c.EdgeURL,
		UncachedEdgeURL: c.UncachedEdgeURL,
	})
	if err != nil {
		return nil, fmt.Errorf("blobs: %w", err)
	}
	return transport, nil
}

// Name returns the name the store was opened with.
func (s *Store) Name() string { return s.name }

// Scope returns the backend namespace of the store, e.g. "site:images".
func (s *Store) Scope() string { return s.scope }

// Get returns the content of key, or nil if it does not exist.
func (s *Store) Get(ctx context.Context, key string, opts ...GetOption) ([]byte, error) {
	o := readOptions(opts)
	o.etag = ""
	res, err := s.read(ctx, http.MethodGet, key, o)
	if err != nil || res == nil {
		return nil, err
	}
	defer res.Body.Close()
	return readBody(res)
}

// GetString is Get for text content. ok is false if the key does not exist.
func (s *Store) GetString(ctx context.Context, key string, opts ...GetOption) (value string, ok bool, err error) {
	data, err := s.Get(ctx, key, opts...)
	if err != nil || data == nil {
		return "", false, err
	}
	return string(data), true, nil
}

// GetJSON decodes the content of key into v. It reports false, leaving v
// untouched, if the key does not exist.
func (s *Store) GetJSON(ctx context.Context, key string, v any, opts ...GetOption) (bool, error) {
	data, err := s.Get(ctx, key, opts...)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// GetStream returns the content of key as a stream, or nil if it does not
// exist. The caller must close it.
func (s *Store) GetStream(ctx context.Context, key string, opts ...GetOption) (io.ReadCloser, error) {
	o := readOptions(opts)
	o.etag = ""
	res, err := s.read(ctx, http.MethodGet, key, o)
	if err != nil || res == nil {
		return nil, err
	}
	return res.Body, nil
}

// GetWithMetadata returns the content of key along with its etag and metadata,
// or nil if it does not exist. With WithETag, an unchanged blob comes back
// with nil Data.
func (s *Store) GetWithMetadata(ctx context.Context, key string, opts ...GetOption) (*Entry, error) {
	o := readOptions(opts)
	res, err := s.read(ctx, http.MethodGet, key, o)
	if err != nil || res == nil {
		return nil, err
	}
	defer res.Body.Close()

	info, err := responseInfo(res, o.etag)
	if err != nil {
		return nil, err
	}
	entry := &Entry{Info: *info}
	if res.StatusCode == http.StatusNotModified {
		return entry, nil
	}
	if entry.Data, err = readBody(res); err != nil {
		return nil, err
	}
	return entry, nil
}

// GetMetadata returns the etag and metadata of key without its content, or
// nil if it does not exist.
func (s *Store) GetMetadata(ctx context.Context, key string, opts ...GetOption) (*Info, error) {
	o := readOptions(opts)
	res, err := s.read(ctx, http.MethodHead, key, o)
	if err != nil || res == nil {
		return nil, err
	}
	defer res.Body.Close()
	return responseInfo(res, o.etag)
}

// Set writes data under key.
func (s *Store) Set(ctx context.Context, key string, data []byte, opts ...SetOption) (WriteResult, error) {
	return s.write(ctx, key, bytes.NewReader(data), opts)
}

// SetStream writes the content of r under key. Readers that implement
// io.Seeker can be retried after transient failures; others are sent once.
func (s *Store) SetStream(ctx context.Context, key string, r io.Reader, opts ...SetOption) (WriteResult, error) {
	return s.write(ctx, key, r, opts)
}

// SetJSON writes v encoded as JSON under key.
func (s *Store) SetJSON(ctx context.Context, key string, v any, opts ...SetOption) (WriteResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return WriteResult{}, fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Set(ctx, key, data, opts...)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	res, err := s.transport.Do(ctx, &remote.Request{Method: http.MethodDelete, Scope: s.scope, Key: key})
	if err != nil {
		return err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return remote.NewInternalError(res)
}

func (s *Store) write(ctx context.Context, key string, body io.Reader, opts []SetOption) (WriteResult, error) {
	if err := validateKey(key); err != nil {
		return WriteResult{}, err
	}

	o := &setOptions{}
	for _, opt := range opts {
		opt(o)
	}

	header := http.Header{}
	header.Set(remote.HeaderCacheControl, cacheControl)

	switch {
	case o.onlyIfNew && o.onlyIfMatch != nil:
		return WriteResult{}, invalid("write options", "", "OnlyIfNew and OnlyIfMatch are mutually exclusive")
	case o.onlyIfNew:
		header.Set(remote.HeaderIfNoneMatch, "*")
	case o.onlyIfMatch != nil:
		if *o.onlyIfMatch == "" {
			return WriteResult{}, invalid("write options", "", "OnlyIfMatch requires a non-empty etag")
		}
		header.Set(remote.HeaderIfMatch, *o.onlyIfMatch)
	}

	encoded, err := metadata.Encode(o.metadata)
	if err != nil {
		return WriteResult{}, &ValidationError{Field: "metadata", Reason: err.Error(), Err: err}
	}
	if encoded != "" {
		header.Set(metadata.Header, encoded)
	}

	res, err := s.transport.Do(ctx, &remote.Request{
		Method: http.MethodPut,
		Scope:  s.scope,
		Key:    key,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return WriteResult{}, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return WriteResult{Modified: true, ETag: res.Header.Get(remote.HeaderETag)}, nil
	case http.StatusPreconditionFailed:
		s.log.WithField("key", key).Debug("conditional write rejected")
		return WriteResult{Modified: false}, nil
	}
	return WriteResult{}, remote.NewInternalError(res)
}

// read returns the response for a found (or unchanged) blob, nil for a missing
// one, and an error for anything else.
func (s *Store) read(ctx context.Context, method, key string, o *getOptions) (*http.Response, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	header := http.Header{}
	if o.etag != "" {
		header.Set(remote.HeaderIfNoneMatch, o.etag)
	}

	consistency := o.consistency
	if consistency == "" {
		consistency = s.consistency
	}

	res, err := s.transport.Do(ctx, &remote.Request{
		Method:      method,
		Scope:       s.scope,
		Key:         key,
		Header:      header,
		Consistency: consistency,
	})
	if err != nil {
		return nil, err
	}

	switch res.StatusCode {
	case http.StatusOK, http.StatusNotModified:
		return res, nil
	case http.StatusNotFound:
		drain(res)
		return nil, nil
	}
	err = remote.NewInternalError(res)
	drain(res)
	return nil, err
}

func readOptions(opts []GetOption) *getOptions {
	o := &getOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// responseInfo extracts the etag and decoded metadata of a read response.
// requested is the etag sent for revalidation, used when a 304 omits it.
func responseInfo(res *http.Response, requested string) (*Info, error) {
	meta, err := metadata.Decode(res.Header.Get(metadata.Header))
	if err != nil {
		return nil, remote.NewProtocolError(res, err)
	}
	etag := res.Header.Get(remote.HeaderETag)
	if etag == "" && res.StatusCode == http.StatusNotModified {
		etag = requested
	}
	return &Info{ETag: etag, Metadata: meta}, nil
}

func readBody(res *http.Response) ([]byte, error) {
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
	_ = res.Body.Close()
}
