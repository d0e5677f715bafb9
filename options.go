package blobs

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/aweris/blobs/internal/remote"
)

// Consistency modes for reads served by the edge.
const (
	ConsistencyEventual = remote.ConsistencyEventual
	ConsistencyStrong   = remote.ConsistencyStrong
)

// Consistency selects whether edge reads may be served from cache.
type Consistency = remote.Consistency

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer = remote.Doer

// RetryPolicy controls how transient failures are retried.
type RetryPolicy = remote.RetryPolicy

// DefaultHTTPClient is used when no client is injected with WithHTTPClient.
// Setting it to nil makes an injected client mandatory.
var DefaultHTTPClient Doer = http.DefaultClient

// StoreOptions configures a store. Empty fields fall back to the context
// found in the environment.
type StoreOptions struct {
	SiteID          string
	Token           string
	APIURL          string
	EdgeURL         string
	UncachedEdgeURL string
	DeployID        string
	Name            string
	Region          string
	Consistency     Consistency
	HTTPClient      Doer
	Logger          logrus.FieldLogger
	Retry           RetryPolicy
}

// StoreOption is a functional option for GetStore, GetDeployStore and ListStores.
type StoreOption func(*StoreOptions)

func defaultOptions() *StoreOptions {
	return &StoreOptions{
		Consistency: ConsistencyEventual,
		Logger:      logrus.StandardLogger(),
		Retry:       remote.DefaultRetryPolicy(),
	}
}

func (o *StoreOptions) explicitContext() Context {
	return Context{
		APIURL:          o.APIURL,
		DeployID:        o.DeployID,
		EdgeURL:         o.EdgeURL,
		SiteID:          o.SiteID,
		Token:           o.Token,
		UncachedEdgeURL: o.UncachedEdgeURL,
	}
}

// WithSiteID sets the site the store belongs to.
func WithSiteID(id string) StoreOption {
	return func(o *StoreOptions) { o.SiteID = id }
}

// WithToken sets the access token.
func WithToken(token string) StoreOption {
	return func(o *StoreOptions) { o.Token = token }
}

// WithAPIURL overrides the management API base URL.
func WithAPIURL(u string) StoreOption {
	return func(o *StoreOptions) { o.APIURL = u }
}

// WithEdgeURL switches the store to edge access through u.
func WithEdgeURL(u string) StoreOption {
	return func(o *StoreOptions) { o.EdgeURL = u }
}

// WithUncachedEdgeURL sets the edge URL used for strongly consistent reads.
func WithUncachedEdgeURL(u string) StoreOption {
	return func(o *StoreOptions) { o.UncachedEdgeURL = u }
}

// WithDeployID sets the deploy for GetDeployStore.
func WithDeployID(id string) StoreOption {
	return func(o *StoreOptions) { o.DeployID = id }
}

// WithStoreName names a store nested inside a deploy scope.
func WithStoreName(name string) StoreOption {
	return func(o *StoreOptions) { o.Name = name }
}

// WithRegion pins the region, overriding the one from the environment.
func WithRegion(region string) StoreOption {
	return func(o *StoreOptions) { o.Region = region }
}

// WithConsistency sets the default read consistency of the store.
func WithConsistency(c Consistency) StoreOption {
	return func(o *StoreOptions) { o.Consistency = c }
}

// WithHTTPClient injects the HTTP client used for every request.
func WithHTTPClient(c Doer) StoreOption {
	return func(o *StoreOptions) { o.HTTPClient = c }
}

// WithLogger sets the logger. Retries are logged at debug level.
func WithLogger(l logrus.FieldLogger) StoreOption {
	return func(o *StoreOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) StoreOption {
	return func(o *StoreOptions) { o.Retry = p }
}

type getOptions struct {
	etag        string
	consistency Consistency
}

// GetOption configures a read.
type GetOption func(*getOptions)

// WithETag revalidates a cached copy: when the stored blob still has this
// etag, GetWithMetadata and GetMetadata return no data but the current etag.
func WithETag(etag string) GetOption {
	return func(o *getOptions) { o.etag = etag }
}

// WithReadConsistency overrides the store's consistency for one read.
func WithReadConsistency(c Consistency) GetOption {
	return func(o *getOptions) { o.consistency = c }
}

type setOptions struct {
	metadata    map[string]any
	onlyIfNew   bool
	onlyIfMatch *string
}

// SetOption configures a write.
type SetOption func(*setOptions)

// WithMetadata attaches user metadata to the blob.
func WithMetadata(m map[string]any) SetOption {
	return func(o *setOptions) { o.metadata = m }
}

// OnlyIfNew makes the write succeed only if the key does not exist yet.
func OnlyIfNew() SetOption {
	return func(o *setOptions) { o.onlyIfNew = true }
}

// OnlyIfMatch makes the write succeed only if the stored etag equals etag.
func OnlyIfMatch(etag string) SetOption {
	return func(o *setOptions) { o.onlyIfMatch = &etag }
}
