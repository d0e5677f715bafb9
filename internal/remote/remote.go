// Package remote implements the transports used to reach the blob storage
// backend.
//
// Two strategies are supported:
//   - Edge: one authenticated request straight to a regional edge endpoint.
//   - API: the management API hands out a short-lived signed URL and the
//     storage request is sent there without credentials.
//
// Both are selected once from the resolved credentials and expose the same
// Transport interface, so callers never branch on the access mode.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultAPIURL is the management API used when the credentials carry none.
const DefaultAPIURL = "https://api.netlify.com"

// RegionAuto lets the management API pick the region.
const RegionAuto = "auto"

// Header names exchanged with the backend.
const (
	HeaderAuthorization = "Authorization"
	HeaderAccept        = "Accept"
	HeaderCacheControl  = "Cache-Control"
	HeaderETag          = "ETag"
	HeaderIfMatch       = "If-Match"
	HeaderIfNoneMatch   = "If-None-Match"
	HeaderRequestID     = "x-nf-request-id"
	HeaderError         = "x-nf-error"
	HeaderRateLimit     = "X-RateLimit-Reset"

	signedURLAccept = "application/json;type=signed-url"
)

// Consistency selects which edge cache a read is served from.
type Consistency string

const (
	ConsistencyEventual Consistency = "eventual"
	ConsistencyStrong   Consistency = "strong"
)

var ErrConsistency = errors.New("blobs: strong consistency requested but the environment has no uncached edge URL; " +
	"set the uncachedEdgeURL property or use eventual consistency")

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request is one logical operation against the backend.
//
// A request without a Key addresses the collection at Scope (or the whole
// site when Scope is empty) and is used for listings.
type Request struct {
	Method      string
	Scope       string
	Key         string
	Query       url.Values
	Header      http.Header
	Body        io.Reader
	Consistency Consistency
}

// Transport executes requests against the backend. Implementations are safe
// for concurrent use.
type Transport interface {
	Do(ctx context.Context, req *Request) (*http.Response, error)
}

// Config carries everything a transport needs. EdgeURL decides the strategy.
type Config struct {
	Client Doer
	Logger logrus.FieldLogger
	Retry  RetryPolicy

	Token  string
	SiteID string
	Region string

	APIURL          string
	EdgeURL         string
	UncachedEdgeURL string
}

// New returns an edge transport when cfg has an edge URL and an API
// transport otherwise.
func New(cfg Config) (Transport, error) {
	if cfg.Client == nil {
		return nil, errors.New("remote: nil HTTP client")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	s := &sender{client: cfg.Client, log: cfg.Logger, retry: cfg.Retry.normalize()}

	if cfg.EdgeURL != "" {
		edge, err := parseBase(cfg.EdgeURL)
		if err != nil {
			return nil, fmt.Errorf("invalid edge URL: %w", err)
		}
		var uncached *url.URL
		if cfg.UncachedEdgeURL != "" {
			if uncached, err = parseBase(cfg.UncachedEdgeURL); err != nil {
				return nil, fmt.Errorf("invalid uncached edge URL: %w", err)
			}
		}
		return &EdgeTransport{
			sender:      s,
			edgeURL:     edge,
			uncachedURL: uncached,
			token:       cfg.Token,
			siteID:      cfg.SiteID,
			region:      cfg.Region,
		}, nil
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	api, err := parseBase(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	region := cfg.Region
	if region == "" {
		region = RegionAuto
	}
	return &APITransport{
		sender: s,
		apiURL: api,
		token:  cfg.Token,
		siteID: cfg.SiteID,
		region: region,
	}, nil
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute URL", raw)
	}
	return u, nil
}

// buildURL appends the non-empty segments to base's path. Segments may contain
// slashes (keys often do) and are escaped as a whole path, not per segment.
func buildURL(base *url.URL, query url.Values, segments ...string) string {
	u := *base
	p := strings.TrimSuffix(u.Path, "/")
	for _, seg := range segments {
		if seg != "" {
			p += "/" + seg
		}
	}
	u.Path = p
	u.RawPath = ""
	u.RawQuery = query.Encode()
	return u.String()
}

func bearer(token string) string { return "Bearer " + token }
