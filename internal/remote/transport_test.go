package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransport(t *testing.T, cfg Config) Transport {
	t.Helper()
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	cfg.Logger = quietLogger()
	cfg.Retry = fastPolicy()
	tr, err := New(cfg)
	require.NoError(t, err)
	return tr
}

func TestNew_SelectsStrategy(t *testing.T) {
	edge := newTransport(t, Config{Token: "tok", SiteID: "site", EdgeURL: "https://edge.example", Region: "us-east-1"})
	assert.IsType(t, &EdgeTransport{}, edge)

	api := newTransport(t, Config{Token: "tok", SiteID: "site"})
	require.IsType(t, &APITransport{}, api)
	assert.Equal(t, DefaultAPIURL, api.(*APITransport).apiURL.String())
	assert.Equal(t, RegionAuto, api.(*APITransport).region)
}

func TestNew_RejectsInvalidURLs(t *testing.T) {
	_, err := New(Config{Client: http.DefaultClient, EdgeURL: "not a url"})
	require.Error(t, err)

	_, err = New(Config{Client: http.DefaultClient, APIURL: "/relative"})
	require.Error(t, err)

	_, err = New(Config{})
	require.Error(t, err)
}

func TestEdgeTransport_Request(t *testing.T) {
	var got *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
		w.Header().Set(HeaderETag, `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := newTransport(t, Config{Token: "tok", SiteID: "site-1", EdgeURL: srv.URL, Region: "eu-central-1"})

	header := http.Header{}
	header.Set(HeaderIfNoneMatch, "*")
	res, err := tr.Do(context.Background(), &Request{
		Method: http.MethodPut,
		Scope:  "site:images",
		Key:    "nested/my key",
		Header: header,
		Body:   bytes.NewReader([]byte("hello")),
	})
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/region:eu-central-1/site-1/site:images/nested/my key", got.URL.Path)
	assert.Equal(t, "Bearer tok", got.Header.Get(HeaderAuthorization))
	assert.Equal(t, "*", got.Header.Get(HeaderIfNoneMatch))
	assert.Equal(t, int64(5), got.ContentLength)
	assert.Equal(t, "hello", string(body))
}

func TestEdgeTransport_StrongConsistency(t *testing.T) {
	var cachedHits, uncachedHits int
	cached := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { cachedHits++ }))
	defer cached.Close()
	uncached := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { uncachedHits++ }))
	defer uncached.Close()

	tr := newTransport(t, Config{Token: "tok", SiteID: "s", EdgeURL: cached.URL, UncachedEdgeURL: uncached.URL, Region: "us-east-1"})

	res, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, Scope: "site:x", Key: "k", Consistency: ConsistencyStrong})
	require.NoError(t, err)
	res.Body.Close()
	res, err = tr.Do(context.Background(), &Request{Method: http.MethodGet, Scope: "site:x", Key: "k"})
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, 1, cachedHits)
	assert.Equal(t, 1, uncachedHits)

	noUncached := newTransport(t, Config{Token: "tok", SiteID: "s", EdgeURL: cached.URL, Region: "us-east-1"})
	_, err = noUncached.Do(context.Background(), &Request{Method: http.MethodGet, Scope: "site:x", Key: "k", Consistency: ConsistencyStrong})
	require.ErrorIs(t, err, ErrConsistency)
}

func TestAPITransport_SignedURLFlow(t *testing.T) {
	var hops []string
	var storage *httptest.Server
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops = append(hops, "api "+r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		assert.Equal(t, "Bearer tok", r.Header.Get(HeaderAuthorization))
		assert.Equal(t, signedURLAccept, r.Header.Get(HeaderAccept))
		_ = json.NewEncoder(w).Encode(signedURLResponse{URL: storage.URL + "/signed/path?sig=1"})
	}))
	defer api.Close()
	storage = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops = append(hops, "storage "+r.Method+" "+r.URL.Path)
		assert.Empty(t, r.Header.Get(HeaderAuthorization))
		assert.Equal(t, "etag-1", r.Header.Get(HeaderIfMatch))
		w.WriteHeader(http.StatusOK)
	}))
	defer storage.Close()

	tr := newTransport(t, Config{Token: "tok", SiteID: "site-1", APIURL: api.URL, Region: "us-east-2"})

	header := http.Header{}
	header.Set(HeaderIfMatch, "etag-1")
	res, err := tr.Do(context.Background(), &Request{Method: http.MethodPut, Scope: "site:s", Key: "k", Header: header, Body: strings.NewReader("v")})
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, []string{
		"api PUT /api/v1/blobs/site-1/site:s/k?region=us-east-2",
		"storage PUT /signed/path",
	}, hops)
}

func TestAPITransport_ReadsSignWithGet(t *testing.T) {
	var signMethods []string
	var storageMethods []string
	var storage *httptest.Server
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signMethods = append(signMethods, r.Method)
		_ = json.NewEncoder(w).Encode(signedURLResponse{URL: storage.URL})
	}))
	defer api.Close()
	storage = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		storageMethods = append(storageMethods, r.Method)
	}))
	defer storage.Close()

	tr := newTransport(t, Config{Token: "tok", SiteID: "s", APIURL: api.URL})
	for _, method := range []string{http.MethodGet, http.MethodHead} {
		res, err := tr.Do(context.Background(), &Request{Method: method, Scope: "site:s", Key: "k"})
		require.NoError(t, err)
		res.Body.Close()
	}

	assert.Equal(t, []string{http.MethodGet, http.MethodGet}, signMethods)
	assert.Equal(t, []string{http.MethodGet, http.MethodHead}, storageMethods)
}

func TestAPITransport_DeleteIsDirect(t *testing.T) {
	var calls int
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/blobs/s/deploy:d1/k", r.URL.Path)
		assert.Equal(t, "auto", r.URL.Query().Get("region"))
		assert.Equal(t, "Bearer tok", r.Header.Get(HeaderAuthorization))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer api.Close()

	tr := newTransport(t, Config{Token: "tok", SiteID: "s", APIURL: api.URL})
	res, err := tr.Do(context.Background(), &Request{Method: http.MethodDelete, Scope: "deploy:d1", Key: "k"})
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestAPITransport_SignedURLFailure(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderRequestID, "req-123")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	tr := newTransport(t, Config{Token: "tok", SiteID: "s", APIURL: api.URL})
	_, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, Scope: "site:s", Key: "k"})

	var ie *InternalError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, http.StatusUnauthorized, ie.Status)
	assert.Equal(t, "req-123", ie.RequestID)
	assert.Equal(t, "blobs: internal error (401 status code, ID: req-123)", err.Error())
}

func TestAPITransport_SignedURLMalformed(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"nope": true}`))
	}))
	defer api.Close()

	tr := newTransport(t, Config{Token: "tok", SiteID: "s", APIURL: api.URL})
	_, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, Scope: "site:s", Key: "k"})
	require.ErrorIs(t, err, ErrProtocol)
}

func TestAPITransport_CollectionQuery(t *testing.T) {
	var got url.Values
	var path string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		path = r.URL.Path
		_, _ = w.Write([]byte(`{}`))
	}))
	defer api.Close()

	tr := newTransport(t, Config{Token: "tok", SiteID: "s", APIURL: api.URL, Region: "ap-southeast-1"})
	res, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, Scope: "site:s", Query: url.Values{"prefix": {"a/"}}})
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, "/api/v1/blobs/s/site:s", path)
	assert.Equal(t, "a/", got.Get("prefix"))
	assert.Equal(t, "ap-southeast-1", got.Get("region"))
}

func TestEdgeTransport_RetriesWithReplayedBody(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := newTransport(t, Config{Token: "tok", SiteID: "s", EdgeURL: srv.URL, Region: "us-east-1"})
	res, err := tr.Do(context.Background(), &Request{Method: http.MethodPut, Scope: "site:s", Key: "k", Body: strings.NewReader("payload")})
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []string{"payload", "payload"}, bodies)
}
