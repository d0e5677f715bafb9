package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// APITransport reaches the backend through the management API:
//
//	{apiURL}/api/v1/blobs/{siteID}/{scope}/{key}?region={region}
//
// Object reads and writes first obtain a signed URL there and then hit the
// signed URL without credentials. Deletes and listings are answered by the
// management API directly.
type APITransport struct {
	*sender

	apiURL *url.URL
	token  string
	siteID string
	region string
}

func (t *APITransport) Do(ctx context.Context, req *Request) (*http.Response, error) {
	if req.Key == "" || req.Method == http.MethodDelete {
		return t.direct(ctx, req)
	}

	signMethod := http.MethodGet
	if req.Method == http.MethodPut {
		signMethod = http.MethodPut
	}

	signed, err := t.signedURL(ctx, signMethod, req)
	if err != nil {
		return nil, err
	}

	body, err := newBodySource(req.Body)
	if err != nil {
		return nil, err
	}
	return t.send(ctx, req.Method, signed, req.Header, body)
}

func (t *APITransport) direct(ctx context.Context, req *Request) (*http.Response, error) {
	header := req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(HeaderAuthorization, bearer(t.token))
	return t.send(ctx, req.Method, t.url(req), header, nil)
}

type signedURLResponse struct {
	URL string `json:"url"`
}

func (t *APITransport) signedURL(ctx context.Context, method string, req *Request) (string, error) {
	header := http.Header{}
	header.Set(HeaderAuthorization, bearer(t.token))
	header.Set(HeaderAccept, signedURLAccept)

	res, err := t.send(ctx, method, t.url(req), header, nil)
	if err != nil {
		return "", err
	}
	defer discard(res)

	if res.StatusCode != http.StatusOK {
		return "", NewInternalError(res)
	}

	var payload signedURLResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&payload); err != nil {
		return "", NewProtocolError(res, fmt.Errorf("decode signed URL: %w", err))
	}
	if payload.URL == "" {
		return "", NewProtocolError(res, errors.New("signed URL missing from response"))
	}
	return payload.URL, nil
}

func (t *APITransport) url(req *Request) string {
	query := url.Values{}
	for k, v := range req.Query {
		query[k] = v
	}
	if req.Scope != "" {
		query.Set("region", t.region)
	}
	return buildURL(t.apiURL, query, "api/v1/blobs", t.siteID, req.Scope, req.Key)
}
