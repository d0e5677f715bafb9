package remote

import (
	"context"
	"net/http"
	"net/url"
)

// EdgeTransport sends every request, authenticated, to the edge endpoint:
//
//	{edgeURL}/region:{region}/{siteID}/{scope}/{key}
type EdgeTransport struct {
	*sender

	edgeURL     *url.URL
	uncachedURL *url.URL
	token       string
	siteID      string
	region      string
}

func (t *EdgeTransport) Do(ctx context.Context, req *Request) (*http.Response, error) {
	base := t.edgeURL
	if req.Consistency == ConsistencyStrong {
		if t.uncachedURL == nil {
			return nil, ErrConsistency
		}
		base = t.uncachedURL
	}

	body, err := newBodySource(req.Body)
	if err != nil {
		return nil, err
	}

	header := req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(HeaderAuthorization, bearer(t.token))

	return t.send(ctx, req.Method, t.url(base, req), header, body)
}

func (t *EdgeTransport) url(base *url.URL, req *Request) string {
	var region string
	if t.region != "" {
		region = "region:" + t.region
	}
	return buildURL(base, req.Query, region, t.siteID, req.Scope, req.Key)
}
