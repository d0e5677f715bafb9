package remote

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

// sender is the single request-send primitive shared by both transports. Every
// call runs through the retry policy.
type sender struct {
	client Doer
	log    logrus.FieldLogger
	retry  RetryPolicy
}

func (s *sender) send(ctx context.Context, method, target string, header http.Header, body *bodySource) (*http.Response, error) {
	log := s.log.WithField("method", method)
	if u, err := url.Parse(target); err == nil {
		// Signed URLs carry credentials in the query, keep them out of logs.
		log = log.WithFields(logrus.Fields{"host": u.Host, "path": u.Path})
	}

	if body == nil {
		body = &bodySource{size: -1}
	}

	return s.retry.Send(ctx, log, body.replayable(), func(ctx context.Context) (*http.Response, error) {
		r, size, err := body.next()
		if err != nil {
			return nil, &permanentError{err: err}
		}
		req, err := http.NewRequestWithContext(ctx, method, target, r)
		if err != nil {
			return nil, &permanentError{err: err}
		}
		if r != nil && size >= 0 {
			req.ContentLength = size
		}
		if header != nil {
			req.Header = header.Clone()
		}
		return s.client.Do(req)
	})
}
