package requester

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// RequestOptions describes a single request. It is filled in by the
// WithRequestOption functions passed to Do.
type RequestOptions struct {
	method      string
	path        string
	body        io.Reader
	headers     http.Header
	queryParams url.Values
}

// WithRequestOption customizes a single request.
type WithRequestOption func(r *RequestOptions)

func WithGET() WithRequestOption {
	return func(r *RequestOptions) {
		r.method = http.MethodGet
	}
}

func WithPUT() WithRequestOption {
	return func(r *RequestOptions) {
		r.method = http.MethodPut
	}
}

func WithPOST() WithRequestOption {
	return func(r *RequestOptions) {
		r.method = http.MethodPost
	}
}

func WithDELETE() WithRequestOption {
	return func(r *RequestOptions) {
		r.method = http.MethodDelete
	}
}

func WithBodyBytes(body []byte) WithRequestOption {
	return func(r *RequestOptions) {
		r.body = bytes.NewReader(body)
	}
}

// WithPath sets the request path relative to the base URL. Empty segments
// are dropped; escaping happens when the URL is rendered.
func WithPath(segments ...string) WithRequestOption {
	return func(r *RequestOptions) {
		parts := make([]string, 0, len(segments))
		for _, s := range segments {
			s = strings.Trim(s, "/")
			if s == "" {
				continue
			}
			parts = append(parts, s)
		}
		r.path = strings.Join(parts, "/")
	}
}

func WithHeader(key string, values ...string) WithRequestOption {
	return func(r *RequestOptions) {
		if r.headers == nil {
			r.headers = http.Header{}
		}

		for _, value := range values {
			r.headers.Add(key, value)
		}
	}
}

func WithQueryParameter(key string, values ...string) WithRequestOption {
	return func(r *RequestOptions) {
		if r.queryParams == nil {
			r.queryParams = url.Values{}
		}

		for _, value := range values {
			r.queryParams.Add(key, value)
		}
	}
}

// Option configures a Requester at construction time.
type Option func(r *Requester)

// WithDefaultHeader adds a header sent with every request.
func WithDefaultHeader(key, value string) Option {
	return func(r *Requester) {
		r.headers.Add(key, value)
	}
}

// WithDefaultQuery adds query parameters sent with every request.
func WithDefaultQuery(values url.Values) Option {
	return func(r *Requester) {
		for key, vals := range values {
			for _, v := range vals {
				r.query.Add(key, v)
			}
		}
	}
}
