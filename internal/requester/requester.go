// Package requester is the HTTP transport shared by the provider clients.
//
// A Requester owns a base URL, an *http.Client and the headers and query
// parameters every request to that provider carries. Callers describe each
// request with functional options:
//
//	resp, err := r.Do(ctx, requester.WithPUT(), requester.WithPath("myqueue"))
//
// Responses are returned with their body fully buffered, so parsers can read
// it after the connection has been released. Status handling is left to the
// caller: a non-2xx response is not an error at this layer.
package requester

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog/log"
)

type Requester struct {
	baseURL    url.URL
	httpClient *http.Client
	headers    http.Header
	query      url.Values
}

// New creates a Requester. If httpClient is nil http.DefaultClient is used.
func New(baseURL *url.URL, httpClient *http.Client, opts ...Option) (*Requester, error) {
	if baseURL == nil || baseURL.Host == "" {
		return nil, ErrNoBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	r := &Requester{
		baseURL:    *baseURL,
		httpClient: httpClient,
		headers:    http.Header{},
		query:      url.Values{},
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

func (r *Requester) Do(ctx context.Context, opts ...WithRequestOption) (*http.Response, error) {
	reqOptions := &RequestOptions{
		method:  http.MethodGet,
		body:    http.NoBody,
		headers: http.Header{},
	}

	for _, opt := range opts {
		opt(reqOptions)
	}

	u := r.baseURL
	u.Path = path.Join("/", r.baseURL.Path, reqOptions.path)
	if reqOptions.path == "" && len(r.baseURL.Path) > 1 && r.baseURL.Path[len(r.baseURL.Path)-1] == '/' {
		u.Path += "/"
	}

	query := url.Values{}
	for key, vals := range r.query {
		query[key] = append(query[key], vals...)
	}
	for key, vals := range reqOptions.queryParams {
		query[key] = append(query[key], vals...)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, reqOptions.method, u.String(), reqOptions.body)
	if err != nil {
		return nil, fmt.Errorf("error while creating request: %w", err)
	}
	for key, vals := range r.headers {
		req.Header[key] = append(req.Header[key], vals...)
	}
	for key, vals := range reqOptions.headers {
		req.Header[key] = append(req.Header[key], vals...)
	}

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while performing request: %w", err)
	}
	defer resp.Body.Close()

	// Only the path is logged: query strings can carry credentials.
	log.Ctx(ctx).Debug().
		Str("method", reqOptions.method).
		Str("path", u.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("http request")

	bodyResp, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("%w: %s", ErrParsingBody, err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(bodyResp))

	return resp, nil
}

// ReadBody returns the buffered response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrParsingBody, err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
