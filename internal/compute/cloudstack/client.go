package cloudstack

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jbweber/nimbus/internal/compute"
	"github.com/jbweber/nimbus/internal/requester"
)

const (
	// ProviderName identifies this implementation in configuration.
	ProviderName = "cloudstack"

	DefaultPollInterval = 2 * time.Second
	DefaultJobTimeout   = 10 * time.Minute
)

// Client talks to one CloudStack management server.
type Client struct {
	requester    *requester.Requester
	pollInterval time.Duration
	jobTimeout   time.Duration
}

var _ compute.Service = (*Client)(nil)

type ClientOptions struct {
	HTTPClient   *http.Client
	APIKey       string
	SessionKey   string
	PollInterval time.Duration
	JobTimeout   time.Duration
	Timeout      time.Duration
}

type ClientOption func(*ClientOptions)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(opts *ClientOptions) {
		opts.HTTPClient = c
	}
}

// WithAPIKey sends apiKey with every command.
func WithAPIKey(key string) ClientOption {
	return func(opts *ClientOptions) {
		opts.APIKey = key
	}
}

// WithSessionKey sends the sessionkey of a logged in session with every
// command.
func WithSessionKey(key string) ClientOption {
	return func(opts *ClientOptions) {
		opts.SessionKey = key
	}
}

// WithPollInterval sets how often async jobs are polled.
func WithPollInterval(d time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.PollInterval = d
	}
}

// WithJobTimeout bounds how long an async job is waited for.
func WithJobTimeout(d time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.JobTimeout = d
	}
}

// WithTimeout sets the HTTP client timeout. Ignored with WithHTTPClient.
func WithTimeout(d time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.Timeout = d
	}
}

// NewClient creates a client for the API at endpoint, e.g.
// "https://cloud.example.com/client/api".
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	options := &ClientOptions{
		PollInterval: DefaultPollInterval,
		JobTimeout:   DefaultJobTimeout,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", options.PollInterval)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("endpoint doesn't look valid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint must be an http or https URL, got %q", endpoint)
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: options.Timeout}
	}

	defaults := url.Values{"response": {"json"}}
	if options.APIKey != "" {
		defaults.Set("apiKey", options.APIKey)
	}
	if options.SessionKey != "" {
		defaults.Set("sessionkey", options.SessionKey)
	}

	r, err := requester.New(u, httpClient, requester.WithDefaultQuery(defaults))
	if err != nil {
		return nil, fmt.Errorf("failed to create requester: %w", err)
	}

	return &Client{
		requester:    r,
		pollInterval: options.PollInterval,
		jobTimeout:   options.JobTimeout,
	}, nil
}

// call runs a command and returns the "<command>response" object.
func (c *Client) call(ctx context.Context, command string, params url.Values) (gjson.Result, error) {
	opts := []requester.WithRequestOption{
		requester.WithGET(),
		requester.WithQueryParameter("command", command),
	}
	for key, vals := range params {
		opts = append(opts, requester.WithQueryParameter(key, vals...))
	}

	resp, err := c.requester.Do(ctx, opts...)
	if err != nil {
		return gjson.Result{}, err
	}

	body, err := requester.ReadBody(resp)
	if err != nil {
		return gjson.Result{}, err
	}
	return parseResponse(command, resp.StatusCode, body)
}

// callAsync runs an async command and waits for its job.
func (c *Client) callAsync(ctx context.Context, command string, params url.Values) (gjson.Result, error) {
	res, err := c.call(ctx, command, params)
	if err != nil {
		return gjson.Result{}, err
	}

	jobID := res.Get("jobid").String()
	if jobID == "" {
		return gjson.Result{}, fmt.Errorf("%w: %s returned no job id", requester.ErrParsingBody, command)
	}
	return c.waitForJob(ctx, jobID)
}

// parseResponse unwraps the payload of a command response and turns error
// payloads into *requester.APIError.
func parseResponse(command string, status int, body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		if status < 200 || status > 299 {
			return gjson.Result{}, &requester.APIError{StatusCode: status}
		}
		return gjson.Result{}, fmt.Errorf("%w: %s response is not JSON", requester.ErrParsingBody, command)
	}

	res := gjson.GetBytes(body, strings.ToLower(command)+"response")
	if !res.Exists() {
		res = gjson.GetBytes(body, "errorresponse")
	}

	if code := res.Get("errorcode"); code.Exists() || status < 200 || status > 299 {
		apiErr := &requester.APIError{
			StatusCode: status,
			Code:       code.String(),
			Message:    res.Get("errortext").String(),
		}
		return gjson.Result{}, apiErr
	}

	if !res.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: missing %sresponse", requester.ErrParsingBody, strings.ToLower(command))
	}
	return res, nil
}

// boolParam formats a bool the way CloudStack expects it.
func boolParam(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
