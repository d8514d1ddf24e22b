package azure

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jbweber/nimbus/internal/queue"
	"github.com/jbweber/nimbus/internal/requester"
)

const (
	// DefaultAPIVersion is the x-ms-version sent when none is configured.
	DefaultAPIVersion = "2017-04-17"

	// ProviderName identifies this implementation in configuration.
	ProviderName = "azure-queue-storage"

	headerVersion   = "x-ms-version"
	headerRequestID = "x-ms-client-request-id"

	// maxListPages stops a listing that keeps returning markers.
	maxListPages = 1000
)

// Client talks to one storage account's queue endpoint.
type Client struct {
	requester *requester.Requester
}

var (
	_ queue.Service        = (*Client)(nil)
	_ queue.MessageManager = (*Client)(nil)
)

type ClientOptions struct {
	HTTPClient *http.Client
	SASToken   string
	APIVersion string
	Timeout    time.Duration
}

type ClientOption func(*ClientOptions)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(opts *ClientOptions) {
		opts.HTTPClient = c
	}
}

// WithSASToken authenticates every request with a shared access signature.
// A leading "?" is ignored.
func WithSASToken(token string) ClientOption {
	return func(opts *ClientOptions) {
		opts.SASToken = strings.TrimPrefix(token, "?")
	}
}

// WithAPIVersion overrides the x-ms-version header.
func WithAPIVersion(version string) ClientOption {
	return func(opts *ClientOptions) {
		opts.APIVersion = version
	}
}

// WithTimeout sets the HTTP client timeout. Ignored with WithHTTPClient.
func WithTimeout(d time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.Timeout = d
	}
}

// NewClient creates a client for the queue service at endpoint, e.g.
// "https://account.queue.core.windows.net/".
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	options := &ClientOptions{APIVersion: DefaultAPIVersion}
	for _, opt := range opts {
		opt(options)
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

	reqOpts := []requester.Option{
		requester.WithDefaultHeader(headerVersion, options.APIVersion),
	}
	if options.SASToken != "" {
		sas, err := url.ParseQuery(options.SASToken)
		if err != nil {
			return nil, fmt.Errorf("SAS token doesn't look valid: %w", err)
		}
		reqOpts = append(reqOpts, requester.WithDefaultQuery(sas))
	}

	r, err := requester.New(u, httpClient, reqOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create requester: %w", err)
	}

	return &Client{requester: r}, nil
}

func (c *Client) do(ctx context.Context, opts ...requester.WithRequestOption) (*http.Response, error) {
	opts = append(opts, requester.WithHeader(headerRequestID, uuid.NewString()))
	return c.requester.Do(ctx, opts...)
}

// Create creates a queue. 201 is success; 204 (queue already exists with
// the same metadata) and conflicts are reported as Success=false.
func (c *Client) Create(ctx context.Context, name string) (*queue.CreateQueueResponse, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: no name provided", queue.ErrInvalidName)
	}

	log.Ctx(ctx).Debug().Str("queue", name).Msg("creating queue")
	resp, err := c.do(ctx, requester.WithPUT(), requester.WithPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create queue %s: %w", name, err)
	}

	return ParseCreateQueueResponse(resp), nil
}

// Delete deletes a queue. Only 204 is success.
func (c *Client) Delete(ctx context.Context, name string) (*queue.DeleteQueueResponse, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: no name provided", queue.ErrInvalidName)
	}

	log.Ctx(ctx).Debug().Str("queue", name).Msg("deleting queue")
	resp, err := c.do(ctx, requester.WithDELETE(), requester.WithPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to delete queue %s: %w", name, err)
	}

	return ParseDeleteQueueResponse(resp), nil
}

// List lists every queue in the account, following continuation markers.
func (c *Client) List(ctx context.Context) (*queue.ListQueueResponse, error) {
	result := &queue.ListQueueResponse{Queues: []queue.Queue{}}

	marker := ""
	for page := 0; page < maxListPages; page++ {
		opts := []requester.WithRequestOption{
			requester.WithGET(),
			requester.WithQueryParameter("comp", "list"),
		}
		if marker != "" {
			opts = append(opts, requester.WithQueryParameter("marker", marker))
		}

		resp, err := c.do(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to list queues: %w", err)
		}

		pageResult, err := ParseListQueuesResponse(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to list queues: %w", err)
		}

		result.Queues = append(result.Queues, pageResult.Queues...)
		marker = pageResult.NextMarker
		if marker == "" {
			return result, nil
		}
	}

	return nil, fmt.Errorf("failed to list queues: more than %d pages", maxListPages)
}

// Get dequeues up to maxMessages (1-32) messages, making them invisible for
// the service's default visibility timeout.
func (c *Client) Get(ctx context.Context, name string, maxMessages int) (*queue.GetQueueResponse, error) {
	return c.getMessages(ctx, name, maxMessages, false)
}

// Peek returns up to maxMessages messages without changing their
// visibility. Peeked messages carry no pop receipt.
func (c *Client) Peek(ctx context.Context, name string, maxMessages int) (*queue.GetQueueResponse, error) {
	return c.getMessages(ctx, name, maxMessages, true)
}

func (c *Client) getMessages(ctx context.Context, name string, maxMessages int, peek bool) (*queue.GetQueueResponse, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: no name provided", queue.ErrInvalidName)
	}
	if err := queue.ValidateMaxMessages(maxMessages); err != nil {
		return nil, err
	}

	opts := []requester.WithRequestOption{
		requester.WithGET(),
		requester.WithPath(name, "messages"),
		requester.WithQueryParameter("numofmessages", strconv.Itoa(maxMessages)),
	}
	if peek {
		opts = append(opts, requester.WithQueryParameter("peekonly", "true"))
	}

	resp, err := c.do(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages from %s: %w", name, err)
	}

	result, err := ParseGetMessagesResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages from %s: %w", name, err)
	}
	return result, nil
}

// Post enqueues one message. The text is sent as-is; callers that need
// binary-safe payloads base64 encode before posting.
func (c *Client) Post(ctx context.Context, name, text string) (*queue.PostQueueResponse, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: no name provided", queue.ErrInvalidName)
	}

	body, err := xml.Marshal(postMessage{MessageText: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	resp, err := c.do(ctx,
		requester.WithPOST(),
		requester.WithPath(name, "messages"),
		requester.WithHeader("Content-Type", "application/xml"),
		requester.WithBodyBytes(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to post message to %s: %w", name, err)
	}

	result, err := ParsePostMessageResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to post message to %s: %w", name, err)
	}
	return result, nil
}

// DeleteMessage acknowledges a dequeued message. The pop receipt must be the
// one returned by the Get that made the message invisible.
func (c *Client) DeleteMessage(ctx context.Context, name, messageID, popReceipt string) error {
	if name == "" {
		return fmt.Errorf("%w: no name provided", queue.ErrInvalidName)
	}
	if messageID == "" || popReceipt == "" {
		return fmt.Errorf("message id and pop receipt are required")
	}

	resp, err := c.do(ctx,
		requester.WithDELETE(),
		requester.WithPath(name, "messages", messageID),
		requester.WithQueryParameter("popreceipt", popReceipt),
	)
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", messageID, err)
	}
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("failed to delete message %s: %w", messageID, ParseError(resp))
	}

	return nil
}

// Clear deletes every message in a queue.
func (c *Client) Clear(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: no name provided", queue.ErrInvalidName)
	}

	resp, err := c.do(ctx, requester.WithDELETE(), requester.WithPath(name, "messages"))
	if err != nil {
		return fmt.Errorf("failed to clear queue %s: %w", name, err)
	}
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("failed to clear queue %s: %w", name, ParseError(resp))
	}

	return nil
}
