package queue

import (
	"fmt"
	"net/http"
	"time"
)

// Queue is one entry of a queue listing.
type Queue struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// Message is a queue message as returned by the provider. Every field is the
// verbatim value from the wire; times are left as the provider formatted
// them.
type Message struct {
	MessageID       string `json:"messageId" yaml:"messageId"`
	InsertionTime   string `json:"insertionTime" yaml:"insertionTime"`
	ExpirationTime  string `json:"expirationTime" yaml:"expirationTime"`
	PopReceipt      string `json:"popReceipt,omitempty" yaml:"popReceipt,omitempty"`
	TimeNextVisible string `json:"timeNextVisible,omitempty" yaml:"timeNextVisible,omitempty"`
	DequeueCount    int    `json:"dequeueCount" yaml:"dequeueCount"`
	MessageText     string `json:"messageText,omitempty" yaml:"messageText,omitempty"`
}

// CreateQueueResponse reports whether the queue was created.
type CreateQueueResponse struct {
	Success bool `json:"success" yaml:"success"`
}

// DeleteQueueResponse reports whether the queue was deleted.
type DeleteQueueResponse struct {
	Success bool `json:"success" yaml:"success"`
}

// NewDeleteQueueResponse classifies a delete status code. Only 204 No
// Content counts as success.
func NewDeleteQueueResponse(statusCode int) *DeleteQueueResponse {
	return &DeleteQueueResponse{Success: statusCode == http.StatusNoContent}
}

// NewCreateQueueResponse classifies a create status code. Only 201 Created
// counts as success.
func NewCreateQueueResponse(statusCode int) *CreateQueueResponse {
	return &CreateQueueResponse{Success: statusCode == http.StatusCreated}
}

// ListQueueResponse holds the queues of a listing in server order.
type ListQueueResponse struct {
	Queues     []Queue `json:"queues" yaml:"queues"`
	NextMarker string  `json:"nextMarker,omitempty" yaml:"nextMarker,omitempty"`
}

// GetQueueResponse holds the messages dequeued by a get, in server order.
type GetQueueResponse struct {
	QueueMessages []Message `json:"queueMessages" yaml:"queueMessages"`
}

// PostQueueResponse holds the message metadata returned by a post.
type PostQueueResponse struct {
	QueueMessages []Message `json:"queueMessages" yaml:"queueMessages"`
}

// ParseTime parses a provider timestamp (RFC 1123, e.g.
// "Thu, 20 Jul 2017 06:17:12 GMT").
func ParseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC1123, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid queue timestamp %q: %w", value, err)
	}
	return t, nil
}
