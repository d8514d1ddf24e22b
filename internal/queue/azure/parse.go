package azure

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/jbweber/nimbus/internal/queue"
	"github.com/jbweber/nimbus/internal/requester"
)

// ParseCreateQueueResponse classifies a Create Queue response. Success means
// 201 Created; any other status yields Success=false without an error.
func ParseCreateQueueResponse(resp *http.Response) *queue.CreateQueueResponse {
	return queue.NewCreateQueueResponse(resp.StatusCode)
}

// ParseDeleteQueueResponse classifies a Delete Queue response. Success means
// 204 No Content; any other status yields Success=false without an error.
func ParseDeleteQueueResponse(resp *http.Response) *queue.DeleteQueueResponse {
	return queue.NewDeleteQueueResponse(resp.StatusCode)
}

// ParseListQueuesResponse decodes a List Queues response.
func ParseListQueuesResponse(resp *http.Response) (*queue.ListQueueResponse, error) {
	var wire enumerationResults
	if err := decode(resp, &wire); err != nil {
		return nil, err
	}

	result := &queue.ListQueueResponse{
		Queues:     make([]queue.Queue, 0, len(wire.Queues)),
		NextMarker: wire.NextMarker,
	}
	for _, q := range wire.Queues {
		result.Queues = append(result.Queues, q.toQueue(wire.ServiceEndpoint))
	}

	return result, nil
}

// ParseGetMessagesResponse decodes a Get Messages (or Peek Messages)
// response.
func ParseGetMessagesResponse(resp *http.Response) (*queue.GetQueueResponse, error) {
	messages, err := parseMessages(resp)
	if err != nil {
		return nil, err
	}
	return &queue.GetQueueResponse{QueueMessages: messages}, nil
}

// ParsePostMessageResponse decodes a Put Message response.
func ParsePostMessageResponse(resp *http.Response) (*queue.PostQueueResponse, error) {
	messages, err := parseMessages(resp)
	if err != nil {
		return nil, err
	}
	return &queue.PostQueueResponse{QueueMessages: messages}, nil
}

func parseMessages(resp *http.Response) ([]queue.Message, error) {
	var wire queueMessagesList
	if err := decode(resp, &wire); err != nil {
		return nil, err
	}

	messages := make([]queue.Message, 0, len(wire.Messages))
	for _, m := range wire.Messages {
		messages = append(messages, m.toMessage())
	}
	return messages, nil
}

// decode checks the status and unmarshals the XML body into v.
//
// Some emulators answer Put Message with 200 instead of 201, so any 2xx is
// accepted as long as the body decodes.
func decode(resp *http.Response, v any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ParseError(resp)
	}

	body, err := requester.ReadBody(resp)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %s", requester.ErrParsingBody, err)
	}

	return nil
}

// ParseError builds an *requester.APIError from a failed response, using the
// x-ms-error-code header and the <Error> body when present.
func ParseError(resp *http.Response) error {
	apiErr := &requester.APIError{
		StatusCode: resp.StatusCode,
		Code:       resp.Header.Get("x-ms-error-code"),
	}

	body, err := requester.ReadBody(resp)
	if err == nil && len(body) > 0 {
		var wire errorBody
		if xml.Unmarshal(body, &wire) == nil {
			if wire.Code != "" {
				apiErr.Code = wire.Code
			}
			apiErr.Message = strings.TrimSpace(firstLine(wire.Message))
		}
	}

	return apiErr
}

// firstLine drops the RequestId/Time lines Azure appends to error messages.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
