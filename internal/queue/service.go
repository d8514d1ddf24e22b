package queue

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Service is the capability set every queue provider implements.
type Service interface {
	// Create creates a queue.
	Create(ctx context.Context, name string) (*CreateQueueResponse, error)

	// Delete deletes a queue. A non-success status is reported through the
	// response, not as an error.
	Delete(ctx context.Context, name string) (*DeleteQueueResponse, error)

	// List lists all queues of the account.
	List(ctx context.Context) (*ListQueueResponse, error)

	// Get dequeues up to maxMessages messages.
	Get(ctx context.Context, name string, maxMessages int) (*GetQueueResponse, error)

	// Post enqueues one message.
	Post(ctx context.Context, name, text string) (*PostQueueResponse, error)
}

var (
	ErrInvalidName        = errors.New("invalid queue name")
	ErrInvalidMaxMessages = errors.New("invalid number of messages")
)

const (
	// MinMessages and MaxMessages bound a single Get.
	MinMessages = 1
	MaxMessages = 32
)

var namePattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9]|-[a-z0-9])*$`)

// ValidateName checks a queue name: 3 to 63 characters, lowercase letters,
// digits and single dashes, starting and ending with a letter or digit.
func ValidateName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return fmt.Errorf("%w: %q must be between 3 and 63 characters", ErrInvalidName, name)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must contain only lowercase letters, digits and single dashes", ErrInvalidName, name)
	}
	return nil
}

// ValidateMaxMessages checks the batch size of a Get.
func ValidateMaxMessages(n int) error {
	if n < MinMessages || n > MaxMessages {
		return fmt.Errorf("%w: %d (must be %d-%d)", ErrInvalidMaxMessages, n, MinMessages, MaxMessages)
	}
	return nil
}

// MessageManager is implemented by providers that can acknowledge single
// messages and purge a queue.
type MessageManager interface {
	// DeleteMessage deletes a dequeued message. popReceipt is the receipt
	// returned by the Get that dequeued it.
	DeleteMessage(ctx context.Context, name, messageID, popReceipt string) error

	// Clear deletes every message in the queue.
	Clear(ctx context.Context, name string) error
}
