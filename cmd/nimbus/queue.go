package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/nimbus/internal/queue"
)

var (
	getMaxMessages int
	getPeek        bool
)

// peeker is implemented by queue providers that can read messages without
// dequeuing them.
type peeker interface {
	Peek(ctx context.Context, name string, maxMessages int) (*queue.GetQueueResponse, error)
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage message queues",
	Long: `Manage message queues and their messages.

Queue names are 3 to 63 characters of lowercase letters, digits and single
dashes, starting and ending with a letter or digit.`,
}

func init() {
	queueGetCmd.Flags().IntVarP(&getMaxMessages, "max", "n", 1, fmt.Sprintf("number of messages to get (%d-%d)", queue.MinMessages, queue.MaxMessages))
	queueGetCmd.Flags().BoolVar(&getPeek, "peek", false, "read messages without dequeuing them")

	queueCmd.AddCommand(queueCreateCmd)
	queueCmd.AddCommand(queueDeleteCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueGetCmd)
	queueCmd.AddCommand(queuePostCmd)
	queueCmd.AddCommand(queueDeleteMessageCmd)
	queueCmd.AddCommand(queueClearCmd)
}

var queueCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := queue.ValidateName(name); err != nil {
			return err
		}

		svc, err := newQueueService()
		if err != nil {
			return err
		}

		resp, err := svc.Create(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("failed to create queue: %w", err)
		}
		if !resp.Success {
			return fmt.Errorf("queue %s was not created", name)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Queue %s created\n", name)
		return nil
	},
}

var queueDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a queue",
	Long: `Delete a queue and every message in it.

Example:
  nimbus queue delete orders`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := queue.ValidateName(name); err != nil {
			return err
		}

		svc, err := newQueueService()
		if err != nil {
			return err
		}

		resp, err := svc.Delete(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("failed to delete queue: %w", err)
		}
		if !resp.Success {
			return fmt.Errorf("queue %s was not deleted", name)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Queue %s deleted\n", name)
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queues",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newQueueService()
		if err != nil {
			return err
		}

		resp, err := svc.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list queues: %w", err)
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatQueues(resp.Queues)
		return writeResult(cmd, result, err)
	},
}

var queueGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Get messages from a queue",
	Long: `Dequeue up to --max messages from a queue.

Dequeued messages become invisible for a while and reappear unless they
are deleted with "nimbus queue delete-message" using their pop receipt.
With --peek the messages stay visible and carry no pop receipt.

Example:
  nimbus queue get orders -n 5 -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := queue.ValidateName(name); err != nil {
			return err
		}
		if err := queue.ValidateMaxMessages(getMaxMessages); err != nil {
			return err
		}

		svc, err := newQueueService()
		if err != nil {
			return err
		}

		var resp *queue.GetQueueResponse
		if getPeek {
			p, ok := svc.(peeker)
			if !ok {
				return fmt.Errorf("queue provider does not support peeking")
			}
			resp, err = p.Peek(cmd.Context(), name, getMaxMessages)
		} else {
			resp, err = svc.Get(cmd.Context(), name, getMaxMessages)
		}
		if err != nil {
			return fmt.Errorf("failed to get messages: %w", err)
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatMessages(resp.QueueMessages)
		return writeResult(cmd, result, err)
	},
}

var queuePostCmd = &cobra.Command{
	Use:   "post <name> <text>",
	Short: "Post a message to a queue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := queue.ValidateName(name); err != nil {
			return err
		}

		svc, err := newQueueService()
		if err != nil {
			return err
		}

		resp, err := svc.Post(cmd.Context(), name, args[1])
		if err != nil {
			return fmt.Errorf("failed to post message: %w", err)
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatMessages(resp.QueueMessages)
		return writeResult(cmd, result, err)
	},
}

var queueDeleteMessageCmd = &cobra.Command{
	Use:   "delete-message <name> <message-id> <pop-receipt>",
	Short: "Delete a dequeued message",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := queue.ValidateName(name); err != nil {
			return err
		}

		mm, err := newMessageManager()
		if err != nil {
			return err
		}

		if err := mm.DeleteMessage(cmd.Context(), name, args[1], args[2]); err != nil {
			return fmt.Errorf("failed to delete message: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Message %s deleted\n", args[1])
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear <name>",
	Short: "Delete every message in a queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := queue.ValidateName(name); err != nil {
			return err
		}

		mm, err := newMessageManager()
		if err != nil {
			return err
		}

		if err := mm.Clear(cmd.Context(), name); err != nil {
			return fmt.Errorf("failed to clear queue: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Queue %s cleared\n", name)
		return nil
	},
}

func newMessageManager() (queue.MessageManager, error) {
	svc, err := newQueueService()
	if err != nil {
		return nil, err
	}
	mm, ok := svc.(queue.MessageManager)
	if !ok {
		return nil, fmt.Errorf("queue provider does not support message management")
	}
	return mm, nil
}
