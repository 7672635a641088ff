// ABOUTME: Amazon SQS implementation of the Queue contract using aws-sdk-go-v2
// ABOUTME: Long-polls for work, uses visibility changes for delayed retry and an optional DLQ

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client the queue uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// maxVisibilityTimeout is the SQS ceiling for a visibility change.
const maxVisibilityTimeout = 12 * time.Hour

// SQSOptions configures an SQSQueue.
type SQSOptions struct {
	QueueURL string
	// DLQURL receives dead-lettered tasks. Empty means dead-lettered tasks
	// are logged and deleted.
	DLQURL string
	// WaitTime is the long-poll duration per receive call (max 20s).
	WaitTime time.Duration
	// VisibilityTimeout hides a received message from other consumers
	// while it is processed.
	VisibilityTimeout time.Duration
}

// SQSQueue implements Queue on Amazon SQS.
type SQSQueue struct {
	client SQSAPI
	opts   SQSOptions
	closed atomic.Bool
	logger *slog.Logger
}

// NewSQSQueue creates a queue bound to opts.QueueURL.
func NewSQSQueue(client SQSAPI, opts SQSOptions) *SQSQueue {
	if opts.WaitTime <= 0 || opts.WaitTime > 20*time.Second {
		opts.WaitTime = 20 * time.Second
	}
	return &SQSQueue{
		client: client,
		opts:   opts,
		logger: slog.Default().With("component", "queue", "backend", "sqs"),
	}
}

// Enqueue sends the task as a JSON message body.
func (q *SQSQueue) Enqueue(ctx context.Context, task *Task) (string, error) {
	if q.closed.Load() {
		return "", ErrClosed
	}
	prepare(task)

	body, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("encoding task: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.opts.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String(string(task.Kind))},
		},
	})
	if err != nil {
		return "", fmt.Errorf("sending task %s: %w", task.ID, err)
	}
	return task.ID, nil
}

// Receive long-polls until one message arrives.
func (q *SQSQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		if q.closed.Load() {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		input := &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.opts.QueueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     int32(q.opts.WaitTime / time.Second),
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		}
		if q.opts.VisibilityTimeout > 0 {
			input.VisibilityTimeout = int32(q.opts.VisibilityTimeout / time.Second)
		}

		out, err := q.client.ReceiveMessage(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("receiving message: %w", err)
		}
		if len(out.Messages) == 0 {
			continue
		}

		msg := out.Messages[0]
		var task Task
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &task); err != nil || task.ID == "" {
			// Unparseable bodies can never succeed; drop them instead of
			// letting them cycle until the broker gives up.
			q.logger.Error("dropping malformed task message",
				"message_id", aws.ToString(msg.MessageId),
				"error", err)
			q.delete(ctx, aws.ToString(msg.ReceiptHandle))
			continue
		}

		attempt := 1
		if raw, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				attempt = n
			}
		}
		return &Delivery{Task: &task, Attempt: attempt, receipt: aws.ToString(msg.ReceiptHandle)}, nil
	}
}

// Ack deletes the message.
func (q *SQSQueue) Ack(ctx context.Context, d *Delivery) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.opts.QueueURL),
		ReceiptHandle: aws.String(d.receipt),
	})
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", d.Task.ID, err)
	}
	return nil
}

// Nack shortens the message's visibility so it is redelivered after delay.
func (q *SQSQueue) Nack(ctx context.Context, d *Delivery, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	if delay > maxVisibilityTimeout {
		delay = maxVisibilityTimeout
	}
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.opts.QueueURL),
		ReceiptHandle:     aws.String(d.receipt),
		VisibilityTimeout: int32(delay / time.Second),
	})
	if err != nil {
		return fmt.Errorf("changing visibility of task %s: %w", d.Task.ID, err)
	}
	return nil
}

// DeadLetter forwards the task to the DLQ, then deletes it from the main queue.
func (q *SQSQueue) DeadLetter(ctx context.Context, d *Delivery, reason string) error {
	if q.opts.DLQURL == "" {
		q.logger.Warn("no dead-letter queue configured, dropping task",
			"task_id", d.Task.ID,
			"kind", d.Task.Kind,
			"reason", reason)
		return q.Ack(ctx, d)
	}

	body, err := json.Marshal(d.Task)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.opts.DLQURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"reason":   {DataType: aws.String("String"), StringValue: aws.String(reason)},
			"attempts": {DataType: aws.String("Number"), StringValue: aws.String(strconv.Itoa(d.Attempt))},
		},
	})
	if err != nil {
		return fmt.Errorf("sending task %s to dead-letter queue: %w", d.Task.ID, err)
	}
	return q.Ack(ctx, d)
}

// Close stops further receives. In-flight messages reappear after their
// visibility timeout.
func (q *SQSQueue) Close() error {
	q.closed.Store(true)
	return nil
}

func (q *SQSQueue) delete(ctx context.Context, receipt string) {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.opts.QueueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		q.logger.Warn("failed to delete message", "error", err)
	}
}
