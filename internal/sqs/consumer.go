package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const (
	receiveBatchSize   = 10
	receiveWaitSeconds = 20
)

var errEmptyBody = errors.New("message body is nil")

// ConsumerAPI defines the interface for SQS operations used by Consumer.
type ConsumerAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Consumer reads product change notifications from a queue and reports them.
// Messages that cannot be decoded stay on the queue.
type Consumer struct {
	client   ConsumerAPI
	queueURL string
	log      *slog.Logger
}

// NewConsumer creates a Consumer that reports through the default slog logger.
func NewConsumer(client ConsumerAPI, queueURL string) *Consumer {
	return &Consumer{
		client:   client,
		queueURL: queueURL,
		log:      slog.Default(),
	}
}

// WithLogger replaces the logger notifications are reported to.
func (c *Consumer) WithLogger(log *slog.Logger) *Consumer {
	c.log = log
	return c
}

// Start polls the queue until ctx is cancelled and returns ctx.Err().
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info("Starting SQS consumer", slog.String("queueURL", c.queueURL))

	for {
		if err := ctx.Err(); err != nil {
			c.log.Info("Stopping SQS consumer")
			return err
		}
		if err := c.poll(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("Error receiving messages", slog.Any("err", err))
		}
	}
}

// poll handles one long-polling batch. Only messages that were reported are deleted.
func (c *Consumer) poll(ctx context.Context) error {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: receiveBatchSize,
		WaitTimeSeconds:     receiveWaitSeconds,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, message := range result.Messages {
		msg, err := decodeProductMessage(message)
		if err != nil {
			c.log.Warn("Leaving message on the queue",
				slog.String("message_id", aws.ToString(message.MessageId)),
				slog.Any("err", err))
			continue
		}

		c.report(msg)

		if err := c.deleteMessage(ctx, message); err != nil {
			c.log.Error("Error deleting message", slog.Any("err", err))
		}
	}

	return nil
}

func (c *Consumer) report(msg ProductMessage) {
	attrs := []any{
		slog.String("action", msg.Action),
		slog.Int64("product_id", msg.ProductID),
		slog.String("title", msg.Title),
		slog.String("price", msg.Price.String()),
	}
	if msg.SalePrice.Valid {
		attrs = append(attrs, slog.String("sale_price", msg.SalePrice.Decimal.String()))
	}
	c.log.Info("Product "+msg.Action, attrs...)
}

func (c *Consumer) deleteMessage(ctx context.Context, message types.Message) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: message.ReceiptHandle,
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func decodeProductMessage(message types.Message) (ProductMessage, error) {
	if message.Body == nil {
		return ProductMessage{}, errEmptyBody
	}

	var msg ProductMessage
	if err := json.Unmarshal([]byte(*message.Body), &msg); err != nil {
		return ProductMessage{}, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	switch msg.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return ProductMessage{}, fmt.Errorf("unknown action %q", msg.Action)
	}
	if msg.ProductID <= 0 {
		return ProductMessage{}, fmt.Errorf("invalid product_id %d", msg.ProductID)
	}

	return msg, nil
}
