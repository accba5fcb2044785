package sqs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/shopspring/decimal"
)

// Product notification actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// PublisherAPI defines the interface for SQS operations used by Publisher.
type PublisherAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher handles publishing messages to AWS SQS.
type Publisher struct {
	client   PublisherAPI
	queueURL string
}

// NewPublisher creates a new SQS Publisher with the given client and queue URL.
func NewPublisher(client PublisherAPI, queueURL string) *Publisher {
	return &Publisher{
		client:   client,
		queueURL: queueURL,
	}
}

// ProductMessage represents a message about a product change.
type ProductMessage struct {
	Action    string              `json:"action"`
	ProductID int64               `json:"product_id"`
	Title     string              `json:"title"`
	Price     decimal.Decimal     `json:"price"`
	SalePrice decimal.NullDecimal `json:"sale_price"`
}

// PublishProductMessage publishes a product message to the SQS queue.
func (p *Publisher) PublishProductMessage(ctx context.Context, msg ProductMessage) error {
	messageBody, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(messageBody)),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to SQS: %w", err)
	}

	return nil
}
