package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/db"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
}

// Message is the analytics payload mirrored to SQS. Downstream consumers
// (the data warehouse loader) read from the queue instead of the API's
// Postgres.
type Message struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	EventData  json.RawMessage `json:"event_data"`
	UserID     string          `json:"user_id,omitempty"`
	OccurredAt int64           `json:"occurred_at"`
	EnqueuedAt int64           `json:"enqueued_at"`
}

// Producer mirrors analytics events to SQS.
type Producer struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewProducer creates a new SQS producer.
func NewProducer(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg)

	logger.Info("sqs producer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Producer{
		client:   client,
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// Enqueue mirrors one analytics event to the queue. Returns the SQS
// message ID for tracking.
func (p *Producer) Enqueue(ctx context.Context, event *db.AnalyticsEvent) (string, error) {
	msg := Message{
		EventID:    event.ID.String(),
		EventType:  event.EventType,
		EventData:  event.EventData,
		OccurredAt: event.CreatedAt.UnixNano(),
		EnqueuedAt: time.Now().UnixNano(),
	}
	if event.UserID != nil {
		msg.UserID = event.UserID.String()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}

	result, err := p.client.SendMessage(ctx, input)
	if err != nil {
		p.logger.Error("failed to send message to sqs",
			zap.Error(err),
			zap.String("event_id", event.ID.String()),
		)
		return "", fmt.Errorf("sqs send failed: %w", err)
	}

	return *result.MessageId, nil
}

// Close closes the SQS producer.
func (p *Producer) Close() {
	// AWS SDK v2 clients don't require explicit Close()
}
