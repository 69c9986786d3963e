// Package queue publishes abandoned pending deployments to an SQS dead-letter
// queue so an operator or downstream tooling can resolve them by hand.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// DeadLetterMessage is the body published for each abandoned record.
type DeadLetterMessage struct {
	SessionID string                  `json:"session_id"`
	Record    types.PendingDeployment `json:"record"`
	Reason    string                  `json:"reason"`
	GivenUpAt time.Time               `json:"given_up_at"`
}

// SQSDeadLetter publishes abandoned pending deployments to an SQS queue.
type SQSDeadLetter struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewSQSDeadLetter creates an SQSDeadLetter publishing to queueURL.
func NewSQSDeadLetter(client SQSSender, queueURL string, logger *slog.Logger) *SQSDeadLetter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSDeadLetter{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish serializes the record and sends it to the dead-letter queue. The
// reason travels both in the body and as a message attribute so queue
// consumers can filter without parsing bodies.
func (q *SQSDeadLetter) Publish(ctx context.Context, sessionID string, record types.PendingDeployment, reason string) error {
	body, err := json.Marshal(DeadLetterMessage{
		SessionID: sessionID,
		Record:    record,
		Reason:    reason,
		GivenUpAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("queue: failed to marshal dead-letter message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send dead-letter message to %s: %w", q.queueURL, err)
	}

	q.logger.InfoContext(ctx, "pending deployment dead-lettered",
		"queue_url", q.queueURL,
		"session_id", sessionID,
		"username", record.Username,
		"reason", reason,
	)
	return nil
}

// LogDeadLetter is the fallback publisher used when no queue is configured.
// Giving up still leaves a loud, structured trace in the logs.
type LogDeadLetter struct {
	Logger *slog.Logger
}

func (l LogDeadLetter) Publish(ctx context.Context, sessionID string, record types.PendingDeployment, reason string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(ctx, "pending deployment abandoned (no dead-letter queue configured)",
		"session_id", sessionID,
		"username", record.Username,
		"domain", record.Domain,
		"email", record.Email,
		"created_at", record.CreatedAt,
		"reason", reason,
	)
	return nil
}
