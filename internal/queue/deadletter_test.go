package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

type mockSQS struct {
	inputs  []*sqs.SendMessageInput
	sendErr error
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSDeadLetter_PublishSendsMessage(t *testing.T) {
	client := &mockSQS{}
	dlq := NewSQSDeadLetter(client, "https://sqs.eu-west-3.amazonaws.com/123/wp-cloud-dlq", slog.New(slog.DiscardHandler))

	record := types.PendingDeployment{
		Username:  "alice",
		Domain:    "alice.example.com",
		Email:     "alice@example.com",
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	err := dlq.Publish(context.Background(), "cs_1", record, "never_paid")
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)

	input := client.inputs[0]
	assert.Equal(t, "https://sqs.eu-west-3.amazonaws.com/123/wp-cloud-dlq", *input.QueueUrl)
	assert.Equal(t, "never_paid", *input.MessageAttributes["reason"].StringValue)

	var msg DeadLetterMessage
	require.NoError(t, json.Unmarshal([]byte(*input.MessageBody), &msg))
	assert.Equal(t, "cs_1", msg.SessionID)
	assert.Equal(t, "alice", msg.Record.Username)
	assert.Equal(t, "never_paid", msg.Reason)
	assert.False(t, msg.GivenUpAt.IsZero())
}

func TestSQSDeadLetter_PublishPropagatesSendError(t *testing.T) {
	client := &mockSQS{sendErr: errors.New("access denied")}
	dlq := NewSQSDeadLetter(client, "https://sqs.example/q", slog.New(slog.DiscardHandler))

	err := dlq.Publish(context.Background(), "cs_1", types.PendingDeployment{Username: "alice"}, "never_paid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dead-letter")
}

func TestLogDeadLetter_AlwaysSucceeds(t *testing.T) {
	dlq := LogDeadLetter{Logger: slog.New(slog.DiscardHandler)}
	err := dlq.Publish(context.Background(), "cs_1", types.PendingDeployment{Username: "alice"}, "attempts_exhausted")
	assert.NoError(t, err)
}
