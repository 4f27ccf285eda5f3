// Package queue publishes every rendered notification to an SQS queue so
// paging or chat integrations can consume the watchdog's alerts.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"doorwatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Message is the JSON body published for each notification.
type Message struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Channel implements types.NotificationChannel over SQS. Its single
// destination is the queue URL.
type Channel struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewChannel returns a Channel publishing to queueURL.
func NewChannel(client SQSSender, queueURL string, logger types.Logger) (*Channel, error) {
	if client == nil {
		return nil, fmt.Errorf("queue channel: client must not be nil")
	}
	if queueURL == "" {
		return nil, fmt.Errorf("queue channel: queue URL must be set")
	}
	return &Channel{client: client, queueURL: queueURL, logger: logger}, nil
}

// Type returns the channel type identifier.
func (c *Channel) Type() types.ChannelType {
	return types.ChannelQueue
}

// Destinations returns the queue URL.
func (c *Channel) Destinations() []string {
	return []string{c.queueURL}
}

// Deliver publishes n to the queue. The event kind travels as a message
// attribute so subscribers can filter without parsing the body.
func (c *Channel) Deliver(ctx context.Context, n *types.Notification, destination string) error {
	if n == nil {
		return fmt.Errorf("queue channel: notification is nil")
	}

	body, err := json.Marshal(Message{
		ID:         n.EventID,
		Kind:       string(n.Kind),
		From:       n.From.String(),
		To:         n.To.String(),
		Subject:    n.Subject,
		Body:       n.Body,
		OccurredAt: n.OccurredAt.UTC(),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal queue message", err)
	}

	out, err := c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(destination),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(n.Kind)),
			},
		},
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("failed to send message to %s", destination), err)
	}

	c.logger.Info("notification published to queue",
		"event_id", n.EventID,
		"kind", string(n.Kind),
		"message_id", aws.ToString(out.MessageId),
	)
	return nil
}

var _ types.NotificationChannel = (*Channel)(nil)
