package email

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"

	"doorwatch/internal/types"
)

// MailSender submits a finished message to the recipients it names.
// SMTPSender is the production implementation.
type MailSender interface {
	Send(ctx context.Context, msg *gomail.Msg) error
}

// EmailChannel implements types.NotificationChannel for mail. Every recipient
// gets its own message so one bad address cannot hold up the rest.
type EmailChannel struct {
	sender     MailSender
	from       mail.Address
	recipients []string
	clock      types.Clock
	logger     types.Logger
}

// EmailChannelConfig holds the dependencies needed to create an EmailChannel.
type EmailChannelConfig struct {
	Sender     MailSender
	From       string
	FromName   string
	Recipients []string
	Clock      types.Clock
	Logger     types.Logger
}

// NewEmailChannel creates a new EmailChannel with the given dependencies.
func NewEmailChannel(cfg EmailChannelConfig) (*EmailChannel, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("email channel: sender must not be nil")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("email channel: invalid sender %q: %w", cfg.From, err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &EmailChannel{
		sender:     cfg.Sender,
		from:       mail.Address{Name: cfg.FromName, Address: cfg.From},
		recipients: cfg.Recipients,
		clock:      clock,
		logger:     cfg.Logger,
	}, nil
}

// Type returns the channel type identifier for email.
func (e *EmailChannel) Type() types.ChannelType {
	return types.ChannelEmail
}

// Destinations returns the configured recipient list.
func (e *EmailChannel) Destinations() []string {
	return e.recipients
}

// Deliver renders n as a MIME message and submits it to destination.
func (e *EmailChannel) Deliver(ctx context.Context, n *types.Notification, destination string) error {
	if n == nil {
		return fmt.Errorf("email channel: notification is nil")
	}

	e.logger.Info("attempting email delivery",
		"dest", RedactEmail(destination),
		"event_id", n.EventID,
	)

	messageID := uuid.NewString() + "@" + domainOf(e.from.Address)
	msg, err := buildMessage(e.from, destination, n, e.clock.Now(), messageID)
	if err != nil {
		return types.NewAppError(types.ErrCodeDeliveryFailed, "failed to build message", err)
	}

	if err := e.sender.Send(ctx, msg); err != nil {
		return classifySendError(destination, err)
	}
	return nil
}

// Compile-time assertion that EmailChannel implements types.NotificationChannel.
var _ types.NotificationChannel = (*EmailChannel)(nil)
