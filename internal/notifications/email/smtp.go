package email

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"

	"doorwatch/internal/types"
)

const defaultSMTPTimeout = 10 * time.Second

// SMTPConfig describes the submission server.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  types.SecretString
	HelloName string
	Timeout   time.Duration
}

// SMTPSender submits messages over SMTP. It upgrades with STARTTLS when the
// server offers it and authenticates with PLAIN when a username is set.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender returns a sender for cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	return &SMTPSender{cfg: cfg}
}

// clientOptions translates cfg into go-mail client options.
func (s *SMTPSender) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.HelloName != "" {
		opts = append(opts, gomail.WithHELO(s.cfg.HelloName))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password.Unmask()),
		)
	}
	return opts
}

// Send delivers msg to its recipients over a fresh connection. A go-mail
// client owns a single connection, so one is built per call. The whole
// exchange is bounded by ctx.
func (s *SMTPSender) Send(ctx context.Context, msg *gomail.Msg) error {
	client, err := gomail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp: client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	return nil
}

var _ MailSender = (*SMTPSender)(nil)
