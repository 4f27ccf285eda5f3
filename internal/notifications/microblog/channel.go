// Package microblog posts a one-line status update for each notification to
// a microblogging endpoint using HTTP basic auth.
package microblog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"doorwatch/internal/external"
	"doorwatch/internal/types"
)

// DefaultCharBudget is the status length limit of the classic endpoint.
const DefaultCharBudget = 140

// Config holds the account and endpoint settings.
type Config struct {
	Endpoint   string
	Username   string
	Password   types.SecretString
	CharBudget int
}

// Channel implements types.NotificationChannel. It has a single destination,
// the configured account.
type Channel struct {
	client *external.BaseClient
	cfg    Config
	logger types.Logger
}

// NewChannel validates cfg. A nil client gets a BaseClient with no retries.
func NewChannel(cfg Config, client *external.BaseClient, logger types.Logger) (*Channel, error) {
	if cfg.Username == "" {
		return nil, fmt.Errorf("microblog: username must be set")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("microblog: invalid endpoint %q", cfg.Endpoint)
	}
	if cfg.CharBudget <= 0 {
		cfg.CharBudget = DefaultCharBudget
	}
	if client == nil {
		client = external.NewBaseClient(nil, "microblog", external.NoRetryPolicy(), "doorwatch")
	}
	return &Channel{client: client, cfg: cfg, logger: logger}, nil
}

// Type returns the channel type identifier.
func (c *Channel) Type() types.ChannelType {
	return types.ChannelMicroblog
}

// Destinations returns the single configured account.
func (c *Channel) Destinations() []string {
	return []string{c.cfg.Username}
}

// Deliver posts the formatted status. Any non-2xx reply is a failure.
func (c *Channel) Deliver(ctx context.Context, n *types.Notification, _ string) error {
	if n == nil {
		return fmt.Errorf("microblog: notification is nil")
	}

	status := FormatStatus(n, c.cfg.CharBudget)
	form := url.Values{"status": {status}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build status request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password.Unmask())

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewAppError(types.ErrCodeDeliveryFailed,
			fmt.Sprintf("status update rejected with %d", resp.StatusCode), nil).
			WithDetails(map[string]any{
				"status_code": resp.StatusCode,
				"response":    strings.TrimSpace(string(snippet)),
			})
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Info("status update posted",
		"event_id", n.EventID,
		"chars", len([]rune(status)),
	)
	return nil
}

// FormatStatus joins subject and body on one line, collapses runs of
// whitespace and truncates to budget runes.
func FormatStatus(n *types.Notification, budget int) string {
	text := strings.Join(strings.Fields(n.Subject+" "+n.Body), " ")
	runes := []rune(text)
	if budget > 0 && len(runes) > budget {
		runes = runes[:budget]
	}
	return string(runes)
}

var _ types.NotificationChannel = (*Channel)(nil)
