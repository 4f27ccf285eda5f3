package email

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"doorwatch/internal/types"
)

const (
	headerKind  gomail.Header = "X-Doorwatch-Kind"
	headerEvent gomail.Header = "X-Doorwatch-Event"
)

// buildMessage renders a single-part text/plain message. messageID is the
// bare id-left@id-right form; the angle brackets are added here.
func buildMessage(from mail.Address, to string, n *types.Notification, date time.Time, messageID string) (*gomail.Msg, error) {
	m := gomail.NewMsg(
		gomail.WithEncoding(gomail.EncodingQP),
		gomail.WithCharset(gomail.CharsetUTF8),
	)
	if err := m.FromFormat(from.Name, from.Address); err != nil {
		return nil, fmt.Errorf("email: from: %w", err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("email: to: %w", err)
	}
	m.Subject(n.Subject)
	m.SetDateWithValue(date)
	m.SetMessageIDWithValue(messageID)
	m.SetGenHeader(headerKind, string(n.Kind))
	if n.EventID != "" {
		m.SetGenHeader(headerEvent, n.EventID)
	}
	m.SetBodyString(gomail.TypeTextPlain, n.Body)
	return m, nil
}

func domainOf(addr string) string {
	if at := strings.LastIndex(addr, "@"); at >= 0 && at < len(addr)-1 {
		return addr[at+1:]
	}
	return "localhost"
}
