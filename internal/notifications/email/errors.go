// Package email delivers notifications by SMTP submission, one message per
// recipient.
package email

import (
	"errors"
	"fmt"
	"net/textproto"

	gomail "github.com/wneessen/go-mail"

	"doorwatch/internal/types"
)

// classifySendError maps an SMTP failure to an AppError. Permanent (5xx)
// replies become notification_delivery_failed; transient (4xx) replies and
// transport errors become upstream_unavailable.
func classifySendError(dest string, err error) error {
	details := map[string]any{"dest": RedactEmail(dest)}

	var sendErr *gomail.SendError
	if errors.As(err, &sendErr) {
		if sendErr.IsTemp() {
			return types.NewAppError(types.ErrCodeUpstreamUnavailable,
				"mail server deferred message", err).WithDetails(details)
		}
		return types.NewAppError(types.ErrCodeDeliveryFailed,
			"mail server rejected message", err).WithDetails(details)
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		details["smtp_code"] = protoErr.Code
		if protoErr.Code >= 500 {
			return types.NewAppError(types.ErrCodeDeliveryFailed,
				fmt.Sprintf("mail server rejected message (%d)", protoErr.Code), err).WithDetails(details)
		}
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("mail server deferred message (%d)", protoErr.Code), err).WithDetails(details)
	}

	return types.NewAppError(types.ErrCodeUpstreamUnavailable, "mail submission failed", err).WithDetails(details)
}
