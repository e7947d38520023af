package notify

import (
	"context"
	"log/slog"
)

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LogSMSSender writes messages to the log instead of a gateway. It is the
// default until an SMS provider is configured.
type LogSMSSender struct{}

func (LogSMSSender) SendSMS(_ context.Context, to, body string) error {
	slog.Info("SMS gönderildi (log)", "to", maskPhone(to), "length", len(body))
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
