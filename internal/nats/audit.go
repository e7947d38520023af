package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/minasoft/ris-listener/internal/db"
	"github.com/minasoft/ris-listener/internal/hl7"
	"github.com/nats-io/nats.go/jetstream"
)

// AuditPublisher copies every acknowledged exchange to the inbound stream.
// Publish failures are logged; the acknowledgement has already been sent.
type AuditPublisher struct {
	js      jetstream.JetStream
	timeout time.Duration
}

func NewAuditPublisher(js jetstream.JetStream) *AuditPublisher {
	return &AuditPublisher{js: js, timeout: 5 * time.Second}
}

func (a *AuditPublisher) ObserveExchange(ctx context.Context, ex hl7.Exchange) {
	record := db.InboundRecord{
		ID:          ex.ID,
		ReceivedAt:  ex.ReceivedAt,
		RemoteAddr:  ex.RemoteAddr,
		ControlID:   ex.ControlID,
		MessageType: ex.MessageType,
		AckCode:     ex.AckCode,
		Reason:      ex.Reason,
		RawMessage:  ex.Raw,
		DurationMS:  ex.Duration.Milliseconds(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("Mesaj serialize hatası", "error", err, "id", record.ID)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	subject := InboundSubject + "." + subjectToken(ex.MessageType)
	if _, err := a.js.Publish(ctx, subject, data); err != nil {
		slog.Error("NATS publish hatası", "error", err, "subject", subject, "controlID", ex.ControlID)
		return
	}
	slog.Debug("Mesaj arşivlendi", "id", record.ID, "subject", subject)
}

// subjectToken turns a message type such as "ORU^R01" into a subject token.
func subjectToken(messageType string) string {
	if messageType == "" {
		return "unparsed"
	}
	return keyToken(strings.ToLower(messageType))
}

// keyToken replaces characters that are not valid in subjects or KV keys.
func keyToken(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
