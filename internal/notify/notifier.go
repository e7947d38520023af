package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minasoft/ris-listener/internal/db"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamNotifier queues notification requests on the notification stream.
// Delivery is handled by consumers.NotificationDispatcher.
type JetStreamNotifier struct {
	js      jetstream.JetStream
	subject string
	now     func() time.Time
}

func NewJetStreamNotifier(js jetstream.JetStream, subjectPrefix string) *JetStreamNotifier {
	return &JetStreamNotifier{js: js, subject: subjectPrefix, now: time.Now}
}

func (n *JetStreamNotifier) RequestNotification(ctx context.Context, patientID uuid.UUID, kind db.NotificationKind, vars map[string]string) error {
	req := db.NotificationRequest{
		ID:          uuid.New().String(),
		PatientID:   patientID,
		Kind:        kind,
		Variables:   vars,
		RequestedAt: n.now().UTC(),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("bildirim serialize edilemedi: %w", err)
	}

	// The request ID doubles as the dedup key for publish retries.
	if _, err := n.js.Publish(ctx, n.subject+"."+string(kind), data, jetstream.WithMsgID(req.ID)); err != nil {
		return fmt.Errorf("bildirim kuyruğa alınamadı: %w", err)
	}
	return nil
}
