package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/minasoft/ris-listener/internal/db"
	natsutil "github.com/minasoft/ris-listener/internal/nats"
	"github.com/minasoft/ris-listener/internal/notify"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	DispatcherName    = "notification-dispatcher"
	defaultMaxDeliver = 5
)

type DispatcherConfig struct {
	PortalBaseURL string
	MaxDeliver    int
	AckWait       time.Duration
	RetryDelay    time.Duration
}

// NotificationDispatcher consumes notification requests, resolves the
// patient's phone number and sends the rendered text. Requests that cannot be
// delivered after MaxDeliver attempts, or never can be, go to the DLQ bucket.
type NotificationDispatcher struct {
	js        jetstream.JetStream
	patients  db.PatientStore
	templates *notify.TemplateEngine
	sms       notify.SMSSender
	cfg       DispatcherConfig
}

func NewNotificationDispatcher(js jetstream.JetStream, patients db.PatientStore, templates *notify.TemplateEngine, sms notify.SMSSender, cfg DispatcherConfig) *NotificationDispatcher {
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = defaultMaxDeliver
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	cfg.PortalBaseURL = strings.TrimRight(cfg.PortalBaseURL, "/")
	return &NotificationDispatcher{
		js:        js,
		patients:  patients,
		templates: templates,
		sms:       sms,
		cfg:       cfg,
	}
}

// Run consumes until ctx is cancelled.
func (d *NotificationDispatcher) Run(ctx context.Context) error {
	consumer, err := d.js.CreateOrUpdateConsumer(ctx, natsutil.NotificationStream, jetstream.ConsumerConfig{
		Durable:       DispatcherName,
		Description:   "Hasta bildirimlerini SMS ile gönderen consumer",
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    d.cfg.MaxDeliver,
		AckWait:       d.cfg.AckWait,
		MaxAckPending: 100,
	})
	if err != nil {
		return fmt.Errorf("notification consumer başlatılamadı: %w", err)
	}

	dlq, err := d.js.KeyValue(ctx, natsutil.DLQBucket)
	if err != nil {
		return fmt.Errorf("DLQ KV erişilemedi: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		d.handle(ctx, dlq, msg)
	})
	if err != nil {
		return fmt.Errorf("consumer hatası: %w", err)
	}
	slog.Info("Bildirim dağıtıcı başlatıldı", "stream", natsutil.NotificationStream, "maxDeliver", d.cfg.MaxDeliver)

	<-ctx.Done()
	cons.Stop()
	slog.Info("Bildirim dağıtıcı durduruldu")
	return nil
}

// errPermanent marks failures that retrying cannot fix.
var errPermanent = errors.New("kalıcı hata")

func (d *NotificationDispatcher) handle(ctx context.Context, dlq jetstream.KeyValue, msg jetstream.Msg) {
	ctx = context.WithoutCancel(ctx)

	var req db.NotificationRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		slog.Error("Bildirim parse hatası", "error", err, "subject", msg.Subject())
		msg.Term()
		return
	}

	attempt := 1
	if md, err := msg.Metadata(); err == nil {
		attempt = int(md.NumDelivered)
	}
	log := slog.With("id", req.ID, "kind", req.Kind, "patientID", req.PatientID, "attempt", attempt)

	err := d.deliver(ctx, req)
	if err == nil {
		log.Info("Bildirim gönderildi")
		msg.Ack()
		return
	}

	req.RetryCount = attempt
	req.LastError = err.Error()
	if errors.Is(err, errPermanent) || attempt >= d.cfg.MaxDeliver {
		log.Error("Bildirim gönderilemedi, DLQ'ya taşındı", "error", err)
		d.deadLetter(ctx, dlq, req)
		msg.Term()
		return
	}

	log.Warn("Bildirim gönderilemedi, tekrar denenecek", "error", err)
	msg.NakWithDelay(d.cfg.RetryDelay)
}

func (d *NotificationDispatcher) deliver(ctx context.Context, req db.NotificationRequest) error {
	patient, err := d.patients.FindByID(ctx, req.PatientID)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w: hasta bulunamadı", errPermanent)
	}
	if err != nil {
		return fmt.Errorf("hasta sorgulanamadı: %w", err)
	}
	if patient.Phone == "" {
		return fmt.Errorf("%w: hastanın telefon numarası yok", errPermanent)
	}

	vars := make(map[string]string, len(req.Variables)+1)
	for k, v := range req.Variables {
		vars[k] = v
	}
	vars["portal_url"] = d.cfg.PortalBaseURL

	body, err := d.templates.Render(req.Kind, vars)
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	if err := d.sms.SendSMS(ctx, patient.Phone, body); err != nil {
		return fmt.Errorf("SMS gönderilemedi: %w", err)
	}
	return nil
}

func (d *NotificationDispatcher) deadLetter(ctx context.Context, dlq jetstream.KeyValue, req db.NotificationRequest) {
	data, err := json.Marshal(req)
	if err != nil {
		slog.Error("DLQ kaydı serialize edilemedi", "error", err, "id", req.ID)
		return
	}
	if _, err := dlq.Put(ctx, req.ID, data); err != nil {
		slog.Error("DLQ'ya yazılamadı", "error", err, "id", req.ID)
	}
}
