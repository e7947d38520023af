package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Stream, subject and bucket names.
const (
	InboundStream       = "HL7_INBOUND"
	InboundSubject      = "hl7.inbound"
	NotificationStream  = "PATIENT_NOTIFICATIONS"
	NotificationSubject = "notifications"

	StatsBucket      = "HL7_STATS"
	DLQBucket        = "HL7_DLQ"
	UnresolvedBucket = "HL7_UNRESOLVED"
)

type EmbeddedServer struct {
	server *server.Server
	nc     *nats.Conn
	js     jetstream.JetStream
}

func NewEmbeddedServer(dataDir string) (*EmbeddedServer, error) {
	// NATS sunucu ayarları
	opts := &server.Options{
		JetStream: true,
		StoreDir:  filepath.Join(dataDir, "nats-store"),
		Port:      -1, // Random port, sadece internal kullanım
		HTTPPort:  -1, // HTTP monitoring kapalı
		NoSigs:    true,
	}

	// Store dizinini oluştur
	if err := os.MkdirAll(opts.StoreDir, 0755); err != nil {
		return nil, fmt.Errorf("store dizini oluşturulamadı: %w", err)
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("NATS sunucu oluşturulamadı: %w", err)
	}

	ns.Start()

	// Hazır olmasını bekle
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS sunucu başlatılamadı")
	}

	slog.Info("Gömülü NATS sunucu başlatıldı", "clientURL", ns.ClientURL())

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS bağlantısı kurulamadı: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("JetStream başlatılamadı: %w", err)
	}

	es := &EmbeddedServer{
		server: ns,
		nc:     nc,
		js:     js,
	}

	if err := es.createStreams(); err != nil {
		es.Shutdown()
		return nil, err
	}

	if err := es.createKVStores(); err != nil {
		es.Shutdown()
		return nil, err
	}

	return es, nil
}

func (es *EmbeddedServer) createStreams() error {
	ctx := context.Background()

	// Inbound audit stream (RIS -> listener)
	_, err := es.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        InboundStream,
		Description: "RIS'ten alınan HL7 mesajları ve verilen ACK kodları",
		Subjects:    []string{InboundSubject + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour, // 7 gün
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		MaxMsgs:     1000000,
		MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
	})
	if err != nil {
		return fmt.Errorf("inbound stream oluşturulamadı: %w", err)
	}
	slog.Info("Stream oluşturuldu", "stream", InboundStream)

	// Patient notification work queue
	_, err = es.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        NotificationStream,
		Description: "Hasta bildirim istekleri (SMS/e-posta)",
		Subjects:    []string{NotificationSubject + ".>"},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      3 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("notification stream oluşturulamadı: %w", err)
	}
	slog.Info("Stream oluşturuldu", "stream", NotificationStream)

	return nil
}

func (es *EmbeddedServer) createKVStores() error {
	ctx := context.Background()

	buckets := []jetstream.KeyValueConfig{
		{
			Bucket:      StatsBucket,
			Description: "HL7 mesaj istatistikleri",
			History:     10,
			MaxBytes:    1024 * 1024, // 1MB
			Storage:     jetstream.FileStorage,
		},
		{
			Bucket:      DLQBucket,
			Description: "Gönderilemeyen bildirimler (Dead Letter Queue)",
			History:     1,
			TTL:         7 * 24 * time.Hour,
			MaxBytes:    100 * 1024 * 1024, // 100MB
			Storage:     jetstream.FileStorage,
		},
		{
			// No TTL: entries stay until an operator resolves them.
			Bucket:      UnresolvedBucket,
			Description: "Çalışması bulunamayan raporlar (operatör incelemesi)",
			History:     5,
			MaxBytes:    500 * 1024 * 1024, // 500MB
			Storage:     jetstream.FileStorage,
		},
	}

	for _, cfg := range buckets {
		if _, err := es.js.CreateKeyValue(ctx, cfg); err != nil {
			if !errors.Is(err, jetstream.ErrBucketExists) {
				return fmt.Errorf("%s KV store oluşturulamadı: %w", cfg.Bucket, err)
			}
		}
		slog.Info("KV store hazır", "bucket", cfg.Bucket)
	}
	return nil
}

func (es *EmbeddedServer) JetStream() jetstream.JetStream {
	return es.js
}

func (es *EmbeddedServer) Connection() *nats.Conn {
	return es.nc
}

func (es *EmbeddedServer) Shutdown() {
	if es.nc != nil {
		es.nc.Close()
	}
	if es.server != nil {
		es.server.Shutdown()
		es.server.WaitForShutdown()
	}
	slog.Info("NATS sunucu kapatıldı")
}
