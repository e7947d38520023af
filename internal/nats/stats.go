package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/minasoft/ris-listener/internal/hl7"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	LastMessageTimeKey = "last_message_time"
	statsRetries       = 5
)

// StatsRecorder keeps per message type counters in the stats bucket.
type StatsRecorder struct {
	kv jetstream.KeyValue
}

func NewStatsRecorder(ctx context.Context, js jetstream.JetStream) (*StatsRecorder, error) {
	kv, err := js.KeyValue(ctx, StatsBucket)
	if err != nil {
		return nil, fmt.Errorf("stats KV erişilemedi: %w", err)
	}
	return &StatsRecorder{kv: kv}, nil
}

func (s *StatsRecorder) ObserveExchange(ctx context.Context, ex hl7.Exchange) {
	prefix := subjectToken(ex.MessageType)
	keys := []string{prefix + ".total"}
	if ex.AckCode == hl7.AckAccepted {
		keys = append(keys, prefix+".accepted")
	} else {
		keys = append(keys, prefix+".rejected")
	}

	for _, key := range keys {
		if err := s.increment(ctx, key); err != nil {
			slog.Warn("İstatistik güncellenemedi", "key", key, "error", err)
		}
	}
	if _, err := s.kv.Put(ctx, LastMessageTimeKey, []byte(ex.ReceivedAt.UTC().Format(time.RFC3339))); err != nil {
		slog.Warn("İstatistik güncellenemedi", "key", LastMessageTimeKey, "error", err)
	}
}

// increment performs a revision-checked read-modify-write so concurrent
// connections do not lose counts.
func (s *StatsRecorder) increment(ctx context.Context, key string) error {
	var lastErr error
	for i := 0; i < statsRetries; i++ {
		entry, err := s.kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			if _, lastErr = s.kv.Create(ctx, key, []byte("1")); lastErr == nil {
				return nil
			}
			continue
		}
		if err != nil {
			return err
		}

		n, _ := strconv.ParseInt(string(entry.Value()), 10, 64)
		if _, lastErr = s.kv.Update(ctx, key, []byte(strconv.FormatInt(n+1, 10)), entry.Revision()); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%d denemede güncellenemedi: %w", statsRetries, lastErr)
}

// Snapshot returns all counters and the last message time.
func (s *StatsRecorder) Snapshot(ctx context.Context) (map[string]string, error) {
	return Snapshot(ctx, s.kv)
}

// Snapshot reads every key of a stats bucket.
func Snapshot(ctx context.Context, kv jetstream.KeyValue) (map[string]string, error) {
	result := make(map[string]string)
	keys, err := kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			continue
		}
		result[key] = string(entry.Value())
	}
	return result, nil
}
