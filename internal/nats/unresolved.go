package nats

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/minasoft/ris-listener/internal/db"
	"github.com/nats-io/nats.go/jetstream"
)

// UnresolvedLedger stores reports whose accession number matched no study.
// Entries are keyed by the encoded accession number; a later report for the
// same accession replaces the earlier one.
type UnresolvedLedger struct {
	kv jetstream.KeyValue
}

func NewUnresolvedLedger(ctx context.Context, js jetstream.JetStream) (*UnresolvedLedger, error) {
	kv, err := js.KeyValue(ctx, UnresolvedBucket)
	if err != nil {
		return nil, fmt.Errorf("unresolved KV erişilemedi: %w", err)
	}
	return &UnresolvedLedger{kv: kv}, nil
}

func (l *UnresolvedLedger) RecordUnresolved(ctx context.Context, ref db.UnresolvedReference) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("kayıt serialize edilemedi: %w", err)
	}
	if _, err := l.kv.Put(ctx, accessionKey(ref.AccessionNumber), data); err != nil {
		return fmt.Errorf("kayıt yazılamadı: %w", err)
	}
	return nil
}

// List returns all open references, oldest first.
func (l *UnresolvedLedger) List(ctx context.Context) ([]db.UnresolvedReference, error) {
	refs := []db.UnresolvedReference{}
	keys, err := l.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return refs, nil
	}
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		entry, err := l.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var ref db.UnresolvedReference
		if err := json.Unmarshal(entry.Value(), &ref); err == nil {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].ReceivedAt.Before(refs[j].ReceivedAt)
	})
	return refs, nil
}

// Resolve removes the reference for accession. It returns db.ErrNotFound when
// there is none.
func (l *UnresolvedLedger) Resolve(ctx context.Context, accession string) error {
	key := accessionKey(accession)
	if _, err := l.kv.Get(ctx, key); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return db.ErrNotFound
		}
		return err
	}
	return l.kv.Delete(ctx, key)
}

// Count returns the number of open references.
func (l *UnresolvedLedger) Count(ctx context.Context) (int, error) {
	keys, err := l.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// accessionKey encodes an accession number losslessly into the KV key
// alphabet. Distinct accessions never share a key.
func accessionKey(accession string) string {
	return "acc_" + base64.RawURLEncoding.EncodeToString([]byte(accession))
}
