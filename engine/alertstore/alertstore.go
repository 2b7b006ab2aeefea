// Package alertstore persists the most recent diagnosis summary under a
// single key so the alerts surface can redisplay it after a restart. Writes
// are best-effort: the orchestrator logs and continues on failure.
package alertstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
	"github.com/nats-io/nats.go"
)

// Key is the single key the alerts surface reads.
const Key = "last_alert"

// Bucket is the JetStream key-value bucket name.
const Bucket = "healthconnect-alerts"

// LastAlert is the compact summary persisted after every successful
// diagnosis. Overwritten on each write; only the latest value matters.
type LastAlert struct {
	Urgency         domain.Urgency `json:"urgency"`
	Preliminary     string         `json:"preliminary"`
	Recommendations []string       `json:"recommendations"`
	Timestamp       int64          `json:"timestamp"`
}

// FromResult builds the persisted summary from a successful diagnosis.
func FromResult(r domain.DiagnosisResult) LastAlert {
	return LastAlert{
		Urgency:         r.UrgencyLevel,
		Preliminary:     r.PreliminaryDiagnosis,
		Recommendations: r.Recommendations,
		Timestamp:       r.Timestamp,
	}
}

// Store reads and writes the last-alert summary.
type Store interface {
	Save(ctx context.Context, alert LastAlert) error
	Last(ctx context.Context) (LastAlert, bool, error)
}

// KVStore persists alerts in a NATS JetStream key-value bucket.
type KVStore struct {
	kv nats.KeyValue
}

// NewKV binds the store to an existing JetStream context, creating the
// bucket when missing.
func NewKV(js nats.JetStreamContext) (*KVStore, error) {
	kv, err := js.KeyValue(Bucket)
	if err == nats.ErrBucketNotFound {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  Bucket,
			History: 1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("alertstore: bucket %q: %w", Bucket, err)
	}
	return &KVStore{kv: kv}, nil
}

func (s *KVStore) Save(ctx context.Context, alert LastAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("alertstore: marshal: %w", err)
	}
	if _, err := s.kv.Put(Key, data); err != nil {
		return fmt.Errorf("alertstore: put: %w", err)
	}
	return nil
}

func (s *KVStore) Last(ctx context.Context) (LastAlert, bool, error) {
	entry, err := s.kv.Get(Key)
	if err == nats.ErrKeyNotFound {
		return LastAlert{}, false, nil
	}
	if err != nil {
		return LastAlert{}, false, fmt.Errorf("alertstore: get: %w", err)
	}
	var alert LastAlert
	if err := json.Unmarshal(entry.Value(), &alert); err != nil {
		return LastAlert{}, false, fmt.Errorf("alertstore: unmarshal: %w", err)
	}
	return alert, true, nil
}

// MemStore is an in-memory Store for tests and single-process runs without
// a JetStream server.
type MemStore struct {
	mu    sync.RWMutex
	alert LastAlert
	set   bool
}

// NewMem creates an empty MemStore.
func NewMem() *MemStore { return &MemStore{} }

func (s *MemStore) Save(ctx context.Context, alert LastAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alert = alert
	s.set = true
	return nil
}

func (s *MemStore) Last(ctx context.Context) (LastAlert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alert, s.set, nil
}
