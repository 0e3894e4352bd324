package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one cached value in its serialized form. Both levels store the
// same JSON bytes, so every read decodes a fresh copy for the caller.
type Entry struct {
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	TypeTag      string          `json:"typeTag"`
	CreatedAt    time.Time       `json:"createdAt"`
	LastAccessed time.Time       `json:"lastAccessed"`
	ExpiresAt    *time.Time      `json:"expiresAt,omitempty"`
	AccessCount  int64           `json:"accessCount"`
	SizeBytes    int64           `json:"sizeBytes"`
}

// newEntry serializes value into an entry that expires after ttl; ttl <= 0
// means no expiry
func newEntry(key string, value any, ttl time.Duration, now time.Time) (*Entry, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache value for %q: %w", key, err)
	}

	e := &Entry{
		Key:          key,
		Value:        data,
		TypeTag:      fmt.Sprintf("%T", value),
		CreatedAt:    now,
		LastAccessed: now,
		SizeBytes:    int64(len(key) + len(data)),
	}
	e.setTTL(ttl, now)
	return e, nil
}

func (e *Entry) setTTL(ttl time.Duration, now time.Time) {
	if ttl <= 0 {
		e.ExpiresAt = nil
		return
	}
	exp := now.Add(ttl)
	e.ExpiresAt = &exp
}

// Expired reports whether the entry is past its expiry at now
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// Decode unmarshals the cached value into out
func (e *Entry) Decode(out any) error {
	if err := json.Unmarshal(e.Value, out); err != nil {
		return fmt.Errorf("failed to decode cache value for %q: %w", e.Key, err)
	}
	return nil
}

// clone returns a copy that shares no mutable state with e
func (e *Entry) clone() *Entry {
	c := *e
	c.Value = append(json.RawMessage(nil), e.Value...)
	if e.ExpiresAt != nil {
		exp := *e.ExpiresAt
		c.ExpiresAt = &exp
	}
	return &c
}
