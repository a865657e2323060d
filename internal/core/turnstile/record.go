package turnstile

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const dayMillis = float64(24 * time.Hour / time.Millisecond)

// Record is the persisted turnstile state.
type Record struct {
	AnonID      string `json:"anonId"`
	LastSuccess int64  `json:"lastSuccess"`
}

// LoadRecord reads the persisted record. A missing or malformed entry yields
// the zero Record.
func LoadRecord(ctx context.Context, store KeyValueStore) (Record, error) {
	if store == nil {
		return Record{}, nil
	}
	payload, err := store.Get(ctx, StorageKey)
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(payload), nil
}

// LastSuccessTime returns the last successful send, or the zero time.
func (r Record) LastSuccessTime() time.Time {
	if r.LastSuccess == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.LastSuccess)
}

// decodeRecord parses a stored record. Empty or malformed payloads yield the
// zero Record.
func decodeRecord(payload string) Record {
	if strings.TrimSpace(payload) == "" {
		return Record{}
	}
	var record Record
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return Record{}
	}
	return record
}

func encodeRecord(record Record) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ValidAnonID reports whether id is a canonical random (version 4) UUID.
func ValidAnonID(id string) bool {
	if len(id) != 36 {
		return false
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.Version() == 4 && parsed.Variant() == uuid.RFC4122
}

// SentToday reports whether a send that succeeded at lastSuccess (epoch ms)
// already covers now: same day of month in loc and less than one day elapsed.
// Sends on either side of midnight are both allowed even when minutes apart.
func SentToday(lastSuccess int64, now time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	last := time.UnixMilli(lastSuccess).In(loc)
	current := now.In(loc)

	elapsedDays := float64(now.UnixMilli()-lastSuccess) / dayMillis
	return last.Day() == current.Day() && elapsedDays >= 0 && elapsedDays < 1
}
