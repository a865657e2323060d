// Package turnstile sends the anonymous once-a-day usage event.
package turnstile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cartolens/cartolens/internal/config"
	"github.com/cartolens/cartolens/internal/core/resolver"
	"github.com/cartolens/cartolens/internal/metrics"
)

const (
	// StorageKey names the persisted Record in the key-value store.
	StorageKey = "mapbox.turnstileEventData"

	// EventName identifies app-open usage events.
	EventName = "appUserTurnstile"

	defaultTimeout = 10 * time.Second
)

// KeyValueStore persists the turnstile record. Get returns "" for a missing key.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Doer sends HTTP requests; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Event is one entry of the events endpoint payload.
type Event struct {
	Event            string `json:"event"`
	Created          string `json:"created"`
	SDKIdentifier    string `json:"sdkIdentifier"`
	SDKVersion       string `json:"sdkVersion"`
	TelemetryEnabled bool   `json:"enabled.telemetry"`
	UserID           string `json:"userId"`
}

// SkipReason explains why no request was sent.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipDisabled      SkipReason = "disabled"
	SkipNoToken       SkipReason = "no_access_token"
	SkipAlreadySent   SkipReason = "already_sent_today"
	SkipNoMapboxTiles SkipReason = "no_mapbox_tiles"
)

// Outcome describes what a Report call did. Persisted implies the record
// write finished before the Outcome was delivered.
type Outcome struct {
	Sent       bool       `json:"sent"`
	Persisted  bool       `json:"persisted"`
	Skipped    SkipReason `json:"skipped,omitempty"`
	StatusCode int        `json:"status_code,omitempty"`
	AnonID     string     `json:"anon_id,omitempty"`
	Err        error      `json:"-"`
}

// Label is a short outcome name for logs and metrics.
func (o Outcome) Label() string {
	switch {
	case o.Skipped != SkipNone:
		return string(o.Skipped)
	case o.Persisted:
		return "success"
	case o.Sent && o.Err != nil:
		return "persist_failed"
	case o.Sent:
		return "rejected"
	default:
		return "error"
	}
}

// Reporter emits turnstile events. Overlapping Report calls are not
// serialized; each may send and the last successful one wins the record.
type Reporter struct {
	EventsURL     string
	AccessToken   string
	SDKIdentifier string
	SDKVersion    string

	// Disabled turns every report into a SkipDisabled outcome.
	Disabled bool

	Store  KeyValueStore
	Client Doer
	Logger *logging.Logger

	Timeout  time.Duration
	Location *time.Location
	Clock    func() time.Time
	NewID    func() string
}

// NewReporter builds a reporter from loaded configuration.
func NewReporter(cfg *config.Config, store KeyValueStore, client Doer) *Reporter {
	r := &Reporter{Store: store, Client: client}
	if cfg != nil {
		r.EventsURL = cfg.API.EventsURL
		r.AccessToken = cfg.API.AccessToken
		r.SDKIdentifier = cfg.SDK.Identifier
		r.SDKVersion = cfg.SDK.Version
		r.Timeout = cfg.Turnstile.Timeout
		r.Disabled = !cfg.Turnstile.Enabled
	}
	return r
}

// Report sends a turnstile event unless one already succeeded today. It never
// blocks on the network: the returned channel receives exactly one Outcome
// and is then closed. Callers may ignore it.
func (r *Reporter) Report(ctx context.Context) <-chan Outcome {
	out := make(chan Outcome, 1)

	if skip := r.precheck(); skip != SkipNone {
		r.finish(out, Outcome{Skipped: skip})
		return out
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := r.now()
	record := r.load(ctx)

	anonID := record.AnonID
	if !ValidAnonID(anonID) {
		anonID = r.newID()
	}

	if record.LastSuccess != 0 && SentToday(record.LastSuccess, now, r.Location) {
		r.finish(out, Outcome{Skipped: SkipAlreadySent, AnonID: anonID})
		return out
	}

	endpoint, err := r.endpoint()
	if err != nil {
		r.finish(out, Outcome{AnonID: anonID, Err: err})
		return out
	}

	body, err := eventPayload(r.event(anonID, now))
	if err != nil {
		r.finish(out, Outcome{AnonID: anonID, Err: err})
		return out
	}

	go r.send(context.WithoutCancel(ctx), endpoint, body, anonID, now, out)
	return out
}

// ReportForTiles reports only when at least one tile URL is served by the
// Mapbox API.
func (r *Reporter) ReportForTiles(ctx context.Context, tileURLs []string) <-chan Outcome {
	if skip := r.precheck(); skip != SkipNone {
		out := make(chan Outcome, 1)
		r.finish(out, Outcome{Skipped: skip})
		return out
	}

	for _, tileURL := range tileURLs {
		if resolver.IsMapboxHTTPURL(tileURL) {
			return r.Report(ctx)
		}
	}

	out := make(chan Outcome, 1)
	r.finish(out, Outcome{Skipped: SkipNoMapboxTiles})
	return out
}

func (r *Reporter) precheck() SkipReason {
	switch {
	case r == nil || r.AccessToken == "":
		return SkipNoToken
	case r.Disabled:
		return SkipDisabled
	default:
		return SkipNone
	}
}

func (r *Reporter) send(ctx context.Context, endpoint string, body []byte, anonID string, now time.Time, out chan<- Outcome) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := Outcome{AnonID: anonID}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		outcome.Err = err
		r.finish(out, outcome)
		return
	}
	// text/plain keeps browsers from sending a CORS preflight.
	req.Header.Set("Content-Type", "text/plain")

	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		outcome.Err = err
		r.finish(out, outcome)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	outcome.Sent = true
	outcome.StatusCode = resp.StatusCode

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		if err := r.persist(ctx, Record{AnonID: anonID, LastSuccess: now.UnixMilli()}); err != nil {
			outcome.Err = err
		} else {
			outcome.Persisted = true
		}
	}

	r.finish(out, outcome)
}

func (r *Reporter) load(ctx context.Context) Record {
	record, err := LoadRecord(ctx, r.Store)
	if err != nil {
		r.debug("Turnstile record unavailable", zap.Error(err))
		return Record{}
	}
	return record
}

func (r *Reporter) persist(ctx context.Context, record Record) error {
	if r.Store == nil {
		return errors.New("turnstile store is not configured")
	}
	payload, err := encodeRecord(record)
	if err != nil {
		return fmt.Errorf("encode turnstile record: %w", err)
	}
	if err := r.Store.Set(ctx, StorageKey, payload); err != nil {
		return fmt.Errorf("persist turnstile record: %w", err)
	}
	return nil
}

func (r *Reporter) endpoint() (string, error) {
	parsed, err := resolver.ParseURL(r.EventsURL)
	if err != nil {
		return "", fmt.Errorf("events url: %w", err)
	}
	parsed.Params = append(parsed.Params, "access_token="+r.AccessToken)
	return parsed.String(), nil
}

func (r *Reporter) event(anonID string, now time.Time) Event {
	return Event{
		Event:            EventName,
		Created:          now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		SDKIdentifier:    r.SDKIdentifier,
		SDKVersion:       r.SDKVersion,
		TelemetryEnabled: false,
		UserID:           anonID,
	}
}

func eventPayload(event Event) ([]byte, error) {
	data, err := json.Marshal([]Event{event})
	if err != nil {
		return nil, fmt.Errorf("encode turnstile event: %w", err)
	}
	return data, nil
}

func (r *Reporter) finish(out chan<- Outcome, outcome Outcome) {
	metrics.RecordTurnstileEvent(outcome.Label())

	if r != nil && r.Logger != nil {
		fields := []zap.Field{
			zap.String("outcome", outcome.Label()),
			zap.Int("status_code", outcome.StatusCode),
		}
		if outcome.Err != nil {
			r.Logger.Warn("Turnstile event not recorded", append(fields, zap.Error(outcome.Err))...)
		} else {
			r.Logger.Debug("Turnstile report finished", fields...)
		}
	}

	out <- outcome
	close(out)
}

func (r *Reporter) debug(msg string, fields ...zap.Field) {
	if r.Logger != nil {
		r.Logger.Debug(msg, fields...)
	}
}

func (r *Reporter) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

func (r *Reporter) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}
