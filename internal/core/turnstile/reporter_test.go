package turnstile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cartolens/cartolens/internal/config"
)

const fixedAnonID = "3b241101-e2bb-4255-8caf-4136c566a962"

type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
	sets   int
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	return m.values[key], nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	m.sets++
	return nil
}

func (m *memoryStore) record(t *testing.T) Record {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var record Record
	require.NoError(t, json.Unmarshal([]byte(m.values[StorageKey]), &record))
	return record
}

type capturedRequest struct {
	method      string
	contentType string
	rawQuery    string
	body        []byte
}

type eventsServer struct {
	*httptest.Server
	status   int
	hits     atomic.Int32
	mu       sync.Mutex
	requests []capturedRequest
}

func newEventsServer(t *testing.T, status int) *eventsServer {
	t.Helper()
	es := &eventsServer{status: status}
	es.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		es.mu.Lock()
		es.requests = append(es.requests, capturedRequest{
			method:      r.Method,
			contentType: r.Header.Get("Content-Type"),
			rawQuery:    r.URL.RawQuery,
			body:        body,
		})
		es.mu.Unlock()
		es.hits.Add(1)
		w.WriteHeader(es.status)
	}))
	t.Cleanup(es.Close)
	return es
}

func (es *eventsServer) captured() []capturedRequest {
	es.mu.Lock()
	defer es.mu.Unlock()
	return append([]capturedRequest(nil), es.requests...)
}

func newTestReporter(es *eventsServer, store KeyValueStore, now time.Time) *Reporter {
	r := &Reporter{
		EventsURL:     es.URL + "/events/v2",
		AccessToken:   "pk.test",
		SDKIdentifier: "cartolens",
		SDKVersion:    "1.2.3",
		Store:         store,
		Client:        es.Client(),
		Location:      time.UTC,
		Clock:         func() time.Time { return now },
		NewID:         func() string { return fixedAnonID },
	}
	return r
}

func await(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case outcome, ok := <-ch:
		require.True(t, ok, "outcome channel closed without a value")
		_, open := <-ch
		require.False(t, open, "outcome channel must be closed after delivery")
		return outcome
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for turnstile outcome")
		return Outcome{}
	}
}

func storedRecord(t *testing.T, anonID string, lastSuccess time.Time) *memoryStore {
	t.Helper()
	payload, err := encodeRecord(Record{AnonID: anonID, LastSuccess: lastSuccess.UnixMilli()})
	require.NoError(t, err)
	return &memoryStore{values: map[string]string{StorageKey: payload}}
}

func TestReportWithoutTokenDoesNothing(t *testing.T) {
	es := newEventsServer(t, http.StatusOK)
	store := &memoryStore{}
	r := newTestReporter(es, store, time.Now())
	r.AccessToken = ""

	outcome := await(t, r.Report(context.Background()))
	require.Equal(t, SkipNoToken, outcome.Skipped)
	require.False(t, outcome.Sent)
	require.Equal(t, int32(0), es.hits.Load())
	require.Equal(t, 0, store.sets)
}

func TestReportDisabled(t *testing.T) {
	es := newEventsServer(t, http.StatusOK)
	r := newTestReporter(es, &memoryStore{}, time.Now())
	r.Disabled = true

	outcome := await(t, r.Report(context.Background()))
	require.Equal(t, SkipDisabled, outcome.Skipped)
	require.Equal(t, "disabled", outcome.Label())

	outcome = await(t, r.ReportForTiles(context.Background(), []string{"https://api.mapbox.com/v4/a.json"}))
	require.Equal(t, SkipDisabled, outcome.Skipped)
	require.Equal(t, int32(0), es.hits.Load())
}

func TestReportNilReporter(t *testing.T) {
	var r *Reporter
	outcome := await(t, r.Report(context.Background()))
	require.Equal(t, SkipNoToken, outcome.Skipped)
}

func TestReportFirstSendPersistsRecord(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	es := newEventsServer(t, http.StatusNoContent)
	store := &memoryStore{}
	r := newTestReporter(es, store, now)

	outcome := await(t, r.Report(context.Background()))
	require.True(t, outcome.Sent)
	require.True(t, outcome.Persisted)
	require.NoError(t, outcome.Err)
	require.Equal(t, http.StatusNoContent, outcome.StatusCode)
	require.Equal(t, fixedAnonID, outcome.AnonID)
	require.Equal(t, "success", outcome.Label())

	record := store.record(t)
	require.Equal(t, fixedAnonID, record.AnonID)
	require.Equal(t, now.UnixMilli(), record.LastSuccess)

	requests := es.captured()
	require.Len(t, requests, 1)
	req := requests[0]
	require.Equal(t, http.MethodPost, req.method)
	require.Equal(t, "text/plain", req.contentType)
	require.Equal(t, "access_token=pk.test", req.rawQuery)

	var events []map[string]any
	require.NoError(t, json.Unmarshal(req.body, &events))
	require.Len(t, events, 1)
	require.Equal(t, "appUserTurnstile", events[0]["event"])
	require.Equal(t, "2025-03-14T12:00:00.000Z", events[0]["created"])
	require.Equal(t, "cartolens", events[0]["sdkIdentifier"])
	require.Equal(t, "1.2.3", events[0]["sdkVersion"])
	require.Equal(t, false, events[0]["enabled.telemetry"])
	require.Equal(t, fixedAnonID, events[0]["userId"])
}

func TestReportSecondCallSameDayIsSkipped(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	es := newEventsServer(t, http.StatusOK)
	store := &memoryStore{}
	r := newTestReporter(es, store, now)

	first := await(t, r.Report(context.Background()))
	require.True(t, first.Persisted)

	r.Clock = func() time.Time { return now.Add(3 * time.Hour) }
	second := await(t, r.Report(context.Background()))
	require.Equal(t, SkipAlreadySent, second.Skipped)
	require.Equal(t, fixedAnonID, second.AnonID)
	require.Equal(t, int32(1), es.hits.Load())
}

func TestReportDayGating(t *testing.T) {
	cases := []struct {
		name     string
		last     time.Time
		now      time.Time
		wantSend bool
	}{
		{
			name: "SameDayEarlier",
			last: time.Date(2025, 3, 14, 1, 0, 0, 0, time.UTC),
			now:  time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC),
		},
		{
			name:     "AcrossMidnight",
			last:     time.Date(2025, 3, 14, 23, 50, 0, 0, time.UTC),
			now:      time.Date(2025, 3, 15, 0, 10, 0, 0, time.UTC),
			wantSend: true,
		},
		{
			name:     "SameDayNumberNextMonth",
			last:     time.Date(2025, 2, 14, 10, 0, 0, 0, time.UTC),
			now:      time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
			wantSend: true,
		},
		{
			name:     "LastSuccessInFuture",
			last:     time.Date(2025, 3, 14, 13, 0, 0, 0, time.UTC),
			now:      time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
			wantSend: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			es := newEventsServer(t, http.StatusOK)
			store := storedRecord(t, fixedAnonID, tc.last)
			r := newTestReporter(es, store, tc.now)

			outcome := await(t, r.Report(context.Background()))
			if tc.wantSend {
				require.True(t, outcome.Sent)
				require.Equal(t, int32(1), es.hits.Load())
				require.Equal(t, tc.now.UnixMilli(), store.record(t).LastSuccess)
			} else {
				require.Equal(t, SkipAlreadySent, outcome.Skipped)
				require.Equal(t, int32(0), es.hits.Load())
			}
		})
	}
}

func TestReportFailureLeavesStateUntouched(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	last := now.Add(-48 * time.Hour)
	es := newEventsServer(t, http.StatusInternalServerError)
	store := storedRecord(t, fixedAnonID, last)
	r := newTestReporter(es, store, now)

	outcome := await(t, r.Report(context.Background()))
	require.True(t, outcome.Sent)
	require.False(t, outcome.Persisted)
	require.Equal(t, http.StatusInternalServerError, outcome.StatusCode)
	require.Equal(t, "rejected", outcome.Label())
	require.Equal(t, 0, store.sets)
	require.Equal(t, last.UnixMilli(), store.record(t).LastSuccess)
}

func TestReportAcceptedStatuses(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNoContent, http.StatusAccepted, http.StatusCreated} {
		es := newEventsServer(t, status)
		store := &memoryStore{}
		r := newTestReporter(es, store, time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC))

		outcome := await(t, r.Report(context.Background()))
		require.True(t, outcome.Sent)
		wantPersist := status == http.StatusOK || status == http.StatusNoContent
		require.Equal(t, wantPersist, outcome.Persisted, status)
	}
}

func TestReportAnonIDHandling(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	const existing = "9f1c8e0a-7b2d-4c3e-a1f0-0d6b5e4c3a21"

	t.Run("ReusesValidStoredID", func(t *testing.T) {
		es := newEventsServer(t, http.StatusOK)
		store := storedRecord(t, existing, now.Add(-72*time.Hour))
		r := newTestReporter(es, store, now)

		outcome := await(t, r.Report(context.Background()))
		require.Equal(t, existing, outcome.AnonID)
		require.Equal(t, existing, store.record(t).AnonID)
	})

	t.Run("ReplacesInvalidStoredID", func(t *testing.T) {
		es := newEventsServer(t, http.StatusOK)
		store := storedRecord(t, "not-a-uuid", now.Add(-72*time.Hour))
		r := newTestReporter(es, store, now)

		outcome := await(t, r.Report(context.Background()))
		require.Equal(t, fixedAnonID, outcome.AnonID)
	})

	t.Run("GeneratedIDIsVersion4", func(t *testing.T) {
		es := newEventsServer(t, http.StatusOK)
		r := newTestReporter(es, &memoryStore{}, now)
		r.NewID = nil

		outcome := await(t, r.Report(context.Background()))
		require.True(t, ValidAnonID(outcome.AnonID), outcome.AnonID)
	})

	t.Run("InvalidIDNotPersistedOnFailure", func(t *testing.T) {
		es := newEventsServer(t, http.StatusBadGateway)
		store := &memoryStore{}
		r := newTestReporter(es, store, now)

		_ = await(t, r.Report(context.Background()))
		require.Equal(t, 0, store.sets)
	})
}

func TestReportUnreadableStoreTreatedAsEmpty(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("MalformedJSON", func(t *testing.T) {
		es := newEventsServer(t, http.StatusOK)
		store := &memoryStore{values: map[string]string{StorageKey: "{not json"}}
		r := newTestReporter(es, store, now)

		outcome := await(t, r.Report(context.Background()))
		require.True(t, outcome.Persisted)
		require.Equal(t, fixedAnonID, store.record(t).AnonID)
	})

	t.Run("ReadError", func(t *testing.T) {
		es := newEventsServer(t, http.StatusOK)
		store := &memoryStore{getErr: errors.New("disk unavailable")}
		r := newTestReporter(es, store, now)

		outcome := await(t, r.Report(context.Background()))
		require.True(t, outcome.Sent)
		require.Equal(t, int32(1), es.hits.Load())
	})
}

func TestReportTransportErrors(t *testing.T) {
	t.Run("MalformedEventsURL", func(t *testing.T) {
		es := newEventsServer(t, http.StatusOK)
		r := newTestReporter(es, &memoryStore{}, time.Now())
		r.EventsURL = "events.example.com"

		outcome := await(t, r.Report(context.Background()))
		require.Error(t, outcome.Err)
		require.False(t, outcome.Sent)
		require.Equal(t, "error", outcome.Label())
	})

	t.Run("ConnectionRefused", func(t *testing.T) {
		es := newEventsServer(t, http.StatusOK)
		store := &memoryStore{}
		r := newTestReporter(es, store, time.Now())
		es.Close()

		outcome := await(t, r.Report(context.Background()))
		require.Error(t, outcome.Err)
		require.False(t, outcome.Sent)
		require.Equal(t, 0, store.sets)
	})
}

func TestReportSurvivesCallerCancellation(t *testing.T) {
	es := newEventsServer(t, http.StatusOK)
	store := &memoryStore{}
	r := newTestReporter(es, store, time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	ch := r.Report(ctx)
	cancel()

	outcome := await(t, ch)
	require.True(t, outcome.Persisted)
}

func TestReportForTiles(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("NoMapboxTiles", func(t *testing.T) {
		es := newEventsServer(t, http.StatusOK)
		r := newTestReporter(es, &memoryStore{}, now)

		outcome := await(t, r.ReportForTiles(context.Background(), []string{"https://tiles.example.com/{z}/{x}/{y}.png"}))
		require.Equal(t, SkipNoMapboxTiles, outcome.Skipped)
		require.Equal(t, int32(0), es.hits.Load())
	})

	t.Run("MapboxTiles", func(t *testing.T) {
		es := newEventsServer(t, http.StatusOK)
		r := newTestReporter(es, &memoryStore{}, now)

		outcome := await(t, r.ReportForTiles(context.Background(), []string{
			"https://tiles.example.com/{z}/{x}/{y}.png",
			"https://a.tiles.mapbox.com/v4/mapbox.satellite/{z}/{x}/{y}.png",
		}))
		require.True(t, outcome.Sent)
	})

	t.Run("SchemelessMapboxTiles", func(t *testing.T) {
		for _, tileURL := range []string{
			"//a.tiles.mapbox.com/v4/mapbox.satellite/{z}/{x}/{y}.png",
			"b.tiles.mapbox.com/v4/mapbox.satellite/{z}/{x}/{y}.png",
		} {
			es := newEventsServer(t, http.StatusOK)
			r := newTestReporter(es, &memoryStore{}, now)

			outcome := await(t, r.ReportForTiles(context.Background(), []string{tileURL}))
			require.True(t, outcome.Sent, tileURL)
			require.Equal(t, int32(1), es.hits.Load(), tileURL)
		}
	})

	t.Run("NoToken", func(t *testing.T) {
		es := newEventsServer(t, http.StatusOK)
		r := newTestReporter(es, &memoryStore{}, now)
		r.AccessToken = ""

		outcome := await(t, r.ReportForTiles(context.Background(), []string{"https://api.mapbox.com/v4/x.json"}))
		require.Equal(t, SkipNoToken, outcome.Skipped)
	})
}

func TestNewReporterFromConfig(t *testing.T) {
	cfg := &config.Config{
		API: config.APIConfig{EventsURL: "https://events.example.com/events/v2", AccessToken: "pk.cfg"},
		SDK: config.SDKConfig{Identifier: "cartolens", Version: "0.9.0"},
		Turnstile: config.TurnstileConfig{
			Enabled: true,
			Timeout: 3 * time.Second,
		},
	}

	r := NewReporter(cfg, &memoryStore{}, http.DefaultClient)
	require.Equal(t, "https://events.example.com/events/v2", r.EventsURL)
	require.Equal(t, "pk.cfg", r.AccessToken)
	require.Equal(t, "0.9.0", r.SDKVersion)
	require.Equal(t, 3*time.Second, r.Timeout)
	require.False(t, r.Disabled)

	cfg.Turnstile.Enabled = false
	require.True(t, NewReporter(cfg, nil, nil).Disabled)
}
