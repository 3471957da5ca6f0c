package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/parcel-sensor-service/internal/adapter/http"
	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
	"github.com/couchcryptid/parcel-sensor-service/internal/history"
	"github.com/couchcryptid/parcel-sensor-service/internal/store"
	"github.com/couchcryptid/parcel-sensor-service/internal/store/memory"
)

// --- mocks ---

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockShipments map[string]domain.ShipmentTransitRecord

func (m mockShipments) Lookup(code string) (domain.ShipmentTransitRecord, bool) {
	rec, ok := m[code]
	return rec, ok
}

type mockLoader struct {
	samples *history.Store
	calls   []string
}

func (m *mockLoader) EnsureLoaded(ctx context.Context, code string) bool {
	m.calls = append(m.calls, code)
	_, _ = m.samples.Append(ctx, code, domain.SensorSample{Temperature: 5, Timestamp: "2024-01-15 08:30:00"})
	return true
}

type mockEstimator struct {
	percent int
	err     error
	gotLen  int
}

func (m *mockEstimator) EstimateMatch(_ context.Context, _ string, local []domain.SensorSample) (int, error) {
	m.gotLen = len(local)
	return m.percent, m.err
}

type mockSensorLogs struct {
	logs map[string]domain.PersistedSensorLog
	err  error
}

func (m *mockSensorLogs) Load(_ context.Context, code string) (domain.PersistedSensorLog, error) {
	if m.err != nil {
		return domain.PersistedSensorLog{}, m.err
	}
	log, ok := m.logs[code]
	if !ok {
		return domain.PersistedSensorLog{}, store.ErrNotFound
	}
	return log, nil
}

// --- helpers ---

var now = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

type fixture struct {
	srv       *httpadapter.Server
	samples   *history.Store
	loader    *mockLoader
	estimator *mockEstimator
}

func newFixture(t *testing.T, readyErr error) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)
	samples := history.New(memory.NewHistories(), history.Options{Clock: clock})
	f := &fixture{
		samples:   samples,
		loader:    &mockLoader{samples: samples},
		estimator: &mockEstimator{percent: 66},
	}
	f.srv = httpadapter.NewServer(":0", httpadapter.Dependencies{
		Ready:   &mockReadiness{err: readyErr},
		Samples: samples,
		Shipments: mockShipments{
			"TH1": {TrackingCode: "TH1", ShippedAt: "2024-01-15T08:00:00", DeliveredAt: "2024-01-15T09:00:00",
				TempMin: ptr(4), TempMax: ptr(6), IsShipped: true, IsDelivered: true},
			"TH2": {TrackingCode: "TH2", ShippedAt: "2024-01-15 08:00:00", IsShipped: true},
			"TH3": {TrackingCode: "TH3"},
		},
		Loader:    f.loader,
		Estimator: f.estimator,
		SensorLogs: &mockSensorLogs{logs: map[string]domain.PersistedSensorLog{
			"TH1": {ID: "log-1", TrackingCode: "TH1", Samples: []domain.SensorSample{{Temperature: 4.1, Timestamp: "2024-01-15 08:10:00"}}},
		}},
		Clock:    clock,
		Location: time.UTC,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) append(t *testing.T, code string, samples ...domain.SensorSample) {
	t.Helper()
	for _, s := range samples {
		_, err := f.samples.Append(context.Background(), code, s)
		require.NoError(t, err)
	}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

var threeSamples = []domain.SensorSample{
	{Temperature: 3.9, Timestamp: "2024-01-15 07:50:00"},
	{Temperature: 4.1, Timestamp: "2024-01-15 08:10:00"},
	{Temperature: 6.5, Timestamp: "2024-01-15 08:40:00"},
}

// --- health ---

func TestHealthzReturns200(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusOK, f.get(t, "/healthz", nil))
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusOK, f.get(t, "/readyz", nil))
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	f := newFixture(t, fmt.Errorf("not ready yet"))
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/readyz", nil))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAllReady(t *testing.T) {
	ok := &mockReadiness{}
	bad := &mockReadiness{err: errors.New("feed silent")}

	assert.NoError(t, httpadapter.AllReady(ok, ok).CheckReadiness(context.Background()))
	err := httpadapter.AllReady(ok, bad).CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed silent")
}

func TestAllReady_ReportsEveryFailure(t *testing.T) {
	feedErr := errors.New("feed silent")
	shipErr := errors.New("no shipment snapshot")

	err := httpadapter.AllReady(
		&mockReadiness{err: shipErr},
		&mockReadiness{},
		&mockReadiness{err: feedErr},
	).CheckReadiness(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shipErr)
	assert.ErrorIs(t, err, feedErr)
}

// --- read API ---

func TestHistory_DefaultNewestFirst(t *testing.T) {
	f := newFixture(t, nil)
	f.append(t, "TH1", threeSamples...)

	var body struct {
		Order   string                `json:"order"`
		Samples []domain.SensorSample `json:"samples"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/shipments/TH1/history", &body))
	assert.Equal(t, "desc", body.Order)
	require.Len(t, body.Samples, 3)
	assert.Equal(t, "2024-01-15 08:40:00", body.Samples[0].Timestamp)
}

func TestHistory_AscendingAndBadOrder(t *testing.T) {
	f := newFixture(t, nil)
	f.append(t, "TH1", threeSamples...)

	var body struct {
		Samples []domain.SensorSample `json:"samples"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/shipments/TH1/history?order=asc", &body))
	assert.Equal(t, "2024-01-15 07:50:00", body.Samples[0].Timestamp)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/shipments/TH1/history?order=sideways", nil))
}

func TestWindow_FiltersAndSummarizes(t *testing.T) {
	f := newFixture(t, nil)
	f.append(t, "TH1", threeSamples...)

	var body struct {
		Window  *domain.Window        `json:"window"`
		Samples []domain.SensorSample `json:"samples"`
		Summary domain.Summary        `json:"summary"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/shipments/TH1/window", &body))

	require.Len(t, body.Samples, 2)
	assert.Equal(t, "2024-01-15 08:10:00", body.Samples[0].Timestamp)
	require.NotNil(t, body.Window)
	assert.False(t, body.Window.Open)
	assert.Equal(t, 2, body.Summary.Count)
	assert.InDelta(t, 50.0, body.Summary.InRangePercent, 0.001)
	assert.Empty(t, f.loader.calls)
}

func TestWindow_OpenWindowUsesNow(t *testing.T) {
	f := newFixture(t, nil)
	f.append(t, "TH2",
		domain.SensorSample{Temperature: 4, Timestamp: "2024-01-15 09:59:00"},
		domain.SensorSample{Temperature: 4, Timestamp: "2024-01-15 10:01:00"},
	)

	var body struct {
		Window  *domain.Window        `json:"window"`
		Samples []domain.SensorSample `json:"samples"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/shipments/TH2/window?order=desc", &body))
	require.NotNil(t, body.Window)
	assert.True(t, body.Window.Open)
	require.Len(t, body.Samples, 1)
	assert.Equal(t, "2024-01-15 09:59:00", body.Samples[0].Timestamp)
}

func TestWindow_FirstViewLoadsEmptyHistory(t *testing.T) {
	f := newFixture(t, nil)

	var body struct {
		Samples []domain.SensorSample `json:"samples"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/shipments/TH2/window", &body))
	assert.Equal(t, []string{"TH2"}, f.loader.calls)
	assert.Len(t, body.Samples, 1)
}

func TestWindow_NotShippedHasNoWindow(t *testing.T) {
	f := newFixture(t, nil)
	f.append(t, "TH3", threeSamples...)

	var body struct {
		Window  *domain.Window        `json:"window"`
		Samples []domain.SensorSample `json:"samples"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/shipments/TH3/window", &body))
	assert.Nil(t, body.Window)
	assert.NotNil(t, body.Samples)
	assert.Empty(t, body.Samples)
}

func TestWindow_UnknownShipment(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/shipments/NOPE/window", nil))
}

func TestValidation(t *testing.T) {
	f := newFixture(t, nil)
	f.append(t, "TH1", threeSamples...)

	var body struct {
		Percent    int  `json:"percent"`
		LocalCount int  `json:"local_count"`
		Validated  bool `json:"validated"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/shipments/TH1/validation", &body))
	assert.Equal(t, 66, body.Percent)
	assert.Equal(t, 2, body.LocalCount)
	assert.True(t, body.Validated)
	assert.Equal(t, 2, f.estimator.gotLen, "only in-window samples are validated")
}

func TestValidation_LedgerFailureReportsZero(t *testing.T) {
	f := newFixture(t, nil)
	f.append(t, "TH1", threeSamples...)
	f.estimator.percent, f.estimator.err = 0, errors.New("ledger down")

	var body struct {
		Percent   int  `json:"percent"`
		Validated bool `json:"validated"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/shipments/TH1/validation", &body))
	assert.Zero(t, body.Percent)
	assert.False(t, body.Validated)
}

func TestSensorLog(t *testing.T) {
	f := newFixture(t, nil)

	var log domain.PersistedSensorLog
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/shipments/TH1/sensor-log", &log))
	assert.Equal(t, "log-1", log.ID)
	require.Len(t, log.Samples, 1)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/shipments/TH2/sensor-log", nil))
}

func TestFreshness(t *testing.T) {
	f := newFixture(t, nil)

	var body struct {
		LastUpdate *time.Time `json:"last_update"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/freshness", &body))
	assert.Nil(t, body.LastUpdate)

	f.append(t, "TH1", threeSamples[0])
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/freshness", &body))
	require.NotNil(t, body.LastUpdate)
	assert.True(t, now.Equal(*body.LastUpdate))
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/freshness", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
