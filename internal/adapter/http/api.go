package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
	"github.com/couchcryptid/parcel-sensor-service/internal/history"
	"github.com/couchcryptid/parcel-sensor-service/internal/store"
)

// ShipmentLookup resolves a tracking code to its latest lifecycle record.
type ShipmentLookup interface {
	Lookup(trackingCode string) (domain.ShipmentTransitRecord, bool)
}

// FirstViewLoader seeds an empty history on first view.
type FirstViewLoader interface {
	EnsureLoaded(ctx context.Context, trackingCode string) bool
}

// MatchEstimator cross-validates local samples against the ledger.
type MatchEstimator interface {
	EstimateMatch(ctx context.Context, trackingCode string, local []domain.SensorSample) (int, error)
}

// SensorLogReader reads persisted sensor logs.
type SensorLogReader interface {
	Load(ctx context.Context, trackingCode string) (domain.PersistedSensorLog, error)
}

// Dependencies wires the read API. Clock and Location default to the real
// clock and UTC.
type Dependencies struct {
	Ready      sharedobs.ReadinessChecker
	Samples    *history.Store
	Shipments  ShipmentLookup
	Loader     FirstViewLoader
	Estimator  MatchEstimator
	SensorLogs SensorLogReader
	Clock      clockwork.Clock
	Location   *time.Location
}

type api struct {
	deps   Dependencies
	logger *slog.Logger
}

func newAPI(deps Dependencies, logger *slog.Logger) *api {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &api{deps: deps, logger: logger}
}

type historyResponse struct {
	TrackingCode string                `json:"tracking_code"`
	Order        string                `json:"order"`
	Samples      []domain.SensorSample `json:"samples"`
}

type windowResponse struct {
	TrackingCode string                `json:"tracking_code"`
	Order        string                `json:"order"`
	Window       *domain.Window        `json:"window"`
	Samples      []domain.SensorSample `json:"samples"`
	Summary      domain.Summary        `json:"summary"`
	LastUpdate   *time.Time            `json:"last_update"`
}

type validationResponse struct {
	TrackingCode string `json:"tracking_code"`
	Percent      int    `json:"percent"`
	LocalCount   int    `json:"local_count"`
	Validated    bool   `json:"validated"`
}

type freshnessResponse struct {
	LastUpdate *time.Time `json:"last_update"`
}

func (a *api) history(w http.ResponseWriter, r *http.Request) {
	order, ok := parseOrder(w, r, domain.Descending)
	if !ok {
		return
	}
	code := r.PathValue("code")
	writeJSON(w, http.StatusOK, historyResponse{
		TrackingCode: code,
		Order:        order.String(),
		Samples:      a.deps.Samples.Get(code, order),
	})
}

func (a *api) window(w http.ResponseWriter, r *http.Request) {
	order, ok := parseOrder(w, r, domain.Ascending)
	if !ok {
		return
	}
	code := r.PathValue("code")
	rec, ok := a.deps.Shipments.Lookup(code)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown shipment")
		return
	}

	if a.deps.Loader != nil && a.deps.Samples.Len(code) == 0 {
		a.deps.Loader.EnsureLoaded(r.Context(), code)
	}

	now := a.now()
	samples := domain.SortSamples(domain.FilterWindow(a.deps.Samples.Get(code, domain.Descending), rec, now), order)

	resp := windowResponse{
		TrackingCode: code,
		Order:        order.String(),
		Samples:      samples,
		Summary:      domain.Summarize(samples, rec),
		LastUpdate:   a.lastUpdate(),
	}
	if win, ok := domain.WindowFor(rec, now); ok {
		resp.Window = &win
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) validation(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	rec, ok := a.deps.Shipments.Lookup(code)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown shipment")
		return
	}

	local := domain.FilterWindow(a.deps.Samples.Get(code, domain.Ascending), rec, a.now())
	pct, err := a.deps.Estimator.EstimateMatch(r.Context(), code, local)
	if err != nil {
		a.logger.Warn("validation unavailable", "error", err, "tracking_code", code)
	}
	writeJSON(w, http.StatusOK, validationResponse{
		TrackingCode: code,
		Percent:      pct,
		LocalCount:   len(local),
		Validated:    err == nil && len(local) > 0,
	})
}

func (a *api) sensorLog(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	log, err := a.deps.SensorLogs.Load(r.Context(), code)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no sensor log persisted")
		return
	}
	if err != nil {
		a.logger.Error("load sensor log failed", "error", err, "tracking_code", code)
		writeError(w, http.StatusInternalServerError, "load sensor log failed")
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (a *api) freshness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, freshnessResponse{LastUpdate: a.lastUpdate()})
}

func (a *api) now() time.Time {
	return a.deps.Clock.Now().In(a.deps.Location)
}

func (a *api) lastUpdate() *time.Time {
	t := a.deps.Samples.LastUpdate()
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func parseOrder(w http.ResponseWriter, r *http.Request, def domain.Order) (domain.Order, bool) {
	raw := r.URL.Query().Get("order")
	if raw == "" {
		return def, true
	}
	order, ok := domain.ParseOrder(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, "order must be asc or desc")
		return 0, false
	}
	return order, true
}
