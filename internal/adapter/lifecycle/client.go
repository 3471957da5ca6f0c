// Package lifecycle reads shipment state from the shipment lifecycle system.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
)

// Client lists shipments. It implements pipeline.ShipmentSource.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a lifecycle client. timeout bounds every request.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Shipments returns every shipment visible to the service. Records without
// a tracking code are dropped.
func (c *Client) Shipments(ctx context.Context) ([]domain.ShipmentTransitRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shipments request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("lifecycle API error: status %d: %s", resp.StatusCode, body)
	}

	var records []domain.ShipmentTransitRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode shipments: %w", err)
	}

	out := records[:0]
	for _, rec := range records {
		if rec.TrackingCode == "" {
			c.logger.Debug("dropping shipment without tracking code", "shipment_id", rec.ShipmentID)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
