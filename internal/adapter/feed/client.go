package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
)

// maxBody caps how much of a feed response is read.
const maxBody = 8 << 20

var errEmptyBody = errors.New("empty response body")

// Client reads the external sensor feed and the validation ledger.
// It implements pipeline.SensorFeed and pipeline.LedgerFeed.
type Client struct {
	sensorURL  string
	ledgerURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a feed client. timeout bounds every request.
func NewClient(sensorURL, ledgerURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		sensorURL: sensorURL,
		ledgerURL: ledgerURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Latest returns the most recent sensor reading. The reading may be
// incomplete; callers check FeedReading.Complete.
func (c *Client) Latest(ctx context.Context) (domain.FeedReading, error) {
	body, err := c.get(ctx, c.sensorURL, "sensor")
	if err != nil {
		return domain.FeedReading{}, err
	}
	var reading domain.FeedReading
	if err := json.Unmarshal(body, &reading); err != nil {
		return domain.FeedReading{}, fmt.Errorf("decode sensor reading: %w", err)
	}
	return reading, nil
}

// Ledger returns every ledger entry. Both a bare array and an object with a
// "data" array are accepted.
func (c *Client) Ledger(ctx context.Context) ([]domain.LedgerEntry, error) {
	body, err := c.get(ctx, c.ledgerURL, "ledger")
	if err != nil {
		return nil, err
	}

	var entries []domain.LedgerEntry
	if body[0] == '{' {
		var wrapped struct {
			Data []domain.LedgerEntry `json:"data"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("decode ledger: %w", err)
		}
		entries = wrapped.Data
	} else if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}

	c.logger.Debug("ledger fetched", "entries", len(entries))
	return entries, nil
}

// get performs a GET and returns the trimmed, non-empty body of a 200 response.
func (c *Client) get(ctx context.Context, url, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", source, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s feed error: status %d: %s", source, resp.StatusCode, bytes.TrimSpace(body))
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%s: %w", source, errEmptyBody)
	}
	return body, nil
}
