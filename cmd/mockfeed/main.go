// Command mockfeed serves deterministic stand-ins for the three upstream
// systems the sensor service polls: the latest sensor reading, the
// validation ledger and the shipment lifecycle list.
//
// Readings rotate through the timestamp encodings seen in production (space
// separated, "T" separated with "Z", Buddhist calendar year) and the ledger
// is stamped in UTC while readings use the feed zone's wall clock.
//
// Usage:
//
//	go run ./cmd/mockfeed -addr :9000 -zone Asia/Bangkok -unit 1m
//	go run ./cmd/mockfeed -dump data/mock
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	addr := flag.String("addr", ":9000", "listen address")
	zone := flag.String("zone", "Asia/Bangkok", "time zone of the sensor's wall-clock timestamps")
	unit := flag.Duration("unit", time.Minute, "scenario time unit; shipments ship and deliver at multiples of it")
	dump := flag.String("dump", "", "write one snapshot of every feed into this directory and exit")
	flag.Parse()

	loc, err := time.LoadLocation(*zone)
	if err != nil {
		return fmt.Errorf("load zone: %w", err)
	}
	if *unit <= 0 {
		return errors.New("-unit must be positive")
	}

	if *dump != "" {
		// Snapshot the scenario ten units in, with every shipment state
		// represented. A fixed clock keeps the fixture reproducible.
		clock := clockwork.NewFakeClockAt(time.Date(2024, time.January, 15, 1, 0, 0, 0, time.UTC))
		f := newFeeds(clock, loc, *unit)
		clock.Advance(10 * *unit)
		return dumpFixtures(*dump, f)
	}

	f := newFeeds(clockwork.NewRealClock(), loc, *unit)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           f.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("mockfeed listening on %s (zone %s, unit %s)", *addr, loc, *unit)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func dumpFixtures(dir string, f *feeds) error {
	fixtures := map[string]any{
		"sensor_latest.json": f.latest(),
		"ledger.json":        f.ledger(),
		"shipments.json":     f.shipments(),
	}
	for name, v := range fixtures {
		path := filepath.Join(dir, name)
		if err := writeJSON(path, v); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		log.Printf("wrote %s", path)
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
