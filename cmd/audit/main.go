// Command audit checks the durable store of the sensor service for
// violations of its data invariants: persisted sensor logs stay inside their
// transit window, are ordered and free of duplicates; histories respect the
// retention bound; cached validation results are well formed.
//
// Usage:
//
//	go run ./cmd/audit -db data/sensor.db -retention 1000
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/parcel-sensor-service/internal/db"
	sqlitestore "github.com/couchcryptid/parcel-sensor-service/internal/store/sqlite"
)

func main() {
	dbPath := flag.String("db", sharedcfg.EnvOrDefault("DB_PATH", "./data/sensor.db"), "path to the service database")
	retention := flag.Int("retention", 1000, "maximum samples per tracking code")
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: database: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(*dbPath, *retention))
}

func run(dbPath string, retention int) int {
	ctx := context.Background()

	fmt.Println("=== Sensor Store Integrity Audit ===")
	fmt.Println()

	conn, err := db.Open(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open database: %v\n", err)
		return 1
	}
	defer conn.Close()
	writer := db.NewWorker(conn)
	defer writer.Close()

	a := &auditor{
		artifacts: sqlitestore.NewArtifactStore(conn, writer),
		histories: sqlitestore.NewHistoryStore(conn, writer),
		retention: retention,
	}

	phases, stats, err := a.audit(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d sensor logs, %d validation results, %d histories (%d samples, %d unparseable)\n",
		stats.sensorLogs, stats.validations, stats.histories, stats.samples, stats.unparseable)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll checks passed.")
		return 0
	}
	fmt.Println("\nAudit FAILED.")
	return 1
}
