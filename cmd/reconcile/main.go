// Command reconcile replays the mint and claim audit log, verifies that
// pool accounting is conserved, and writes a reconciliation report plus CSV
// exports of both logs. With --stale-after it also fails RESERVED claims
// abandoned by a crashed server. With --clickhouse-dsn the replayed history
// is bucketed into activity points and exported for analytics.
//
// Exits non-zero when the audit log is inconsistent.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"game-token-engine/internal/ledger"
	"game-token-engine/internal/reconcile"
	"game-token-engine/internal/reporting"
	chstore "game-token-engine/internal/storage/clickhouse"
	pgstore "game-token-engine/internal/storage/postgres"
)

func main() {
	// Parse flags
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for activity export (optional)")
	ledgerRPC := flag.String("ledger-rpc", os.Getenv("LEDGER_RPC_ENDPOINT"), "Ledger RPC endpoint for balance comparison (optional)")
	poolAccount := flag.String("pool-account", os.Getenv("POOL_ACCOUNT"), "Reward pool account address")
	stakeholderAccount := flag.String("stakeholder-account", os.Getenv("STAKEHOLDER_ACCOUNT"), "Stakeholder account address")
	outputDir := flag.String("output-dir", "output", "Output directory for generated files")
	staleAfter := flag.Duration("stale-after", 0, "Fail RESERVED claims older than this (0 = report only)")
	activityBucket := flag.Duration("activity-bucket", 1*time.Minute, "Bucket size for activity export")
	flag.Parse()

	ctx := context.Background()
	logger := log.New(os.Stdout, "[reconcile] ", log.LstdFlags)

	// Validate flags
	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required")
		os.Exit(1)
	}

	// Connect to PostgreSQL
	pgPool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	var client ledger.Client
	if *ledgerRPC != "" {
		client = ledger.NewHTTPClient(*ledgerRPC)
	}

	r := reconcile.New(reconcile.Options{
		MintEventStore:     pgstore.NewMintEventStore(pgPool),
		ClaimRequestStore:  pgstore.NewClaimRequestStore(pgPool),
		Client:             client,
		PoolAccount:        *poolAccount,
		StakeholderAccount: *stakeholderAccount,
		StaleAfter:         *staleAfter,
		Logger:             logger,
	})

	report, err := r.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running reconciliation: %v\n", err)
		os.Exit(1)
	}

	// Write report and CSV exports
	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}
	files := map[string]string{
		"REPORT_RECONCILE.md": reporting.RenderMarkdown(report),
		"MINT_EVENTS.csv":     reporting.RenderMintCSV(report.MintRows),
		"CLAIM_REQUESTS.csv":  reporting.RenderClaimCSV(report.ClaimRows),
	}
	for name, content := range files {
		path := filepath.Join(*outputDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	// Export bucketed activity to ClickHouse
	if *clickhouseDSN != "" {
		if err := exportActivity(ctx, *clickhouseDSN, report, activityBucket.Milliseconds()); err != nil {
			fmt.Fprintf(os.Stderr, "Error exporting activity: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("Reconciliation report generated:")
	fmt.Printf("  - %s/REPORT_RECONCILE.md\n", *outputDir)
	fmt.Printf("  - %s/MINT_EVENTS.csv\n", *outputDir)
	fmt.Printf("  - %s/CLAIM_REQUESTS.csv\n", *outputDir)

	if !report.Consistent() {
		fmt.Fprintf(os.Stderr, "Audit log is INCONSISTENT (%d discrepancies), see report\n", len(report.Discrepancies))
		os.Exit(2)
	}
	fmt.Println("Audit log is consistent.")
}

// exportActivity buckets the replayed history and writes it to ClickHouse.
func exportActivity(ctx context.Context, dsn string, report *reporting.Report, bucketMs int64) error {
	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to clickhouse: %w", err)
	}
	defer conn.Close()

	points := reconcile.BuildActivity(report, bucketMs)
	if len(points) == 0 {
		return nil
	}
	return chstore.NewActivityStore(conn).InsertBulk(ctx, points)
}
