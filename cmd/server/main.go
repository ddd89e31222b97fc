// Command server runs the unified token engine: the scheduled mint loop,
// the claim API, and the operational HTTP endpoints in one process.
//
// Usage:
//
//	server --ledger-rpc http://localhost:8899 --ledger-ws ws://localhost:8900 \
//	       --postgres-dsn postgres://... --clickhouse-dsn clickhouse://...
//
// With --use-memory the server runs fully self-contained: in-memory stores,
// a stub ledger pre-funded for the mint authority, and generated signing
// keys. That mode is for local development only.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"game-token-engine/internal/activity"
	"game-token-engine/internal/authority"
	"game-token-engine/internal/claims"
	"game-token-engine/internal/distribution"
	"game-token-engine/internal/domain"
	"game-token-engine/internal/ledger"
	"game-token-engine/internal/ledger/stub"
	"game-token-engine/internal/pool"
	"game-token-engine/internal/ratelimit"
	"game-token-engine/internal/scheduler"
	"game-token-engine/internal/server"
	"game-token-engine/internal/storage"
	chstore "game-token-engine/internal/storage/clickhouse"
	"game-token-engine/internal/storage/memory"
	"game-token-engine/internal/storage/migrations"
	pgstore "game-token-engine/internal/storage/postgres"
)

// allStores holds all storage implementations.
type allStores struct {
	mintEventStore    storage.MintEventStore
	claimRequestStore storage.ClaimRequestStore
	activityStore     storage.ActivityStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	ledgerRPC := flag.String("ledger-rpc", os.Getenv("LEDGER_RPC_ENDPOINT"), "Ledger RPC HTTP endpoint")
	ledgerWS := flag.String("ledger-ws", os.Getenv("LEDGER_WS_ENDPOINT"), "Ledger WebSocket endpoint (optional)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage and a stub ledger")
	listenAddr := flag.String("listen", ":8080", "HTTP listen address for claims, health, status and metrics")

	mintAmount := flag.Int64("mint-amount", 1000, "Tokens minted per cycle, in smallest units")
	mintInterval := flag.Duration("mint-interval", 1*time.Hour, "Mint cycle interval")
	splitRatio := flag.Float64("split-ratio", 0.8, "Reward pool share of each mint (0..1)")
	maxSupply := flag.Int64("max-supply", 0, "Lifetime emission cap in smallest units (0 = unlimited)")
	legRetries := flag.Int("leg-retries", 3, "Transfer attempts per mint leg")
	legRetryDelay := flag.Duration("leg-retry-delay", 2*time.Second, "Delay between mint leg retries")

	mintAuthority := flag.String("mint-authority-account", os.Getenv("MINT_AUTHORITY_ACCOUNT"), "Mint authority account address")
	poolAccount := flag.String("pool-account", os.Getenv("POOL_ACCOUNT"), "Reward pool account address")
	stakeholderAccount := flag.String("stakeholder-account", os.Getenv("STAKEHOLDER_ACCOUNT"), "Stakeholder account address")
	keyDir := flag.String("key-dir", os.Getenv("AUTHORITY_KEY_DIR"), "Directory with <role>.key signing key files (default: env vars)")

	ledgerTimeout := flag.Duration("ledger-timeout", 15*time.Second, "Per-call timeout for ledger RPC requests")
	ledgerMaxRetries := flag.Int("ledger-max-retries", 3, "Retry attempts per ledger RPC call")
	maxClaimAmount := flag.Int64("max-claim-amount", 10000, "Maximum tokens per claim (0 = unlimited)")
	claimRateLimit := flag.Int("claim-rate-limit", 5, "Claims allowed per player per window")
	claimRateWindow := flag.Duration("claim-rate-window", 1*time.Minute, "Rate limit window")

	activityBucket := flag.Duration("activity-bucket", 1*time.Minute, "Activity timeseries bucket size")
	memoryFunding := flag.Int64("memory-funding", 1_000_000_000, "Stub ledger balance for the mint authority in --use-memory mode")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if !*useMemory {
		if *ledgerRPC == "" {
			logger.Fatal("--ledger-rpc is required (use --use-memory for a stub ledger)")
		}
		if *postgresDSN == "" || *clickhouseDSN == "" {
			logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
		}
	}
	// Ratio is applied as integer basis points; the stakeholder leg absorbs
	// any remainder of the split.
	poolRatioBps, err := domain.RatioToBps(*splitRatio)
	if err != nil {
		logger.Fatal("--split-ratio must be between 0 and 1")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Signing keys
	keys, accounts, err := createKeyStore(*keyDir, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to load signing keys: %v", err)
	}
	if *useMemory {
		// Memory mode names accounts after the generated keys.
		if *mintAuthority == "" {
			*mintAuthority = accounts[authority.RoleMint]
		}
		if *poolAccount == "" {
			*poolAccount = accounts[authority.RolePoolTransfer]
		}
		if *stakeholderAccount == "" {
			*stakeholderAccount = "stakeholder"
		}
	}
	if *mintAuthority == "" || *poolAccount == "" || *stakeholderAccount == "" {
		logger.Fatal("--mint-authority-account, --pool-account and --stakeholder-account are required")
	}

	// Ledger client
	var client ledger.Client
	var confirmations <-chan ledger.Confirmation
	var wsClient *ledger.WSClientImpl
	if *useMemory {
		stubLedger := stub.New()
		stubLedger.Fund(*mintAuthority, *memoryFunding)
		client = stubLedger
		confirmations = stubLedger.Confirmations()
		logger.Printf("Using stub ledger, mint authority funded with %d units", *memoryFunding)
	} else {
		client = ledger.NewHTTPClient(*ledgerRPC,
			ledger.WithTimeout(*ledgerTimeout),
			ledger.WithMaxRetries(*ledgerMaxRetries))
		if *ledgerWS != "" {
			wsClient, err = ledger.NewWSClient(ctx, *ledgerWS, nil)
			if err != nil {
				logger.Fatalf("Failed to connect confirmation stream: %v", err)
			}
			confirmations, err = wsClient.SubscribeConfirmations(ctx, ledger.ConfirmationFilter{
				Accounts: []string{*mintAuthority, *poolAccount, *stakeholderAccount},
			})
			if err != nil {
				logger.Fatalf("Failed to subscribe to confirmations: %v", err)
			}
		} else {
			logger.Println("No --ledger-ws endpoint, running without confirmation stream")
		}
	}

	tracker := ledger.NewTracker(4096)
	if confirmations != nil {
		go tracker.Run(ctx, confirmations)
	}

	// Rebuild the pool ledger from the audit log
	poolLedger, err := pool.Rebuild(ctx, stores.mintEventStore, stores.claimRequestStore, logger)
	if err != nil {
		logger.Fatalf("Failed to rebuild pool ledger: %v", err)
	}

	// Distribution engine
	engine, err := distribution.New(distribution.Config{
		MintAmount:           *mintAmount,
		PoolRatioBps:         poolRatioBps,
		MintAuthorityAccount: *mintAuthority,
		PoolAccount:          *poolAccount,
		StakeholderAccount:   *stakeholderAccount,
		MaxSupply:            *maxSupply,
		LegRetries:           *legRetries,
		LegRetryDelay:        *legRetryDelay,
	}, stores.mintEventStore, client, keys, poolLedger, tracker, logger)
	if err != nil {
		logger.Fatalf("Failed to create distribution engine: %v", err)
	}

	// Activity timeseries: resolved mints and claims aggregate into buckets
	// and flush to the analytics store in the background.
	collector := activity.New(stores.activityStore, *activityBucket, logger)
	activityDone := make(chan struct{})
	go func() {
		defer close(activityDone)
		collector.Run(ctx, *activityBucket)
	}()
	engine.WithActivity(collector)

	// Resume interrupted cycles before the scheduler starts new ones
	if err := engine.RecoverPending(ctx); err != nil {
		logger.Fatalf("Failed to recover pending mint events: %v", err)
	}

	// Claim gateway
	limiter := ratelimit.New(*claimRateLimit, *claimRateWindow)
	gateway, err := claims.New(claims.Config{
		PoolAccount:       *poolAccount,
		MaxClaimAmount:    *maxClaimAmount,
		ValidateAddresses: !*useMemory,
	}, stores.claimRequestStore, client, keys, poolLedger, limiter, tracker, logger)
	if err != nil {
		logger.Fatalf("Failed to create claim gateway: %v", err)
	}
	gateway.WithActivity(collector)

	// Evict idle rate limiter entries periodically
	go func() {
		ticker := time.NewTicker(*claimRateWindow)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Purge()
			}
		}
	}()

	// Mint scheduler
	sched := scheduler.New(*mintInterval, engine.ExecuteMint, nil, logger)

	// HTTP server
	api := server.New(gateway, poolLedger, logger).WithSchedulerStats(sched.Stats)
	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: api.Handler(),
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	httpErr := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server listening on %s", *listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErr <- err
		}
	}()

	sched.Start(ctx)
	logger.Printf("Mint scheduler started: %d units every %s (pool share %d bps)",
		*mintAmount, *mintInterval, poolRatioBps)

	// Wait for shutdown or HTTP failure
	select {
	case <-ctx.Done():
	case err = <-httpErr:
		logger.Printf("HTTP server error: %v", err)
		cancel()
	}

	// Drain in-flight work before reporting completion
	sched.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	httpServer.Shutdown(shutdownCtx)
	shutdownCancel()
	if wsClient != nil {
		wsClient.Close()
	}
	<-activityDone
	done <- err

	logger.Println("Shutdown complete")
}

// createStores creates all required stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			mintEventStore:    memory.NewMintEventStore(),
			claimRequestStore: memory.NewClaimRequestStore(),
			activityStore:     memory.NewActivityStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pgPool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pgPool); err != nil {
		pgPool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pgPool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &allStores{
		// PostgreSQL stores (audit log)
		mintEventStore:    pgstore.NewMintEventStore(pgPool),
		claimRequestStore: pgstore.NewClaimRequestStore(pgPool),

		// ClickHouse stores (analytics)
		activityStore: chstore.NewActivityStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pgPool.Close()
	}

	return stores, cleanup, nil
}

// createKeyStore builds the authority key store. In memory mode it generates
// ephemeral keys and returns the derived account addresses keyed by role.
func createKeyStore(keyDir string, useMemory bool, logger *log.Logger) (*authority.KeyStore, map[authority.Role]string, error) {
	roles := []authority.Role{authority.RoleMint, authority.RolePoolTransfer}
	accounts := make(map[authority.Role]string)

	if useMemory {
		static := map[authority.Role]string{}
		for _, role := range roles {
			priv, pub, err := authority.GenerateKey()
			if err != nil {
				return nil, nil, fmt.Errorf("generate %s key: %w", role, err)
			}
			static[role] = priv
			accounts[role] = pub
		}
		keys, err := authority.NewKeyStore(authority.NewStaticBackend(static), roles, logger)
		if err != nil {
			return nil, nil, err
		}
		return keys, accounts, nil
	}

	var backend authority.SecretBackend = authority.EnvBackend{}
	if keyDir != "" {
		backend = authority.NewFileBackend(keyDir)
	}
	keys, err := authority.NewKeyStore(backend, roles, logger)
	if err != nil {
		return nil, nil, err
	}
	return keys, accounts, nil
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
