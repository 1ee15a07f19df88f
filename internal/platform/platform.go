// Package platform opens the external dependencies shared by the binaries.
package platform

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"presence/internal/config"
	"presence/internal/ledger"
	"presence/internal/queue"
	"presence/internal/store"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) bool

// NeedsFirebase reports whether cfg uses any Firebase service.
func NeedsFirebase(cfg config.App) bool {
	return cfg.StoreBackend == config.StoreFirestore || cfg.FirebaseAuth
}

// OpenFirebase initializes the Firebase app from a service account file,
// or from application default credentials when none is configured.
func OpenFirebase(ctx context.Context, cfg config.App) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.FirebaseCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentials))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init: %w", err)
	}
	return app, nil
}

// OpenStore opens the configured document backend. fb is required for the
// firestore backend.
func OpenStore(ctx context.Context, cfg config.App, fb *firebase.App, logger *zap.Logger) (store.Backend, Check, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("store ready", zap.String("backend", "postgres"))
		return db, func(ctx context.Context) bool { return db.Client.PingContext(ctx) == nil }, nil

	case config.StoreSQLite:
		db, err := store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("store ready", zap.String("backend", "sqlite"), zap.String("path", cfg.SQLitePath))
		return db, func(ctx context.Context) bool { return db.Client.PingContext(ctx) == nil }, nil

	case config.StoreFirestore:
		if fb == nil {
			return nil, nil, fmt.Errorf("firestore backend needs a firebase app")
		}
		client, err := fb.Firestore(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore: %w", err)
		}
		logger.Info("store ready", zap.String("backend", "firestore"), zap.String("project", cfg.FirebaseProjectID))
		return store.NewFirestore(client), func(context.Context) bool { return true }, nil

	default:
		logger.Warn("using in-memory store; data is lost on restart")
		return store.NewMemory(), func(context.Context) bool { return true }, nil
	}
}

// OpenQueue returns the redis queue, or an in-memory one for the memory
// backend. The in-memory queue only reaches consumers in the same process.
func OpenQueue(cfg config.App, rdb *store.Redis, logger *zap.Logger) queue.Queue {
	if cfg.QueueBackend == "redis" {
		return queue.NewRedisQueue(rdb.Client, queue.DefaultKey, logger)
	}
	return queue.NewInMemory(64)
}

// OpenLedger returns the ledger client, or nil when no bridge is
// configured.
func OpenLedger(cfg config.App, logger *zap.Logger) (*ledger.Client, error) {
	if !cfg.LedgerEnabled() {
		logger.Info("ledger not configured")
		return nil, nil
	}
	client, err := ledger.NewClient(ledger.Config{
		RPCURL:   cfg.LedgerRPCURL,
		Contract: cfg.LedgerContract,
		Wallet:   cfg.LedgerWallet,
		Timeout:  cfg.LedgerTimeout,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("ledger configured", zap.String("contract", client.Contract()))
	return client, nil
}
