package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"incidentscope/api"
	"incidentscope/config"
	"incidentscope/core/locker"
	"incidentscope/core/store"
	"incidentscope/core/utils"
)

func main() {
	logger := utils.NewLogger()

	cfg, err := config.Load(config.ConfigPathFromEnv())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := migrateWithLock(cfg, db, logger); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	server := api.NewServer(cfg, db, logger)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// migrateWithLock serializes schema migrations across replicas through
// Redis when it is configured. Single-node deployments skip the lock.
func migrateWithLock(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if cfg.Redis.Addr == "" {
		return store.ApplyMigrations(ctx, db, logger)
	}

	l := locker.New(cfg)
	defer l.Close()

	lock, err := l.AcquireWithRetry(ctx, store.MigrationLockKey(cfg.DBURL), 2*time.Second)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()
		if err := l.Release(releaseCtx, lock); err != nil {
			logger.Errorf("release migration lock: %v", err)
		}
	}()

	return store.ApplyMigrations(ctx, db, logger)
}
