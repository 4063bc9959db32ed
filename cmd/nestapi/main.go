package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/matheus3301/nestsync/internal/devserver"
	"github.com/matheus3301/nestsync/internal/logging"
	"github.com/matheus3301/nestsync/internal/store"
	"go.uber.org/zap"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8085", "listen address")
	dbPath := flag.String("db", "nestapi.db", "SQLite database path, or :memory:")
	logPath := flag.String("log", "nestapi.log", "log file path")
	logLevel := flag.String("log-level", "info", "log level")
	origins := flag.String("cors-origins", "http://localhost:3000", "comma-separated allowed browser origins")
	seed := flag.Bool("seed", true, "load demo users and properties")
	flag.Parse()

	if err := run(*addr, *dbPath, *logPath, *logLevel, *origins, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, dbPath, logPath, logLevel, origins string, seed bool) error {
	logger, err := logging.New(logPath, "nestapi", logging.ParseLevel(logLevel))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	result, err := db.Migrate()
	if err != nil {
		return err
	}
	logger.Info("store initialized",
		zap.String("path", db.Path()),
		zap.Uint("from", result.From),
		zap.Uint("version", result.Version),
		zap.Bool("migrated", result.Changed))

	if seed {
		if err := devserver.Seed(db); err != nil {
			return err
		}
		logger.Info("demo data loaded",
			zap.Int("users", len(devserver.DemoUsers)),
			zap.Int("properties", len(devserver.DemoProperties)))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           devserver.New(db, logger, devserver.WithCORSOrigins(strings.Split(origins, ",")...)).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("marketplace API listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
