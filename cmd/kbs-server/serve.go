// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sage-x-project/kbs/attest/certchain"
	"github.com/sage-x-project/kbs/config"
	"github.com/sage-x-project/kbs/health"
	"github.com/sage-x-project/kbs/internal/logger"
	"github.com/sage-x-project/kbs/internal/metrics"
	"github.com/sage-x-project/kbs/kbsserver"
	"github.com/sage-x-project/kbs/store"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir, Environment: environment})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.Logging)
	log.Info("starting kbs-server",
		logger.String("environment", cfg.Environment),
		logger.String("db_type", cfg.DB.Type),
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DB.ConnTimeout)
	defer cancel()

	st, err := store.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	srv := kbsserver.NewServer(st, log)
	checker := newHealthChecker(log, st)

	mux := http.NewServeMux()
	mux.Handle("/v1/bundle", bundleHandler(srv))
	mux.Handle("/v1/secret", secretHandler(srv))
	mux.Handle("/healthz", healthzHandler(checker))
	if cfg.Metrics == nil || cfg.Metrics.Enabled {
		mux.Handle("/metrics", metrics.Handler())
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErrs := make(chan error, 1)
	go func() {
		log.Info("listening", logger.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrs <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErrs:
		return fmt.Errorf("listen: %w", err)
	case <-sigCh:
		log.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.LoggingConfig) logger.Logger {
	level := logger.InfoLevel
	switch cfg.Level {
	case "debug":
		level = logger.DebugLevel
	case "warn":
		level = logger.WarnLevel
	case "error":
		level = logger.ErrorLevel
	}
	return logger.NewLogger(os.Stdout, level)
}

// newHealthChecker wires the root-key presence check (no external
// dependency — the ARK is embedded at build time) and a database
// connectivity check against the resolved store backend.
func newHealthChecker(log logger.Logger, st store.Store) *health.HealthChecker {
	checker := health.NewHealthChecker(5 * time.Second)
	checker.SetLogger(log)

	checker.RegisterCheck("root_keys", health.RootKeysHealthCheck(func() error {
		if len(certchain.EmbeddedARK()) == 0 {
			return fmt.Errorf("embedded ARK public key is empty")
		}
		return nil
	}))
	checker.RegisterCheck("database", health.DatabaseHealthCheck(st.Ping))

	return checker
}
