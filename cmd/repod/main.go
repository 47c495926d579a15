package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/packhost/repod/internal/api"
	"github.com/packhost/repod/internal/catalog"
	"github.com/packhost/repod/internal/config"
	"github.com/packhost/repod/internal/consistency"
	"github.com/packhost/repod/internal/content"
	"github.com/packhost/repod/internal/index"
	"github.com/packhost/repod/internal/signcommit"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "repod",
	Short: "repod is the control-plane server for a hosted APT package repository",
}

func init() {
	rootCmd.PersistentFlags().Bool("log-json", true, "emit structured JSON logs instead of console-formatted ones")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func newLogger(cmd *cobra.Command) zerolog.Logger {
	jsonOut, _ := cmd.Flags().GetBool("log-json")
	if jsonOut {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(cmd)
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		store, err := catalog.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer store.Close()

		if err := store.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
		log.Info().Msg("migrations applied")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the repod HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(cmd)
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		ctx := cmd.Context()

		store, err := catalog.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}

		tenant, err := store.EnsureBootstrapTenant(ctx, cfg.TokenSecret, cfg.BootstrapToken)
		if err != nil {
			return fmt.Errorf("bootstrapping default tenant: %w", err)
		}
		log.Info().Str("tenant_id", tenant.ID).Msg("bootstrap tenant ready")

		bucket, err := blob.OpenBucket(ctx, cfg.BucketURL)
		if err != nil {
			return fmt.Errorf("opening content bucket %q: %w", cfg.BucketURL, err)
		}
		defer bucket.Close()

		cs := content.New(bucket)
		engine := index.New(store)
		committer := signcommit.New(store, cs, engine)
		checker := consistency.New(store, cs)

		srv := &api.Server{
			Catalog:         store,
			Content:         cs,
			Engine:          engine,
			Committer:       committer,
			Checker:         checker,
			Log:             log,
			TokenSecret:     cfg.TokenSecret,
			BucketName:      cfg.BucketName,
			ByHashRetention: cfg.ByHashRetention,
		}

		httpServer := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           srv.NewRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info().Msg("shutting down")
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}
