package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Annany2002/sqlitecult/api"
	"github.com/Annany2002/sqlitecult/config"
	"github.com/Annany2002/sqlitecult/internal/storage"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

// listenAddr accepts both "8080" and ":8080".
func listenAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func serve(cfg *config.Config) error {
	customLog.Println("Starting sqlitecult server...")

	metaDB, err := storage.ConnectMetadataDB(cfg)
	if err != nil {
		return err
	}
	defer func() {
		customLog.Println("Closing metadata database connection...")
		if err := metaDB.Close(); err != nil {
			customLog.Printf("Error closing metadata database: %v", err)
		}
	}()

	router, err := api.SetupRouter(metaDB, cfg)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: listenAddr(cfg.ServerPort), Handler: router}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		customLog.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	select {
	case <-interrupt:
	case <-ctx.Done():
	}

	customLog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		customLog.Warnf("Graceful shutdown failed: %v", err)
	}
	return g.Wait()
}
