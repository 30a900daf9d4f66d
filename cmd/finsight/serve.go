package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/finsight-dev/finsight"
	"github.com/finsight-dev/finsight/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine as a long-lived service",
	Long: `serve starts the engine and keeps it running: agents stay
initialized, the health sweep runs on its interval, and /metrics plus the
health probes are served on the configured metrics address.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Printf("Starting finsight engine v%s", Version)

	eng, err := finsight.New(cfg)
	if err != nil {
		return err
	}
	if err := eng.Start(cmd.Context()); err != nil {
		return err
	}

	obsServer := observability.NewServer(cfg.Observability.MetricsAddr)
	errChan := make(chan error, 1)
	go func() {
		log.Printf("Metrics and health endpoints on %s", cfg.Observability.MetricsAddr)
		if err := obsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("observability server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-errChan:
		log.Printf("Error: %v", err)
	case sig := <-quit:
		log.Printf("Received %s, shutting down", sig)
		err = nil
	case <-cmd.Context().Done():
		err = cmd.Context().Err()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if shutdownErr := obsServer.Shutdown(ctx); shutdownErr != nil {
		log.Printf("Observability server shutdown error: %v", shutdownErr)
	}
	if closeErr := eng.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	log.Println("Engine stopped")
	return err
}
