// Command queuer serves the Job Queueing Entrypoint (§4.4): an HTTP
// trigger endpoint that turns a {sources: [...]} request into a new or
// reused job and its starter tasks. Startup sequence follows the teacher's
// cmd/quaero/main.go; routing follows the teacher's own plain
// http.ServeMux style (internal/server/routes.go) rather than introducing
// a router dependency for a single route.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero-pipeline/internal/bus"
	"github.com/ternarybob/quaero-pipeline/internal/common"
	"github.com/ternarybob/quaero-pipeline/internal/queuer"
	"github.com/ternarybob/quaero-pipeline/internal/storagegateway"
)

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	config, err := common.LoadConfig()
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.LoadVersionFromFile()
	logger := common.SetupLogger(config)
	common.PrintBanner("queuer", config, logger)

	store, err := bus.OpenStore(config.Storage.BadgerPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open bus store")
	}
	defer store.Close()

	messageBus := bus.New(store, config.Bus.VisibilityTimeout, config.Bus.MaxReceive, logger)
	defer messageBus.Close()

	storageClient := storagegateway.New(config.Storage.GatewayBaseURL, config.Storage.RequestTimeout, logger)

	q := &queuer.Queuer{Storage: storageClient, Bus: messageBus, Logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/", q.ServeHTTP)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info().Str("address", addr).Msg("Queuer HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Queuer server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down queuer")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Queuer shutdown failed")
	}

	common.Stop()
}
