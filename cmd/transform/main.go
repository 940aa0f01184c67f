// Command transform serves the Transform Stage (§4.6): an HTTP push-trigger
// endpoint that, on each invocation, drains the staged-projects and
// staged-investments tables to their canonical, enriched form. Startup
// sequence follows the teacher's cmd/quaero/main.go; routing follows the
// teacher's own plain http.ServeMux style, same as cmd/queuer.
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
	"github.com/ternarybob/quaero-pipeline/internal/currency"
	"github.com/ternarybob/quaero-pipeline/internal/standardize"
	"github.com/ternarybob/quaero-pipeline/internal/stocks"
	"github.com/ternarybob/quaero-pipeline/internal/storagegateway"
	"github.com/ternarybob/quaero-pipeline/internal/transform"
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
	common.PrintBanner("transform", config, logger)

	store, err := bus.OpenStore(config.Storage.BadgerPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open bus store")
	}
	defer store.Close()

	messageBus := bus.New(store, config.Bus.VisibilityTimeout, config.Bus.MaxReceive, logger)
	defer messageBus.Close()

	storageClient := storagegateway.New(config.Storage.GatewayBaseURL, config.Storage.RequestTimeout, logger)

	standardizer, err := standardize.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load name-standardization config")
	}

	currencyClient := currency.New(config.Storage.RequestTimeout)
	if config.Currency.ExchangeRateSourceURL != "" && config.Currency.DeflatorSourceURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		if err := currencyClient.Load(ctx, config.Currency.ExchangeRateSourceURL, config.Currency.DeflatorSourceURL); err != nil {
			logger.Error().Err(err).Msg("Failed to load currency reference series; normalization will fail closed")
		}
		cancel()
	}

	stocksClient := stocks.New(
		config.Stocks.BaseURL, config.Stocks.APIKey,
		0, config.Stocks.MaxRequestsPerWin, config.Stocks.RateWindow,
		logger,
	)

	service := &transform.Service{
		Storage:      storageClient,
		Standardizer: standardizer,
		Currency:     currencyClient,
		Stocks:       stocksClient,
		Logger:       logger,
	}
	handler := &transform.Handler{Service: service}

	stopPoller := runCleaningQueuePoller(messageBus, service, config.Bus.PollInterval, logger)
	defer stopPoller()

	mux := http.NewServeMux()
	mux.HandleFunc("/", handler.ServeHTTP)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		logger.Info().Str("address", addr).Msg("Transform HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Transform server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down transform")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Transform shutdown failed")
	}

	common.Stop()
}

// runCleaningQueuePoller drives transform.Service.HandleJob directly from
// the local bus's cleaning queue, standing in for the real push
// subscription the HTTP handler above serves: a process-local broker has
// nothing on the other end to issue that push, so this process pulls its
// own audit messages the same way cmd/dispatcher pulls its own task
// messages.
func runCleaningQueuePoller(messageBus *bus.Bus, service *transform.Service, interval time.Duration, logger arbor.ILogger) func() {
	if interval <= 0 {
		interval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	// SafeGo, not SafeGoWithContext: the loop below already checks ctx.Done()
	// itself on every tick, and SafeGoWithContext's own pre-run context check
	// would skip fn (and the deferred close(done) inside it) entirely if ctx
	// happened to already be canceled by the time the goroutine is scheduled.
	common.SafeGo(logger, "transform.cleaningQueuePoller", func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			messages, ack, err := messageBus.PullCleaning(ctx, 10)
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to pull cleaning queue")
				continue
			}
			for i, msg := range messages {
				if err := service.HandleJob(ctx, msg.JobID); err != nil {
					logger.Error().Err(err).Str("job_id", msg.JobID).Msg("Transform run failed")
					continue
				}
				if err := ack(i); err != nil {
					logger.Warn().Err(err).Str("job_id", msg.JobID).Msg("Failed to ack cleaning message")
				}
			}
		}
	})

	return func() {
		cancel()
		<-done
	}
}
