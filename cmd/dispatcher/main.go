// Command dispatcher runs the Task Dispatcher (§4.3): a long-running
// pull-dispatch-ack loop over the Message Bus Client's retrieval queue.
// Startup sequence follows the teacher's cmd/quaero/main.go (load config,
// init logger, print banner, run until signaled).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero-pipeline/internal/bus"
	"github.com/ternarybob/quaero-pipeline/internal/common"
	"github.com/ternarybob/quaero-pipeline/internal/dispatcher"
	"github.com/ternarybob/quaero-pipeline/internal/storagegateway"

	// Blank-imported for their init() side effect: each registers its
	// source's workflows with internal/registry (§4.2).
	_ "github.com/ternarybob/quaero-pipeline/internal/workflows/banks"
	_ "github.com/ternarybob/quaero-pipeline/internal/workflows/forms"
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
	common.PrintBanner("dispatcher", config, logger)

	store, err := bus.OpenStore(config.Storage.BadgerPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open bus store")
	}
	defer store.Close()

	messageBus := bus.New(store, config.Bus.VisibilityTimeout, config.Bus.MaxReceive, logger)
	defer messageBus.Close()

	storageClient := storagegateway.New(config.Storage.GatewayBaseURL, config.Storage.RequestTimeout, logger)

	d := dispatcher.New(messageBus, storageClient, dispatcher.PackageRegistry{}, logger, dispatcher.Config{
		MaxWorkers:   config.Workers.MaxWorkers,
		MaxBatchSize: config.Bus.MaxBatchSize,
		PollInterval: config.Bus.PollInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	common.SafeGoWithContext(ctx, logger, "dispatcher.Run", func() {
		done <- d.Run(ctx)
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received, stopping dispatcher")
		cancel()
		d.Stop()
		<-done
	case err := <-done:
		if err != nil {
			logger.Error().Err(err).Msg("Dispatcher stopped with an error")
		}
	}

	common.Stop()
}
