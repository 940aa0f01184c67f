package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner for one of the
// pipeline's three entrypoint binaries (dispatcher, queuer, transform).
func PrintBanner(serviceName string, config *Config, logger arbor.ILogger) {
	version := GetVersion()

	serviceURL := fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("QUAERO PIPELINE")
	b.PrintCenteredText(serviceName)
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 15)
	b.PrintKeyValue("Environment", config.Environment, 15)
	b.PrintKeyValue("Service URL", serviceURL, 15)
	b.PrintKeyValue("Max Workers", fmt.Sprintf("%d", config.Workers.MaxWorkers), 15)
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("service", serviceName).
		Str("version", version).
		Str("environment", config.Environment).
		Str("service_url", serviceURL).
		Int("max_workers", config.Workers.MaxWorkers).
		Str("storage_gateway", config.Storage.GatewayBaseURL).
		Msg("Service started")
}

// PrintShutdownBanner displays the shutdown banner.
func PrintShutdownBanner(serviceName string, logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText(serviceName)
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Str("service", serviceName).Msg("Service shutting down")
}
