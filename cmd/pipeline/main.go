package main

import (
	"context"
	"net/http"
	"os"

	"papertrade/internal/logger"
	"papertrade/internal/pipeline"
	"papertrade/internal/quote"
)

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()
	log := logger.Get()

	cfg, err := pipeline.LoadConfig()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	api := pipeline.NewAPIClient(cfg.APIURL, cfg.PipelineAPIKey, httpClient)
	source := quote.NewYahooSource(httpClient, cfg.Exchange)

	log = log.With("run_id", api.RunID())
	runner := pipeline.NewRunner(api, source, cfg, log)
	result, err := runner.Run(context.Background())
	if err != nil {
		log.Fatalw("pipeline run failed", "error", err)
	}

	log.Infow("pipeline run completed",
		"symbols_tracked", result.SymbolsTracked,
		"prices_recorded", result.PricesRecorded,
		"orders_executed", result.OrdersExecuted,
		"snapshots_recorded", result.SnapshotsRecorded,
		"errors", len(result.Errors),
		"duration", result.Duration.String(),
	)

	for _, fetchErr := range result.Errors {
		log.Warnw("price fetch failed",
			"symbol", fetchErr.Symbol,
			"error", fetchErr.Err.Error(),
		)
	}

	if len(result.Errors) > 0 {
		logger.Sync()
		os.Exit(2)
	}
}
