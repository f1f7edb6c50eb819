package main

import (
	"log"
	"os"

	"marketpipe/app"
	"marketpipe/config"
)

func main() {
	// Load config from .env file
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Optional service selector: run one daemon, or the whole pipeline
	service := app.RunAll
	if len(os.Args) > 1 {
		service = os.Args[1]
	}
	if !app.KnownService(service) {
		log.Fatalf("unknown service %q (want all, aggregator, strategy_runner, execution_engine, fake_broker or health_monitor)", service)
	}

	application := app.New(cfg, service)
	if err := application.Start(); err != nil {
		log.Fatal(err)
	}
}
