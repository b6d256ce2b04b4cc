// Command ingest runs the stateless ingestion front-end (spec section 4.1).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/voteflow/ballotpipe/config"
	"github.com/voteflow/ballotpipe/log"
	"github.com/voteflow/ballotpipe/service"
)

func main() {
	cfg := config.FromEnv()
	if err := log.Init(cfg.LogLevel, cfg.LogOutput, nil); err != nil {
		panic(err)
	}

	svc := service.NewIngestion(cfg)
	if err := svc.Start(context.Background()); err != nil {
		log.Fatalf("start ingestion service: %v", err)
	}

	waitForShutdown()
	log.Infow("ingestion service shutting down")
	svc.Stop()
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
