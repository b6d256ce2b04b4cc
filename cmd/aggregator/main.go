// Command aggregator runs the aggregation service (spec section 4.3).
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

	svc := service.NewAggregator(cfg)
	if err := svc.Start(context.Background()); err != nil {
		log.Fatalf("start aggregator service: %v", err)
	}

	waitForShutdown()
	log.Infow("aggregator shutting down, flushing buffer")
	svc.Stop()
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
