// Command worker runs one validation worker pool process (spec section
// 4.2). Operators scale throughput by running more of these.
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

	svc := service.NewValidation(cfg)
	if err := svc.Start(context.Background()); err != nil {
		log.Fatalf("start validation service: %v", err)
	}

	waitForShutdown()
	log.Infow("validation worker shutting down")
	svc.Stop()
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
