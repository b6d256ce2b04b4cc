package service

import (
	"context"
	"os"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/voteflow/ballotpipe/config"
	"github.com/voteflow/ballotpipe/internal/testsupport"
)

// newTestConfig wires a Config at real network addresses backed by an
// in-process NATS server and an in-process miniredis instance, plus a
// real Postgres database named by BALLOTPIPE_TEST_POSTGRES_DSN (skipped
// otherwise, matching auditstore's own integration-test posture): the
// service layer dials its dependencies directly from Config fields, so
// unlike the package-level tests there is no FromConn/FromClient seam to
// substitute here.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dsn := os.Getenv("BALLOTPIPE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BALLOTPIPE_TEST_POSTGRES_DSN not set, skipping service integration test")
	}

	nc := testsupport.StartNATS(t)
	natsURL := nc.ConnectedUrl()
	nc.Close()

	rdb := testsupport.StartRedis(t)
	redisAddr := rdb.Options().Addr
	_ = rdb.Close()

	return &config.Config{
		HTTPHost:              "127.0.0.1",
		HTTPPort:              0,
		RedisAddr:             redisAddr,
		PostgresDSN:           dsn,
		NATSURL:               natsURL,
		BatchSize:             100,
		BatchInterval:         time.Second,
		WorkerPrefetch:        10,
		PublishConfirmTimeout: time.Second,
		MaxRetry:              3,
		RetryBaseDelay:        time.Second,
		QueueMaxLength:        10_000,
		RequestDeadline:       5 * time.Second,
		WorkerMessageDeadline: 5 * time.Second,
	}
}

func TestIngestionServiceStartStopRestart(t *testing.T) {
	c := qt.New(t)
	cfg := newTestConfig(t)
	ctx := context.Background()

	svc := NewIngestion(cfg)
	c.Assert(svc.Start(ctx), qt.IsNil)

	c.Assert(svc.Start(ctx), qt.ErrorMatches, "ingestion service already running")

	svc.Stop()

	c.Assert(svc.Start(ctx), qt.IsNil)
	svc.Stop()
}
