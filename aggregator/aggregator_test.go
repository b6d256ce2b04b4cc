package aggregator

import (
	"context"
	"os"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voteflow/ballotpipe/auditstore"
	"github.com/voteflow/ballotpipe/bus"
	"github.com/voteflow/ballotpipe/config"
	"github.com/voteflow/ballotpipe/internal/testsupport"
	"github.com/voteflow/ballotpipe/types"
)

func TestGroupDeltasLawAdditive(t *testing.T) {
	c := qt.New(t)

	batch := []pending{
		{env: &types.Envelope{Kind: types.KindLaw, Law: &types.LawPayload{BallotID: "L1", Choice: types.ChoiceYes}}},
		{env: &types.Envelope{Kind: types.KindLaw, Law: &types.LawPayload{BallotID: "L1", Choice: types.ChoiceYes}}},
		{env: &types.Envelope{Kind: types.KindLaw, Law: &types.LawPayload{BallotID: "L1", Choice: types.ChoiceNo}}},
	}
	lawDeltas, electionDeltas := groupDeltas(batch)
	c.Assert(electionDeltas, qt.HasLen, 0)
	c.Assert(lawDeltas, qt.HasLen, 1)
	c.Assert(lawDeltas[0].Yes, qt.Equals, int64(2))
	c.Assert(lawDeltas[0].No, qt.Equals, int64(1))
}

func TestGroupDeltasElectionCreditsFirstPreferenceOnly(t *testing.T) {
	c := qt.New(t)

	single := int64(7)
	batch := []pending{
		{env: &types.Envelope{Kind: types.KindElection, Election: &types.ElectionPayload{ElectionID: 1, RegionID: 1, Method: types.MethodSingle, SingleChoice: &single}}},
		{env: &types.Envelope{Kind: types.KindElection, Election: &types.ElectionPayload{ElectionID: 1, RegionID: 1, Method: types.MethodRanked, RankedChoices: []int64{7, 9}}}},
		{env: &types.Envelope{Kind: types.KindElection, Election: &types.ElectionPayload{ElectionID: 1, RegionID: 1, Method: types.MethodRanked, RankedChoices: []int64{9, 7}}}},
	}
	_, electionDeltas := groupDeltas(batch)
	c.Assert(electionDeltas, qt.HasLen, 2)

	byCandidate := map[int64]int64{}
	for _, d := range electionDeltas {
		byCandidate[d.CandidateID] = d.Count
	}
	c.Assert(byCandidate[7], qt.Equals, int64(2))
	c.Assert(byCandidate[9], qt.Equals, int64(1))
}

// newTestAggregator wires an Aggregator against an in-process NATS server
// and a real Postgres audit store named by BALLOTPIPE_TEST_POSTGRES_DSN
// (skipped otherwise, matching auditstore's own integration-test posture).
func newTestAggregator(t *testing.T, cfg *config.Config) (*Aggregator, *bus.Bus, *auditstore.Store) {
	t.Helper()

	dsn := os.Getenv("BALLOTPIPE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BALLOTPIPE_TEST_POSTGRES_DSN not set, skipping aggregator integration test")
	}

	nc := testsupport.StartNATS(t)
	b, err := bus.FromConn(nc, cfg)
	qt.Assert(t, qt.IsNil(err))
	t.Cleanup(b.Close)

	pool, err := pgxpool.New(context.Background(), dsn)
	qt.Assert(t, qt.IsNil(err))
	audit := auditstore.FromPool(pool)
	qt.Assert(t, qt.IsNil(audit.InitSchema(context.Background())))
	t.Cleanup(func() {
		pool.Exec(context.Background(), "TRUNCATE vote_audit, law_tally, election_tally, elections")
		pool.Close()
	})

	agg := New(b, audit, cfg)
	qt.Assert(t, qt.IsNil(agg.Start()))
	t.Cleanup(func() { _ = agg.Stop() })

	return agg, b, audit
}

func TestAggregatorFlushesOnBatchSize(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	cfg := &config.Config{
		WorkerPrefetch:        10,
		WorkerMessageDeadline: 5 * time.Second,
		BatchSize:             3,
		BatchInterval:         time.Hour, // large enough that only size triggers the flush
		MaxRetry:              1,
		RetryBaseDelay:        10 * time.Millisecond,
		QueueMaxLength:        10_000,
	}
	_, b, audit := newTestAggregator(t, cfg)

	fp := func(n string) string { return types.ComputeFingerprint(n, "ABC123", "L2025-010") }
	for i := 0; i < 3; i++ {
		env := types.NewLawEnvelope(&types.LawBallotRequest{Nas: "100000000", Code: "ABC123", BallotID: "L2025-010", Choice: types.ChoiceYes}, fp("100000000"), time.Now().UTC())
		c.Assert(b.PublishAggregation(ctx, env), qt.IsNil)
	}

	var result *types.LawTally
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		r, err := audit.LawResult(ctx, "L2025-010")
		c.Assert(err, qt.IsNil)
		if r != nil {
			result = r
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	c.Assert(result, qt.Not(qt.IsNil))
	c.Assert(result.YesCount, qt.Equals, int64(3))
}

func TestAggregatorFlushesOnBatchInterval(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	cfg := &config.Config{
		WorkerPrefetch:        10,
		WorkerMessageDeadline: 5 * time.Second,
		BatchSize:             100, // large enough that only the interval triggers the flush
		BatchInterval:         200 * time.Millisecond,
		MaxRetry:              1,
		RetryBaseDelay:        10 * time.Millisecond,
		QueueMaxLength:        10_000,
	}
	_, b, audit := newTestAggregator(t, cfg)

	fp := types.ComputeFingerprint("200000000", "ABC123", "L2025-011")
	env := types.NewLawEnvelope(&types.LawBallotRequest{Nas: "200000000", Code: "ABC123", BallotID: "L2025-011", Choice: types.ChoiceNo}, fp, time.Now().UTC())
	c.Assert(b.PublishAggregation(ctx, env), qt.IsNil)

	var result *types.LawTally
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		r, err := audit.LawResult(ctx, "L2025-011")
		c.Assert(err, qt.IsNil)
		if r != nil {
			result = r
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	c.Assert(result, qt.Not(qt.IsNil))
	c.Assert(result.NoCount, qt.Equals, int64(1))
}
