package auditstore

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voteflow/ballotpipe/types"
)

// newTestStore connects to a real Postgres instance named by
// BALLOTPIPE_TEST_POSTGRES_DSN and skips the test otherwise. Unlike the
// credential store, pgx has no in-process fake faithful enough to
// exercise the partial unique index this package depends on, so these
// tests require an actual database (matching the teacher's own
// integration-test posture for its Postgres-backed components).
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("BALLOTPIPE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BALLOTPIPE_TEST_POSTGRES_DSN not set, skipping auditstore integration test")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	qt.Assert(t, qt.IsNil(err))
	store := FromPool(pool)
	qt.Assert(t, qt.IsNil(store.InitSchema(context.Background())))
	t.Cleanup(func() {
		pool.Exec(context.Background(), "TRUNCATE vote_audit, law_tally, election_tally, elections")
		pool.Close()
	})
	return store
}

func TestWriteAuditRowAcceptedThenDuplicateViolation(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	rec := &types.AuditRecord{
		Fingerprint:   "abc123",
		BallotScope:   "L2025-001",
		ChoicePayload: json.RawMessage(`{"choice":"yes"}`),
		Status:        types.StatusAccepted,
		ReceivedAt:    time.Now().UTC(),
		ProcessedAt:   time.Now().UTC(),
	}
	c.Assert(store.WriteAuditRow(ctx, rec), qt.IsNil)

	// A second accepted row for the same (fingerprint, scope) collides
	// with the partial unique index.
	rec2 := *rec
	err := store.WriteAuditRow(ctx, &rec2)
	c.Assert(err, qt.ErrorIs, ErrAlreadyAccepted)
}

func TestApplyBatchLawTallyAdditive(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	c.Assert(store.ApplyBatch(ctx, []LawDelta{{BallotID: "L2025-001", Yes: 3, No: 1}}, nil), qt.IsNil)
	c.Assert(store.ApplyBatch(ctx, []LawDelta{{BallotID: "L2025-001", Yes: 2, No: 0}}, nil), qt.IsNil)

	result, err := store.LawResult(ctx, "L2025-001")
	c.Assert(err, qt.IsNil)
	c.Assert(result.YesCount, qt.Equals, int64(5))
	c.Assert(result.NoCount, qt.Equals, int64(1))
}

func TestApplyBatchElectionTallyAndPercentage(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	deltas := []ElectionDelta{
		{ElectionID: 1, RegionID: 1, CandidateID: 7, Count: 3},
		{ElectionID: 1, RegionID: 1, CandidateID: 9, Count: 1},
	}
	c.Assert(store.ApplyBatch(ctx, nil, deltas), qt.IsNil)

	results, err := store.ElectionResults(ctx, 1, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(results, qt.HasLen, 2)
	c.Assert(results[0].CandidateID, qt.Equals, int64(7))
	c.Assert(results[0].VoteCount, qt.Equals, int64(3))
	c.Assert(results[0].Percentage, qt.Equals, 75.0)
	c.Assert(results[1].Percentage, qt.Equals, 25.0)
}

func TestLawResultUnknownBallotIsNil(t *testing.T) {
	c := qt.New(t)
	store := newTestStore(t)

	result, err := store.LawResult(context.Background(), "never-heard-of-it")
	c.Assert(err, qt.IsNil)
	c.Assert(result, qt.IsNil)
}
