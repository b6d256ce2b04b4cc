// Package auditstore is the client for the Audit & Tally Store (spec
// section 4.5): the immutable per-ballot audit log and the law/election
// tally rows. Backed by Postgres via pgx; audit writes rely on a partial
// unique index to surface C2 conflicts, and tally writes use the
// additive upserts from spec section 4.3.
package auditstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voteflow/ballotpipe/config"
	"github.com/voteflow/ballotpipe/types"
)

//go:embed schema.sql
var schemaSQL string

// pgUniqueViolation is the Postgres error code for a unique-constraint
// violation (23505).
const pgUniqueViolation = "23505"

// ErrAlreadyAccepted is returned by WriteAuditRow when the
// (fingerprint, scope) unique index already holds an accepted row. The
// caller (validation worker) re-classifies the envelope as a duplicate,
// per spec section 4.2.1's crash-recovery discussion and section 7's
// "fatal invariant violation" entry.
var ErrAlreadyAccepted = errors.New("audit row already accepted for this fingerprint and scope")

// Store is the audit & tally store client.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx connection pool and verifies connectivity.
func Connect(cfg *config.Config) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to audit store: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping audit store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// FromPool wraps an already-open pool (used by tests against a
// disposable Postgres instance).
func FromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates the audit/tally/elections tables if they do not
// already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply audit store schema: %w", err)
	}
	return nil
}

// WriteAuditRow inserts one audit record. For status=accepted, a unique
// violation on (fingerprint, scope) returns ErrAlreadyAccepted instead of
// the raw pg error, so the caller can re-classify rather than propagate a
// transient-fault retry.
func (s *Store) WriteAuditRow(ctx context.Context, rec *types.AuditRecord) error {
	const sql = `
		INSERT INTO vote_audit (fingerprint, scope, choice_payload, status, attempt_count, received_at, processed_at, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, sql,
		rec.Fingerprint, rec.BallotScope, []byte(rec.ChoicePayload), string(rec.Status),
		rec.AttemptCount, rec.ReceivedAt, rec.ProcessedAt, nullableString(rec.Error),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyAccepted
		}
		return fmt.Errorf("write audit row: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// LawDelta is one ballot_id's contribution to a batch flush.
type LawDelta struct {
	BallotID string
	Yes      int64
	No       int64
}

// ElectionDelta is one (election_id, region_id, candidate_id)'s
// contribution to a batch flush.
type ElectionDelta struct {
	ElectionID  int64
	RegionID    int64
	CandidateID int64
	Count       int64
}

// ApplyBatch applies both kinds of tally deltas within one transaction,
// per spec section 4.3: "group envelopes by tally key and issue one
// upsert per key within a single transaction."
func (s *Store) ApplyBatch(ctx context.Context, lawDeltas []LawDelta, electionDeltas []ElectionDelta) error {
	if len(lawDeltas) == 0 && len(electionDeltas) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const lawUpsert = `
		INSERT INTO law_tally (ballot_id, yes_count, no_count, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (ballot_id)
		DO UPDATE SET yes_count = law_tally.yes_count + excluded.yes_count,
		              no_count  = law_tally.no_count  + excluded.no_count,
		              updated_at = now()
	`
	for _, d := range lawDeltas {
		if _, err := tx.Exec(ctx, lawUpsert, d.BallotID, d.Yes, d.No); err != nil {
			return fmt.Errorf("upsert law_tally %s: %w", d.BallotID, err)
		}
	}

	const electionUpsert = `
		INSERT INTO election_tally (election_id, region_id, candidate_id, vote_count, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (election_id, region_id, candidate_id)
		DO UPDATE SET vote_count = election_tally.vote_count + excluded.vote_count,
		              updated_at = now()
	`
	for _, d := range electionDeltas {
		if _, err := tx.Exec(ctx, electionUpsert, d.ElectionID, d.RegionID, d.CandidateID, d.Count); err != nil {
			return fmt.Errorf("upsert election_tally (%d,%d,%d): %w", d.ElectionID, d.RegionID, d.CandidateID, err)
		}
	}

	if err := refreshElectionPercentages(ctx, tx, electionDeltas); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// refreshElectionPercentages recomputes the derived percentage column for
// every (election_id, region_id) pair touched by this batch.
func refreshElectionPercentages(ctx context.Context, tx pgx.Tx, deltas []ElectionDelta) error {
	seen := make(map[[2]int64]bool)
	for _, d := range deltas {
		seen[[2]int64{d.ElectionID, d.RegionID}] = true
	}
	const sql = `
		UPDATE election_tally t
		SET percentage = CASE WHEN totals.total = 0 THEN 0 ELSE 100.0 * t.vote_count / totals.total END
		FROM (
			SELECT election_id, region_id, SUM(vote_count) AS total
			FROM election_tally
			WHERE election_id = $1 AND region_id = $2
			GROUP BY election_id, region_id
		) totals
		WHERE t.election_id = totals.election_id AND t.region_id = totals.region_id
		  AND t.election_id = $1 AND t.region_id = $2
	`
	for key := range seen {
		if _, err := tx.Exec(ctx, sql, key[0], key[1]); err != nil {
			return fmt.Errorf("refresh percentages for election %d region %d: %w", key[0], key[1], err)
		}
	}
	return nil
}

// LawResult returns the current tally row for a referendum.
func (s *Store) LawResult(ctx context.Context, ballotID string) (*types.LawTally, error) {
	const sql = `SELECT ballot_id, yes_count, no_count, updated_at FROM law_tally WHERE ballot_id = $1`
	var t types.LawTally
	err := s.pool.QueryRow(ctx, sql, ballotID).Scan(&t.BallotID, &t.YesCount, &t.NoCount, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query law_tally %s: %w", ballotID, err)
	}
	return &t, nil
}

// ElectionResults returns every candidate row for one (election, region).
func (s *Store) ElectionResults(ctx context.Context, electionID, regionID int64) ([]types.ElectionTally, error) {
	const sql = `
		SELECT election_id, region_id, candidate_id, vote_count, percentage, updated_at
		FROM election_tally
		WHERE election_id = $1 AND region_id = $2
		ORDER BY vote_count DESC
	`
	rows, err := s.pool.Query(ctx, sql, electionID, regionID)
	if err != nil {
		return nil, fmt.Errorf("query election_tally (%d,%d): %w", electionID, regionID, err)
	}
	defer rows.Close()

	var out []types.ElectionTally
	for rows.Next() {
		var t types.ElectionTally
		if err := rows.Scan(&t.ElectionID, &t.RegionID, &t.CandidateID, &t.VoteCount, &t.Percentage, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan election_tally row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ElectionWindow reads one election's validity window.
func (s *Store) ElectionWindow(ctx context.Context, electionID int64) (*types.ElectionWindow, error) {
	const sql = `SELECT id, start_at, end_at, method FROM elections WHERE id = $1`
	var w types.ElectionWindow
	var method string
	err := s.pool.QueryRow(ctx, sql, electionID).Scan(&w.ElectionID, &w.StartAt, &w.EndAt, &method)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query election %d: %w", electionID, err)
	}
	w.Method = types.Method(method)
	return &w, nil
}

// LoadElectionWindows returns every election's window, keyed by
// election_id. The ingestion front-end polls this periodically to
// refresh its in-memory window cache (spec section 4.1).
func (s *Store) LoadElectionWindows(ctx context.Context) (map[int64]*types.ElectionWindow, error) {
	const sql = `SELECT id, start_at, end_at, method FROM elections`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("load election windows: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*types.ElectionWindow)
	for rows.Next() {
		var w types.ElectionWindow
		var method string
		if err := rows.Scan(&w.ElectionID, &w.StartAt, &w.EndAt, &method); err != nil {
			return nil, fmt.Errorf("scan election window row: %w", err)
		}
		w.Method = types.Method(method)
		out[w.ElectionID] = &w
	}
	return out, rows.Err()
}

// PingTimeout bounds the connectivity check made by Ping.
const PingTimeout = 2 * time.Second

// Ping verifies the store is reachable. GET /health does not call it; that
// endpoint reports only the bus and credential-store connections.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	return s.pool.Ping(ctx)
}
