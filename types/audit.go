package types

import (
	"encoding/json"
	"time"
)

// AuditRecord is the durable, immutable per-submission record written by
// the validation worker before acknowledgment (spec section 3).
type AuditRecord struct {
	ID            int64           `json:"id"`
	Fingerprint   string          `json:"fingerprint"`
	BallotScope   string          `json:"ballot_scope"`
	ChoicePayload json.RawMessage `json:"choice_payload"`
	Status        Status          `json:"status"`
	AttemptCount  int             `json:"attempt_count,omitempty"`
	ReceivedAt    time.Time       `json:"received_at"`
	ProcessedAt   time.Time       `json:"processed_at"`
	Error         string          `json:"error,omitempty"`
}

// ElectionWindow is the [start_at, end_at) validity window for an
// election, cached by the ingestion front-end and optionally consulted by
// the validation worker (spec section 4.1, 4.2.2, and the
// WorkerEnforcesWindow config toggle).
type ElectionWindow struct {
	ElectionID int64     `json:"election_id"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
	Method     Method    `json:"method"`
}

// Contains reports whether t falls within [StartAt, EndAt): start
// inclusive, end exclusive, per spec section 8's boundary behaviors.
func (w *ElectionWindow) Contains(t time.Time) bool {
	return !t.Before(w.StartAt) && t.Before(w.EndAt)
}

// LawTally is the persisted aggregate for a referendum.
type LawTally struct {
	BallotID  string    `json:"ballot_id"`
	YesCount  int64     `json:"yes_count"`
	NoCount   int64     `json:"no_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ElectionTally is the persisted aggregate for one candidate in one region
// of one election.
type ElectionTally struct {
	ElectionID  int64     `json:"election_id"`
	RegionID    int64     `json:"region_id"`
	CandidateID int64     `json:"candidate_id"`
	VoteCount   int64     `json:"vote_count"`
	Percentage  float64   `json:"percentage"`
	UpdatedAt   time.Time `json:"updated_at"`
}
