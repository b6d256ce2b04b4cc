package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Routing keys for the validation stream, per spec section 6.
const (
	RoutingKeyLaw      = "vote.validation.law"
	RoutingKeyElection = "vote.validation.election"
)

// Stream names for the durable message bus, per spec section 2.
const (
	StreamValidation  = "validation"
	StreamAggregation = "aggregation"
	StreamReview      = "review"
)

// LawPayload is the law-ballot half of an Envelope.
type LawPayload struct {
	BallotID string `json:"ballot_id"`
	Choice   Choice `json:"choice"`
}

// ElectionPayload is the election-ballot half of an Envelope.
type ElectionPayload struct {
	ElectionID    int64   `json:"election_id"`
	RegionID      int64   `json:"region_id"`
	Method        Method  `json:"method"`
	SingleChoice  *int64  `json:"single_choice,omitempty"`
	RankedChoices []int64 `json:"ranked_choices,omitempty"`
}

// Envelope is the canonical in-pipeline representation of a ballot: it
// carries the fingerprint and the choice payload but never the raw
// nas/code. It is published to "validation" by ingestion, consumed and
// re-published (extended with Status/AttemptCount) to "aggregation" or
// "review" by the validation worker.
type Envelope struct {
	Kind        Kind             `json:"kind"`
	Fingerprint string           `json:"fingerprint"`
	ReceivedAt  time.Time        `json:"received_at"`
	Law         *LawPayload      `json:"law,omitempty"`
	Election    *ElectionPayload `json:"election,omitempty"`

	// Status and AttemptCount are set by the validation worker when
	// forwarding to "aggregation" or "review"; absent on "validation".
	Status       Status `json:"status,omitempty"`
	AttemptCount int    `json:"attempt_count,omitempty"`
}

// Validate checks structural well-formedness: exactly one of Law/Election
// matches Kind, and the fingerprint is well-formed. Malformed envelopes are
// the worker's "malformed envelope" error class (spec section 7):
// negative-ack without requeue, forwarded to review as invalid.
func (e *Envelope) Validate() error {
	if !ValidFingerprint(e.Fingerprint) {
		return fmt.Errorf("fingerprint must be %d lowercase hex characters", FingerprintHexLen)
	}
	switch e.Kind {
	case KindLaw:
		if e.Law == nil || e.Election != nil {
			return fmt.Errorf("kind=law requires law payload and no election payload")
		}
		if !e.Law.Choice.Valid() {
			return fmt.Errorf("invalid law choice %q", e.Law.Choice)
		}
	case KindElection:
		if e.Election == nil || e.Law != nil {
			return fmt.Errorf("kind=election requires election payload and no law payload")
		}
		if !e.Election.Method.Valid() {
			return fmt.Errorf("invalid election method %q", e.Election.Method)
		}
		switch e.Election.Method {
		case MethodSingle:
			if e.Election.SingleChoice == nil || len(e.Election.RankedChoices) != 0 {
				return fmt.Errorf("method=single requires single_choice and no ranked_choices")
			}
		case MethodRanked:
			if e.Election.SingleChoice != nil || len(e.Election.RankedChoices) == 0 {
				return fmt.Errorf("method=ranked requires ranked_choices with at least one candidate and no single_choice")
			}
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}

// BallotScope returns the scope string the fingerprint is bound to: the
// ballot_id for a law envelope, or "election:{id}" for an election
// envelope. Must match ComputeFingerprint's ballotScope argument.
func (e *Envelope) BallotScope() string {
	if e.Kind == KindLaw {
		return e.Law.BallotID
	}
	return fmt.Sprintf("election:%d", e.Election.ElectionID)
}

// ChoicePayload renders the envelope's vote as the JSON blob stored in the
// audit row's choice_payload column. For a ranked election ballot this
// preserves the full ranking, not just the first preference.
func (e *Envelope) ChoicePayload() (json.RawMessage, error) {
	if e.Kind == KindLaw {
		return json.Marshal(e.Law)
	}
	return json.Marshal(e.Election)
}

// NewLawEnvelope builds the validation-stream envelope for a law ballot
// from its decoded request and fingerprint, stamping ReceivedAt now.
func NewLawEnvelope(req *LawBallotRequest, fingerprint string, receivedAt time.Time) *Envelope {
	return &Envelope{
		Kind:        KindLaw,
		Fingerprint: fingerprint,
		ReceivedAt:  receivedAt,
		Law:         &LawPayload{BallotID: req.BallotID, Choice: req.Choice},
	}
}

// NewElectionEnvelope builds the validation-stream envelope for an
// election ballot from its decoded request and fingerprint, stamping
// ReceivedAt now.
func NewElectionEnvelope(req *ElectionBallotRequest, fingerprint string, receivedAt time.Time) *Envelope {
	return &Envelope{
		Kind:        KindElection,
		Fingerprint: fingerprint,
		ReceivedAt:  receivedAt,
		Election: &ElectionPayload{
			ElectionID:    req.ElectionID,
			RegionID:      req.RegionID,
			Method:        req.Method,
			SingleChoice:  req.SingleChoice,
			RankedChoices: req.RankedChoices,
		},
	}
}
