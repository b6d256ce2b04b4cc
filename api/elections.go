package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/voteflow/ballotpipe/log"
	"github.com/voteflow/ballotpipe/types"
)

// newElectionVote accepts a regional candidate-election ballot.
// POST /elections/vote
func (a *API) newElectionVote(w http.ResponseWriter, r *http.Request) {
	req := &types.ElectionBallotRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if err := req.Validate(); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}

	now := time.Now().UTC()
	if window, ok := a.electionWindow(req.ElectionID); ok {
		if !window.Contains(now) {
			ErrElectionClosed.Write(w)
			return
		}
	} else {
		log.Warnw("no cached window for election, admitting by default", "electionID", req.ElectionID)
	}

	fingerprint := types.ComputeFingerprint(req.Nas, req.Code, req.BallotScope())
	env := types.NewElectionEnvelope(req, fingerprint, now)

	if err := a.publishValidation(r.Context(), env); err != nil {
		log.Warnw("publish election vote failed", "error", err)
		ErrBusUnavailable.WithErr(err).Write(w)
		return
	}

	httpWriteAccepted(w, map[string]string{"request_id": uuid.NewString()})
}
