package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/voteflow/ballotpipe/log"
	"github.com/voteflow/ballotpipe/types"
)

// newLawVote accepts a binary referendum ballot.
// POST /vote
func (a *API) newLawVote(w http.ResponseWriter, r *http.Request) {
	req := &types.LawBallotRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if err := req.Validate(); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}

	fingerprint := types.ComputeFingerprint(req.Nas, req.Code, req.BallotScope())
	env := types.NewLawEnvelope(req, fingerprint, time.Now().UTC())

	if err := a.publishValidation(r.Context(), env); err != nil {
		log.Warnw("publish law vote failed", "error", err)
		ErrBusUnavailable.WithErr(err).Write(w)
		return
	}

	httpWriteAccepted(w, map[string]string{"request_id": uuid.NewString()})
}

// publishValidation publishes env to the validation stream, bounding the
// wait for broker confirmation at PublishConfirmTimeout (spec section
// 4.1's publish contract: "the handler MUST NOT return 202 before that
// confirmation").
func (a *API) publishValidation(parent context.Context, env *types.Envelope) error {
	ctx, cancel := context.WithTimeout(parent, a.cfg.PublishConfirmTimeout)
	defer cancel()
	return a.cfg.Bus.PublishValidation(ctx, env)
}
