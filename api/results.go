package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// lawResults is a read-only pass-through to law_tally.
// GET /results/{ballotID}
func (a *API) lawResults(w http.ResponseWriter, r *http.Request) {
	ballotID := chi.URLParam(r, BallotIDURLParam)
	result, err := a.cfg.AuditStore.LawResult(r.Context(), ballotID)
	if err != nil {
		ErrTallyStoreUnavailable.WithErr(err).Write(w)
		return
	}
	if result == nil {
		ErrBallotNotFound.Write(w)
		return
	}
	httpWriteJSON(w, result)
}

// electionResults is a read-only pass-through to election_tally for one
// (election, region).
// GET /elections/{electionID}/regions/{regionID}/results
func (a *API) electionResults(w http.ResponseWriter, r *http.Request) {
	electionID, err := strconv.ParseInt(chi.URLParam(r, ElectionIDURLParam), 10, 64)
	if err != nil || electionID <= 0 {
		ErrInvalidElectionID.Write(w)
		return
	}
	regionID, err := strconv.ParseInt(chi.URLParam(r, RegionIDURLParam), 10, 64)
	if err != nil || regionID <= 0 {
		ErrInvalidRegionID.Write(w)
		return
	}
	results, err := a.cfg.AuditStore.ElectionResults(r.Context(), electionID, regionID)
	if err != nil {
		ErrTallyStoreUnavailable.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, results)
}
