package api

import (
	"net/http"
)

// healthStatus is the body returned by GET /health.
type healthStatus struct {
	Status          string `json:"status"`
	Bus             bool   `json:"bus_connected"`
	CredentialStore bool   `json:"credential_store_connected"`
}

// health reports liveness and the status of the bus and credential-store
// connections (spec section 4.1).
// GET /health
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	busOK := a.cfg.Bus.Connected()
	credOK := a.cfg.CredentialStore.Ping(r.Context()) == nil

	status := "ok"
	if !busOK || !credOK {
		status = "degraded"
	}
	httpWriteJSON(w, healthStatus{
		Status:          status,
		Bus:             busOK,
		CredentialStore: credOK,
	})
}
