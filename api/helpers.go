package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/voteflow/ballotpipe/log"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data interface{}) {
	httpWriteJSONStatus(w, http.StatusOK, data)
}

// httpWriteAccepted writes a 202 JSON response, used by the two
// vote-submission endpoints once the envelope's publish to the bus has
// been confirmed (spec section 4.1, section 6, and the section 8.1
// scenario all specify 202, not 200, for a successful submission).
func httpWriteAccepted(w http.ResponseWriter, data interface{}) {
	httpWriteJSONStatus(w, http.StatusAccepted, data)
}

func httpWriteJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
	log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}
