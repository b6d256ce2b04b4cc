//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the client's fault,
// and they return HTTP Status 400 or 404, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXXX or 5XXXX.
// If you notice there's a gap in the numbering, DON'T fill it in — that code was used in the
// past for some error (not anymore) and shouldn't be reused.
var (
	ErrMalformedBody        = Error{Code: 40001, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrInvalidNas           = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("nas must be exactly 9 decimal digits")}
	ErrInvalidCode          = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("code must be exactly 6 alphanumeric characters")}
	ErrInvalidBallotID      = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("ballot_id must be non-empty and at most 50 characters")}
	ErrInvalidChoice        = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("choice must be yes or no")}
	ErrInvalidElectionID    = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("election_id must be a positive integer")}
	ErrInvalidRegionID      = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("region_id must be a positive integer")}
	ErrInvalidMethod        = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("method must be single or ranked")}
	ErrInvalidChoicePayload = Error{Code: 40009, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("choice payload does not match the declared method")}
	ErrElectionClosed       = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("election_closed")}
	ErrElectionNotFound     = Error{Code: 40011, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("election not found")}
	ErrBallotNotFound       = Error{Code: 40012, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("ballot not found")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrBusUnavailable             = Error{Code: 50003, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("bus unavailable")}
	ErrPublishTimeout             = Error{Code: 50004, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("publish confirmation timed out")}
	ErrDeadlineExceeded           = Error{Code: 50005, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("request deadline exceeded")}
	ErrTallyStoreUnavailable      = Error{Code: 50006, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("tally store unavailable")}
)
