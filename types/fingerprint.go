package types

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ComputeFingerprint returns the 64-character lowercase hex SHA-256 digest
// binding a credential (nas, code) to a ballot scope (a law ballot_id, or
// an election scope string), per spec section 3: the fingerprint is
// SHA-256(nas || "|" || UPPER(code) || "|" || ballot_scope). The code is
// case-normalized to upper before hashing.
func ComputeFingerprint(nas, code, ballotScope string) string {
	data := nas + "|" + strings.ToUpper(code) + "|" + ballotScope
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// ValidFingerprint reports whether f is a well-formed fingerprint: exactly
// 64 lowercase hex characters. Fingerprints failing this check are rejected
// by the validation worker as invalid, never as duplicate (spec section 8,
// boundary behaviors).
func ValidFingerprint(f string) bool {
	return fingerprintPattern.MatchString(f)
}
