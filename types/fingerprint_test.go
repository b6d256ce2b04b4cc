package types

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestComputeFingerprint(t *testing.T) {
	c := qt.New(t)

	// The credential of scenario 1 from spec section 8: the digest is a
	// well-formed 64-character lowercase hex string.
	got := ComputeFingerprint("123456789", "ABC123", "L2025-001")
	c.Assert(len(got), qt.Equals, FingerprintHexLen)
	c.Assert(ValidFingerprint(got), qt.IsTrue)

	// Code is case-normalized before hashing.
	lower := ComputeFingerprint("123456789", "abc123", "L2025-001")
	c.Assert(lower, qt.Equals, got)

	// F2: same credential against a different ballot scope is a distinct
	// fingerprint.
	other := ComputeFingerprint("123456789", "ABC123", "L2025-002")
	c.Assert(other, qt.Not(qt.Equals), got)
}

func TestValidFingerprint(t *testing.T) {
	c := qt.New(t)

	c.Assert(ValidFingerprint(ComputeFingerprint("123456789", "ABC123", "x")), qt.IsTrue)
	c.Assert(ValidFingerprint(""), qt.IsFalse)
	c.Assert(ValidFingerprint("deadbeef"), qt.IsFalse)
	// Uppercase hex is not a valid fingerprint; the fingerprint is always
	// produced lowercase by ComputeFingerprint.
	upper := strings.ToUpper(ComputeFingerprint("123456789", "ABC123", "x"))
	c.Assert(ValidFingerprint(upper), qt.IsFalse)
}
