package types

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestLawBallotRequestValidate(t *testing.T) {
	c := qt.New(t)

	valid := &LawBallotRequest{Nas: "123456789", Code: "ABC123", BallotID: "L2025-001", Choice: ChoiceYes}
	c.Assert(valid.Validate(), qt.IsNil)

	bad := *valid
	bad.Nas = "12345"
	c.Assert(bad.Validate(), qt.ErrorMatches, ".*9 decimal digits.*")

	bad = *valid
	bad.Code = "ab"
	c.Assert(bad.Validate(), qt.ErrorMatches, ".*6 alphanumeric.*")

	bad = *valid
	bad.BallotID = ""
	c.Assert(bad.Validate(), qt.ErrorMatches, ".*ballot_id.*")

	bad = *valid
	bad.Choice = "maybe"
	c.Assert(bad.Validate(), qt.ErrorMatches, ".*choice.*")
}

func TestElectionBallotRequestValidate(t *testing.T) {
	c := qt.New(t)

	single := int64(7)
	singleReq := &ElectionBallotRequest{
		Nas: "123456789", Code: "ABC123",
		ElectionID: 1, RegionID: 1, Method: MethodSingle, SingleChoice: &single,
	}
	c.Assert(singleReq.Validate(), qt.IsNil)
	c.Assert(singleReq.FirstPreference(), qt.Equals, int64(7))
	c.Assert(singleReq.BallotScope(), qt.Equals, "election:1")

	rankedReq := &ElectionBallotRequest{
		Nas: "123456789", Code: "ABC123",
		ElectionID: 1, RegionID: 1, Method: MethodRanked, RankedChoices: []int64{7, 3, 9},
	}
	c.Assert(rankedReq.Validate(), qt.IsNil)
	c.Assert(rankedReq.FirstPreference(), qt.Equals, int64(7))

	// Mismatched method/payload.
	bad := *singleReq
	bad.RankedChoices = []int64{1, 2}
	c.Assert(bad.Validate(), qt.ErrorMatches, ".*single method.*")

	// Duplicate ranked choices are rejected.
	dup := *rankedReq
	dup.RankedChoices = []int64{7, 7, 9}
	c.Assert(dup.Validate(), qt.ErrorMatches, ".*distinct.*")

	// Empty ranked list is rejected.
	empty := *rankedReq
	empty.RankedChoices = nil
	c.Assert(empty.Validate(), qt.ErrorMatches, ".*ranked method.*")
}

func TestEnvelopeValidate(t *testing.T) {
	c := qt.New(t)

	fp := ComputeFingerprint("123456789", "ABC123", "L2025-001")
	env := &Envelope{
		Kind:        KindLaw,
		Fingerprint: fp,
		Law:         &LawPayload{BallotID: "L2025-001", Choice: ChoiceYes},
	}
	c.Assert(env.Validate(), qt.IsNil)
	c.Assert(env.BallotScope(), qt.Equals, "L2025-001")

	badFP := &Envelope{Kind: KindLaw, Fingerprint: "short", Law: &LawPayload{BallotID: "x", Choice: ChoiceYes}}
	c.Assert(badFP.Validate(), qt.ErrorMatches, ".*64 lowercase hex.*")

	mismatched := &Envelope{Kind: KindLaw, Fingerprint: fp, Election: &ElectionPayload{ElectionID: 1, Method: MethodSingle}}
	c.Assert(mismatched.Validate(), qt.ErrorMatches, ".*kind=law.*")
}
