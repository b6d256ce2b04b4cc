package api

const (
	// HealthEndpoint reports liveness plus bus and credential-store
	// connection status.
	HealthEndpoint = "/health"

	// VoteEndpoint accepts a law (referendum) ballot.
	VoteEndpoint = "/vote"

	// ElectionVoteEndpoint accepts a regional candidate-election ballot.
	ElectionVoteEndpoint = "/elections/vote"

	// BallotIDURLParam names the path parameter carrying a law ballot_id.
	BallotIDURLParam = "ballotID"
	// LawResultsEndpoint is the read-only pass-through to law_tally.
	LawResultsEndpoint = "/results/{" + BallotIDURLParam + "}"

	// ElectionIDURLParam and RegionIDURLParam name the election-results
	// path parameters.
	ElectionIDURLParam = "electionID"
	RegionIDURLParam   = "regionID"
	// ElectionResultsEndpoint is the read-only pass-through to
	// election_tally for one (election, region).
	ElectionResultsEndpoint = "/elections/{" + ElectionIDURLParam + "}/regions/{" + RegionIDURLParam + "}/results"
)
