// Package aggregator implements the Aggregation Service (spec section
// 4.3): it consumes accepted envelopes from the bus and applies them to
// the law/election tally rows in time-and-size-bounded batches.
package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/voteflow/ballotpipe/auditstore"
	"github.com/voteflow/ballotpipe/bus"
	"github.com/voteflow/ballotpipe/config"
	"github.com/voteflow/ballotpipe/log"
	"github.com/voteflow/ballotpipe/types"
)

const durableName = "aggregation-worker"

// pending is one buffered envelope awaiting flush, paired with the bus
// message that must be acked (or nakked) once its batch resolves.
type pending struct {
	env *types.Envelope
	msg *bus.Message
}

// Aggregator accumulates accepted envelopes and periodically flushes
// them into tally upserts.
type Aggregator struct {
	bus   *bus.Bus
	audit *auditstore.Store
	cfg   *config.Config
	sub   *nats.Subscription

	mu      sync.Mutex
	buffer  []pending
	started time.Time

	flushTrigger chan struct{}
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// New builds an Aggregator. Nothing runs until Start is called.
func New(b *bus.Bus, audit *auditstore.Store, cfg *config.Config) *Aggregator {
	return &Aggregator{
		bus:          b,
		audit:        audit,
		cfg:          cfg,
		flushTrigger: make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start subscribes to the aggregation stream and begins the flush loop.
func (a *Aggregator) Start() error {
	sub, err := a.bus.Subscribe(bus.SubjectAggregation, durableName, a.cfg.WorkerPrefetch, a.cfg.WorkerMessageDeadline, a.enqueue)
	if err != nil {
		return err
	}
	a.sub = sub
	go a.flushLoop()
	log.Infow("aggregator started", "batchSize", a.cfg.BatchSize, "batchInterval", a.cfg.BatchInterval)
	return nil
}

// Stop drains the subscription, flushes any remaining buffer, and exits.
// Per spec section 4.3's shutdown contract: "stop consuming, flush the
// in-memory buffer, ack, close connections, exit with code 0."
func (a *Aggregator) Stop() error {
	if a.sub != nil {
		if err := a.sub.Drain(); err != nil {
			log.Warnw("failed to drain aggregation subscription", "error", err)
		}
	}
	close(a.stopCh)
	<-a.doneCh
	a.flush(context.Background())
	return nil
}

func (a *Aggregator) enqueue(msg *bus.Message) {
	env, err := msg.Envelope()
	if err != nil {
		log.Warnw("malformed aggregation envelope, rejecting without redelivery", "error", err)
		if err := msg.Reject(); err != nil {
			log.Warnw("failed to reject malformed aggregation message", "error", err)
		}
		return
	}

	a.mu.Lock()
	if len(a.buffer) == 0 {
		a.started = time.Now()
	}
	a.buffer = append(a.buffer, pending{env: env, msg: msg})
	ready := len(a.buffer) >= a.cfg.BatchSize
	a.mu.Unlock()

	if ready {
		select {
		case a.flushTrigger <- struct{}{}:
		default:
		}
	}
}

func (a *Aggregator) flushLoop() {
	defer close(a.doneCh)
	interval := a.cfg.BatchInterval
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.flushIfDue()
		case <-a.flushTrigger:
			a.flush(context.Background())
		}
	}
}

// flushIfDue flushes only when the batch is non-empty and either full or
// older than BatchInterval, matching spec section 4.3's "(a) ... or (b)
// BATCH_INTERVAL has elapsed since the first envelope in the current
// buffer" policy.
func (a *Aggregator) flushIfDue() {
	a.mu.Lock()
	due := len(a.buffer) > 0 && (len(a.buffer) >= a.cfg.BatchSize || time.Since(a.started) >= a.cfg.BatchInterval)
	a.mu.Unlock()
	if due {
		a.flush(context.Background())
	}
}

// flush drains the buffer and applies it, retrying on failure with
// exponential backoff before moving the batch to review.
func (a *Aggregator) flush(ctx context.Context) {
	a.mu.Lock()
	batch := a.buffer
	a.buffer = nil
	a.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	lawDeltas, electionDeltas := groupDeltas(batch)

	var err error
	delay := a.cfg.RetryBaseDelay
	for attempt := 1; attempt <= a.cfg.MaxRetry; attempt++ {
		err = a.audit.ApplyBatch(ctx, lawDeltas, electionDeltas)
		if err == nil {
			break
		}
		log.Warnw("batch flush failed, retrying", "attempt", attempt, "error", err)
		if attempt < a.cfg.MaxRetry {
			time.Sleep(delay)
			delay *= 2
		}
	}

	if err != nil {
		a.moveToReview(ctx, batch, err)
		return
	}

	// Ack only after the batch commits (spec section 4.3's idempotency
	// defense (a): a crash between commit and ack causes a bounded,
	// rare double-count on redelivery, accepted as surfaced-not-prevented).
	for _, p := range batch {
		if err := p.msg.Ack(); err != nil {
			log.Warnw("failed to ack aggregated message", "error", err)
		}
	}
}

func (a *Aggregator) moveToReview(ctx context.Context, batch []pending, cause error) {
	log.Errorw("aggregation batch failed after max retries, moving to review", "error", cause)
	for _, p := range batch {
		p.env.Status = types.StatusInvalid
		if err := a.bus.PublishReview(ctx, p.env); err != nil {
			log.Warnw("failed to forward failed-batch envelope to review", "error", err)
		}
		if err := p.msg.Reject(); err != nil {
			log.Warnw("failed to reject failed-batch message", "error", err)
		}
	}
}

// groupDeltas collapses a batch of accepted envelopes into per-key tally
// deltas: one row per ballot_id for law ballots, one row per
// (election_id, region_id, candidate_id) for election ballots, crediting
// only the first preference for ranked ballots (spec section 4.3).
func groupDeltas(batch []pending) ([]auditstore.LawDelta, []auditstore.ElectionDelta) {
	lawIdx := make(map[string]int)
	var lawDeltas []auditstore.LawDelta

	electionIdx := make(map[[3]int64]int)
	var electionDeltas []auditstore.ElectionDelta

	for _, p := range batch {
		env := p.env
		switch env.Kind {
		case types.KindLaw:
			i, ok := lawIdx[env.Law.BallotID]
			if !ok {
				i = len(lawDeltas)
				lawIdx[env.Law.BallotID] = i
				lawDeltas = append(lawDeltas, auditstore.LawDelta{BallotID: env.Law.BallotID})
			}
			if env.Law.Choice == types.ChoiceYes {
				lawDeltas[i].Yes++
			} else {
				lawDeltas[i].No++
			}
		case types.KindElection:
			candidate, ok := firstPreference(env.Election)
			if !ok {
				log.Warnw("dropping election envelope with malformed choice payload from tally batch",
					"electionID", env.Election.ElectionID, "regionID", env.Election.RegionID, "method", env.Election.Method)
				continue
			}
			key := [3]int64{env.Election.ElectionID, env.Election.RegionID, candidate}
			i, ok := electionIdx[key]
			if !ok {
				i = len(electionDeltas)
				electionIdx[key] = i
				electionDeltas = append(electionDeltas, auditstore.ElectionDelta{
					ElectionID:  env.Election.ElectionID,
					RegionID:    env.Election.RegionID,
					CandidateID: candidate,
				})
			}
			electionDeltas[i].Count++
		}
	}
	return lawDeltas, electionDeltas
}

// firstPreference returns the candidate credited to the tally and true,
// or false if e's payload doesn't actually match its declared method
// (envelopes reaching this stage should already satisfy that invariant
// per Envelope.Validate, but the aggregator must not panic on one that
// doesn't, per spec section 7's "bus may carry malformed envelopes").
func firstPreference(e *types.ElectionPayload) (int64, bool) {
	switch e.Method {
	case types.MethodSingle:
		if e.SingleChoice == nil {
			return 0, false
		}
		return *e.SingleChoice, true
	case types.MethodRanked:
		if len(e.RankedChoices) == 0 {
			return 0, false
		}
		return e.RankedChoices[0], true
	default:
		return 0, false
	}
}
