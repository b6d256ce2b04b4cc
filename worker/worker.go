// Package worker implements the validation worker pool (spec section 4.2):
// the only component that mutates the cast-credential set C and the
// duplicate-attempt counter D. Each Worker is one durable bus consumer;
// operators scale throughput by running more worker processes, all
// sharing the same durable consumer name so the bus load-balances
// deliveries across them.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/voteflow/ballotpipe/auditstore"
	"github.com/voteflow/ballotpipe/bus"
	"github.com/voteflow/ballotpipe/config"
	"github.com/voteflow/ballotpipe/credentialstore"
	"github.com/voteflow/ballotpipe/log"
	"github.com/voteflow/ballotpipe/types"
)

// durableName identifies the shared durable consumer all worker
// processes subscribe under, so the bus fans deliveries out across them
// instead of redelivering each message to every process.
const durableName = "validation-worker"

// Worker consumes the validation stream, authenticates, deduplicates,
// audits, and forwards envelopes.
type Worker struct {
	bus   *bus.Bus
	cred  *credentialstore.Store
	audit *auditstore.Store
	cfg   *config.Config
	sub   *nats.Subscription
}

// New builds a Worker. The returned value does nothing until Start is
// called.
func New(b *bus.Bus, cred *credentialstore.Store, audit *auditstore.Store, cfg *config.Config) *Worker {
	return &Worker{bus: b, cred: cred, audit: audit, cfg: cfg}
}

// Start subscribes to the validation stream. It returns once the
// subscription is established; message processing continues on bus
// goroutines until Stop is called.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(bus.SubjectValidationAll, durableName, w.cfg.WorkerPrefetch, w.cfg.WorkerMessageDeadline, w.handle)
	if err != nil {
		return err
	}
	w.sub = sub
	log.Infow("validation worker started", "prefetch", w.cfg.WorkerPrefetch, "ackWait", w.cfg.WorkerMessageDeadline)
	return nil
}

// Stop unsubscribes, letting in-flight messages finish or be redelivered
// to another worker.
func (w *Worker) Stop() error {
	if w.sub == nil {
		return nil
	}
	return w.sub.Drain()
}

func (w *Worker) handle(msg *bus.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WorkerMessageDeadline)
	defer cancel()

	env, err := msg.Envelope()
	if err != nil {
		log.Warnw("malformed envelope, rejecting without redelivery", "error", err)
		if err := msg.Reject(); err != nil {
			log.Warnw("failed to reject malformed message", "error", err)
		}
		return
	}

	if err := env.Validate(); err != nil {
		log.Warnw("structurally invalid envelope, rejecting without redelivery", "error", err, "fingerprint", env.Fingerprint)
		env.Status = types.StatusInvalid
		if pubErr := w.bus.PublishReview(ctx, env); pubErr != nil {
			log.Warnw("failed to forward invalid envelope to review", "error", pubErr)
		}
		if err := msg.Reject(); err != nil {
			log.Warnw("failed to reject invalid message", "error", err)
		}
		return
	}

	if w.cfg.WorkerEnforcesWindow && env.Kind == types.KindElection {
		window, err := w.audit.ElectionWindow(ctx, env.Election.ElectionID)
		if err != nil {
			w.requeueTransient(msg, "election window lookup", err)
			return
		}
		if window != nil && !window.Contains(env.ReceivedAt) {
			log.Warnw("election window rejected at worker", "electionID", env.Election.ElectionID, "receivedAt", env.ReceivedAt)
			env.Status = types.StatusInvalid
			if !w.auditAndReview(ctx, msg, env) {
				return
			}
			w.ack(msg)
			return
		}
	}

	w.processEnvelope(ctx, msg, env)
}

func (w *Worker) processEnvelope(ctx context.Context, msg *bus.Message, env *types.Envelope) {
	valid, err := w.cred.IsValid(ctx, env.Fingerprint)
	if err != nil {
		w.requeueTransient(msg, "is_valid", err)
		return
	}
	if !valid {
		env.Status = types.StatusInvalid
		if !w.auditAndReview(ctx, msg, env) {
			return
		}
		w.ack(msg)
		return
	}

	claimed, err := w.cred.Claim(ctx, env.Fingerprint)
	if err != nil {
		w.requeueTransient(msg, "claim", err)
		return
	}
	if !claimed {
		n, err := w.cred.RecordDuplicate(ctx, env.Fingerprint)
		if err != nil {
			w.requeueTransient(msg, "record_duplicate", err)
			return
		}
		env.Status = types.StatusDuplicate
		env.AttemptCount = int(n)
		if !w.auditAndReview(ctx, msg, env) {
			return
		}
		w.ack(msg)
		return
	}

	w.acceptAndForward(ctx, msg, env)
}

// acceptAndForward writes the accepted audit row and republishes to
// aggregation. A unique-index conflict here is the "fatal invariant
// violation" of spec section 7: the worker re-reads C, and only
// re-classifies as duplicate if the fingerprint is genuinely present;
// otherwise it surfaces fatally, since claim() just reported this worker
// as the unique winner.
func (w *Worker) acceptAndForward(ctx context.Context, msg *bus.Message, env *types.Envelope) {
	env.Status = types.StatusAccepted
	payload, err := env.ChoicePayload()
	if err != nil {
		w.requeueTransient(msg, "marshal choice payload", err)
		return
	}

	rec := &types.AuditRecord{
		Fingerprint:   env.Fingerprint,
		BallotScope:   env.BallotScope(),
		ChoicePayload: payload,
		Status:        types.StatusAccepted,
		ReceivedAt:    env.ReceivedAt,
		ProcessedAt:   time.Now().UTC(),
	}

	err = w.audit.WriteAuditRow(ctx, rec)
	switch {
	case errors.Is(err, auditstore.ErrAlreadyAccepted):
		present, rerr := w.cred.IsCast(ctx, env.Fingerprint)
		if rerr != nil {
			w.requeueTransient(msg, "re-read cast set", rerr)
			return
		}
		if !present {
			log.Fatalf("fatal invariant violation: accepted audit already exists for fingerprint %s scope %s but claim reported it absent from C", env.Fingerprint, env.BallotScope())
			return
		}
		n, derr := w.cred.RecordDuplicate(ctx, env.Fingerprint)
		if derr != nil {
			w.requeueTransient(msg, "record_duplicate after fatal re-check", derr)
			return
		}
		env.Status = types.StatusDuplicate
		env.AttemptCount = int(n)
		if !w.auditAndReview(ctx, msg, env) {
			return
		}
		w.ack(msg)
		return
	case err != nil:
		w.requeueTransient(msg, "write accepted audit row", err)
		return
	}

	if err := w.bus.PublishAggregation(ctx, env); err != nil {
		w.requeueTransient(msg, "publish to aggregation", err)
		return
	}
	w.ack(msg)
}

// auditAndReview writes a non-accepted (invalid/duplicate) audit row and
// forwards the envelope to review. It returns false if either step hit a
// transient fault and already requeued the message.
func (w *Worker) auditAndReview(ctx context.Context, msg *bus.Message, env *types.Envelope) bool {
	payload, err := env.ChoicePayload()
	if err != nil {
		w.requeueTransient(msg, "marshal choice payload", err)
		return false
	}
	rec := &types.AuditRecord{
		Fingerprint:   env.Fingerprint,
		BallotScope:   env.BallotScope(),
		ChoicePayload: payload,
		Status:        env.Status,
		AttemptCount:  env.AttemptCount,
		ReceivedAt:    env.ReceivedAt,
		ProcessedAt:   time.Now().UTC(),
	}
	if err := w.audit.WriteAuditRow(ctx, rec); err != nil {
		w.requeueTransient(msg, "write audit row", err)
		return false
	}
	if err := w.bus.PublishReview(ctx, env); err != nil {
		w.requeueTransient(msg, "publish to review", err)
		return false
	}
	return true
}

func (w *Worker) requeueTransient(msg *bus.Message, op string, err error) {
	log.Warnw("transient fault, requeuing", "op", op, "error", err)
	if rerr := msg.RequeueWithDelay(w.cfg.RetryBaseDelay); rerr != nil {
		log.Warnw("failed to requeue message", "error", rerr)
	}
}

func (w *Worker) ack(msg *bus.Message) {
	if err := msg.Ack(); err != nil {
		log.Warnw("failed to ack message", "error", err)
	}
}
