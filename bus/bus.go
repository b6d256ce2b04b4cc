// Package bus wraps the durable message bus (spec section 2.2) carrying the
// three logical streams "validation", "aggregation", and "review". It is
// implemented against NATS JetStream: durable queues with manual
// acknowledgment, at-least-once delivery, per-stream maximum length, and
// publish-with-confirmation.
package bus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/voteflow/ballotpipe/config"
	"github.com/voteflow/ballotpipe/log"
)

// Stream and subject naming. Each logical stream from spec section 2 maps
// to one JetStream stream; routing keys from spec section 6 become NATS
// subjects within that stream's subject space.
const (
	streamValidation  = "VALIDATION"
	streamAggregation = "AGGREGATION"
	streamReview      = "REVIEW"

	// SubjectValidationAll is the wildcard subject the validation worker
	// pool subscribes to: both law and election routing keys.
	SubjectValidationAll = "vote.validation.>"
	subjectAggregationAll = "vote.aggregation.>"
	subjectReviewAll       = "vote.review.>"

	// SubjectAggregation is where the validation worker forwards accepted
	// envelopes for the aggregator to consume.
	SubjectAggregation = "vote.aggregation.accepted"
	// SubjectReview is where invalid/duplicate/failed envelopes land for
	// operator inspection.
	SubjectReview = "vote.review.envelope"
)

// Bus owns the JetStream connection and stream topology. One Bus instance
// is shared by all goroutines in a process; it holds no per-request state.
type Bus struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	cfg *config.Config
}

// Connect dials the broker and ensures the three streams exist with the
// configured maximum length; a full stream refuses new publishes. The
// streams have no dead-letter routing: nothing is moved to the review
// stream automatically, only what callers publish there.
func Connect(cfg *config.Config) (*Bus, error) {
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("ballotpipe"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to bus: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("init jetstream context: %w", err)
	}
	b := &Bus{nc: nc, js: js, cfg: cfg}
	if err := b.ensureStreams(); err != nil {
		nc.Close()
		return nil, err
	}
	return b, nil
}

// FromConn wraps an already-connected NATS connection (used by tests
// against an in-process nats-server).
func FromConn(nc *nats.Conn, cfg *config.Config) (*Bus, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("init jetstream context: %w", err)
	}
	b := &Bus{nc: nc, js: js, cfg: cfg}
	if err := b.ensureStreams(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bus) ensureStreams() error {
	streams := []struct {
		name     string
		subjects []string
	}{
		{streamValidation, []string{SubjectValidationAll}},
		{streamAggregation, []string{subjectAggregationAll}},
		{streamReview, []string{subjectReviewAll}},
	}
	for _, s := range streams {
		_, err := b.js.StreamInfo(s.name)
		if err == nil {
			continue
		}
		if err != nats.ErrStreamNotFound {
			return fmt.Errorf("stream info for %s: %w", s.name, err)
		}
		_, err = b.js.AddStream(&nats.StreamConfig{
			Name:      s.name,
			Subjects:  s.subjects,
			MaxMsgs:   int64(b.cfg.QueueMaxLength),
			Discard:   nats.DiscardNew,
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("create stream %s: %w", s.name, err)
		}
		log.Infow("bus: stream created", "stream", s.name, "maxMsgs", b.cfg.QueueMaxLength)
	}
	return nil
}

// Close drains and closes the underlying connection.
func (b *Bus) Close() {
	if b.nc != nil {
		_ = b.nc.Drain()
	}
}

// Connected reports whether the underlying NATS connection is currently
// established, for the health endpoint.
func (b *Bus) Connected() bool {
	return b.nc != nil && b.nc.IsConnected()
}
