package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/voteflow/ballotpipe/types"
)

// Message wraps one delivered bus message with the three terminal actions
// spec section 4.2's state machine allows: Ack (ACKED), Requeue
// (REQUEUED, for transient faults), and Reject (REJECTED_TO_REVIEW, for
// permanent/malformed faults — no redelivery).
type Message struct {
	msg *nats.Msg
}

// Envelope decodes the message body. A decode failure is the "malformed
// envelope" error class (spec section 7): callers should Reject, not
// Requeue, since redelivery will not make malformed JSON well-formed.
func (m *Message) Envelope() (*types.Envelope, error) {
	var env types.Envelope
	if err := json.Unmarshal(m.msg.Data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// Ack acknowledges successful processing.
func (m *Message) Ack() error {
	return m.msg.Ack()
}

// Requeue negatively acknowledges with redelivery, for a transient fault
// (credential store, audit store, or bus unreachable).
func (m *Message) Requeue() error {
	return m.msg.Nak()
}

// RequeueWithDelay negatively acknowledges with redelivery delayed by d,
// implementing the backoff spec section 7 asks for on a transient
// infrastructure fault.
func (m *Message) RequeueWithDelay(d time.Duration) error {
	return m.msg.NakWithDelay(d)
}

// Reject terminates the message: no further redelivery. Used for
// permanent faults. A body that decodes but fails Envelope.Validate is
// published to the review stream by the worker before it is rejected; a
// body that does not decode as JSON is rejected without reaching review.
// Unknown JSON fields are ignored by decoding and are not a fault.
func (m *Message) Reject() error {
	return m.msg.Term()
}

// DeliveryCount reports how many times this message has been delivered,
// including this delivery. A count greater than 1 means a prior attempt
// crashed or requeued it (spec section 4.2.1's crash/ordering discussion).
func (m *Message) DeliveryCount() int {
	meta, err := m.msg.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}

// Subscribe starts a durable push consumer on subject with manual
// acknowledgment, bounded prefetch (MaxAckPending), and a per-message ack
// deadline. The durable name doubles as the deliver group, so every
// subscriber using the same name shares one consumer and each message goes
// to one of them. handler is invoked for every delivered message; it owns
// calling exactly one of Ack/Requeue/Reject per spec section 4.2's
// contract.
func (b *Bus) Subscribe(subject, durable string, prefetch int, ackWait time.Duration, handler func(*Message)) (*nats.Subscription, error) {
	return b.js.QueueSubscribe(subject, durable, func(m *nats.Msg) {
		handler(&Message{msg: m})
	},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxAckPending(prefetch),
		nats.AckWait(ackWait),
	)
}
