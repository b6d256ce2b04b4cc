package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/voteflow/ballotpipe/types"
)

// Publish sends env to subject and blocks until the broker confirms the
// publish (a JetStream PubAck) or ctx's deadline expires. Per spec section
// 4.1, a caller MUST NOT treat the publish as successful before this
// confirmation; a timeout here is the caller's "bus unavailable" signal,
// translated by the ingestion front-end to HTTP 503.
func (b *Bus) Publish(ctx context.Context, subject string, env *types.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	_, err = b.js.Publish(subject, data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// PublishValidation publishes a freshly-ingested envelope to the
// validation stream under the routing key matching its kind.
func (b *Bus) PublishValidation(ctx context.Context, env *types.Envelope) error {
	subject := types.RoutingKeyLaw
	if env.Kind == types.KindElection {
		subject = types.RoutingKeyElection
	}
	return b.Publish(ctx, subject, env)
}

// PublishAggregation forwards an accepted envelope to the aggregator.
func (b *Bus) PublishAggregation(ctx context.Context, env *types.Envelope) error {
	return b.Publish(ctx, SubjectAggregation, env)
}

// PublishReview forwards an invalid, duplicate, or failed envelope to the
// operator review channel.
func (b *Bus) PublishReview(ctx context.Context, env *types.Envelope) error {
	return b.Publish(ctx, SubjectReview, env)
}
