// Package credentialstore is the client for the credential store (spec
// section 4.4): the valid-credential set V, the cast-credential set C, and
// the duplicate-attempt counter map D. It is the only package any
// component uses to mutate C or D; V is read-only during a voting window.
//
// Backed by Redis: V and C are Redis sets, D is a family of integer keys
// incremented with INCR. The claim primitive is SADD, whose return value
// (the number of members actually added) is the atomic linearization point
// spec section 4.4 requires: 1 means "newly inserted", 0 means "already
// present".
package credentialstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/voteflow/ballotpipe/config"
)

const (
	validSetKey       = "valid_hashes"
	castSetKey        = "voted_hashes"
	dupCountKeyPrefix = "duplicate_count:"
)

// ErrUnreachable wraps any Redis connectivity failure. Validation workers
// treat it as the "transient infrastructure fault" error class (spec
// section 7): requeue the message, never reject it.
var ErrUnreachable = errors.New("credential store unreachable")

// Store is the credential store client. One instance is shared by all
// validation workers in a process; it holds no per-ballot state.
type Store struct {
	rdb      *redis.Client
	dedupTTL time.Duration
}

// Connect opens a connection pool to Redis and verifies connectivity.
func Connect(cfg *config.Config) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return &Store{rdb: rdb, dedupTTL: cfg.DeduplicationCountTTL}, nil
}

// FromClient wraps an existing Redis client (used by tests against
// miniredis).
func FromClient(rdb *redis.Client, dedupTTL time.Duration) *Store {
	return &Store{rdb: rdb, dedupTTL: dedupTTL}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// LoadValid seeds V from the offline credential generator's output. Only
// ever called before voting opens; V is read-only afterwards (spec section
// 3, Valid-Credential Set).
func (s *Store) LoadValid(ctx context.Context, fingerprints []string) error {
	if len(fingerprints) == 0 {
		return nil
	}
	members := make([]any, len(fingerprints))
	for i, f := range fingerprints {
		members[i] = f
	}
	if err := s.rdb.SAdd(ctx, validSetKey, members...).Err(); err != nil {
		return fmt.Errorf("%w: load valid set: %v", ErrUnreachable, err)
	}
	return nil
}

// IsValid tests membership in V.
func (s *Store) IsValid(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, validSetKey, fingerprint).Result()
	if err != nil {
		return false, fmt.Errorf("%w: is_valid: %v", ErrUnreachable, err)
	}
	return ok, nil
}

// Claim attempts the atomic insert-if-absent of fingerprint into C. It
// returns true if the caller is the unique claimer ("new"), false if the
// fingerprint was already present ("duplicate"). This is the single
// linearization point of the deduplication guarantee (invariant C2).
func (s *Store) Claim(ctx context.Context, fingerprint string) (claimed bool, err error) {
	n, err := s.rdb.SAdd(ctx, castSetKey, fingerprint).Result()
	if err != nil {
		return false, fmt.Errorf("%w: claim: %v", ErrUnreachable, err)
	}
	return n == 1, nil
}

// IsCast tests membership in C directly. The validation worker uses it to
// re-read C after an accepted audit insert hits the unique index.
func (s *Store) IsCast(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, castSetKey, fingerprint).Result()
	if err != nil {
		return false, fmt.Errorf("%w: is_cast: %v", ErrUnreachable, err)
	}
	return ok, nil
}

// RecordDuplicate atomically increments D[fingerprint] and returns the new
// value. If DeduplicationCountTTL is configured, the key's TTL is
// (re)armed after each increment; the default (zero) retains the counter
// for the whole voting window, per SPEC_FULL.md's Open Question Decisions.
func (s *Store) RecordDuplicate(ctx context.Context, fingerprint string) (int64, error) {
	key := dupCountKeyPrefix + fingerprint
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: record_duplicate: %v", ErrUnreachable, err)
	}
	if s.dedupTTL > 0 {
		if err := s.rdb.Expire(ctx, key, s.dedupTTL).Err(); err != nil {
			return n, fmt.Errorf("%w: arm duplicate ttl: %v", ErrUnreachable, err)
		}
	}
	return n, nil
}

// Ping verifies the credential store is reachable, for the health
// endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return nil
}

// DuplicateCount reads the current value of D[fingerprint] without
// mutating it, used by reconciliation/inspection tooling.
func (s *Store) DuplicateCount(ctx context.Context, fingerprint string) (int64, error) {
	n, err := s.rdb.Get(ctx, dupCountKeyPrefix+fingerprint).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: duplicate_count: %v", ErrUnreachable, err)
	}
	return n, nil
}
