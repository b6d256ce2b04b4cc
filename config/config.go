// Package config centralizes the environment-driven configuration for every
// process in the pipeline (ingestion, validation worker, aggregator). A
// single Config is loaded once at process start-up via FromEnv and passed
// explicitly to constructors; nothing below this layer reads the
// environment directly.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable named in spec section 6, plus the connection
// settings for the three external systems the pipeline depends on.
type Config struct {
	// HTTP surface (ingestion front-end).
	HTTPHost string
	HTTPPort int

	// Credential store (V, C, D).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Audit & tally store.
	PostgresDSN string

	// Durable message bus.
	NATSURL string

	// BatchSize is the aggregator flush threshold in envelopes.
	BatchSize int
	// BatchInterval is the time-based flush trigger.
	BatchInterval time.Duration
	// WorkerPrefetch bounds in-flight messages per validation worker.
	WorkerPrefetch int
	// PublishConfirmTimeout bounds how long a publish waits for broker
	// confirmation before the caller treats it as failed.
	PublishConfirmTimeout time.Duration
	// MaxRetry is the number of aggregator batch-commit attempts, the first
	// one included, before the batch is moved to the review queue.
	MaxRetry int
	// RetryBaseDelay is the base of the exponential backoff between
	// aggregator batch retries (doubled per attempt).
	RetryBaseDelay time.Duration
	// QueueMaxLength is the maximum length of each bus stream before
	// publishes are rejected.
	QueueMaxLength int
	// DeduplicationCountTTL is how long a duplicate-attempt counter is
	// retained. Zero means "retained for the voting window" (no TTL).
	DeduplicationCountTTL time.Duration

	// RequestDeadline is the hard deadline for an ingestion HTTP request.
	RequestDeadline time.Duration
	// WorkerMessageDeadline is the per-message processing deadline for a
	// validation worker before the message is requeued.
	WorkerMessageDeadline time.Duration
	// WorkerEnforcesWindow additionally checks the election window inside
	// the validation worker (belt-and-suspenders on top of ingestion's
	// check). Off by default; see SPEC_FULL.md Open Question Decisions.
	WorkerEnforcesWindow bool

	// LogLevel and LogOutput configure the log package.
	LogLevel  string
	LogOutput string
}

// FromEnv loads configuration from the environment, falling back to the
// defaults named in spec section 6 for anything unset.
func FromEnv() *Config {
	return &Config{
		HTTPHost: getString("HTTP_HOST", "0.0.0.0"),
		HTTPPort: getInt("HTTP_PORT", 8080),

		RedisAddr:     getString("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getString("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		PostgresDSN: getString("POSTGRES_DSN", "postgres://localhost:5432/ballotpipe?sslmode=disable"),

		NATSURL: getString("NATS_URL", "nats://127.0.0.1:4222"),

		BatchSize:             getInt("BATCH_SIZE", 100),
		BatchInterval:         getDuration("BATCH_INTERVAL_MS", time.Second),
		WorkerPrefetch:        getInt("WORKER_PREFETCH", 10),
		PublishConfirmTimeout: getDuration("PUBLISH_CONFIRM_TIMEOUT_MS", 5*time.Second),
		MaxRetry:              getInt("MAX_RETRY", 3),
		RetryBaseDelay:        getDuration("RETRY_BASE_MS", time.Second),
		QueueMaxLength:        getInt("QUEUE_MAX_LENGTH", 100_000),
		DeduplicationCountTTL: getDuration("DEDUPLICATION_COUNT_TTL_MS", 0),

		RequestDeadline:       getDuration("REQUEST_DEADLINE_MS", 10*time.Second),
		WorkerMessageDeadline: getDuration("WORKER_MESSAGE_DEADLINE_MS", 30*time.Second),
		WorkerEnforcesWindow:  getBool("WORKER_ENFORCES_WINDOW", false),

		LogLevel:  getString("LOG_LEVEL", "info"),
		LogOutput: getString("LOG_OUTPUT", "stderr"),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// getDuration reads a millisecond value from the environment. A value of
// "0" is a valid, meaningful setting (e.g. DEDUPLICATION_COUNT_TTL_MS=0
// means no TTL) so it is distinguished from "unset".
func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}
