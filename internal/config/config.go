// Package config loads the pipeline's immutable Configuration bundle, either
// from environment variables (for the reference host binary) or from a
// single DSN string supplied by an embedding application.
package config

import (
	"os"
	"strconv"
	"time"

	agenterrors "github.com/luxardolabs/luxanalytics-go/internal/errors"
)

// OverflowStrategy mirrors errors.OverflowStrategy so config callers do not
// need to import the errors package just to name a policy.
type OverflowStrategy = agenterrors.OverflowStrategy

// Recognized overflow strategies.
const (
	DropOldest = agenterrors.DropOldest
	DropNewest = agenterrors.DropNewest
	DropAll    = agenterrors.DropAll
)

// PinningConfig optionally pins the TLS certificates accepted for
// endpoint_url.
type PinningConfig struct {
	// PinnedSHA256 is the set of base64-encoded SHA-256 hashes of accepted
	// leaf (or, if ValidateChain is true, any) certificates.
	PinnedSHA256 map[string]struct{}
	// AllowSelfSigned skips standard trust evaluation when true.
	AllowSelfSigned bool
	// ValidateChain examines every certificate in the chain rather than
	// only the leaf.
	ValidateChain bool
}

// Config is the immutable configuration bundle for a Pipeline.
type Config struct {
	EndpointURL string
	PublicID    string
	ProjectID   string

	AutoFlushInterval         time.Duration
	BatchSize                 int
	MaxQueueSoft              int
	MaxQueueHard              int
	EventTTL                  time.Duration
	MaxRetryAttempts          uint32
	RequestTimeout            time.Duration
	CompressionEnabled        bool
	CompressionThresholdBytes int
	OverflowStrategy          OverflowStrategy
	Pinning                   *PinningConfig
	DebugLogging              bool
}

// Default returns a Config with every recognized default applied and no
// identity fields set; callers must fill EndpointURL, PublicID, and
// ProjectID (directly or via FromDSN) before calling Validate.
func Default() Config {
	return Config{
		AutoFlushInterval:         30 * time.Second,
		BatchSize:                 50,
		MaxQueueSoft:              500,
		MaxQueueHard:              10000,
		EventTTL:                  7 * 24 * time.Hour,
		MaxRetryAttempts:          5,
		RequestTimeout:            60 * time.Second,
		CompressionEnabled:        true,
		CompressionThresholdBytes: 1024,
		OverflowStrategy:          DropOldest,
	}
}

// Load reads configuration from LUXANALYTICS_* environment variables,
// applying defaults for anything unset. It does not validate; call
// Validate() before use.
func Load() Config {
	cfg := Default()

	cfg.EndpointURL = os.Getenv("LUXANALYTICS_ENDPOINT_URL")
	cfg.PublicID = os.Getenv("LUXANALYTICS_PUBLIC_ID")
	cfg.ProjectID = os.Getenv("LUXANALYTICS_PROJECT_ID")

	cfg.AutoFlushInterval = parseSecondsDuration("LUXANALYTICS_AUTO_FLUSH_INTERVAL_SECONDS", cfg.AutoFlushInterval)
	cfg.BatchSize = parseInt("LUXANALYTICS_BATCH_SIZE", cfg.BatchSize)
	cfg.MaxQueueSoft = parseInt("LUXANALYTICS_MAX_QUEUE_SOFT", cfg.MaxQueueSoft)
	cfg.MaxQueueHard = parseInt("LUXANALYTICS_MAX_QUEUE_HARD", cfg.MaxQueueHard)
	cfg.EventTTL = parseSecondsDuration("LUXANALYTICS_EVENT_TTL_SECONDS", cfg.EventTTL)
	cfg.MaxRetryAttempts = uint32(parseInt("LUXANALYTICS_MAX_RETRY_ATTEMPTS", int(cfg.MaxRetryAttempts)))
	cfg.RequestTimeout = parseSecondsDuration("LUXANALYTICS_REQUEST_TIMEOUT_SECONDS", cfg.RequestTimeout)
	cfg.CompressionEnabled = parseBool("LUXANALYTICS_COMPRESSION_ENABLED", cfg.CompressionEnabled)
	cfg.CompressionThresholdBytes = parseInt("LUXANALYTICS_COMPRESSION_THRESHOLD_BYTES", cfg.CompressionThresholdBytes)
	cfg.DebugLogging = parseBool("LUXANALYTICS_DEBUG_LOGGING", cfg.DebugLogging)

	if v := os.Getenv("LUXANALYTICS_OVERFLOW_STRATEGY"); v != "" {
		cfg.OverflowStrategy = OverflowStrategy(v)
	}

	return cfg
}

// parseSecondsDuration reads an integer-seconds env var, matching the
// LUXANALYTICS_*_SECONDS naming convention used throughout Configuration.
func parseSecondsDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func parseBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func parseInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
