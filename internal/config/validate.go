package config

import (
	"strings"

	agenterrors "github.com/luxardolabs/luxanalytics-go/internal/errors"
)

// Validate checks that c holds a usable Configuration, returning a
// *errors.ConfigError describing the first invalid field found.
func (c Config) Validate() error {
	if c.EndpointURL == "" {
		return agenterrors.NewConfigError("endpoint_url is required")
	}
	if !strings.HasPrefix(c.EndpointURL, "https://") && !strings.HasPrefix(c.EndpointURL, "http://") {
		return agenterrors.NewConfigError("endpoint_url must be an http(s) URL")
	}

	if c.PublicID == "" {
		return agenterrors.NewConfigError("public_id is required")
	}

	if c.ProjectID == "" {
		return agenterrors.NewConfigError("project_id is required")
	}

	if c.AutoFlushInterval <= 0 {
		return agenterrors.NewConfigError("auto_flush_interval_seconds must be > 0")
	}

	if c.BatchSize <= 0 {
		return agenterrors.NewConfigError("batch_size must be > 0")
	}

	if c.MaxQueueSoft <= 0 {
		return agenterrors.NewConfigError("max_queue_soft must be > 0")
	}

	if c.MaxQueueHard < c.MaxQueueSoft {
		return agenterrors.NewConfigError("max_queue_hard must be >= max_queue_soft")
	}

	if c.EventTTL <= 0 {
		return agenterrors.NewConfigError("event_ttl_seconds must be > 0")
	}

	if c.RequestTimeout <= 0 {
		return agenterrors.NewConfigError("request_timeout_seconds must be > 0")
	}

	if c.CompressionThresholdBytes < 0 {
		return agenterrors.NewConfigError("compression_threshold_bytes must be >= 0")
	}

	switch c.OverflowStrategy {
	case agenterrors.DropOldest, agenterrors.DropNewest, agenterrors.DropAll:
	default:
		return agenterrors.NewConfigError("overflow_strategy must be one of drop-oldest, drop-newest, drop-all")
	}

	if c.Pinning != nil && !c.Pinning.AllowSelfSigned && len(c.Pinning.PinnedSHA256) == 0 {
		return agenterrors.NewConfigError("certificate_pinning requires at least one pinned hash unless allow_self_signed is set")
	}

	return nil
}
