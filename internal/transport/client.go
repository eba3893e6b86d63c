package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/klauspost/compress/zlib"

	"github.com/luxardolabs/luxanalytics-go/internal/config"
	agenterrors "github.com/luxardolabs/luxanalytics-go/internal/errors"
	"github.com/luxardolabs/luxanalytics-go/internal/observability"
	"github.com/luxardolabs/luxanalytics-go/pkg/model"
)

// Client sends batches of events to the analytics endpoint over HTTP. It
// never retries internally — Send reports success or failure and leaves
// retry scheduling entirely to the Pipeline, per spec §4.6.
type Client struct {
	httpClient *http.Client
	metrics    *observability.Metrics
}

// NewClient builds a Client for cfg, wiring the Basic-auth middleware and,
// if configured, certificate pinning into the base transport. Callers
// typically cache one Client per pinning-configuration fingerprint.
func NewClient(cfg config.Config, metrics *observability.Metrics) *Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	if tlsCfg := tlsConfigFor(cfg.Pinning); tlsCfg != nil {
		base.TLSClientConfig = tlsCfg
	}

	rt := WithBasicAuth(cfg.PublicID, cfg.ProjectID, base)

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: rt,
		},
		metrics: metrics,
	}
}

// Send delivers events in a single HTTP request and reports success or
// failure. It is the sole network-facing operation Transport exposes; the
// caller (Pipeline) owns all retry and circuit-breaker bookkeeping.
func (c *Client) Send(ctx context.Context, endpointURL string, events []model.Event, cfg config.Config) error {
	body, err := marshalBody(events)
	if err != nil {
		return fmt.Errorf("transport: failed to marshal body: %w", err)
	}

	originalSize := len(body)
	contentEncoding := ""
	if cfg.CompressionEnabled && originalSize >= cfg.CompressionThresholdBytes {
		compressed, cerr := deflate(body)
		if cerr == nil {
			body = compressed
			contentEncoding = "deflate"
			if c.metrics != nil && originalSize > 0 {
				c.metrics.CompressionRatio.Set(float64(len(compressed)) / float64(originalSize))
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if contentEncoding != "" {
		req.Header.Set("Content-Encoding", contentEncoding)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)

	if c.metrics != nil {
		c.metrics.TransportRequestDuration.Observe(elapsed.Seconds())
	}

	if err != nil {
		if c.metrics != nil {
			c.metrics.TransportRequestTotal.WithLabelValues("failure").Inc()
		}
		return agenterrors.NewNetworkError(err)
	}

	if perr := ParseResponse(resp); perr != nil {
		if c.metrics != nil {
			c.metrics.TransportRequestTotal.WithLabelValues("failure").Inc()
		}
		return perr
	}

	if c.metrics != nil {
		c.metrics.TransportRequestTotal.WithLabelValues("success").Inc()
	}
	return nil
}

// marshalBody implements spec §4.6 request construction step 1: a lone
// event is sent bare, a batch is wrapped in {"events": [...]}.
func marshalBody(events []model.Event) ([]byte, error) {
	if len(events) == 1 {
		return json.Marshal(events[0])
	}
	return json.Marshal(model.BatchPayload{Events: events})
}

// deflate zlib-compresses data per spec §4.6 step 2.
func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
