package transport

import (
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"time"

	agenterrors "github.com/luxardolabs/luxanalytics-go/internal/errors"
)

// basicAuthTransport adds the spec's Authorization: Basic header, computed
// from public_id with an empty password half, to every request.
type basicAuthTransport struct {
	publicID  string
	projectID string
	next      http.RoundTripper
}

// WithBasicAuth wraps a RoundTripper, setting Authorization and
// X-Project-Id on every outbound request per spec §4.6/§6.1.
func WithBasicAuth(publicID, projectID string, next http.RoundTripper) http.RoundTripper {
	return &basicAuthTransport{publicID: publicID, projectID: projectID, next: next}
}

func (a *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	token := base64.StdEncoding.EncodeToString([]byte(a.publicID + ":"))
	req.Header.Set("Authorization", "Basic "+token)
	req.Header.Set("X-Project-Id", a.projectID)
	return a.next.RoundTrip(req)
}

// loggingTransport logs request method/URL and response status.
type loggingTransport struct {
	logger *slog.Logger
	next   http.RoundTripper
}

// WithLogging wraps a RoundTripper with request/response logging.
func WithLogging(logger *slog.Logger, next http.RoundTripper) http.RoundTripper {
	return &loggingTransport{logger: logger, next: next}
}

func (l *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := l.next.RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		l.logger.Error("delivery request failed",
			"method", req.Method,
			"url", req.URL.String(),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return resp, err
	}

	l.logger.Debug("delivery request completed",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
	)
	return resp, nil
}

// drainAndClose reads remaining body bytes and closes, preventing
// connection leaks on a pooled http.Client.
func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}

const bodyPreviewLimit = 512

// ParseResponse reads an HTTP response and classifies it per spec §4.6: any
// 2xx status is success; everything else, including the body read for
// diagnostics, becomes a typed failure. The body is never parsed as JSON.
func ParseResponse(resp *http.Response) error {
	defer drainAndClose(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	preview := make([]byte, bodyPreviewLimit)
	n, _ := io.ReadFull(resp.Body, preview)
	return agenterrors.NewServerError(resp.StatusCode, string(preview[:n]))
}
