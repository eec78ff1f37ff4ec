// Package ledger notifies an external registry that a log report exists.
// The registry is a collaborator outside this system; notifications are
// best-effort and never affect the outcome of the operation that triggered
// them.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Ledger records that a log identified by its content hash is retrievable
// at url. The returned receipt is an opaque registry identifier, empty when
// the registry does not issue one.
type Ledger interface {
	RecordReport(ctx context.Context, url, sha256 string) (receipt string, err error)
}

// Noop is the Ledger for deployments without a registry.
type Noop struct{}

func (Noop) RecordReport(ctx context.Context, url, sha256 string) (string, error) {
	return "", nil
}

// HTTPLedger posts reports to a registry endpoint.
type HTTPLedger struct {
	endpoint string
	client   *http.Client
}

// NewHTTPLedger creates a client for the registry at endpoint.
func NewHTTPLedger(endpoint string, timeout time.Duration) *HTTPLedger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPLedger{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type reportRequest struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

type reportResponse struct {
	Receipt string `json:"receipt"`
}

// RecordReport posts one report. Any non-2xx status is an error; the caller
// decides whether to log or retry.
func (l *HTTPLedger) RecordReport(ctx context.Context, url, sha256 string) (string, error) {
	body, err := json.Marshal(reportRequest{URL: url, SHA256: sha256})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("registry returned %d: %s", resp.StatusCode, snippet)
	}

	var out reportResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// Registries without a JSON body still count as recorded.
		return "", nil
	}
	return out.Receipt, nil
}
