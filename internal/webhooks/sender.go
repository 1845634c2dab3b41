// internal/webhooks/sender.go
package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	httpclient "courier-gateway/internal/common/http"
)

const (
	userAgent = "Courier-Gateway-Webhooks/1.0"

	headerSignature = "X-Webhook-Signature"
	headerTimestamp = "X-Webhook-Timestamp"
	headerEvent     = "X-Webhook-Event"

	// maxSnapshotBytes bounds stored response bodies and error messages.
	maxSnapshotBytes = 2048
)

// SendResult reports how one delivery went: the true number of HTTP attempts
// made and a size-bounded snapshot of the last response or error.
type SendResult struct {
	Success  bool
	Attempts int
	Snapshot string
}

// Sender POSTs signed payloads with bounded retry. 4xx responses are terminal
// after one attempt; 5xx and network errors are retried with 1s, 2s, 4s
// backoff up to MaxAttempts total.
type Sender struct {
	client      *httpclient.Client
	maxAttempts int
	backoffBase time.Duration
}

func NewSender(timeout time.Duration, maxAttempts int) *Sender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Sender{
		client:      httpclient.NewClient(timeout),
		maxAttempts: maxAttempts,
		backoffBase: time.Second,
	}
}

// Send delivers body to url with the signature headers set. timestamp must be
// the exact string used in the signature.
func (s *Sender) Send(ctx context.Context, url, secret, event, timestamp string, body []byte) SendResult {
	var lastSnapshot string

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		status, snapshot, err := s.post(ctx, url, secret, event, timestamp, body)
		switch {
		case err == nil && status >= 200 && status < 300:
			return SendResult{Success: true, Attempts: attempt, Snapshot: snapshot}
		case err == nil && status >= 400 && status < 500:
			// Client errors won't improve on retry.
			return SendResult{
				Success:  false,
				Attempts: attempt,
				Snapshot: boundSnapshot(fmt.Sprintf("HTTP %d: %s", status, snapshot)),
			}
		case err != nil:
			lastSnapshot = boundSnapshot(err.Error())
		default:
			lastSnapshot = boundSnapshot(fmt.Sprintf("HTTP %d: %s", status, snapshot))
		}

		if attempt < s.maxAttempts {
			delay := s.backoffBase * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return SendResult{Success: false, Attempts: attempt, Snapshot: ctx.Err().Error()}
			case <-time.After(delay):
			}
		}
	}

	return SendResult{Success: false, Attempts: s.maxAttempts, Snapshot: lastSnapshot}
}

func (s *Sender) post(ctx context.Context, url, secret, event, timestamp string, body []byte) (int, string, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(headerSignature, Sign(secret, timestamp, body))
	req.Header.Set(headerTimestamp, timestamp)
	req.Header.Set(headerEvent, event)

	resp, err := s.client.DoWithContext(ctx, req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	return resp.StatusCode, readSnapshot(resp.Body), nil
}

// readSnapshot reads at most maxSnapshotBytes of the response; an oversized
// body is replaced with a size marker rather than stored in full.
func readSnapshot(r io.Reader) string {
	buf, err := io.ReadAll(io.LimitReader(r, maxSnapshotBytes+1))
	if err != nil {
		return ""
	}
	if len(buf) > maxSnapshotBytes {
		rest, _ := io.Copy(io.Discard, r)
		return fmt.Sprintf("[response body %d+ bytes, not stored]", int64(len(buf))+rest)
	}
	return string(buf)
}

func boundSnapshot(s string) string {
	if len(s) <= maxSnapshotBytes {
		return s
	}
	return s[:maxSnapshotBytes]
}
