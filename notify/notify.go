// Package notify implements the notification poster specified in section
// 4.9 of the design specification: a fire-and-forget HTTPS POST of a
// formatted string to a Slack-compatible incoming webhook.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// postTimeout bounds the webhook POST so a slow or hung endpoint never
// blocks the orchestrator's shutdown.
const postTimeout = 30 * time.Second

// FormatMessage builds the completion notification body, mirroring the
// original implementation's message shape: a checkmark section listing
// completed run IDs, a cross section listing failed run IDs, both
// optional, separated by a blank line when both are present.
func FormatMessage(completed, failed []string) string {
	var b strings.Builder

	if len(completed) > 0 {
		fmt.Fprintf(&b, ":white_check_mark: S3 Upload: Successfully uploaded %d runs\n\t:black_square: ", len(completed))
		b.WriteString(strings.Join(completed, "\n\t:black_square: "))
	}

	if len(failed) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, ":x: S3 Upload: Failed uploading %d runs\n\t:black_square: ", len(failed))
		b.WriteString(strings.Join(failed, "\n\t:black_square: "))
	}

	return b.String()
}

// Poster posts formatted messages to a configured webhook URL.
type Poster struct {
	client *http.Client
	logger *slog.Logger
}

// NewPoster creates a Poster with a bounded-timeout HTTP client.
func NewPoster(logger *slog.Logger) *Poster {
	return &Poster{
		client: &http.Client{Timeout: postTimeout},
		logger: logger,
	}
}

// Post sends message to the webhook at url as {"text": message}. Failures
// are logged, never returned: a notification failure must not fail the
// upload run it is reporting on.
func (p *Poster) Post(ctx context.Context, url, message string) {
	if url == "" {
		return
	}

	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		p.log("failed to marshal notification payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		p.log("failed to build notification request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.log("failed to post notification", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.log("notification webhook returned non-200 status", "status", resp.StatusCode)
	}
}

func (p *Poster) log(msg string, args ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Error(msg, args...)
}
