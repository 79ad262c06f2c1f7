package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ntfyService posts plain-text messages to an ntfy topic URL. Message
// metadata travels in ntfy's Title, Tags and Priority headers.
type ntfyService struct {
	topicURL string
	client   *http.Client
}

func newNtfyService(topicURL string, timeout time.Duration) *ntfyService {
	return &ntfyService{topicURL: topicURL, client: &http.Client{Timeout: timeout}}
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topicURL, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("ntfy %s: build request: %w", event, err)
	}
	msg.applyHeaders(req.Header)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy %s: %w", event, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ntfy %s: status %d: %s", event, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (m message) applyHeaders(h http.Header) {
	h.Set("User-Agent", userAgent)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	if m.title != "" {
		h.Set("Title", m.title)
	}
	if len(m.tags) > 0 {
		h.Set("Tags", strings.Join(m.tags, ","))
	}
	// ntfy treats a missing header as default priority.
	if m.priority != "" && m.priority != "default" {
		h.Set("Priority", m.priority)
	}
}
