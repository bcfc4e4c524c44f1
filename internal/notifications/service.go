package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"drowsy/internal/config"
	"drowsy/internal/session"
)

const userAgent = "Drowsy-Go/0.1.0"

// Service defines the notification surface used by the session controller.
type Service interface {
	Notify(ctx context.Context, evt session.Event) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		alerts:   cfg.Notifications.Alert,
		window:   time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second,
		now:      time.Now,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	alerts   bool
	window   time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

func (n *ntfyService) Notify(ctx context.Context, evt session.Event) error {
	data, ok := n.payloadFor(evt)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

// payloadFor maps a controller event to a message. Most events are not
// pushed; only drowsiness alerts and failures interrupt the user.
func (n *ntfyService) payloadFor(evt session.Event) (payload, bool) {
	switch evt.Kind {
	case session.EventAlertness:
		if !n.alerts || evt.Snapshot.Alertness != session.AlertnessAlert {
			return payload{}, false
		}
		if !n.allowAlert(evt.SessionID, evt.At) {
			return payload{}, false
		}
		return payload{
			title:    "Drowsy - Drowsiness Detected",
			message:  fmt.Sprintf("😴 Drowsiness detected (score %.0f). Consider taking a break.", evt.Snapshot.Score),
			tags:     []string{"drowsy", "alert", "warning"},
			priority: "urgent",
		}, true

	case session.EventFailed:
		message := strings.TrimSpace(evt.Snapshot.Error)
		if message == "" {
			message = session.MessageStartFailed
		}
		return payload{
			title:    "Drowsy - Start Failed",
			message:  "❌ " + message,
			tags:     []string{"drowsy", "error"},
			priority: "high",
		}, true

	case session.EventEnded:
		if evt.Reason != session.EndDeviceRemoved {
			return payload{}, false
		}
		return payload{
			title:    "Drowsy - Camera Removed",
			message:  fmt.Sprintf("📷 Camera disconnected. Monitoring stopped after %s.", roundDuration(evt.Duration)),
			tags:     []string{"drowsy", "camera", "stopped"},
			priority: "high",
		}, true
	}
	return payload{}, false
}

// allowAlert suppresses repeated alerts for one session inside the window.
func (n *ntfyService) allowAlert(sessionID string, at time.Time) bool {
	if at.IsZero() {
		at = n.now()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lastAlert == nil {
		n.lastAlert = make(map[string]time.Time)
	}
	if last, ok := n.lastAlert[sessionID]; ok && n.window > 0 && at.Sub(last) < n.window {
		return false
	}
	n.lastAlert = map[string]time.Time{sessionID: at}
	return true
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Drowsy - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"drowsy", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func roundDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) Notify(context.Context, session.Event) error { return nil }
func (noopService) TestNotification(context.Context) error      { return nil }
