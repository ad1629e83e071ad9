package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"recordsync/internal/config"
	"recordsync/internal/reconcile"
)

const userAgent = "recordsync/0.1.0"

// Service defines the notification surface exposed to the pipeline.
type Service interface {
	NotifyRunCompleted(ctx context.Context, job string, outcome reconcile.Outcome, summary reconcile.Summary) error
	NotifyDeletionBlocked(ctx context.Context, job string, decision reconcile.Decision) error
	NotifyError(ctx context.Context, err error, context string) error
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
		endpoint:        topic,
		client:          &http.Client{Timeout: timeout},
		runSummary:      cfg.Notifications.RunSummary,
		deletionBlocked: cfg.Notifications.DeletionBlocked,
		errors:          cfg.Notifications.Errors,
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

	runSummary      bool
	deletionBlocked bool
	errors          bool
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, job string, outcome reconcile.Outcome, s reconcile.Summary) error {
	if !n.runSummary {
		return nil
	}
	job = strings.TrimSpace(job)
	title := fmt.Sprintf("recordsync - %s", job)
	switch outcome {
	case reconcile.OutcomeCompleted:
		if s.Errored > 0 {
			title += " (with errors)"
		}
	default:
		title += fmt.Sprintf(" (%s)", strings.ReplaceAll(string(outcome), "_", " "))
	}

	message := fmt.Sprintf("%d examined: %d added, %d updated, %d unchanged, %d deleted, %d errored in %s",
		s.Examined, s.Added, s.Updated, s.Unchanged, s.Deleted, s.Errored, formatDuration(s.Duration))
	if s.TrialRun {
		message = "Trial run. " + message
	}
	data := payload{
		title:   title,
		message: message,
		tags:    []string{"recordsync", "run", string(outcome)},
	}
	if outcome == reconcile.OutcomeFailed {
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDeletionBlocked(ctx context.Context, job string, d reconcile.Decision) error {
	if !n.deletionBlocked || !d.Blocked() {
		return nil
	}
	data := payload{
		title:    fmt.Sprintf("recordsync - %s deletions blocked", strings.TrimSpace(job)),
		message:  d.String(),
		tags:     []string{"recordsync", "deletion", d.Reason},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" in ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "recordsync - Error",
		message:  builder.String(),
		tags:     []string{"recordsync", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "recordsync - Test",
		message:  "Notification system test",
		tags:     []string{"recordsync", "test"},
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

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, string, reconcile.Outcome, reconcile.Summary) error {
	return nil
}
func (noopService) NotifyDeletionBlocked(context.Context, string, reconcile.Decision) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                        { return nil }
func (noopService) TestNotification(context.Context) error                                  { return nil }
