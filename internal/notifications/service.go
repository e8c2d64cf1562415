package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"weatherflow/internal/config"
)

const userAgent = "weatherflow/1.0"

// Notice describes a finished pipeline run.
type Notice struct {
	RunID        string
	Command      string
	Outcome      string
	Duration     time.Duration
	FailedStages []string
	Artifacts    []string
}

// Service defines the notification surface used by the pipeline.
type Service interface {
	NotifyRunFinished(ctx context.Context, notice Notice) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
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
}

func (n *ntfyService) NotifyRunFinished(ctx context.Context, notice Notice) error {
	return n.send(ctx, formatNotice(notice))
}

func formatNotice(notice Notice) payload {
	duration := notice.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s) finished in %s", shortID(notice.RunID), notice.Command, duration)
	if len(notice.FailedStages) > 0 {
		fmt.Fprintf(&b, "\nFailed: %s", strings.Join(notice.FailedStages, ", "))
	}
	if len(notice.Artifacts) > 0 {
		fmt.Fprintf(&b, "\nArtifacts: %s", strings.Join(notice.Artifacts, ", "))
	}

	data := payload{message: b.String()}
	switch notice.Outcome {
	case "success":
		data.title = "weatherflow - Run Complete"
		data.tags = []string{"weatherflow", "run", "completed"}
	case "partial_failure":
		data.title = "weatherflow - Run Complete (with errors)"
		data.tags = []string{"weatherflow", "run", "warning"}
	default:
		data.title = "weatherflow - Run Failed"
		data.tags = []string{"weatherflow", "run", "error"}
		data.priority = "high"
	}
	return data
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
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

type noopService struct{}

func (noopService) NotifyRunFinished(context.Context, Notice) error { return nil }
