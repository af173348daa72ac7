package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ttauveron/gcp-iam-watcher/internal/event"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/config"
	"github.com/ttauveron/gcp-iam-watcher/pkg/platform/sentinel"
)

const (
	slackMaxAttempts   = 3
	slackMaxRetryAfter = 30 * time.Second
	slackAPIURL        = "https://slack.com/api/chat.postMessage"
)

// Slack delivers events to a Slack webhook, or to the chat.postMessage API
// when a token and channel are configured instead. Delivery applies a bounded
// retry policy: up to three attempts, exponential backoff on network errors,
// rate-limit hints honored (clamped), any other non-OK status abandoned
// immediately.
type Slack struct {
	webhookURL string
	token      string
	channel    string

	apiURL string
	client *http.Client
	log    *slog.Logger

	// sleep is swappable so tests do not wait out real backoff.
	sleep func(time.Duration)
}

// NewSlack validates the credentials and builds the sink. Either a webhook
// URL, or both token and channel, must be present.
func NewSlack(cfg config.SlackConfig, log *slog.Logger) (*Slack, error) {
	if cfg.WebhookURL == "" && (cfg.Token == "" || cfg.Channel == "") {
		return nil, fmt.Errorf("slack selected but missing config: provide SLACK_WEBHOOK_URL or both SLACK_TOKEN and SLACK_CHANNEL: %w", ErrMisconfigured)
	}
	return &Slack{
		webhookURL: cfg.WebhookURL,
		token:      cfg.Token,
		channel:    cfg.Channel,
		apiURL:     slackAPIURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log,
		sleep:      time.Sleep,
	}, nil
}

func (s *Slack) Name() string { return "slack" }

// Send renders the event and runs the delivery attempt loop.
func (s *Slack) Send(ctx context.Context, ev *event.IamChange) error {
	text := renderSlackText(ev)

	for attempt := 0; attempt < slackMaxAttempts; attempt++ {
		resp, err := s.post(ctx, text)
		if err != nil {
			s.log.Warn("slack request error", "attempt", attempt+1, "error", err)
			if attempt == slackMaxAttempts-1 {
				s.log.Error("slack delivery abandoned after repeated request errors")
				return fmt.Errorf("slack: giving up after %d attempts: %w", slackMaxAttempts, sentinel.ErrUnavailable)
			}
			s.sleep(backoff(attempt))
			continue
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK && s.acknowledged(body) {
			return nil
		}

		switch resp.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			if attempt == slackMaxAttempts-1 {
				s.log.Error("slack delivery abandoned while rate limited", "status", resp.StatusCode)
				return fmt.Errorf("slack: status %d after %d attempts: %w", resp.StatusCode, slackMaxAttempts, sentinel.ErrRateLimited)
			}
			wait := retryDelay(resp.Header.Get("Retry-After"), attempt)
			s.log.Warn("slack retrying", "status", resp.StatusCode, "wait", wait)
			s.sleep(wait)
		default:
			s.log.Error("slack permanent failure", "status", resp.StatusCode, "body", string(body))
			return fmt.Errorf("slack: status %d: %w", resp.StatusCode, sentinel.ErrRejected)
		}
	}

	return fmt.Errorf("slack: giving up after %d attempts: %w", slackMaxAttempts, sentinel.ErrUnavailable)
}

// acknowledged checks application-level success. Webhook responses carry no
// body contract; the token API must answer {"ok": true}.
func (s *Slack) acknowledged(body []byte) bool {
	if s.webhookURL != "" {
		return true
	}
	var ack struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(body, &ack); err != nil {
		return false
	}
	return ack.OK
}

func (s *Slack) post(ctx context.Context, text string) (*http.Response, error) {
	var (
		url     string
		payload any
		headers = map[string]string{"Content-Type": "application/json"}
	)
	if s.webhookURL != "" {
		url = s.webhookURL
		payload = map[string]any{"text": text}
	} else {
		url = s.apiURL
		headers["Authorization"] = "Bearer " + s.token
		payload = map[string]any{
			"channel":      s.channel,
			"text":         text,
			"username":     "IAM Notification",
			"unfurl_links": false,
			"unfurl_media": false,
			"icon_emoji":   ":identification_card:",
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return s.client.Do(req)
}

// backoff returns 2^attempt seconds.
func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// retryDelay honors the server hint when it exceeds the exponential backoff,
// clamped so a hostile Retry-After cannot block the pipeline.
func retryDelay(retryAfter string, attempt int) time.Duration {
	wait := backoff(attempt)
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil {
		if hinted := time.Duration(secs) * time.Second; hinted > wait {
			wait = hinted
		}
	}
	if wait > slackMaxRetryAfter {
		wait = slackMaxRetryAfter
	}
	return wait
}

func renderSlackText(ev *event.IamChange) string {
	display := ev.ResourceDisplay
	if display == "" {
		display = "Unknown"
	}
	lines := []string{
		":information_source: New Role Grant in " + display,
		"*Asset Type:* " + ev.ResourceType,
		"*Asset Name:* " + ev.ResourceName,
	}
	if ev.Actor != "" {
		lines = append(lines, "*Changed by:* "+ev.Actor)
	}
	for _, g := range ev.Changes {
		lines = append(lines, "*Role:* "+g.Role)
		lines = append(lines, "*Granted to:* "+strings.Join(g.Members, ", "))
		if g.Condition != nil {
			lines = append(lines, "*With condition:* "+renderCondition(g.Condition))
		}
	}
	if ev.LogsURL != "" {
		lines = append(lines, fmt.Sprintf("*<%s|Browse Audit Logs>*", ev.LogsURL))
	}
	return strings.Join(lines, "\n")
}

func renderCondition(c *event.Condition) string {
	if c.Title != "" {
		return c.Title + ": " + c.Expression
	}
	return c.Expression
}
