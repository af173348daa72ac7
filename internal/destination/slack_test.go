package destination

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttauveron/gcp-iam-watcher/internal/event"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/config"
	"github.com/ttauveron/gcp-iam-watcher/pkg/platform/sentinel"
)

// newTestSlack builds a webhook-mode sink pointed at url, with sleeps recorded
// instead of slept.
func newTestSlack(t *testing.T, url string) (*Slack, *[]time.Duration) {
	t.Helper()
	s, err := NewSlack(config.SlackConfig{WebhookURL: url}, discard())
	require.NoError(t, err)

	var slept []time.Duration
	s.sleep = func(d time.Duration) { slept = append(slept, d) }
	return s, &slept
}

type errorTransport struct{ calls int }

func (e *errorTransport) RoundTrip(*http.Request) (*http.Response, error) {
	e.calls++
	return nil, errors.New("connection refused")
}

func TestSlackWebhookDelivers(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, slept := newTestSlack(t, srv.URL)
	require.NoError(t, s.Send(context.Background(), sampleEvent()))

	assert.Empty(t, *slept)
	text, _ := got["text"].(string)
	assert.Contains(t, text, "New Role Grant in My Project")
	assert.Contains(t, text, "*Role:* roles/editor")
	assert.Contains(t, text, "*Granted to:* user:a@example.com")
}

func TestSlackRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, slept := newTestSlack(t, srv.URL)
	require.NoError(t, s.Send(context.Background(), sampleEvent()))

	assert.Equal(t, 2, calls)
	require.Len(t, *slept, 1)
	assert.Equal(t, 7*time.Second, (*slept)[0])
}

func TestSlackAbandonsAfterThreeRateLimits(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, slept := newTestSlack(t, srv.URL)
	err := s.Send(context.Background(), sampleEvent())

	require.ErrorIs(t, err, sentinel.ErrRateLimited)
	assert.Equal(t, 3, calls)
	// No sleep after the final attempt.
	assert.Len(t, *slept, 2)
}

func TestSlackAbandonsAfterThreeNetworkErrors(t *testing.T) {
	s, slept := newTestSlack(t, "http://slack.invalid/hook")
	transport := &errorTransport{}
	s.client.Transport = transport

	err := s.Send(context.Background(), sampleEvent())

	require.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Equal(t, 3, transport.calls)
	require.Len(t, *slept, 2)
	assert.Equal(t, 1*time.Second, (*slept)[0])
	assert.Equal(t, 2*time.Second, (*slept)[1])
}

func TestSlackPermanentStatusFailsImmediately(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s, slept := newTestSlack(t, srv.URL)
	err := s.Send(context.Background(), sampleEvent())

	require.ErrorIs(t, err, sentinel.ErrRejected)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestSlackTokenModeRequiresOKBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer xoxb-token", r.Header.Get("Authorization"))

		var payload map[string]any
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "#alerts", payload["channel"])

		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"ok": false, "error": "channel_not_found"}`)
	}))
	defer srv.Close()

	s, err := NewSlack(config.SlackConfig{Token: "xoxb-token", Channel: "#alerts"}, discard())
	require.NoError(t, err)
	s.apiURL = srv.URL
	s.sleep = func(time.Duration) {}

	// A 200 without {"ok": true} is not acknowledged; the status itself is not
	// retryable, so the delivery is rejected on the spot.
	require.ErrorIs(t, s.Send(context.Background(), sampleEvent()), sentinel.ErrRejected)
}

func TestSlackTokenModeDelivers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok": true}`)
	}))
	defer srv.Close()

	s, err := NewSlack(config.SlackConfig{Token: "xoxb-token", Channel: "#alerts"}, discard())
	require.NoError(t, err)
	s.apiURL = srv.URL

	require.NoError(t, s.Send(context.Background(), sampleEvent()))
}

func TestNewSlackValidatesCredentials(t *testing.T) {
	for name, cfg := range map[string]config.SlackConfig{
		"nothing configured": {},
		"token without channel": {Token: "xoxb-token"},
		"channel without token": {Channel: "#alerts"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewSlack(cfg, discard())
			require.ErrorIs(t, err, ErrMisconfigured)
		})
	}
}

func TestRetryDelayClampsHostileHints(t *testing.T) {
	assert.Equal(t, 30*time.Second, retryDelay("86400", 0))
	assert.Equal(t, 7*time.Second, retryDelay("7", 0))
	assert.Equal(t, 2*time.Second, retryDelay("1", 1))   // backoff wins over a smaller hint
	assert.Equal(t, 1*time.Second, retryDelay("", 0))    // no hint, pure backoff
	assert.Equal(t, 4*time.Second, retryDelay("junk", 2))
}

func TestRenderSlackTextOmitsEmptySections(t *testing.T) {
	ev := sampleEvent()
	ev.Actor = ""
	ev.LogsURL = ""
	ev.ResourceDisplay = ""

	text := renderSlackText(ev)
	assert.Contains(t, text, "New Role Grant in Unknown")
	assert.NotContains(t, text, "Changed by")
	assert.NotContains(t, text, "Browse Audit Logs")
}

func TestRenderSlackTextIncludesCondition(t *testing.T) {
	ev := sampleEvent()
	ev.Changes[0].Condition = &event.Condition{
		Expression: `request.time < timestamp("2030-01-01T00:00:00Z")`,
		Title:      "expiry",
	}

	text := renderSlackText(ev)
	assert.Contains(t, text, "*With condition:* expiry: request.time < timestamp(\"2030-01-01T00:00:00Z\")")
}
