package destination

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/ttauveron/gcp-iam-watcher/internal/event"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/config"
)

// Email submits one HTML mail per event over SMTP. Exactly one attempt, no
// retry; that asymmetry with the chat sink is intentional per-sink policy.
type Email struct {
	cfg config.SMTPConfig

	// send is swappable in tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmail validates the submission settings and builds the sink.
func NewEmail(cfg config.SMTPConfig) (*Email, error) {
	if cfg.From == "" || cfg.To == "" {
		return nil, fmt.Errorf("email selected but SMTP_EMAIL_FROM or SMTP_EMAIL_TO is missing: %w", ErrMisconfigured)
	}
	return &Email{cfg: cfg, send: smtp.SendMail}, nil
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(_ context.Context, ev *event.IamChange) error {
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))

	var auth smtp.Auth
	if e.cfg.User != "" && e.cfg.Pass != "" {
		auth = smtp.PlainAuth("", e.cfg.User, e.cfg.Pass, e.cfg.Host)
	}

	msg := e.compose(ev)
	if err := e.send(addr, auth, e.cfg.From, []string{e.cfg.To}, msg); err != nil {
		return fmt.Errorf("smtp submit: %w", err)
	}
	return nil
}

func (e *Email) compose(ev *event.IamChange) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", e.cfg.To)
	fmt.Fprintf(&b, "Subject: [GCP IAM] New Role Grant in %s\r\n", ev.ResourceDisplay)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(renderEmailHTML(ev))
	return []byte(b.String())
}

func renderEmailHTML(ev *event.IamChange) string {
	display := ev.ResourceDisplay
	if display == "" {
		display = "Unknown"
	}
	lines := []string{
		"New Role Grant in " + display,
		"<b>Asset Type:</b> " + ev.ResourceType,
		"<b>Asset Name:</b> " + ev.ResourceName,
	}
	if ev.Actor != "" {
		lines = append(lines, "<b>Changed by:</b> "+ev.Actor)
	}
	for _, g := range ev.Changes {
		lines = append(lines, "<b>Role:</b> "+g.Role)
		lines = append(lines, "<b>Granted to:</b> "+strings.Join(g.Members, ", "))
		if g.Condition != nil {
			lines = append(lines, "<b>With condition:</b> "+renderCondition(g.Condition))
		}
	}
	if ev.LogsURL != "" {
		lines = append(lines, fmt.Sprintf(`<b><a href="%s">Browse Audit Logs</a></b>`, ev.LogsURL))
	}
	return strings.Join(lines, "<br>")
}
