// Package notification renders participant notifications. Delivery belongs to
// an external service; LogNotifier records the rendered message instead.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/example/networking-rounds/internal/application"
	"github.com/example/networking-rounds/internal/logging"
)

var messages = map[string]string{
	application.TemplateRegistrationReceived: `You are registered for {{.session_title}} ({{join .round_names ", "}}). The first round starts {{when .round_start}}.`,
	application.TemplateVerifyEmail:          `Your verification code for {{.session_title}} is {{.code}}. The first round starts {{when .round_start}}.`,
	application.TemplateConfirmationWindow:   `{{.round_name}} of {{.session_title}} starts {{when .round_start}}. Confirm that you are attending now.`,
	application.TemplateMatchAssigned: `{{.round_name}} has started. Meet your group of {{.group_size}} at {{.meeting_point}}.` +
		`{{if .video_url}} Join at {{.video_url}}.{{end}}{{if .topic}} Topic: {{.topic}}.{{end}}`,
	application.TemplateNoMatch: `We could not place you in a group for {{.round_name}} of {{.session_title}} ({{.reason}}).`,
}

// LogNotifier renders notifications and writes them to the log.
type LogNotifier struct {
	templates *template.Template
	now       func() time.Time
	logger    *slog.Logger
}

// NewLogNotifier parses the message templates. now anchors relative times.
func NewLogNotifier(now func() time.Time, logger *slog.Logger) (*LogNotifier, error) {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &LogNotifier{now: now, logger: logger}
	root := template.New("notifications").Option("missingkey=zero").Funcs(template.FuncMap{
		"join": join,
		"when": n.when,
	})
	for name, text := range messages {
		if _, err := root.New(name).Parse(text); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
	}
	n.templates = root
	return n, nil
}

// Send renders the notification. Participants without an email address are
// skipped.
func (n *LogNotifier) Send(ctx context.Context, notification application.Notification) (application.NotificationResult, error) {
	logger := logging.Resolve(ctx, n.logger).With("template", notification.Template, "participant_id", notification.Participant.ID)

	body, err := n.Render(notification)
	if err != nil {
		return application.NotificationFailed, err
	}
	if notification.Participant.Email == "" {
		logger.DebugContext(ctx, "notification skipped, no address")
		return application.NotificationSkipped, nil
	}
	logger.InfoContext(ctx, "notification sent", "to", notification.Participant.Email, "body", body)
	return application.NotificationSent, nil
}

// Render returns the message text of notification.
func (n *LogNotifier) Render(notification application.Notification) (string, error) {
	tmpl := n.templates.Lookup(notification.Template)
	if tmpl == nil {
		return "", fmt.Errorf("unknown notification template %q", notification.Template)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, notification.Variables); err != nil {
		return "", fmt.Errorf("render %s: %w", notification.Template, err)
	}
	return b.String(), nil
}

func (n *LogNotifier) when(v any) string {
	t, ok := v.(time.Time)
	if !ok || t.IsZero() {
		return "soon"
	}
	return humanize.RelTime(t, n.now(), "ago", "from now")
}

func join(v any, sep string) string {
	values, _ := v.([]string)
	return strings.Join(values, sep)
}
