// Package notify emails staff when callers leave callbacks or messages.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/resend/resend-go/v2"

	"github.com/axmen-recycling/voice-agent/internal/observability"
	"github.com/axmen-recycling/voice-agent/internal/storage"
)

// Notifier sends staff notifications.
type Notifier interface {
	NotifyCallback(ctx context.Context, cb *storage.CallbackRequest) error
	NotifyMessage(ctx context.Context, m *storage.CustomerMessage) error
}

// ResendConfig configures the Resend notifier.
type ResendConfig struct {
	APIKey       string
	From         string
	CallbackTo   []string
	MessageTo    []string
	TimeZone     string
	BusinessName string
}

// ResendNotifier delivers notifications through the Resend API.
type ResendNotifier struct {
	client *resend.Client
	cfg    ResendConfig
	loc    *time.Location
	now    func() time.Time
}

// NewResendNotifier creates a notifier. The time zone defaults to America/Denver.
func NewResendNotifier(cfg ResendConfig) (*ResendNotifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "America/Denver"
	}
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", cfg.TimeZone, err)
	}
	if cfg.BusinessName == "" {
		cfg.BusinessName = "Axmen Recycling"
	}

	return &ResendNotifier{
		client: resend.NewClient(cfg.APIKey),
		cfg:    cfg,
		loc:    loc,
		now:    time.Now,
	}, nil
}

type callbackView struct {
	Business    string
	Name        string
	Phone       string
	Description string
	Notes       string
	Time        string
}

type messageView struct {
	Business string
	Name     string
	Phone    string
	Message  string
	Time     string
}

var callbackTemplate = template.Must(template.New("callback").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #dc2626; border-bottom: 2px solid #dc2626; padding-bottom: 10px;">New Callback Request</h2>
  <table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
    <tr><td style="padding: 10px; font-weight: bold; width: 140px;">Name:</td><td style="padding: 10px;">{{.Name}}</td></tr>
    <tr><td style="padding: 10px; font-weight: bold;">Phone:</td><td style="padding: 10px;"><a href="tel:{{.Phone}}">{{.Phone}}</a></td></tr>
    <tr><td style="padding: 10px; font-weight: bold;">Asking About:</td><td style="padding: 10px;">{{.Description}}</td></tr>
    {{- if .Notes}}
    <tr><td style="padding: 10px; font-weight: bold;">Notes:</td><td style="padding: 10px;">{{.Notes}}</td></tr>
    {{- end}}
    <tr><td style="padding: 10px; font-weight: bold;">Time:</td><td style="padding: 10px;">{{.Time}}</td></tr>
  </table>
  <p><a href="tel:{{.Phone}}" style="background: #16a34a; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px;">Call Now</a></p>
  <p style="color: #6b7280; font-size: 12px;">This callback was captured by the {{.Business}} voice assistant.</p>
</div>`))

var messageTemplate = template.Must(template.New("message").Parse(`<h2>New Customer Message</h2>
<p><strong>From:</strong> {{.Name}}</p>
<p><strong>Phone:</strong> {{.Phone}}</p>
<p><strong>Message:</strong> {{.Message}}</p>
<p><strong>Time:</strong> {{.Time}}</p>
<hr>
<p style="color: #666; font-size: 12px;">This message was received via the {{.Business}} voice assistant.</p>`))

// NotifyCallback emails the callback recipients.
func (n *ResendNotifier) NotifyCallback(ctx context.Context, cb *storage.CallbackRequest) error {
	if len(n.cfg.CallbackTo) == 0 {
		return nil
	}

	html, err := render(callbackTemplate, callbackView{
		Business:    n.cfg.BusinessName,
		Name:        orDefault(cb.CallerName, "Not provided"),
		Phone:       cb.CallerPhone,
		Description: orDefault(cb.MaterialDescription, "Not specified"),
		Notes:       cb.Notes,
		Time:        n.localTime(),
	})
	if err != nil {
		return err
	}

	subject := "New Callback Request - " + orDefault(cb.CallerName, cb.CallerPhone)
	return n.send(ctx, n.cfg.CallbackTo, subject, html)
}

// NotifyMessage emails the message recipients.
func (n *ResendNotifier) NotifyMessage(ctx context.Context, m *storage.CustomerMessage) error {
	if len(n.cfg.MessageTo) == 0 {
		return nil
	}

	html, err := render(messageTemplate, messageView{
		Business: n.cfg.BusinessName,
		Name:     m.CustomerName,
		Phone:    m.CustomerPhone,
		Message:  m.Message,
		Time:     n.localTime(),
	})
	if err != nil {
		return err
	}

	return n.send(ctx, n.cfg.MessageTo, "New Customer Message from "+m.CustomerName, html)
}

func (n *ResendNotifier) send(ctx context.Context, to []string, subject, html string) error {
	_, err := n.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.cfg.From,
		To:      to,
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (n *ResendNotifier) localTime() string {
	return n.now().In(n.loc).Format("1/2/2006, 3:04:05 PM")
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// Noop discards notifications. Used when no API key is configured.
type Noop struct{}

func (Noop) NotifyCallback(context.Context, *storage.CallbackRequest) error { return nil }
func (Noop) NotifyMessage(context.Context, *storage.CustomerMessage) error { return nil }

// Async sends through next on a background goroutine with its own timeout.
// Failures are logged and never returned.
type Async struct {
	next    Notifier
	timeout time.Duration
	logger  *observability.Logger
	wg      sync.WaitGroup
}

// NewAsync wraps next. A zero timeout defaults to 10s.
func NewAsync(next Notifier, timeout time.Duration, logger *observability.Logger) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Async{next: next, timeout: timeout, logger: logger}
}

// NotifyCallback schedules a callback notification and returns immediately.
func (a *Async) NotifyCallback(_ context.Context, cb *storage.CallbackRequest) error {
	snapshot := *cb
	a.run("callback", func(ctx context.Context) error {
		return a.next.NotifyCallback(ctx, &snapshot)
	})
	return nil
}

// NotifyMessage schedules a message notification and returns immediately.
func (a *Async) NotifyMessage(_ context.Context, m *storage.CustomerMessage) error {
	snapshot := *m
	a.run("message", func(ctx context.Context) error {
		return a.next.NotifyMessage(ctx, &snapshot)
	})
	return nil
}

// Wait blocks until in-flight sends finish.
func (a *Async) Wait() {
	a.wg.Wait()
}

func (a *Async) run(kind string, send func(ctx context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := send(ctx); err != nil {
			a.logger.Warn().
				Err(err).
				Str("kind", kind).
				Msg("Notification failed")
			return
		}
		a.logger.Debug().Str("kind", kind).Msg("Notification sent")
	}()
}
