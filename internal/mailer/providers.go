package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/quotedprintable"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// NewProvider builds a Sender from a provider kind. Unknown kinds fall back
// to the log provider so a misconfigured environment still boots.
func NewProvider(kind string, cfg SMTPConfig, logger Logger) Sender {
	switch kind {
	case "", "log":
		return LogSender{Logger: logger}
	case "noop":
		return NoopSender{}
	case "smtp":
		return NewSMTPSender(cfg)
	default:
		if strings.HasPrefix(kind, "http://") || strings.HasPrefix(kind, "https://") {
			return NewWebhookSender(kind, "")
		}
		return LogSender{Logger: logger}
	}
}

// LogSender writes the message to the application log, used in development.
type LogSender struct {
	Logger Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	if s.Logger != nil {
		s.Logger.Info("outbound email to=%s subject=%q", msg.To, msg.Subject)
		s.Logger.Debug("email body:\n%s", msg.TextBody)
	}
	return nil
}

// NoopSender drops messages, used in tests.
type NoopSender struct{}

func (NoopSender) Send(context.Context, Message) error { return nil }

// WebhookSender posts the message as JSON to a relay endpoint.
type WebhookSender struct {
	url    string
	token  string
	client *http.Client
}

func NewWebhookSender(url, token string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	payload := map[string]string{
		"to":      msg.To,
		"subject": msg.Subject,
		"text":    msg.TextBody,
		"html":    msg.HTMLBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode notification payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build notification request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "notification relay unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return goerrors.New("notification relay rejected message", goerrors.CategoryOperation).
			WithMetadata(map[string]any{"status": resp.StatusCode})
	}
	return nil
}

// SMTPConfig holds direct SMTP delivery settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers mail over plain SMTP with AUTH.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	body, err := buildMIME(s.cfg.From, msg)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode email")
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{msg.To}, body); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "smtp delivery failed")
	}
	return nil
}

// buildMIME renders a multipart/alternative document with text and HTML parts.
func buildMIME(from string, msg Message) ([]byte, error) {
	const boundary = "vetcee-alt-boundary"

	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "From: %s\r\n", from)
	fmt.Fprintf(buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(buf, "Subject: %s\r\n", msg.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	for _, part := range []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=utf-8", msg.TextBody},
		{"text/html; charset=utf-8", msg.HTMLBody},
	} {
		fmt.Fprintf(buf, "--%s\r\n", boundary)
		fmt.Fprintf(buf, "Content-Type: %s\r\n", part.contentType)
		buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

		qp := quotedprintable.NewWriter(buf)
		if _, err := qp.Write([]byte(part.body)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(buf, "--%s--\r\n", boundary)

	return buf.Bytes(), nil
}
