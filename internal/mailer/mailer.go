// Package mailer delivers portal notifications. The issuance engine only
// sees the Sender interface; providers cover local development (log), relay
// services (webhook) and direct SMTP.
package mailer

import (
	"context"
	"fmt"
	"strings"
)

// Message is one outbound notification.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers a message to an address. Implementations may fail
// transiently; callers decide the retry policy.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function into a Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Logger is the minimal logging surface the providers use.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// MagicLinkEmail builds the verification message for a magic link. New users
// get account-creation copy, returning users a plain sign-in prompt.
func MagicLinkEmail(to, url string, isNewUser bool) Message {
	subject := "Sign in to VetCEE Portal"
	intro := "Click the button below to sign in to your account."
	action := "Sign in"
	if isNewUser {
		subject = "Create your VetCEE Portal account"
		intro = "Click the button below to create your account. This link is valid for a limited time."
		action = "Create Account"
	}

	text := new(strings.Builder)
	fmt.Fprintf(text, "%s\n\n%s\n\n", subject, url)
	text.WriteString("If you didn't request this email, you can safely ignore it.\n")

	html := fmt.Sprintf(`<div style="max-width:600px;margin:0 auto;padding:20px;font-family:Arial,sans-serif;">
  <h2 style="color:#2563eb;">VetCEE Portal</h2>
  <p>%s</p>
  <div style="margin:30px 0;">
    <a href="%s" style="background-color:#2563eb;color:white;padding:12px 24px;text-decoration:none;border-radius:4px;display:inline-block;">%s</a>
  </div>
  <p style="color:#6b7280;font-size:14px;">If you didn't request this email, you can safely ignore it.</p>
  <p style="color:#6b7280;font-size:14px;">Or copy and paste this URL into your browser: %s</p>
</div>`, intro, url, action, url)

	return Message{
		To:       to,
		Subject:  subject,
		TextBody: text.String(),
		HTMLBody: html,
	}
}

// InviteEmail builds the team-invitation message. An empty orgName falls
// back to neutral wording instead of a malformed subject.
func InviteEmail(to, orgName, url string) Message {
	subject := "You have been invited to join VetCEE Portal"
	team := "your team"
	if orgName != "" {
		subject = "You have been invited to join " + orgName + " on VetCEE Portal"
		team = orgName
	}

	text := fmt.Sprintf("%s\n\nFollow the link below to accept the invitation (valid for 24 hours):\n\n%s\n", subject, url)

	html := fmt.Sprintf(`<div style="max-width:600px;margin:0 auto;padding:20px;font-family:Arial,sans-serif;">
  <h2 style="color:#2563eb;">VetCEE Portal</h2>
  <p>You have been invited to join <strong>%s</strong>.</p>
  <div style="margin:30px 0;">
    <a href="%s" style="background-color:#2563eb;color:white;padding:12px 24px;text-decoration:none;border-radius:4px;display:inline-block;">Accept Invitation</a>
  </div>
  <p style="color:#6b7280;font-size:14px;">This link is valid for 24 hours.</p>
</div>`, team, url)

	return Message{To: to, Subject: subject, TextBody: text, HTMLBody: html}
}
