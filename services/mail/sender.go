// Package mail delivers verification, password reset and welcome links.
// Rendering and SMTP delivery belong to the host application; LogSender writes
// the links to the structured log for development.
package mail

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	SubjectVerification  = "Verify your email"
	SubjectPasswordReset = "Reset your password"
	SubjectWelcome       = "Welcome aboard"
)

// Message is a rendered-enough notification: recipient, subject and the link
// the recipient must follow
type Message struct {
	To      string
	Subject string
	Link    string
}

// Sender delivers account notifications
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Links builds frontend URLs for ledger tokens
type Links struct {
	frontendURL string
}

// NewLinks creates a link builder rooted at frontendURL
func NewLinks(frontendURL string) Links {
	return Links{frontendURL: strings.TrimRight(frontendURL, "/")}
}

// Verification returns {frontend}/verify?token=...
func (l Links) Verification(token string) string {
	return l.frontendURL + "/verify?token=" + url.QueryEscape(token)
}

// PasswordReset returns {frontend}/reset-password?token=...
func (l Links) PasswordReset(token string) string {
	return l.frontendURL + "/reset-password?token=" + url.QueryEscape(token)
}

// Login returns {frontend}/login
func (l Links) Login() string {
	return l.frontendURL + "/login"
}

// VerificationMessage builds the verification email for to
func (l Links) VerificationMessage(to, token string) Message {
	return Message{To: to, Subject: SubjectVerification, Link: l.Verification(token)}
}

// PasswordResetMessage builds the password reset email for to
func (l Links) PasswordResetMessage(to, token string) Message {
	return Message{To: to, Subject: SubjectPasswordReset, Link: l.PasswordReset(token)}
}

// WelcomeMessage greets a newly verified principal and points to the login page
func (l Links) WelcomeMessage(to string) Message {
	return Message{To: to, Subject: SubjectWelcome, Link: l.Login()}
}

// LogSender logs messages instead of delivering them
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send implements Sender
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("mail queued",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("link", msg.Link))
	return nil
}
