// internal/mailer/sender.go
package mailer

import (
	"fmt"
	"math/rand"
	"net/mail"
	"net/smtp"
	"strings"
)

// Sender is the mail-send collaborator. The engine treats it as a black
// box: any error it returns is classified, never retried inline.
type Sender interface {
	Send(to, subject, body string) error
}

// TransientError marks a failure worth retrying (timeouts, connection
// drops, provider 4xx-greylisting). Senders may return it directly to
// bypass pattern classification.
type TransientError struct {
	Detail string
}

func (e *TransientError) Error() string { return e.Detail }

// PermanentError marks a failure that will not self-correct (invalid
// address, provider rejection).
type PermanentError struct {
	Detail string
}

func (e *PermanentError) Error() string { return e.Detail }

// SMTPSender delivers through a plain SMTP relay.
type SMTPSender struct {
	Addr string // host:port
	From string
	Auth smtp.Auth
}

func (s *SMTPSender) Send(to, subject, body string) error {
	if _, err := mail.ParseAddress(to); err != nil {
		return &PermanentError{Detail: fmt.Sprintf("invalid address %q: %v", to, err)}
	}

	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	return smtp.SendMail(s.Addr, s.Auth, s.From, []string{to}, []byte(msg))
}

// MockSender simulates a provider for local runs: 90% success, with the
// failures split between transient and permanent.
type MockSender struct{}

func (m *MockSender) Send(to, subject, body string) error {
	r := rand.Float64()
	switch {
	case r < 0.9:
		return nil
	case r < 0.97:
		return &TransientError{Detail: "mock provider timeout"}
	default:
		return &PermanentError{Detail: "mock provider rejected recipient"}
	}
}
