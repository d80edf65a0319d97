package mailer_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/unclebandit/newsletter-engine/internal/mailer"
	"github.com/unclebandit/newsletter-engine/internal/model"
)

func TestClassifyTypedErrors(t *testing.T) {
	c := mailer.DefaultClassifier()

	if got := c.Classify(&mailer.TransientError{Detail: "anything"}); got != model.OutcomeTransient {
		t.Errorf("typed transient classified as %s", got)
	}
	if got := c.Classify(&mailer.PermanentError{Detail: "anything"}); got != model.OutcomePermanent {
		t.Errorf("typed permanent classified as %s", got)
	}
	// wrapped typed errors still classify
	wrapped := fmt.Errorf("send failed: %w", &mailer.PermanentError{Detail: "bounced"})
	if got := c.Classify(wrapped); got != model.OutcomePermanent {
		t.Errorf("wrapped permanent classified as %s", got)
	}
}

func TestClassifyByPattern(t *testing.T) {
	c := mailer.DefaultClassifier()

	cases := []struct {
		err  string
		want string
	}{
		{"dial tcp: connection refused", model.OutcomeTransient},
		{"i/o timeout talking to relay", model.OutcomeTransient},
		{"451 requested action aborted", model.OutcomeTransient},
		{"550 no such user here", model.OutcomePermanent},
		{"553 mailbox name not allowed", model.OutcomePermanent},
		{"recipient rejected by policy", model.OutcomePermanent},
		{"something nobody has seen before", model.OutcomeTransient}, // unknown -> retryable
	}
	for _, tc := range cases {
		if got := c.Classify(errors.New(tc.err)); got != tc.want {
			t.Errorf("%q classified as %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestSMTPSenderRejectsInvalidAddress(t *testing.T) {
	s := &mailer.SMTPSender{Addr: "localhost:25", From: "news@example.com"}
	err := s.Send("not-an-address", "hi", "body")

	var permanent *mailer.PermanentError
	if !errors.As(err, &permanent) {
		t.Fatalf("expected PermanentError for malformed address, got %v", err)
	}
}
