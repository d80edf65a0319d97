// internal/mailer/classifier.go
package mailer

import (
	"errors"
	"net"
	"strings"

	"github.com/unclebandit/newsletter-engine/internal/model"
)

// Classifier maps send errors to transient vs permanent outcomes. The
// pattern tables are a configuration point so a provider swap does not
// mean recompiling policy.
type Classifier struct {
	TransientPatterns []string
	PermanentPatterns []string
}

// DefaultClassifier covers the common SMTP failure vocabulary. 4xx codes
// are temporary failures in SMTP, 5xx are permanent.
func DefaultClassifier() *Classifier {
	return &Classifier{
		TransientPatterns: []string{
			"timeout",
			"timed out",
			"connection refused",
			"connection reset",
			"temporarily",
			"try again",
			"421 ", "450 ", "451 ", "452 ",
		},
		PermanentPatterns: []string{
			"invalid address",
			"no such user",
			"user unknown",
			"mailbox unavailable",
			"rejected",
			"550 ", "551 ", "553 ", "554 ",
		},
	}
}

// Classify returns model.OutcomeTransient or model.OutcomePermanent for a
// non-nil send error. Unrecognized errors classify as transient: retrying
// an unknown failure is recoverable, treating it as permanent is not.
func (c *Classifier) Classify(err error) string {
	var transient *TransientError
	if errors.As(err, &transient) {
		return model.OutcomeTransient
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return model.OutcomePermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.OutcomeTransient
	}

	msg := strings.ToLower(err.Error())
	for _, p := range c.PermanentPatterns {
		if strings.Contains(msg, p) {
			return model.OutcomePermanent
		}
	}
	for _, p := range c.TransientPatterns {
		if strings.Contains(msg, p) {
			return model.OutcomeTransient
		}
	}
	return model.OutcomeTransient
}
