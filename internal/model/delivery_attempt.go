// internal/model/delivery_attempt.go
package model

import "time"

// Per-recipient delivery outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeTransient = "transient_error"
	OutcomePermanent = "permanent_error"
	OutcomeSkipped   = "skipped"
)

// DeliveryAttempt is one recipient-level outcome record. Rows are
// append-only; nothing in the engine mutates or deletes them.
type DeliveryAttempt struct {
	ID          int64     `db:"id" json:"id"`
	RunID       string    `db:"run_id" json:"run_id"`
	CampaignID  int       `db:"campaign_id" json:"campaign_id"`
	Recipient   string    `db:"recipient" json:"recipient"`
	Outcome     string    `db:"outcome" json:"outcome"`
	Detail      string    `db:"detail" json:"detail,omitempty"`
	AttemptedAt time.Time `db:"attempted_at" json:"attempted_at"`
}
