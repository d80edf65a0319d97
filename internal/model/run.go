// internal/model/run.go
package model

import "time"

// Run statuses. A run is immutable once it reaches anything other
// than in_progress.
const (
	RunStatusInProgress     = "in_progress"
	RunStatusCompleted      = "completed"
	RunStatusPartialFailure = "partial_failure"
	RunStatusFailed         = "failed"
)

// Run is one firing of a campaign at a due time.
type Run struct {
	ID             string     `db:"id" json:"id"`
	CampaignID     int        `db:"campaign_id" json:"campaign_id"`
	FireTime       time.Time  `db:"fire_time" json:"fire_time"`
	Status         string     `db:"status" json:"status"`
	RecipientCount int        `db:"recipient_count" json:"recipient_count"`
	OkCount        int        `db:"ok_count" json:"ok_count"`
	TransientCount int        `db:"transient_count" json:"transient_count"`
	PermanentCount int        `db:"permanent_count" json:"permanent_count"`
	SkippedCount   int        `db:"skipped_count" json:"skipped_count"`
	Detail         string     `db:"detail" json:"detail,omitempty"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`
	FinishedAt     *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}
