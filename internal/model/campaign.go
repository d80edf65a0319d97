// internal/model/campaign.go
package model

import "time"

// Campaign lifecycle states. Transitions are owned by the dispatcher:
// new -> scheduled -> running -> {scheduled, completed, paused, failed},
// paused -> scheduled.
const (
	CampaignStatusNew       = "new"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusRunning   = "running"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusFailed    = "failed"
)

type Campaign struct {
	ID            int        `db:"id" json:"id"`
	OwnerID       int        `db:"owner_id" json:"owner_id"`
	Name          string     `db:"name" json:"name"`
	Subject       string     `db:"subject" json:"subject"`
	Body          string     `db:"body" json:"body"`
	ContactListID int        `db:"contact_list_id" json:"contact_list_id"`
	Status        string     `db:"status" json:"status"`
	Periodicity   string     `db:"periodicity" json:"periodicity"` // once, daily, weekly, monthly
	StartDate     time.Time  `db:"start_date" json:"start_date"`
	EndDate       *time.Time `db:"end_date" json:"end_date,omitempty"`
	SendTime      string     `db:"send_time" json:"send_time"` // wall clock "15:04"
	Weekday       *int       `db:"weekday" json:"weekday,omitempty"`
	NextDue       *time.Time `db:"next_due" json:"next_due,omitempty"`
	RetryCount    int        `db:"retry_count" json:"retry_count"`
	Locked        bool       `db:"locked" json:"-"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
