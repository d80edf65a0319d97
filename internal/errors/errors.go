// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrInvalidSchedule rejects a malformed schedule at activation time,
// before it can reach the dispatcher loop.
type ErrInvalidSchedule struct {
	Reason string
}

func (e *ErrInvalidSchedule) Error() string {
	return fmt.Sprintf("invalid schedule: %s", e.Reason)
}

func NewInvalidSchedule(reason string) error {
	return &ErrInvalidSchedule{Reason: reason}
}

// ErrLockContention means another tick already holds the campaign's run
// lock. Benign: the caller skips the campaign.
type ErrLockContention struct {
	CampaignID int
}

func (e *ErrLockContention) Error() string {
	return fmt.Sprintf("campaign %d is already running", e.CampaignID)
}

func NewLockContention(id int) error {
	return &ErrLockContention{CampaignID: id}
}

// ErrStorage wraps a delivery log or campaign store failure. Callers must
// not advance campaign state past one of these.
type ErrStorage struct {
	Op  string
	Err error
}

func (e *ErrStorage) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *ErrStorage) Unwrap() error { return e.Err }

func NewStorage(op string, err error) error {
	return &ErrStorage{Op: op, Err: err}
}

// ErrRetryBudgetExhausted marks the terminal failure of a scheduled slot
// after all retry attempts were consumed.
type ErrRetryBudgetExhausted struct {
	CampaignID int
	Attempts   int
}

func (e *ErrRetryBudgetExhausted) Error() string {
	return fmt.Sprintf("campaign %d failed after %d attempts", e.CampaignID, e.Attempts)
}

func NewRetryBudgetExhausted(id, attempts int) error {
	return &ErrRetryBudgetExhausted{CampaignID: id, Attempts: attempts}
}
