package repository

import (
	"database/sql"
	"time"

	appErrors "github.com/unclebandit/newsletter-engine/internal/errors"
	"github.com/unclebandit/newsletter-engine/internal/model"
)

type DeliveryLogInterface interface {
	Append(a *model.DeliveryAttempt) error
	HistoryFor(campaignID int, since *time.Time) ([]model.DeliveryAttempt, error)
	LastOutcome(campaignID int) (*model.DeliveryAttempt, error)
	StatsFor(campaignID int) (map[string]int, error)
}

// DeliveryLogRepository is the append-only attempt store. Writers only
// insert, so there is no read-modify-write contention on this table.
type DeliveryLogRepository struct {
	DB *sql.DB
}

// Append fails loudly: a storage error surfaces as ErrStorage and the
// caller must abort rather than proceed with an unlogged attempt.
func (r *DeliveryLogRepository) Append(a *model.DeliveryAttempt) error {
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now()
	}
	query := `
        INSERT INTO delivery_attempts (run_id, campaign_id, recipient, outcome, detail, attempted_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	err := r.DB.QueryRow(query, a.RunID, a.CampaignID, a.Recipient, a.Outcome, a.Detail, a.AttemptedAt).Scan(&a.ID)
	if err != nil {
		return appErrors.NewStorage("delivery log append", err)
	}
	return nil
}

// HistoryFor returns attempts ordered by attempt time then insertion id.
// Re-querying yields a fresh consistent view; there is no cursor to resume.
func (r *DeliveryLogRepository) HistoryFor(campaignID int, since *time.Time) ([]model.DeliveryAttempt, error) {
	query := `
        SELECT id, run_id, campaign_id, recipient, outcome, detail, attempted_at
        FROM delivery_attempts
        WHERE campaign_id=$1
    `
	args := []interface{}{campaignID}
	if since != nil {
		query += ` AND attempted_at >= $2`
		args = append(args, *since)
	}
	query += ` ORDER BY attempted_at ASC, id ASC`

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, appErrors.NewStorage("delivery log history", err)
	}
	defer rows.Close()

	attempts := []model.DeliveryAttempt{}
	for rows.Next() {
		var a model.DeliveryAttempt
		if err := rows.Scan(&a.ID, &a.RunID, &a.CampaignID, &a.Recipient, &a.Outcome, &a.Detail, &a.AttemptedAt); err != nil {
			return nil, appErrors.NewStorage("delivery log history", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (r *DeliveryLogRepository) LastOutcome(campaignID int) (*model.DeliveryAttempt, error) {
	query := `
        SELECT id, run_id, campaign_id, recipient, outcome, detail, attempted_at
        FROM delivery_attempts
        WHERE campaign_id=$1
        ORDER BY attempted_at DESC, id DESC
        LIMIT 1
    `
	var a model.DeliveryAttempt
	err := r.DB.QueryRow(query, campaignID).Scan(&a.ID, &a.RunID, &a.CampaignID, &a.Recipient, &a.Outcome, &a.Detail, &a.AttemptedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, appErrors.NewStorage("delivery log last outcome", err)
	}
	return &a, nil
}

func (r *DeliveryLogRepository) StatsFor(campaignID int) (map[string]int, error) {
	query := `SELECT outcome, COUNT(*) FROM delivery_attempts WHERE campaign_id=$1 GROUP BY outcome`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, appErrors.NewStorage("delivery log stats", err)
	}
	defer rows.Close()

	stats := map[string]int{
		model.OutcomeOK:        0,
		model.OutcomeTransient: 0,
		model.OutcomePermanent: 0,
		model.OutcomeSkipped:   0,
	}
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, appErrors.NewStorage("delivery log stats", err)
		}
		stats[outcome] = count
	}
	return stats, rows.Err()
}

var _ DeliveryLogInterface = (*DeliveryLogRepository)(nil)
