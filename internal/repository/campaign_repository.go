package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/newsletter-engine/internal/errors"
	"github.com/unclebandit/newsletter-engine/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error)

	// Scheduling
	ListDue(now time.Time) ([]*model.Campaign, error)
	TryAcquireRun(id int) (bool, error)
	Release(id int, status string, nextDue *time.Time, retryCount int) error
	UpdateStatus(id int, status string) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, owner_id, name, subject, body, contact_list_id, status,
        periodicity, start_date, end_date, send_time, weekday,
        next_due, retry_count, locked, created_at, updated_at`

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignStatusNew
	}
	query := `
        INSERT INTO campaigns (owner_id, name, subject, body, contact_list_id, status,
                               periodicity, start_date, end_date, send_time, weekday, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.OwnerID, c.Name, c.Subject, c.Body, c.ContactListID, c.Status,
		c.Periodicity, c.StartDate, c.EndDate, c.SendTime, c.Weekday, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

// ListDue returns scheduled campaigns whose next_due has passed. The
// returned rows are candidates only: the lock CAS decides who fires.
func (r *CampaignRepository) ListDue(now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
        FROM campaigns
        WHERE status=$1 AND locked=FALSE AND next_due IS NOT NULL AND next_due <= $2
        ORDER BY next_due ASC`
	rows, err := r.DB.Query(query, model.CampaignStatusScheduled, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	due := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, c)
	}
	return due, rows.Err()
}

// TryAcquireRun is the compare-and-swap guarding against double-firing:
// the row moves to running only if it is still scheduled and unlocked.
// Two concurrent ticks race here and exactly one sees RowsAffected==1.
func (r *CampaignRepository) TryAcquireRun(id int) (bool, error) {
	query := `
        UPDATE campaigns
        SET status=$1, locked=TRUE, updated_at=NOW()
        WHERE id=$2 AND status=$3 AND locked=FALSE
    `
	res, err := r.DB.Exec(query, model.CampaignStatusRunning, id, model.CampaignStatusScheduled)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release drops the run lock and moves the campaign to its post-run state.
func (r *CampaignRepository) Release(id int, status string, nextDue *time.Time, retryCount int) error {
	query := `
        UPDATE campaigns
        SET status=$1, next_due=$2, retry_count=$3, locked=FALSE, updated_at=NOW()
        WHERE id=$4
    `
	_, err := r.DB.Exec(query, status, nextDue, retryCount, id)
	return err
}

// UpdateStatus changes status only; next_due and retry_count are preserved
// (pause relies on this).
func (r *CampaignRepository) UpdateStatus(id int, status string) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, status, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Subject, &c.Body, &c.ContactListID, &c.Status,
		&c.Periodicity, &c.StartDate, &c.EndDate, &c.SendTime, &c.Weekday,
		&c.NextDue, &c.RetryCount, &c.Locked, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
