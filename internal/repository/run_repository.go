package repository

import (
	"database/sql"
	"time"

	"github.com/unclebandit/newsletter-engine/internal/model"
)

type RunRepositoryInterface interface {
	Create(run *model.Run) error
	GetByID(id string) (*model.Run, error)
	Finalize(run *model.Run) error
	ListByCampaign(campaignID int) ([]*model.Run, error)
}

type RunRepository struct {
	DB *sql.DB
}

func (r *RunRepository) Create(run *model.Run) error {
	run.StartedAt = time.Now()
	if run.Status == "" {
		run.Status = model.RunStatusInProgress
	}
	query := `
        INSERT INTO runs (id, campaign_id, fire_time, status, recipient_count, started_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := r.DB.Exec(query, run.ID, run.CampaignID, run.FireTime, run.Status, run.RecipientCount, run.StartedAt)
	return err
}

func (r *RunRepository) GetByID(id string) (*model.Run, error) {
	query := `
        SELECT id, campaign_id, fire_time, status, recipient_count,
               ok_count, transient_count, permanent_count, skipped_count,
               detail, started_at, finished_at
        FROM runs WHERE id=$1
    `
	var run model.Run
	err := r.DB.QueryRow(query, id).Scan(
		&run.ID, &run.CampaignID, &run.FireTime, &run.Status, &run.RecipientCount,
		&run.OkCount, &run.TransientCount, &run.PermanentCount, &run.SkippedCount,
		&run.Detail, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// Finalize records the aggregate outcome. A run is immutable afterwards;
// nothing in the engine updates a finalized row.
func (r *RunRepository) Finalize(run *model.Run) error {
	now := time.Now()
	run.FinishedAt = &now
	query := `
        UPDATE runs
        SET status=$1, ok_count=$2, transient_count=$3, permanent_count=$4,
            skipped_count=$5, detail=$6, finished_at=$7
        WHERE id=$8
    `
	_, err := r.DB.Exec(query,
		run.Status, run.OkCount, run.TransientCount, run.PermanentCount,
		run.SkippedCount, run.Detail, run.FinishedAt, run.ID,
	)
	return err
}

func (r *RunRepository) ListByCampaign(campaignID int) ([]*model.Run, error) {
	query := `
        SELECT id, campaign_id, fire_time, status, recipient_count,
               ok_count, transient_count, permanent_count, skipped_count,
               detail, started_at, finished_at
        FROM runs WHERE campaign_id=$1
        ORDER BY fire_time DESC
    `
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*model.Run{}
	for rows.Next() {
		var run model.Run
		if err := rows.Scan(
			&run.ID, &run.CampaignID, &run.FireTime, &run.Status, &run.RecipientCount,
			&run.OkCount, &run.TransientCount, &run.PermanentCount, &run.SkippedCount,
			&run.Detail, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

var _ RunRepositoryInterface = (*RunRepository)(nil)
