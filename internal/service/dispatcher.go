// internal/service/dispatcher.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	appErrors "github.com/unclebandit/newsletter-engine/internal/errors"
	"github.com/unclebandit/newsletter-engine/internal/model"
	"github.com/unclebandit/newsletter-engine/internal/queue"
	"github.com/unclebandit/newsletter-engine/internal/repository"
	"github.com/unclebandit/newsletter-engine/internal/schedule"

	"github.com/google/uuid"
)

const (
	defaultMaxRetries       = 3
	defaultFailureThreshold = 0.5
)

// Dispatcher owns the campaign state machine. A periodic tick (or the
// /tick endpoint) drives it; due campaigns are locked, snapshotted, and
// handed to the send pipeline through the run queue.
type Dispatcher struct {
	CampaignRepo repository.CampaignRepositoryInterface
	RunRepo      repository.RunRepositoryInterface
	Recipients   repository.RecipientRepositoryInterface
	Queue        queue.Queue

	// Retry policy for failed runs. Zero values take the defaults:
	// 3 attempts per scheduled slot, backoff 1m doubling up to 15m.
	Backoff          *backoff.Backoff
	MaxRetries       int
	FailureThreshold float64

	// One in-flight run per campaign, so one cancel func per campaign.
	mu      sync.Mutex
	cancels map[int]context.CancelFunc
}

func (d *Dispatcher) maxRetries() int {
	if d.MaxRetries > 0 {
		return d.MaxRetries
	}
	return defaultMaxRetries
}

func (d *Dispatcher) failureThreshold() float64 {
	if d.FailureThreshold > 0 {
		return d.FailureThreshold
	}
	return defaultFailureThreshold
}

func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	b := d.Backoff
	if b == nil {
		b = &backoff.Backoff{Min: time.Minute, Max: 15 * time.Minute, Factor: 2}
	}
	return b.ForAttempt(float64(attempt))
}

// ScheduleOf builds the recurrence schedule from a campaign's stored
// columns. A malformed schedule surfaces as ErrInvalidSchedule.
func ScheduleOf(c *model.Campaign) (schedule.Schedule, error) {
	s := schedule.Schedule{
		Periodicity: schedule.Periodicity(c.Periodicity),
		StartDate:   c.StartDate,
		EndDate:     c.EndDate,
	}
	tod, err := time.Parse("15:04", c.SendTime)
	if err != nil {
		return s, appErrors.NewInvalidSchedule("send time must be HH:MM: " + c.SendTime)
	}
	s.Hour = tod.Hour()
	s.Minute = tod.Minute()

	if c.Weekday != nil {
		if *c.Weekday < 0 || *c.Weekday > 6 {
			return s, appErrors.NewInvalidSchedule(fmt.Sprintf("weekday out of range: %d", *c.Weekday))
		}
		w := time.Weekday(*c.Weekday)
		s.Weekday = &w
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Activate moves a new campaign to scheduled, or straight to completed
// when its schedule is already exhausted.
func (d *Dispatcher) Activate(id int, now time.Time) error {
	c, err := d.CampaignRepo.GetByID(id)
	if err != nil {
		return err
	}
	if c.Status != model.CampaignStatusNew {
		return fmt.Errorf("campaign cannot be activated in status: %s", c.Status)
	}

	sched, err := ScheduleOf(c)
	if err != nil {
		return err
	}

	next, ok := sched.NextFire(now)
	if !ok {
		return d.CampaignRepo.UpdateStatus(id, model.CampaignStatusCompleted)
	}
	return d.CampaignRepo.Release(id, model.CampaignStatusScheduled, &next, 0)
}

// Tick fires every due campaign. Lock contention is benign (another tick
// got there first); other per-campaign errors are logged and the tick
// moves on so one broken campaign cannot starve the rest.
func (d *Dispatcher) Tick(now time.Time) (int, error) {
	due, err := d.CampaignRepo.ListDue(now)
	if err != nil {
		return 0, appErrors.NewStorage("list due campaigns", err)
	}

	fired := 0
	for _, c := range due {
		if err := d.fire(c, now); err != nil {
			var contention *appErrors.ErrLockContention
			if errors.As(err, &contention) {
				continue
			}
			log.Printf("⚠️ tick: campaign %d: %v\n", c.ID, err)
			continue
		}
		fired++
	}
	return fired, nil
}

func (d *Dispatcher) fire(c *model.Campaign, now time.Time) error {
	acquired, err := d.CampaignRepo.TryAcquireRun(c.ID)
	if err != nil {
		return appErrors.NewStorage("acquire run lock", err)
	}
	if !acquired {
		return appErrors.NewLockContention(c.ID)
	}

	// The scheduled slot, not the tick's wall clock: late ticks must not
	// drift the recurrence.
	fireTime := now
	if c.NextDue != nil {
		fireTime = *c.NextDue
	}

	recipients, err := d.Recipients.Resolve(c.ContactListID)
	if err != nil {
		// Put the campaign back; next_due is still in the past so the
		// next tick retries it.
		d.release(c.ID, model.CampaignStatusScheduled, c.NextDue, c.RetryCount)
		return appErrors.NewStorage("resolve recipients", err)
	}

	run := &model.Run{
		ID:             uuid.NewString(),
		CampaignID:     c.ID,
		FireTime:       fireTime,
		Status:         model.RunStatusInProgress,
		RecipientCount: len(recipients),
	}

	if len(recipients) == 0 {
		// Recorded as failed with zero attempts; does not consume the
		// retry budget.
		if err := d.RunRepo.Create(run); err != nil {
			d.release(c.ID, model.CampaignStatusScheduled, c.NextDue, c.RetryCount)
			return appErrors.NewStorage("create run", err)
		}
		run.Status = model.RunStatusFailed
		run.Detail = "empty recipient set"
		if err := d.RunRepo.Finalize(run); err != nil {
			return appErrors.NewStorage("finalize run", err)
		}
		return d.advance(c, fireTime, 0)
	}

	if err := d.RunRepo.Create(run); err != nil {
		d.release(c.ID, model.CampaignStatusScheduled, c.NextDue, c.RetryCount)
		return appErrors.NewStorage("create run", err)
	}

	job := queue.RunJob{
		RunID:      run.ID,
		CampaignID: c.ID,
		Subject:    c.Subject,
		Body:       c.Body,
		Recipients: recipients,
	}
	if err := d.Queue.Publish(queue.TopicCampaignRuns, job); err != nil {
		run.Status = model.RunStatusFailed
		run.Detail = "dispatch: " + err.Error()
		if finErr := d.RunRepo.Finalize(run); finErr != nil {
			return appErrors.NewStorage("finalize run", finErr)
		}
		return d.retryOrFail(c, time.Now())
	}

	log.Printf("🔥 campaign %d fired run %s (%d recipients)\n", c.ID, run.ID, len(recipients))
	return nil
}

// ExecuteRun is the queue subscriber entry point: it runs the pipeline
// for one dispatched run and finalizes the result.
func (d *Dispatcher) ExecuteRun(job *queue.RunJob, p *SendPipeline) error {
	run, err := d.RunRepo.GetByID(job.RunID)
	if err != nil {
		return appErrors.NewStorage("load run", err)
	}
	if run == nil {
		log.Println("⚠️ run not found, dropping job:", job.RunID)
		return nil
	}
	if run.Status != model.RunStatusInProgress {
		// Redelivered after finalize; nothing to do.
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.registerCancel(run.CampaignID, cancel)
	defer d.unregisterCancel(run.CampaignID, cancel)

	result, execErr := p.Execute(ctx, run, job.Subject, job.Body, job.Recipients)
	return d.FinishRun(run, result, execErr, time.Now())
}

// FinishRun finalizes the run and applies the state machine transition:
// success or tolerable partial failure reschedules via the recurrence
// engine; failure takes the retry path until the budget is exhausted.
func (d *Dispatcher) FinishRun(run *model.Run, result *RunResult, execErr error, now time.Time) error {
	run.OkCount = result.Ok
	run.TransientCount = result.Transient
	run.PermanentCount = result.Permanent
	run.SkippedCount = result.Skipped

	overThreshold := float64(result.Permanent) > d.failureThreshold()*float64(run.RecipientCount)
	failed := execErr != nil || overThreshold

	switch {
	case failed && execErr != nil:
		run.Status = model.RunStatusFailed
		run.Detail = execErr.Error()
	case failed:
		run.Status = model.RunStatusFailed
		run.Detail = fmt.Sprintf("permanent failures over threshold: %d of %d", result.Permanent, run.RecipientCount)
	case result.Total() == result.Ok:
		run.Status = model.RunStatusCompleted
	default:
		run.Status = model.RunStatusPartialFailure
	}

	if err := d.RunRepo.Finalize(run); err != nil {
		// Without a durable record we must not advance campaign state;
		// queue redelivery retries the whole run (at-least-once).
		return appErrors.NewStorage("finalize run", err)
	}

	c, err := d.CampaignRepo.GetByID(run.CampaignID)
	if err != nil {
		return err
	}

	// Cancelled mid-run: the run was abandoned, just drop the lock.
	if c.Status == model.CampaignStatusCompleted {
		return d.release(c.ID, model.CampaignStatusCompleted, nil, 0)
	}

	if failed {
		return d.retryOrFailAs(c, now, c.Status == model.CampaignStatusPaused)
	}
	return d.advanceAs(c, run.FireTime, 0, c.Status == model.CampaignStatusPaused)
}

// Pause stops future runs; an in-flight run drains naturally. next_due is
// preserved but not acted upon while paused.
func (d *Dispatcher) Pause(id int) error {
	c, err := d.CampaignRepo.GetByID(id)
	if err != nil {
		return err
	}
	if c.Status != model.CampaignStatusScheduled && c.Status != model.CampaignStatusRunning {
		return fmt.Errorf("campaign cannot be paused in status: %s", c.Status)
	}
	return d.CampaignRepo.UpdateStatus(id, model.CampaignStatusPaused)
}

// Resume re-schedules a paused campaign. A stale next_due recomputes
// from now.
func (d *Dispatcher) Resume(id int, now time.Time) error {
	c, err := d.CampaignRepo.GetByID(id)
	if err != nil {
		return err
	}
	if c.Status != model.CampaignStatusPaused {
		return fmt.Errorf("campaign cannot be resumed in status: %s", c.Status)
	}

	if c.NextDue != nil && c.NextDue.After(now) {
		return d.release(id, model.CampaignStatusScheduled, c.NextDue, c.RetryCount)
	}

	sched, err := ScheduleOf(c)
	if err != nil {
		return err
	}
	next, ok := sched.NextFire(now)
	if !ok {
		return d.release(id, model.CampaignStatusCompleted, nil, 0)
	}
	return d.release(id, model.CampaignStatusScheduled, &next, c.RetryCount)
}

// Cancel terminates the campaign. An in-flight run is hard-abandoned: its
// un-started sends finish as skipped and the run finalizes immediately.
func (d *Dispatcher) Cancel(id int) error {
	c, err := d.CampaignRepo.GetByID(id)
	if err != nil {
		return err
	}
	if c.Status == model.CampaignStatusCompleted || c.Status == model.CampaignStatusFailed {
		return nil
	}
	if err := d.CampaignRepo.UpdateStatus(id, model.CampaignStatusCompleted); err != nil {
		return err
	}

	d.mu.Lock()
	cancel := d.cancels[id]
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// advance recomputes next_due from the completed run's fire time and
// releases the lock; an exhausted schedule completes the campaign.
func (d *Dispatcher) advance(c *model.Campaign, fireTime time.Time, retryCount int) error {
	return d.advanceAs(c, fireTime, retryCount, false)
}

func (d *Dispatcher) advanceAs(c *model.Campaign, fireTime time.Time, retryCount int, stayPaused bool) error {
	sched, err := ScheduleOf(c)
	if err != nil {
		return err
	}
	next, ok := sched.NextFire(fireTime)
	if !ok {
		status := model.CampaignStatusCompleted
		if stayPaused {
			// Owner paused mid-run; let resume observe the exhaustion.
			status = model.CampaignStatusPaused
		}
		return d.release(c.ID, status, nil, retryCount)
	}
	status := model.CampaignStatusScheduled
	if stayPaused {
		status = model.CampaignStatusPaused
	}
	return d.release(c.ID, status, &next, retryCount)
}

func (d *Dispatcher) retryOrFail(c *model.Campaign, now time.Time) error {
	return d.retryOrFailAs(c, now, false)
}

// retryOrFailAs consumes one attempt of the slot's retry budget. The
// retry does not advance the recurrence: next_due becomes now + backoff.
func (d *Dispatcher) retryOrFailAs(c *model.Campaign, now time.Time, stayPaused bool) error {
	attempts := c.RetryCount + 1
	if attempts >= d.maxRetries() {
		log.Println("❌", appErrors.NewRetryBudgetExhausted(c.ID, attempts))
		return d.release(c.ID, model.CampaignStatusFailed, nil, c.RetryCount)
	}

	next := now.Add(d.backoffFor(c.RetryCount))
	status := model.CampaignStatusScheduled
	if stayPaused {
		status = model.CampaignStatusPaused
	}
	return d.release(c.ID, status, &next, attempts)
}

func (d *Dispatcher) release(id int, status string, nextDue *time.Time, retryCount int) error {
	if err := d.CampaignRepo.Release(id, status, nextDue, retryCount); err != nil {
		return appErrors.NewStorage("release campaign", err)
	}
	return nil
}

func (d *Dispatcher) registerCancel(campaignID int, cancel context.CancelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancels == nil {
		d.cancels = make(map[int]context.CancelFunc)
	}
	d.cancels[campaignID] = cancel
}

func (d *Dispatcher) unregisterCancel(campaignID int, cancel context.CancelFunc) {
	cancel()
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cancels, campaignID)
}
