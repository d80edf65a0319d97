// internal/service/pipeline.go
package service

import (
	"context"
	"sync"
	"time"

	"github.com/unclebandit/newsletter-engine/internal/mailer"
	"github.com/unclebandit/newsletter-engine/internal/model"
	"github.com/unclebandit/newsletter-engine/internal/ratelimit"
	"github.com/unclebandit/newsletter-engine/internal/repository"
)

const defaultConcurrency = 10

// RunResult aggregates the per-recipient outcomes of one run.
type RunResult struct {
	Ok        int
	Transient int
	Permanent int
	Skipped   int
	Attempts  []model.DeliveryAttempt
}

func (r *RunResult) Total() int {
	return r.Ok + r.Transient + r.Permanent + r.Skipped
}

// SendPipeline fans one run out to its recipient snapshot. At most
// Concurrency sends are in flight at once and every send passes the rate
// limiter first.
type SendPipeline struct {
	Sender      mailer.Sender
	Classifier  *mailer.Classifier
	Log         repository.DeliveryLogInterface
	Limiter     *ratelimit.Limiter
	Provider    string
	RatePerSec  int
	Concurrency int
}

// Execute sends to every recipient in the snapshot. One recipient's
// failure never aborts the others; every recipient yields exactly one
// DeliveryAttempt in the result. Cancelling ctx marks un-started sends as
// skipped. A delivery log failure aborts the remaining sends and is
// returned to the caller, which must not advance campaign state past it.
func (p *SendPipeline) Execute(ctx context.Context, run *model.Run, subject, body string, recipients []model.Recipient) (*RunResult, error) {
	workers := p.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}
	if workers > len(recipients) {
		workers = len(recipients)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		storageMu  sync.Mutex
		storageErr error
	)
	abortOnStorage := func(err error) {
		storageMu.Lock()
		if storageErr == nil {
			storageErr = err
		}
		storageMu.Unlock()
		cancel()
	}

	jobs := make(chan model.Recipient)
	attemptCh := make(chan model.DeliveryAttempt, len(recipients))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				attempt := p.deliverOne(ctx, run, subject, body, rec)
				if logErr := p.Log.Append(&attempt); logErr != nil {
					abortOnStorage(logErr)
				}
				attemptCh <- attempt
			}
		}()
	}

	for _, rec := range recipients {
		jobs <- rec
	}
	close(jobs)
	wg.Wait()
	close(attemptCh)

	result := &RunResult{}
	for attempt := range attemptCh {
		result.Attempts = append(result.Attempts, attempt)
		switch attempt.Outcome {
		case model.OutcomeOK:
			result.Ok++
		case model.OutcomeTransient:
			result.Transient++
		case model.OutcomePermanent:
			result.Permanent++
		case model.OutcomeSkipped:
			result.Skipped++
		}
	}

	storageMu.Lock()
	defer storageMu.Unlock()
	return result, storageErr
}

func (p *SendPipeline) deliverOne(ctx context.Context, run *model.Run, subject, body string, rec model.Recipient) model.DeliveryAttempt {
	attempt := model.DeliveryAttempt{
		RunID:       run.ID,
		CampaignID:  run.CampaignID,
		Recipient:   rec.Email,
		AttemptedAt: time.Now(),
	}

	if ctx.Err() != nil {
		attempt.Outcome = model.OutcomeSkipped
		attempt.Detail = "run abandoned before send"
		return attempt
	}

	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx, p.Provider, p.RatePerSec); err != nil {
			attempt.Outcome = model.OutcomeSkipped
			attempt.Detail = "run abandoned while rate limited"
			return attempt
		}
	}

	data := recipientData(rec)
	err := p.Sender.Send(rec.Email, RenderTemplate(subject, data), RenderTemplate(body, data))
	attempt.AttemptedAt = time.Now()
	if err == nil {
		attempt.Outcome = model.OutcomeOK
		return attempt
	}

	attempt.Outcome = p.Classifier.Classify(err)
	attempt.Detail = err.Error()
	return attempt
}
