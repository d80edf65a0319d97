package queue

import (
	"encoding/json"
	"fmt"

	"github.com/unclebandit/newsletter-engine/internal/model"
)

// RunJob is the payload dispatched for one campaign run. It carries the
// recipient snapshot taken at fire time so the executing process sends to
// exactly the set the dispatcher resolved.
type RunJob struct {
	RunID      string            `json:"run_id"`
	CampaignID int               `json:"campaign_id"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	Recipients []model.Recipient `json:"recipients"`
}

// DecodeRunJob accepts both in-process structs (InMemoryQueue) and JSON
// bytes (AmqpQueue).
func DecodeRunJob(payload any) (*RunJob, error) {
	switch v := payload.(type) {
	case RunJob:
		return &v, nil
	case *RunJob:
		return v, nil
	case []byte:
		var job RunJob
		if err := json.Unmarshal(v, &job); err != nil {
			return nil, fmt.Errorf("invalid run job: %w", err)
		}
		return &job, nil
	}
	return nil, fmt.Errorf("unexpected run job payload type %T", payload)
}
