// internal/service/subscriber.go
package service

import (
	"log"

	"github.com/unclebandit/newsletter-engine/internal/queue"
)

// StartRunSubscriber wires dispatched run jobs into the send pipeline.
// The server uses it with the in-memory queue; the worker binary uses it
// with the amqp queue.
func StartRunSubscriber(q queue.Queue, d *Dispatcher, p *SendPipeline) {
	go func() {
		err := q.Subscribe(queue.TopicCampaignRuns, func(payload any) error {
			job, err := queue.DecodeRunJob(payload)
			if err != nil {
				log.Println("⚠️ dropping malformed run job:", err)
				return nil // no retry
			}
			return d.ExecuteRun(job, p)
		})
		if err != nil {
			log.Println("⚠️ failed to subscribe to", queue.TopicCampaignRuns, ":", err)
		}
	}()
}
