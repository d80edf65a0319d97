// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/unclebandit/newsletter-engine/internal/controller"
	"github.com/unclebandit/newsletter-engine/internal/db"
	"github.com/unclebandit/newsletter-engine/internal/handler"
	"github.com/unclebandit/newsletter-engine/internal/mailer"
	"github.com/unclebandit/newsletter-engine/internal/queue"
	"github.com/unclebandit/newsletter-engine/internal/ratelimit"
	"github.com/unclebandit/newsletter-engine/internal/repository"
	"github.com/unclebandit/newsletter-engine/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	// Init DB
	db.Init()
	q := queue.NewInMemoryQueue()

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	runRepo := &repository.RunRepository{DB: db.DB}
	deliveryLog := &repository.DeliveryLogRepository{DB: db.DB}
	recipientRepo := &repository.RecipientRepository{DB: db.DB}

	dispatcher := &service.Dispatcher{
		CampaignRepo: campaignRepo,
		RunRepo:      runRepo,
		Recipients:   recipientRepo,
		Queue:        q,
	}

	pipeline := &service.SendPipeline{
		Sender:      newSender(),
		Classifier:  mailer.DefaultClassifier(),
		Log:         deliveryLog,
		Limiter:     ratelimit.New(),
		Provider:    "smtp",
		RatePerSec:  envInt("SEND_RATE_PER_SEC", 20),
		Concurrency: envInt("SEND_CONCURRENCY", 10),
	}

	service.StartRunSubscriber(q, dispatcher, pipeline)

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		RunRepo:      runRepo,
		DeliveryLog:  deliveryLog,
		Recipients:   recipientRepo,
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		Dispatcher:      dispatcher,
	}

	campaignHandler := &handler.CampaignHandler{
		Service: campaignService,
	}

	// Background tick loop: the in-process cron equivalent. POST /tick
	// stays available for on-demand triggering.
	go func() {
		interval := time.Duration(envInt("TICK_INTERVAL_SECONDS", 60)) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for now := range ticker.C {
			fired, err := dispatcher.Tick(now)
			if err != nil {
				log.Println("⚠️ tick failed:", err)
				continue
			}
			if fired > 0 {
				log.Printf("tick fired %d campaign(s)\n", fired)
			}
		}
	}()

	r := chi.NewRouter()

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignHandler.GetCampaignHandlerWithStats)
	r.Post("/campaigns/{id}/start", campaignController.StartCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignController.ResumeCampaign)
	r.Post("/campaigns/{id}/cancel", campaignController.CancelCampaign)
	r.Post("/campaigns/{id}/preview", campaignController.PersonalizedPreview)
	r.Get("/campaigns/{id}/history", campaignController.History)
	r.Get("/campaigns/{id}/runs", campaignController.ListRuns)

	// Trigger route
	r.Post("/tick", campaignController.Tick)

	log.Println("🚀 Server running on :8080")
	log.Fatal(http.ListenAndServe(":8080", r))
}

func newSender() mailer.Sender {
	if os.Getenv("SEND_MODE") == "smtp" {
		return &mailer.SMTPSender{
			Addr: os.Getenv("SMTP_ADDR"),
			From: os.Getenv("SMTP_FROM"),
		}
	}
	return &mailer.MockSender{}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
