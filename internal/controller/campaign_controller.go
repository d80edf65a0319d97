// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/newsletter-engine/internal/errors"
	"github.com/unclebandit/newsletter-engine/internal/model"
	"github.com/unclebandit/newsletter-engine/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Dispatcher      *service.Dispatcher
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OwnerID       int     `json:"owner_id"`
		Name          string  `json:"name"`
		Subject       string  `json:"subject"`
		Body          string  `json:"body"`
		ContactListID int     `json:"contact_list_id"`
		Periodicity   string  `json:"periodicity"`
		StartDate     string  `json:"start_date"`
		EndDate       *string `json:"end_date"`
		SendTime      string  `json:"send_time"`
		Weekday       *int    `json:"weekday"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(service.CreateCampaignInput{
		OwnerID:       body.OwnerID,
		Name:          body.Name,
		Subject:       body.Subject,
		Body:          body.Body,
		ContactListID: body.ContactListID,
		Periodicity:   body.Periodicity,
		StartDate:     body.StartDate,
		EndDate:       body.EndDate,
		SendTime:      body.SendTime,
		Weekday:       body.Weekday,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	campaigns, pagination, err := c.CampaignService.ListCampaigns(page, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

// StartCampaign activates a new campaign: the dispatcher schedules its
// first fire time, or completes it outright if the schedule is exhausted.
func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycleAction(w, r, func(id int) error {
		return c.Dispatcher.Activate(id, time.Now())
	})
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycleAction(w, r, c.Dispatcher.Pause)
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycleAction(w, r, func(id int) error {
		return c.Dispatcher.Resume(id, time.Now())
	})
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycleAction(w, r, c.Dispatcher.Cancel)
}

func (c *CampaignController) lifecycleAction(w http.ResponseWriter, r *http.Request, action func(id int) error) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	if err := action(id); err != nil {
		writeError(w, err)
		return
	}

	campaign, err := c.CampaignService.CampaignRepo.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(campaign)
}

// Tick is the cron-equivalent trigger. The body may pin the evaluation
// instant, which keeps operational replays deterministic.
func (c *CampaignController) Tick(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	var body struct {
		Now *string `json:"now"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.Now != nil {
		t, err := time.Parse(time.RFC3339, *body.Now)
		if err != nil {
			http.Error(w, "invalid now timestamp", http.StatusBadRequest)
			return
		}
		now = t
	}

	fired, err := c.Dispatcher.Tick(now)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"fired": fired,
		"now":   now.Format(time.RFC3339),
	})
}

func (c *CampaignController) History(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var since *time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid since timestamp", http.StatusBadRequest)
			return
		}
		since = &t
	}

	attempts, err := c.CampaignService.History(id, since)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"campaign_id": id,
		"attempts":    attempts,
	})
}

func (c *CampaignController) ListRuns(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	runs, err := c.CampaignService.Runs(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"campaign_id": id,
		"runs":        runs,
	})
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, _ := strconv.Atoi(idStr)

	var body struct {
		Email        string  `json:"email"`
		FirstName    string  `json:"first_name"`
		LastName     string  `json:"last_name"`
		OverrideBody *string `json:"override_body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	rec := model.Recipient{Email: body.Email, FirstName: body.FirstName, LastName: body.LastName}
	rendered, err := c.CampaignService.RenderPreview(id, rec, body.OverrideBody)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"rendered_message": rendered,
		"recipient":        body.Email,
	})
}

func writeError(w http.ResponseWriter, err error) {
	var notFound *appErrors.ErrCampaignNotFound
	if errors.As(err, &notFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	var badSchedule *appErrors.ErrInvalidSchedule
	if errors.As(err, &badSchedule) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
