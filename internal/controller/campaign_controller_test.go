package controller_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/newsletter-engine/internal/controller"
	appErrors "github.com/unclebandit/newsletter-engine/internal/errors"
	"github.com/unclebandit/newsletter-engine/internal/model"
	"github.com/unclebandit/newsletter-engine/internal/service"
)

// --- mocks ---

type mockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	nextID    int
}

func newMockCampaignRepo() *mockCampaignRepo {
	return &mockCampaignRepo{campaigns: map[int]*model.Campaign{}, nextID: 1}
}

func (r *mockCampaignRepo) add(c *model.Campaign) *model.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		c.ID = r.nextID
		r.nextID++
	}
	cp := *c
	r.campaigns[c.ID] = &cp
	return c
}

func (r *mockCampaignRepo) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	r.add(c)
	return nil
}

func (r *mockCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *mockCampaignRepo) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range r.campaigns {
		if status != "" && c.Status != status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (r *mockCampaignRepo) ListDue(now time.Time) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.Status == model.CampaignStatusScheduled && !c.Locked && c.NextDue != nil && !c.NextDue.After(now) {
			cp := *c
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (r *mockCampaignRepo) TryAcquireRun(id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != model.CampaignStatusScheduled || c.Locked {
		return false, nil
	}
	c.Status = model.CampaignStatusRunning
	c.Locked = true
	return true, nil
}

func (r *mockCampaignRepo) Release(id int, status string, nextDue *time.Time, retryCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return fmt.Errorf("campaign %d not found", id)
	}
	c.Status = status
	c.NextDue = nextDue
	c.RetryCount = retryCount
	c.Locked = false
	return nil
}

func (r *mockCampaignRepo) UpdateStatus(id int, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return fmt.Errorf("campaign %d not found", id)
	}
	c.Status = status
	return nil
}

type mockRunRepo struct {
	mu   sync.Mutex
	runs map[string]*model.Run
}

func (r *mockRunRepo) Create(run *model.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runs == nil {
		r.runs = map[string]*model.Run{}
	}
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *mockRunRepo) GetByID(id string) (*model.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (r *mockRunRepo) Finalize(run *model.Run) error {
	return r.Create(run)
}

func (r *mockRunRepo) ListByCampaign(campaignID int) ([]*model.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Run{}
	for _, run := range r.runs {
		if run.CampaignID == campaignID {
			cp := *run
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockDeliveryLog struct {
	attempts []model.DeliveryAttempt
}

func (l *mockDeliveryLog) Append(a *model.DeliveryAttempt) error {
	l.attempts = append(l.attempts, *a)
	return nil
}

func (l *mockDeliveryLog) HistoryFor(campaignID int, since *time.Time) ([]model.DeliveryAttempt, error) {
	out := []model.DeliveryAttempt{}
	for _, a := range l.attempts {
		if a.CampaignID == campaignID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (l *mockDeliveryLog) LastOutcome(campaignID int) (*model.DeliveryAttempt, error) {
	return nil, nil
}

func (l *mockDeliveryLog) StatsFor(campaignID int) (map[string]int, error) {
	return map[string]int{}, nil
}

type mockResolver struct {
	lists map[int][]model.Recipient
}

func (r *mockResolver) Resolve(contactListID int) ([]model.Recipient, error) {
	return r.lists[contactListID], nil
}

type noopQueue struct{}

func (noopQueue) Publish(topic string, payload any) error               { return nil }
func (noopQueue) Subscribe(topic string, handler func(any) error) error { return nil }

// --- harness ---

type harness struct {
	repo   *mockCampaignRepo
	runs   *mockRunRepo
	router *chi.Mux
}

func newHarness() *harness {
	repo := newMockCampaignRepo()
	runs := &mockRunRepo{}
	resolver := &mockResolver{lists: map[int][]model.Recipient{
		1: {{ID: 1, ContactListID: 1, Email: "alice@example.com", FirstName: "Alice", LastName: "Smith", Active: true}},
	}}

	svc := &service.CampaignService{
		CampaignRepo: repo,
		RunRepo:      runs,
		DeliveryLog:  &mockDeliveryLog{},
		Recipients:   resolver,
	}
	dispatcher := &service.Dispatcher{
		CampaignRepo: repo,
		RunRepo:      runs,
		Recipients:   resolver,
		Queue:        noopQueue{},
	}
	ctrl := &controller.CampaignController{CampaignService: svc, Dispatcher: dispatcher}

	r := chi.NewRouter()
	r.Post("/campaigns", ctrl.CreateCampaign)
	r.Get("/campaigns", ctrl.ListCampaigns)
	r.Post("/campaigns/{id}/start", ctrl.StartCampaign)
	r.Post("/campaigns/{id}/pause", ctrl.PauseCampaign)
	r.Post("/campaigns/{id}/resume", ctrl.ResumeCampaign)
	r.Post("/campaigns/{id}/cancel", ctrl.CancelCampaign)
	r.Post("/campaigns/{id}/preview", ctrl.PersonalizedPreview)
	r.Post("/tick", ctrl.Tick)
	r.Get("/campaigns/{id}/history", ctrl.History)
	r.Get("/campaigns/{id}/runs", ctrl.ListRuns)

	return &harness{repo: repo, runs: runs, router: r}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

// --- tests ---

func TestCreateCampaignEndpoint(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/campaigns", map[string]any{
		"owner_id":        1,
		"name":            "digest",
		"subject":         "Hi {first_name}",
		"body":            "News inside",
		"contact_list_id": 1,
		"periodicity":     "daily",
		"start_date":      "2030-01-01",
		"send_time":       "09:00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var created model.Campaign
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == 0 || created.Status != model.CampaignStatusNew {
		t.Fatalf("unexpected campaign: %+v", created)
	}
}

func TestCreateCampaignRejectsBadSchedule(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/campaigns", map[string]any{
		"owner_id":        1,
		"name":            "broken",
		"contact_list_id": 1,
		"periodicity":     "weekly", // weekly without a weekday
		"start_date":      "2030-01-01",
		"send_time":       "09:00",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartCampaignEndpoint(t *testing.T) {
	h := newHarness()
	h.repo.add(&model.Campaign{
		ContactListID: 1,
		Status:        model.CampaignStatusNew,
		Periodicity:   "daily",
		StartDate:     time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		SendTime:      "09:00",
	})

	rec := h.do(t, http.MethodPost, "/campaigns/1/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got model.Campaign
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != model.CampaignStatusScheduled || got.NextDue == nil {
		t.Fatalf("expected scheduled with next_due, got %+v", got)
	}
}

func TestStartCampaignNotFound(t *testing.T) {
	h := newHarness()
	rec := h.do(t, http.MethodPost, "/campaigns/99/start", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTickEndpointFiresDueCampaign(t *testing.T) {
	h := newHarness()
	due := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	h.repo.add(&model.Campaign{
		ContactListID: 1,
		Status:        model.CampaignStatusScheduled,
		Periodicity:   "daily",
		StartDate:     time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		SendTime:      "09:00",
		NextDue:       &due,
	})

	rec := h.do(t, http.MethodPost, "/tick", map[string]any{
		"now": due.Add(time.Minute).Format(time.RFC3339),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Fired int `json:"fired"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Fired != 1 {
		t.Fatalf("expected 1 fired, got %d", resp.Fired)
	}
}

func TestTickEndpointRejectsBadTimestamp(t *testing.T) {
	h := newHarness()
	rec := h.do(t, http.MethodPost, "/tick", map[string]any{"now": "yesterday"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPersonalizedPreviewEndpoint(t *testing.T) {
	h := newHarness()
	h.repo.add(&model.Campaign{
		ContactListID: 1,
		Status:        model.CampaignStatusNew,
		Periodicity:   "once",
		Body:          "Hello {first_name} {last_name}, your address is {email}.",
		StartDate:     time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC),
		SendTime:      "09:00",
	})

	rec := h.do(t, http.MethodPost, "/campaigns/1/preview", map[string]any{
		"email":      "bob@example.com",
		"first_name": "Bob",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Rendered string `json:"rendered_message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	want := "Hello Bob <unknown>, your address is bob@example.com."
	if resp.Rendered != want {
		t.Fatalf("expected %q, got %q", want, resp.Rendered)
	}
}

func TestHistoryEndpointNotFound(t *testing.T) {
	h := newHarness()
	rec := h.do(t, http.MethodGet, "/campaigns/7/history", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPauseResumeEndpoints(t *testing.T) {
	h := newHarness()
	due := time.Date(2030, time.March, 5, 9, 0, 0, 0, time.UTC)
	h.repo.add(&model.Campaign{
		ContactListID: 1,
		Status:        model.CampaignStatusScheduled,
		Periodicity:   "daily",
		StartDate:     time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		SendTime:      "09:00",
		NextDue:       &due,
	})

	rec := h.do(t, http.MethodPost, "/campaigns/1/pause", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var paused model.Campaign
	json.Unmarshal(rec.Body.Bytes(), &paused)
	if paused.Status != model.CampaignStatusPaused {
		t.Fatalf("expected paused, got %s", paused.Status)
	}

	rec = h.do(t, http.MethodPost, "/campaigns/1/resume", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resumed model.Campaign
	json.Unmarshal(rec.Body.Bytes(), &resumed)
	if resumed.Status != model.CampaignStatusScheduled || resumed.NextDue == nil || !resumed.NextDue.Equal(due) {
		t.Fatalf("expected scheduled at %v, got %+v", due, resumed)
	}
}
