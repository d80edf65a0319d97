// internal/service/campaign_service.go
package service

import (
	"strings"
	"time"

	appErrors "github.com/unclebandit/newsletter-engine/internal/errors"
	"github.com/unclebandit/newsletter-engine/internal/model"
	"github.com/unclebandit/newsletter-engine/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	RunRepo      repository.RunRepositoryInterface
	DeliveryLog  repository.DeliveryLogInterface
	Recipients   repository.RecipientRepositoryInterface
}

type CreateCampaignInput struct {
	OwnerID       int
	Name          string
	Subject       string
	Body          string
	ContactListID int
	Periodicity   string
	StartDate     string // "2006-01-02"
	EndDate       *string
	SendTime      string // "15:04"
	Weekday       *int
}

type CampaignDetails struct {
	ID            int            `json:"id"`
	Name          string         `json:"name"`
	Subject       string         `json:"subject"`
	Status        string         `json:"status"`
	Periodicity   string         `json:"periodicity"`
	NextDue       *time.Time     `json:"next_due,omitempty"`
	RetryCount    int            `json:"retry_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     *time.Time     `json:"updated_at,omitempty"`
	RunCount      int            `json:"run_count"`
	DeliveryStats map[string]int `json:"delivery_stats"`
}

// CreateCampaign validates the schedule up front so a malformed one never
// reaches the dispatcher loop.
func (s *CampaignService) CreateCampaign(in CreateCampaignInput) (*model.Campaign, error) {
	start, err := time.ParseInLocation("2006-01-02", in.StartDate, time.Local)
	if err != nil {
		return nil, appErrors.NewInvalidSchedule("start date must be YYYY-MM-DD: " + in.StartDate)
	}

	c := &model.Campaign{
		OwnerID:       in.OwnerID,
		Name:          in.Name,
		Subject:       in.Subject,
		Body:          in.Body,
		ContactListID: in.ContactListID,
		Status:        model.CampaignStatusNew,
		Periodicity:   in.Periodicity,
		StartDate:     start,
		SendTime:      in.SendTime,
		Weekday:       in.Weekday,
	}

	if in.EndDate != nil && strings.TrimSpace(*in.EndDate) != "" {
		end, err := time.ParseInLocation("2006-01-02", *in.EndDate, time.Local)
		if err != nil {
			return nil, appErrors.NewInvalidSchedule("end date must be YYYY-MM-DD: " + *in.EndDate)
		}
		c.EndDate = &end
	}

	if _, err := ScheduleOf(c); err != nil {
		return nil, err
	}

	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.DeliveryLog.StatsFor(campaignID)
	if err != nil {
		return nil, err
	}

	runs, err := s.RunRepo.ListByCampaign(campaignID)
	if err != nil {
		return nil, err
	}

	return &CampaignDetails{
		ID:            campaign.ID,
		Name:          campaign.Name,
		Subject:       campaign.Subject,
		Status:        campaign.Status,
		Periodicity:   campaign.Periodicity,
		NextDue:       campaign.NextDue,
		RetryCount:    campaign.RetryCount,
		CreatedAt:     campaign.CreatedAt,
		UpdatedAt:     campaign.UpdatedAt,
		RunCount:      len(runs),
		DeliveryStats: stats,
	}, nil
}

// History exposes the delivery log to owners and operators.
func (s *CampaignService) History(campaignID int, since *time.Time) ([]model.DeliveryAttempt, error) {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, err
	}
	return s.DeliveryLog.HistoryFor(campaignID, since)
}

func (s *CampaignService) Runs(campaignID int) ([]*model.Run, error) {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, err
	}
	return s.RunRepo.ListByCampaign(campaignID)
}

// RenderPreview renders the campaign body for one recipient, with an
// optional override template.
func (s *CampaignService) RenderPreview(campaignID int, rec model.Recipient, overrideBody *string) (string, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return "", err
	}

	body := campaign.Body
	if overrideBody != nil && strings.TrimSpace(*overrideBody) != "" {
		body = *overrideBody
	}

	return RenderTemplate(body, recipientData(rec)), nil
}
