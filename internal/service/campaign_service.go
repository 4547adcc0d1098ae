package service

import (
	"context"
	"crew-staffing/internal/metrics"
	"crew-staffing/internal/models"
	"crew-staffing/internal/repository"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CampaignService manages the lifecycle of staffing campaigns
type CampaignService struct {
	campaigns   repository.CampaignRepository
	facts       repository.FactRepository
	defaults    models.Policy
	rateLimiter *RateLimiter
	notifier    Notifier
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewCampaignService creates a new campaign service
func NewCampaignService(campaigns repository.CampaignRepository, facts repository.FactRepository, defaults models.Policy, rateLimiter *RateLimiter, notifier Notifier, metrics *metrics.Metrics) *CampaignService {
	return &CampaignService{
		campaigns:   campaigns,
		facts:       facts,
		defaults:    defaults,
		rateLimiter: rateLimiter,
		notifier:    notifierOrNoop(notifier),
		metrics:     metrics,
		now:         time.Now,
	}
}

// Start creates an active campaign with one idle role record per selected
// role and schedules it to tick immediately
func (s *CampaignService) Start(ctx context.Context, caller models.Caller, req *models.StartCampaignRequest) (_ *models.Campaign, _ int, err error) {
	ctx, span := tracer.Start(ctx, "staffing.start", trace.WithAttributes(
		attribute.String("job.id", req.JobID),
		attribute.String("department", string(req.Department)),
	))
	defer func() { endSpan(span, err) }()

	policy, err := s.validateStart(req)
	if err != nil {
		return nil, 0, err
	}

	if err := Authorize(caller, req.Department); err != nil {
		return nil, 0, err
	}

	if _, err := s.facts.GetJob(ctx, req.JobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, 0, fmt.Errorf("%w: job %s", ErrNotFound, req.JobID)
		}
		return nil, 0, fmt.Errorf("failed to load job: %w", err)
	}

	required, err := s.facts.ListRequiredRoles(ctx, req.JobID, req.Department)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load required roles: %w", err)
	}

	if req.Scope == models.ScopeOutstanding {
		required, err = s.outstandingRoles(ctx, req.JobID, req.Department, required)
		if err != nil {
			return nil, 0, err
		}
	}

	now := s.now()
	campaign := &models.Campaign{
		ID:           uuid.New().String(),
		JobID:        req.JobID,
		Department:   req.Department,
		CreatedBy:    caller.UserID,
		Mode:         req.Mode,
		Status:       models.CampaignActive,
		Policy:       policy,
		OfferMessage: req.OfferMessage,
		NextRunAt:    &now,
		CreatedAt:    now,
	}

	roles := make([]*models.CampaignRole, 0, len(required))
	for _, rr := range required {
		roles = append(roles, &models.CampaignRole{
			RoleCode: rr.RoleCode,
			Stage:    models.StageIdle,
		})
	}

	if err := s.campaigns.CreateCampaign(ctx, campaign, roles); err != nil {
		return nil, 0, fmt.Errorf("failed to create campaign: %w", err)
	}

	s.metrics.IncrementCampaignsStarted()
	s.notifier.CampaignUpdated(campaign)
	log.Printf("campaign_id=%s: campaign started, job_id=%s, department=%s, mode=%s, roles=%d, by=%s",
		campaign.ID, campaign.JobID, campaign.Department, campaign.Mode, len(roles), caller.UserID)

	return campaign, len(roles), nil
}

func (s *CampaignService) validateStart(req *models.StartCampaignRequest) (models.Policy, error) {
	if req == nil {
		return models.Policy{}, validationError("request body is required")
	}
	req.JobID = strings.TrimSpace(req.JobID)
	if req.JobID == "" {
		return models.Policy{}, validationError("job_id is required")
	}
	if req.Department == "" {
		return models.Policy{}, validationError("department is required")
	}
	if !req.Department.Staffable() {
		return models.Policy{}, validationError("department %q cannot be staffed", req.Department)
	}
	if req.Mode == "" {
		return models.Policy{}, validationError("mode is required")
	}
	if !req.Mode.Valid() {
		return models.Policy{}, validationError("invalid mode %q", req.Mode)
	}
	if req.Scope == "" {
		req.Scope = models.ScopeAll
	}
	if req.Scope != models.ScopeAll && req.Scope != models.ScopeOutstanding {
		return models.Policy{}, validationError("invalid scope %q", req.Scope)
	}

	policy := req.Policy.Merge(s.defaults)
	if err := ValidatePolicy(policy); err != nil {
		return models.Policy{}, err
	}
	return policy, nil
}

// ValidatePolicy checks a fully merged policy and reports failures as
// validation errors
func ValidatePolicy(p models.Policy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// outstandingRoles keeps the roles whose non-declined assignments are
// still below quota
func (s *CampaignService) outstandingRoles(ctx context.Context, jobID string, department models.Department, required []*models.RequiredRole) ([]*models.RequiredRole, error) {
	assignments, err := s.facts.ListAssignments(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	counts := countRoles(department, assignments, nil, nil)

	var outstanding []*models.RequiredRole
	for _, rr := range required {
		if counts[rr.RoleCode].Assigned < rr.Quantity {
			outstanding = append(outstanding, rr)
		}
	}
	return outstanding, nil
}

// Get returns a campaign with its role records
func (s *CampaignService) Get(ctx context.Context, caller models.Caller, id string) (*models.CampaignDetail, error) {
	campaign, err := s.loadAuthorized(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	roles, err := s.campaigns.ListCampaignRoles(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign roles: %w", err)
	}
	return &models.CampaignDetail{Campaign: campaign, Roles: roles}, nil
}

// Pause moves an active campaign to paused
func (s *CampaignService) Pause(ctx context.Context, caller models.Caller, id string) (*models.Campaign, error) {
	return s.transition(ctx, caller, id, "pause",
		[]models.CampaignStatus{models.CampaignActive}, models.CampaignPaused, false)
}

// Resume moves a paused campaign back to active and schedules it immediately
func (s *CampaignService) Resume(ctx context.Context, caller models.Caller, id string) (*models.Campaign, error) {
	return s.transition(ctx, caller, id, "resume",
		[]models.CampaignStatus{models.CampaignPaused}, models.CampaignActive, true)
}

// Stop ends a non-terminal campaign. An in-flight tick is not interrupted;
// it will not reactivate the campaign when it finishes.
func (s *CampaignService) Stop(ctx context.Context, caller models.Caller, id string) (*models.Campaign, error) {
	return s.transition(ctx, caller, id, "stop",
		[]models.CampaignStatus{models.CampaignActive, models.CampaignPaused}, models.CampaignStopped, false)
}

// Nudge schedules an active or paused campaign to run now without
// changing its status
func (s *CampaignService) Nudge(ctx context.Context, caller models.Caller, id string) (*models.Campaign, error) {
	campaign, err := s.loadAuthorized(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	from := []models.CampaignStatus{models.CampaignActive, models.CampaignPaused}
	if !hasStatus(campaign.Status, from) {
		return nil, fmt.Errorf("%w: cannot nudge %s campaign", ErrInvalidState, campaign.Status)
	}

	if err := s.rateLimiter.CheckNudgeRate(ctx, id); err != nil {
		return nil, err
	}

	ok, err := s.campaigns.ScheduleCampaign(ctx, id, from, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to nudge campaign: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: campaign changed status during nudge", ErrInvalidState)
	}

	return s.afterLifecycle(ctx, id, "nudge", caller)
}

func (s *CampaignService) transition(ctx context.Context, caller models.Caller, id, action string, from []models.CampaignStatus, to models.CampaignStatus, reschedule bool) (*models.Campaign, error) {
	campaign, err := s.loadAuthorized(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if !hasStatus(campaign.Status, from) {
		return nil, fmt.Errorf("%w: cannot %s %s campaign", ErrInvalidState, action, campaign.Status)
	}

	var nextRunAt *time.Time
	if reschedule {
		now := s.now()
		nextRunAt = &now
	}

	ok, err := s.campaigns.TransitionCampaign(ctx, id, from, to, nextRunAt)
	if err != nil {
		return nil, fmt.Errorf("failed to %s campaign: %w", action, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: campaign changed status during %s", ErrInvalidState, action)
	}

	return s.afterLifecycle(ctx, id, action, caller)
}

func (s *CampaignService) afterLifecycle(ctx context.Context, id, action string, caller models.Caller) (*models.Campaign, error) {
	updated, err := s.campaigns.GetCampaignByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload campaign: %w", err)
	}

	s.metrics.IncrementLifecycleActions()
	s.notifier.CampaignUpdated(updated)
	log.Printf("campaign_id=%s: %s applied, status=%s, by=%s", id, action, updated.Status, caller.UserID)

	return updated, nil
}

// loadAuthorized fetches a campaign and checks the caller may manage it
func (s *CampaignService) loadAuthorized(ctx context.Context, caller models.Caller, id string) (*models.Campaign, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationError("campaign_id is required")
	}
	campaign, err := s.campaigns.GetCampaignByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: campaign %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	if err := Authorize(caller, campaign.Department); err != nil {
		return nil, err
	}
	return campaign, nil
}

func hasStatus(status models.CampaignStatus, allowed []models.CampaignStatus) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}
