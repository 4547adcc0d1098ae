package service

import (
	"context"
	"crew-staffing/internal/metrics"
	"crew-staffing/internal/models"
	"crew-staffing/internal/repository"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StaleLockAfter is how long a run lock may be held before it is presumed
// abandoned by a crashed tick and reclaimed
const StaleLockAfter = 15 * time.Minute

// TickService runs reconciliation cycles for campaigns
type TickService struct {
	campaigns repository.CampaignRepository
	locker    repository.RunLocker
	reader    *FactReader
	notifier  Notifier
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewTickService creates a new tick service
func NewTickService(campaigns repository.CampaignRepository, locker repository.RunLocker, reader *FactReader, notifier Notifier, metrics *metrics.Metrics) *TickService {
	return &TickService{
		campaigns: campaigns,
		locker:    locker,
		reader:    reader,
		notifier:  notifierOrNoop(notifier),
		metrics:   metrics,
		now:       time.Now,
	}
}

// Tick recomputes every role of an active campaign from the current facts,
// completes the campaign once all roles are filled and otherwise schedules
// the next run. At most one tick holds a campaign's run lock at a time.
func (s *TickService) Tick(ctx context.Context, campaignID string) (_ *models.TickResult, err error) {
	ctx, span := tracer.Start(ctx, "staffing.tick", trace.WithAttributes(
		attribute.String("campaign.id", campaignID),
	))
	defer func() { endSpan(span, err) }()

	if campaignID == "" {
		return nil, validationError("campaign_id is required")
	}

	campaign, err := s.campaigns.GetCampaignByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: campaign %s", ErrNotFound, campaignID)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	if campaign.Status != models.CampaignActive {
		return nil, fmt.Errorf("%w: cannot tick %s campaign", ErrInvalidState, campaign.Status)
	}

	lease, err := s.locker.TryAcquire(ctx, campaignID, s.now(), StaleLockAfter)
	if err != nil {
		if errors.Is(err, repository.ErrLockHeld) {
			s.metrics.IncrementLockContention()
			return nil, fmt.Errorf("%w: campaign %s is already ticking", ErrLockContention, campaignID)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: campaign %s", ErrNotFound, campaignID)
		}
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if lease.Reclaimed {
		s.metrics.IncrementStaleLocksReclaimed()
		log.Printf("campaign_id=%s: WARNING reclaimed stale run lock, last_run_at=%v", campaignID, campaign.LastRunAt)
	}
	span.SetAttributes(attribute.Bool("lock.reclaimed", lease.Reclaimed))

	result, err := s.reconcile(ctx, campaign, lease)
	if err != nil {
		s.metrics.IncrementTicksFailed()
		if !errors.Is(err, ErrLockContention) {
			s.releaseAfterFailure(ctx, campaignID, lease.Token)
		}
		log.Printf("campaign_id=%s: tick failed: %v", campaignID, err)
		return nil, err
	}

	s.metrics.IncrementTicksCompleted()
	s.afterTick(ctx, campaignID, result)

	return result, nil
}

func (s *TickService) reconcile(ctx context.Context, campaign *models.Campaign, lease *repository.Lease) (*models.TickResult, error) {
	facts, err := s.reader.Load(ctx, campaign)
	if err != nil {
		return nil, err
	}

	allFilled := true
	for _, role := range facts.Roles {
		counts := facts.Counts[role.RoleCode]
		counts.Apply(role)
		role.Stage = settleStage(role.Stage, facts.Required[role.RoleCode], counts)

		if err := s.campaigns.UpdateCampaignRole(ctx, role); err != nil {
			return nil, fmt.Errorf("failed to persist role %s: %w", role.RoleCode, err)
		}
		if role.Stage != models.StageFilled {
			allFilled = false
		}
	}

	now := s.now()
	status := models.CampaignActive
	var nextRunAt *time.Time
	if allFilled {
		status = models.CampaignCompleted
	} else {
		next := now.Add(tickInterval(campaign.Policy))
		nextRunAt = &next
	}

	ok, err := s.campaigns.FinishTick(ctx, campaign.ID, lease.Token, status, nextRunAt, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: run lock of campaign %s changed during tick", ErrLockContention, campaign.ID)
	}

	return &models.TickResult{
		TickCompleted:  true,
		RolesProcessed: len(facts.Roles),
		AllFilled:      allFilled,
		NextRunAt:      nextRunAt,
	}, nil
}

// releaseAfterFailure clears the lock so a failed tick does not wedge the
// campaign. It runs even when the request context is already cancelled.
func (s *TickService) releaseAfterFailure(ctx context.Context, campaignID, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.locker.Release(ctx, campaignID, token); err != nil {
		log.Printf("campaign_id=%s: WARNING failed to release run lock after failed tick: %v", campaignID, err)
	}
}

func (s *TickService) afterTick(ctx context.Context, campaignID string, result *models.TickResult) {
	updated, err := s.campaigns.GetCampaignByID(ctx, campaignID)
	if err != nil {
		log.Printf("campaign_id=%s: error reloading campaign after tick: %v", campaignID, err)
		return
	}

	if result.AllFilled && updated.Status == models.CampaignCompleted {
		s.metrics.IncrementCampaignsCompleted()
		log.Printf("campaign_id=%s: all roles filled, campaign completed", campaignID)
	} else {
		log.Printf("campaign_id=%s: tick completed, roles=%d, status=%s, next_run_at=%v",
			campaignID, result.RolesProcessed, updated.Status, updated.NextRunAt)
	}
	s.notifier.CampaignUpdated(updated)
}

func tickInterval(p models.Policy) time.Duration {
	seconds := p.TickIntervalSeconds
	if seconds <= 0 {
		seconds = models.DefaultPolicy().TickIntervalSeconds
	}
	return time.Duration(seconds) * time.Second
}
