package service

import (
	"context"
	"crew-staffing/internal/metrics"
	"crew-staffing/internal/models"
	"crew-staffing/internal/repository"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// waveGrowth is the factor widen_wave applies to the wave multiplier
const waveGrowth = 1.5

// EscalationService relaxes a stuck campaign's policy one step at a time
type EscalationService struct {
	campaigns repository.CampaignRepository
	notifier  Notifier
	metrics   *metrics.Metrics
}

// NewEscalationService creates a new escalation service
func NewEscalationService(campaigns repository.CampaignRepository, notifier Notifier, metrics *metrics.Metrics) *EscalationService {
	return &EscalationService{
		campaigns: campaigns,
		notifier:  notifierOrNoop(notifier),
		metrics:   metrics,
	}
}

// Escalate applies the next unconsumed escalation step to the campaign's
// policy. It does not tick; the next tick runs under the new policy.
func (s *EscalationService) Escalate(ctx context.Context, caller models.Caller, id string) (_ *models.Campaign, _ string, err error) {
	ctx, span := tracer.Start(ctx, "staffing.escalate", trace.WithAttributes(
		attribute.String("campaign.id", id),
	))
	defer func() { endSpan(span, err) }()

	if id == "" {
		return nil, "", validationError("campaign_id is required")
	}
	campaign, err := s.campaigns.GetCampaignByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: campaign %s", ErrNotFound, id)
		}
		return nil, "", fmt.Errorf("failed to get campaign: %w", err)
	}
	if err := Authorize(caller, campaign.Department); err != nil {
		return nil, "", err
	}
	if campaign.Status.Terminal() {
		return nil, "", fmt.Errorf("%w: cannot escalate %s campaign", ErrInvalidState, campaign.Status)
	}

	steps := campaign.Policy.EscalationSteps
	index := campaign.EscalationStepIndex

	// Steps whose relaxation is already in effect are consumed without
	// counting as the applied step.
	next := index
	for next < len(steps) && !stepChangesPolicy(campaign.Policy, steps[next]) {
		next++
	}
	if next >= len(steps) {
		return nil, "", fmt.Errorf("%w: all %d steps of campaign %s already applied", ErrNoMoreSteps, len(steps), id)
	}

	step := steps[next]
	policy, err := ApplyEscalationStep(campaign.Policy, step)
	if err != nil {
		return nil, "", err
	}

	ok, err := s.campaigns.UpdateCampaignPolicy(ctx, id, index, policy, next+1)
	if err != nil {
		return nil, "", fmt.Errorf("failed to escalate campaign: %w", err)
	}
	if !ok {
		return nil, "", fmt.Errorf("%w: campaign was escalated concurrently", ErrInvalidState)
	}

	updated, err := s.campaigns.GetCampaignByID(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("failed to reload campaign: %w", err)
	}

	message := fmt.Sprintf("applied escalation step %d of %d: %s", next+1, len(steps), step)
	if skipped := next - index; skipped > 0 {
		message += fmt.Sprintf(" (skipped %d step(s) already in effect)", skipped)
	}
	s.metrics.IncrementEscalations()
	s.notifier.CampaignUpdated(updated)
	log.Printf("campaign_id=%s: %s, by=%s", id, message, caller.UserID)

	return updated, message, nil
}

// stepChangesPolicy reports whether applying the step would relax anything.
// Unknown steps report true so ApplyEscalationStep can reject them.
func stepChangesPolicy(policy models.Policy, step models.EscalationStep) bool {
	switch step {
	case models.StepIncludeFridge:
		return policy.ExcludeFridge
	case models.StepAllowSoftConflicts:
		return policy.SoftConflictPolicy != models.SoftConflictAllow
	default:
		return true
	}
}

// ApplyEscalationStep returns a copy of the policy relaxed by one step
func ApplyEscalationStep(policy models.Policy, step models.EscalationStep) (models.Policy, error) {
	next := policy
	next.EscalationSteps = append([]models.EscalationStep(nil), policy.EscalationSteps...)

	switch step {
	case models.StepWidenWave:
		next.WaveMultiplier = policy.WaveMultiplier * waveGrowth
	case models.StepIncludeFridge:
		next.ExcludeFridge = false
	case models.StepAllowSoftConflicts:
		next.SoftConflictPolicy = models.SoftConflictAllow
	default:
		return policy, validationError("unknown escalation step %q", step)
	}
	return next, nil
}
