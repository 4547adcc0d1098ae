package service

import (
	"context"
	"crew-staffing/internal/models"
	"crew-staffing/internal/repository"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// CampaignFacts are the inputs of one reconciliation cycle
type CampaignFacts struct {
	Roles    []*models.CampaignRole
	Required map[string]int
	Counts   map[string]models.RoleCounts
}

// FactReader loads the facts a campaign's role stages are derived from
type FactReader struct {
	campaigns repository.CampaignRepository
	facts     repository.FactRepository
}

// NewFactReader creates a new fact reader
func NewFactReader(campaigns repository.CampaignRepository, facts repository.FactRepository) *FactReader {
	return &FactReader{
		campaigns: campaigns,
		facts:     facts,
	}
}

// Load reads the campaign's roles, quotas, assignments and open requests
// concurrently, then resolves which role each request targets.
func (r *FactReader) Load(ctx context.Context, campaign *models.Campaign) (*CampaignFacts, error) {
	var (
		roles       []*models.CampaignRole
		required    []*models.RequiredRole
		assignments []*models.Assignment
		requests    []*models.StaffingRequest
		bindings    []*models.RequestRoleBinding
		events      []*models.StaffingEvent
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		roles, err = r.campaigns.ListCampaignRoles(gctx, campaign.ID)
		return err
	})
	g.Go(func() (err error) {
		required, err = r.facts.ListRequiredRoles(gctx, campaign.JobID, campaign.Department)
		return err
	})
	g.Go(func() (err error) {
		assignments, err = r.facts.ListAssignments(gctx, campaign.JobID)
		return err
	})
	g.Go(func() (err error) {
		requests, err = r.facts.ListOpenRequests(gctx, campaign.JobID)
		return err
	})
	g.Go(func() (err error) {
		bindings, err = r.facts.ListRoleBindings(gctx, campaign.JobID)
		return err
	})
	g.Go(func() (err error) {
		events, err = r.facts.ListSendEvents(gctx, campaign.JobID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load facts for campaign %s: %w", campaign.ID, err)
	}

	quotas := make(map[string]int, len(required))
	for _, rr := range required {
		quotas[rr.RoleCode] = rr.Quantity
	}

	return &CampaignFacts{
		Roles:    roles,
		Required: quotas,
		Counts:   countRoles(campaign.Department, assignments, requests, resolveRequestRoles(bindings, events)),
	}, nil
}

// resolveRequestRoles maps request IDs to role codes. Explicit bindings are
// authoritative; requests sent before bindings existed fall back to their
// earliest send event. events must be ordered oldest first.
func resolveRequestRoles(bindings []*models.RequestRoleBinding, events []*models.StaffingEvent) map[string]string {
	roleOf := make(map[string]string, len(bindings)+len(events))
	for _, b := range bindings {
		roleOf[b.RequestID] = b.RoleCode
	}
	for _, e := range events {
		if _, ok := roleOf[e.RequestID]; !ok {
			roleOf[e.RequestID] = e.RoleCode
		}
	}
	return roleOf
}

func countRoles(department models.Department, assignments []*models.Assignment, requests []*models.StaffingRequest, roleOf map[string]string) map[string]models.RoleCounts {
	counts := make(map[string]models.RoleCounts)

	for _, a := range assignments {
		if !a.Counts() {
			continue
		}
		code := department.RoleOf(a)
		if code == "" {
			continue
		}
		c := counts[code]
		c.Assigned++
		counts[code] = c
	}

	for _, req := range requests {
		code, ok := roleOf[req.ID]
		if !ok {
			continue
		}
		c := counts[code]
		switch {
		case req.Phase == models.PhaseAvailability && req.Status == models.RequestPending:
			c.PendingAvailability++
		case req.Phase == models.PhaseAvailability && req.Status == models.RequestConfirmed:
			c.ConfirmedAvailability++
		case req.Phase == models.PhaseOffer && req.Status == models.RequestPending:
			c.PendingOffers++
		case req.Phase == models.PhaseOffer && req.Status == models.RequestConfirmed:
			c.AcceptedOffers++
		}
		counts[code] = c
	}

	return counts
}
