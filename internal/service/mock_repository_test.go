package service

import (
	"context"
	"crew-staffing/internal/models"
	"crew-staffing/internal/repository"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// mockRepository is an in-memory CampaignRepository, FactRepository and
// RunLocker with the same conditional-write semantics as the SQLite store
type mockRepository struct {
	mu sync.Mutex

	campaigns   map[string]*models.Campaign
	roles       map[string][]*models.CampaignRole
	jobs        map[string]*models.Job
	required    []*models.RequiredRole
	assignments []*models.Assignment
	requests    []*models.StaffingRequest
	bindings    []*models.RequestRoleBinding
	events      []*models.StaffingEvent

	updateRoleError    error
	listAssignmentsErr error
	// onListAssignments runs before assignments are returned, outside the lock
	onListAssignments func()
	roleUpdates       int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		campaigns: make(map[string]*models.Campaign),
		roles:     make(map[string][]*models.CampaignRole),
		jobs:      make(map[string]*models.Job),
	}
}

func copyCampaign(c *models.Campaign) *models.Campaign {
	cp := *c
	cp.Policy.EscalationSteps = append([]models.EscalationStep(nil), c.Policy.EscalationSteps...)
	return &cp
}

func (m *mockRepository) CreateCampaign(ctx context.Context, campaign *models.Campaign, roles []*models.CampaignRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	campaign.UpdatedAt = campaign.CreatedAt
	m.campaigns[campaign.ID] = copyCampaign(campaign)
	stored := make([]*models.CampaignRole, 0, len(roles))
	for _, r := range roles {
		r.CampaignID = campaign.ID
		cp := *r
		stored = append(stored, &cp)
	}
	m.roles[campaign.ID] = stored
	return nil
}

func (m *mockRepository) GetCampaignByID(ctx context.Context, id string) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyCampaign(c), nil
}

func (m *mockRepository) ListCampaignRoles(ctx context.Context, campaignID string) ([]*models.CampaignRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var roles []*models.CampaignRole
	for _, r := range m.roles[campaignID] {
		cp := *r
		roles = append(roles, &cp)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].RoleCode < roles[j].RoleCode })
	return roles, nil
}

func (m *mockRepository) UpdateCampaignRole(ctx context.Context, role *models.CampaignRole) error {
	if m.updateRoleError != nil {
		return m.updateRoleError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.roles[role.CampaignID] {
		if r.RoleCode == role.RoleCode {
			cp := *role
			m.roles[role.CampaignID][i] = &cp
			m.roleUpdates++
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *mockRepository) TransitionCampaign(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus, nextRunAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || !hasStatus(c.Status, from) {
		return false, nil
	}
	c.Status = to
	if nextRunAt != nil {
		t := *nextRunAt
		c.NextRunAt = &t
	}
	return true, nil
}

func (m *mockRepository) ScheduleCampaign(ctx context.Context, id string, from []models.CampaignStatus, nextRunAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || !hasStatus(c.Status, from) {
		return false, nil
	}
	c.NextRunAt = &nextRunAt
	return true, nil
}

func (m *mockRepository) UpdateCampaignPolicy(ctx context.Context, id string, expectedStep int, policy models.Policy, step int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.EscalationStepIndex != expectedStep {
		return false, nil
	}
	c.Policy = policy
	c.EscalationStepIndex = step
	return true, nil
}

func (m *mockRepository) FinishTick(ctx context.Context, id, token string, status models.CampaignStatus, nextRunAt *time.Time, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.RunLock != token {
		return false, nil
	}
	c.RunLock = ""
	if c.Status == models.CampaignActive {
		c.Status = status
		c.NextRunAt = nextRunAt
	}
	return true, nil
}

func (m *mockRepository) ListDueCampaigns(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*models.Campaign
	for _, c := range m.campaigns {
		if c.Status != models.CampaignActive || c.NextRunAt == nil || c.NextRunAt.After(now) {
			continue
		}
		if c.RunLock != "" && c.LastRunAt != nil && now.Sub(*c.LastRunAt) < staleAfter {
			continue
		}
		due = append(due, copyCampaign(c))
	}
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *mockRepository) TryAcquire(ctx context.Context, key string, now time.Time, staleAfter time.Duration) (*repository.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	lease := &repository.Lease{Token: uuid.New().String()}
	if c.RunLock != "" {
		if c.LastRunAt != nil && now.Sub(*c.LastRunAt) < staleAfter {
			return nil, repository.ErrLockHeld
		}
		lease.Reclaimed = true
	}
	c.RunLock = lease.Token
	c.LastRunAt = &now
	return lease, nil
}

func (m *mockRepository) Release(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[key]; ok && c.RunLock == token {
		c.RunLock = ""
	}
	return nil
}

func (m *mockRepository) GetJob(ctx context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return job, nil
}

func (m *mockRepository) ListRequiredRoles(ctx context.Context, jobID string, department models.Department) ([]*models.RequiredRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.RequiredRole
	for _, r := range m.required {
		if r.JobID == jobID && r.Department == department {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockRepository) ListAssignments(ctx context.Context, jobID string) ([]*models.Assignment, error) {
	if m.onListAssignments != nil {
		m.onListAssignments()
	}
	if m.listAssignmentsErr != nil {
		return nil, m.listAssignmentsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Assignment
	for _, a := range m.assignments {
		if a.JobID == jobID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *mockRepository) ListOpenRequests(ctx context.Context, jobID string) ([]*models.StaffingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.StaffingRequest
	for _, r := range m.requests {
		if r.JobID != jobID {
			continue
		}
		if r.Status == models.RequestPending || r.Status == models.RequestConfirmed {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockRepository) ListRoleBindings(ctx context.Context, jobID string) ([]*models.RequestRoleBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.RequestRoleBinding(nil), m.bindings...), nil
}

func (m *mockRepository) ListSendEvents(ctx context.Context, jobID string) ([]*models.StaffingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.StaffingEvent
	for _, e := range m.events {
		if e.JobID == jobID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockRepository) RecordContactSent(ctx context.Context, event *models.StaffingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	for _, b := range m.bindings {
		if b.RequestID == event.RequestID {
			if b.RoleCode != event.RoleCode {
				return &repository.ErrRoleBindingConflict{RequestID: event.RequestID, Bound: b.RoleCode, Attempted: event.RoleCode}
			}
			return nil
		}
	}
	m.bindings = append(m.bindings, &models.RequestRoleBinding{RequestID: event.RequestID, RoleCode: event.RoleCode, EventID: event.ID})
	return nil
}

// helpers for building fixtures

func (m *mockRepository) addJob(id string) {
	m.jobs[id] = &models.Job{ID: id, Title: "job " + id}
}

func (m *mockRepository) addRequired(jobID string, dept models.Department, role string, qty int) {
	m.required = append(m.required, &models.RequiredRole{JobID: jobID, Department: dept, RoleCode: role, Quantity: qty})
}

func (m *mockRepository) addSoundAssignment(jobID, role string, status models.AssignmentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments = append(m.assignments, &models.Assignment{
		ID:           uuid.New().String(),
		JobID:        jobID,
		TechnicianID: uuid.New().String(),
		SoundRole:    role,
		Status:       status,
	})
}

func (m *mockRepository) addRequest(jobID, role string, phase models.RequestPhase, status models.RequestStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req := &models.StaffingRequest{ID: uuid.New().String(), JobID: jobID, ProfileID: uuid.New().String(), Phase: phase, Status: status}
	m.requests = append(m.requests, req)
	m.bindings = append(m.bindings, &models.RequestRoleBinding{RequestID: req.ID, RoleCode: role})
}

func (m *mockRepository) campaign(id string) *models.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyCampaign(m.campaigns[id])
}
