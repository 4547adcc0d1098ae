package repository

import (
	"context"
	"crew-staffing/internal/models"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a referenced row does not exist
	ErrNotFound = errors.New("not found")
	// ErrLockHeld is returned when another holder owns a fresh run lock
	ErrLockHeld = errors.New("run lock held")
)

// ErrRoleBindingConflict is returned when a request is sent again for a
// different role than the one it was first bound to
type ErrRoleBindingConflict struct {
	RequestID string
	Bound     string
	Attempted string
}

func (e *ErrRoleBindingConflict) Error() string {
	return fmt.Sprintf("request %s is bound to role %s, cannot rebind to %s", e.RequestID, e.Bound, e.Attempted)
}

// Lease is a held run lock
type Lease struct {
	Token string
	// Reclaimed is set when a stale lock from a crashed holder was taken over
	Reclaimed bool
}

// RunLocker grants exclusive per-key execution using compare-and-swap.
// A lock older than staleAfter is presumed abandoned and may be reclaimed.
type RunLocker interface {
	TryAcquire(ctx context.Context, key string, now time.Time, staleAfter time.Duration) (*Lease, error)
	Release(ctx context.Context, key, token string) error
}

// CampaignRepository defines persistence for campaigns and their roles
type CampaignRepository interface {
	CreateCampaign(ctx context.Context, campaign *models.Campaign, roles []*models.CampaignRole) error
	GetCampaignByID(ctx context.Context, id string) (*models.Campaign, error)
	ListCampaignRoles(ctx context.Context, campaignID string) ([]*models.CampaignRole, error)
	UpdateCampaignRole(ctx context.Context, role *models.CampaignRole) error
	// TransitionCampaign moves a campaign whose status is one of from to the
	// given status. A non-nil nextRunAt is written alongside. It reports
	// false when the campaign was not in an allowed status.
	TransitionCampaign(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus, nextRunAt *time.Time) (bool, error)
	ScheduleCampaign(ctx context.Context, id string, from []models.CampaignStatus, nextRunAt time.Time) (bool, error)
	// UpdateCampaignPolicy writes a new policy and step index only if the
	// stored step index still equals expectedStep.
	UpdateCampaignPolicy(ctx context.Context, id string, expectedStep int, policy models.Policy, step int) (bool, error)
	// FinishTick releases the run lock held under token and, if the campaign
	// is still active, writes the tick's status and next run time.
	FinishTick(ctx context.Context, id, token string, status models.CampaignStatus, nextRunAt *time.Time, now time.Time) (bool, error)
	ListDueCampaigns(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]*models.Campaign, error)
}

// FactRepository defines read access to the facts a campaign is derived from
type FactRepository interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListRequiredRoles(ctx context.Context, jobID string, department models.Department) ([]*models.RequiredRole, error)
	ListAssignments(ctx context.Context, jobID string) ([]*models.Assignment, error)
	// ListOpenRequests returns pending and confirmed availability/offer requests
	ListOpenRequests(ctx context.Context, jobID string) ([]*models.StaffingRequest, error)
	ListRoleBindings(ctx context.Context, jobID string) ([]*models.RequestRoleBinding, error)
	// ListSendEvents returns send events for the job, oldest first
	ListSendEvents(ctx context.Context, jobID string) ([]*models.StaffingEvent, error)
	RecordContactSent(ctx context.Context, event *models.StaffingEvent) error
}
