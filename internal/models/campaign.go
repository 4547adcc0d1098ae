package models

import "time"

// CampaignStatus represents the lifecycle state of a staffing campaign
type CampaignStatus string

const (
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignStopped   CampaignStatus = "stopped"
	CampaignCompleted CampaignStatus = "completed"
)

// Terminal reports whether the status can no longer change
func (s CampaignStatus) Terminal() bool {
	return s == CampaignStopped || s == CampaignCompleted
}

// CampaignMode selects whether contacts are sent by an operator or automatically
type CampaignMode string

const (
	ModeManual    CampaignMode = "manual"
	ModeAutomatic CampaignMode = "automatic"
)

// Valid reports whether the mode is known
func (m CampaignMode) Valid() bool {
	return m == ModeManual || m == ModeAutomatic
}

// Stage is the cached lifecycle stage of one role within a campaign
type Stage string

const (
	StageIdle         Stage = "idle"
	StageAvailability Stage = "availability"
	StageOffer        Stage = "offer"
	StageFilled       Stage = "filled"
)

// Campaign is one staffing automation run for a (job, department) pair
type Campaign struct {
	ID                  string         `json:"id"`
	JobID               string         `json:"job_id"`
	Department          Department     `json:"department"`
	CreatedBy           string         `json:"created_by"`
	Mode                CampaignMode   `json:"mode"`
	Status              CampaignStatus `json:"status"`
	Policy              Policy         `json:"policy"`
	OfferMessage        string         `json:"offer_message,omitempty"`
	EscalationStepIndex int            `json:"escalation_step_index"`
	RunLock             string         `json:"-"`
	LastRunAt           *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt           *time.Time     `json:"next_run_at"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Running reports whether a tick currently holds the run lock
func (c *Campaign) Running() bool {
	return c.RunLock != ""
}

// CampaignRole is the per-role progress record of a campaign.
// Stage is derived from the counters and the role's required quantity.
type CampaignRole struct {
	CampaignID            string    `json:"campaign_id"`
	RoleCode              string    `json:"role_code"`
	Stage                 Stage     `json:"stage"`
	AssignedCount         int       `json:"assigned_count"`
	PendingAvailability   int       `json:"pending_availability"`
	ConfirmedAvailability int       `json:"confirmed_availability"`
	PendingOffers         int       `json:"pending_offers"`
	AcceptedOffers        int       `json:"accepted_offers"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// RoleCounts are the facts a role stage is derived from
type RoleCounts struct {
	Assigned              int
	PendingAvailability   int
	ConfirmedAvailability int
	PendingOffers         int
	AcceptedOffers        int
}

// HasContact reports whether any availability or offer request is live for the role
func (c RoleCounts) HasContact() bool {
	return c.PendingAvailability > 0 || c.ConfirmedAvailability > 0 ||
		c.PendingOffers > 0 || c.AcceptedOffers > 0
}

// Apply copies the counts onto the role record
func (c RoleCounts) Apply(role *CampaignRole) {
	role.AssignedCount = c.Assigned
	role.PendingAvailability = c.PendingAvailability
	role.ConfirmedAvailability = c.ConfirmedAvailability
	role.PendingOffers = c.PendingOffers
	role.AcceptedOffers = c.AcceptedOffers
}
