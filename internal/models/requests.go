package models

import "time"

// CallerRole is the application role of an authenticated caller
type CallerRole string

const (
	RoleAdmin      CallerRole = "admin"
	RoleLogistics  CallerRole = "logistics"
	RoleManagement CallerRole = "management"
	RoleTechnician CallerRole = "technician"
	RoleService    CallerRole = "service"
)

// Caller is the identity performing an action
type Caller struct {
	UserID     string     `json:"user_id"`
	Role       CallerRole `json:"role"`
	Department Department `json:"department,omitempty"`
}

// StartScope selects which required roles a new campaign covers
type StartScope string

const (
	ScopeAll         StartScope = "all"
	ScopeOutstanding StartScope = "outstanding"
)

// StartCampaignRequest represents a request to start a campaign
type StartCampaignRequest struct {
	JobID        string       `json:"job_id"`
	Department   Department   `json:"department"`
	Mode         CampaignMode `json:"mode"`
	Policy       *PolicyInput `json:"policy,omitempty"`
	OfferMessage string       `json:"offer_message,omitempty"`
	Scope        StartScope   `json:"scope,omitempty"`
}

// ActionRequest is the body of the action endpoint
type ActionRequest struct {
	Action     string `json:"action"`
	CampaignID string `json:"campaign_id,omitempty"`
	StartCampaignRequest
}

// TickResult reports the outcome of one reconciliation cycle
type TickResult struct {
	TickCompleted  bool       `json:"tick_completed"`
	RolesProcessed int        `json:"roles_processed"`
	AllFilled      bool       `json:"all_filled"`
	NextRunAt      *time.Time `json:"next_run_at"`
}

// CampaignDetail is a campaign together with its role records
type CampaignDetail struct {
	Campaign *Campaign       `json:"campaign"`
	Roles    []*CampaignRole `json:"roles"`
}
