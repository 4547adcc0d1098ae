package models

import "time"

// Job is the event a campaign staffs
type Job struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	CreatedAt time.Time `json:"created_at"`
}

// RequiredRole is the quota of one role for a department on a job
type RequiredRole struct {
	JobID      string     `json:"job_id"`
	Department Department `json:"department"`
	RoleCode   string     `json:"role_code"`
	Quantity   int        `json:"quantity"`
}

// AssignmentStatus represents the state of a crew assignment
type AssignmentStatus string

const (
	AssignmentInvited   AssignmentStatus = "invited"
	AssignmentConfirmed AssignmentStatus = "confirmed"
	AssignmentDeclined  AssignmentStatus = "declined"
)

// Assignment binds a technician to roles on a job. Each department stores
// its role code in its own field.
type Assignment struct {
	ID             string           `json:"id"`
	JobID          string           `json:"job_id"`
	TechnicianID   string           `json:"technician_id"`
	SoundRole      string           `json:"sound_role,omitempty"`
	LightsRole     string           `json:"lights_role,omitempty"`
	VideoRole      string           `json:"video_role,omitempty"`
	ProductionRole string           `json:"production_role,omitempty"`
	Status         AssignmentStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Counts reports whether the assignment counts toward a role's fill
func (a *Assignment) Counts() bool {
	return a.Status != AssignmentDeclined
}

// RequestPhase is the kind of contact a staffing request represents
type RequestPhase string

const (
	PhaseAvailability RequestPhase = "availability"
	PhaseOffer        RequestPhase = "offer"
)

// RequestStatus represents the state of a staffing request
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestConfirmed RequestStatus = "confirmed"
	RequestDeclined  RequestStatus = "declined"
	RequestExpired   RequestStatus = "expired"
)

// StaffingRequest is one contact attempt sent to a technician
type StaffingRequest struct {
	ID        string        `json:"id"`
	JobID     string        `json:"job_id"`
	ProfileID string        `json:"profile_id"`
	Phase     RequestPhase  `json:"phase"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StaffingEvent is an append-only record that a contact was sent
type StaffingEvent struct {
	ID        string       `json:"id"`
	RequestID string       `json:"request_id"`
	JobID     string       `json:"job_id"`
	ProfileID string       `json:"profile_id"`
	Phase     RequestPhase `json:"phase"`
	RoleCode  string       `json:"role_code"`
	CreatedAt time.Time    `json:"created_at"`
}

// RequestRoleBinding links a staffing request to the role it targets.
// The first binding written for a request wins.
type RequestRoleBinding struct {
	RequestID string    `json:"request_id"`
	RoleCode  string    `json:"role_code"`
	EventID   string    `json:"event_id"`
	BoundAt   time.Time `json:"bound_at"`
}
