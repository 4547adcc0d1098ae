package models

import "fmt"

// SoftConflictPolicy controls how candidates with soft scheduling conflicts are treated
type SoftConflictPolicy string

const (
	SoftConflictWarn  SoftConflictPolicy = "warn"
	SoftConflictBlock SoftConflictPolicy = "block"
	SoftConflictAllow SoftConflictPolicy = "allow"
)

// Valid reports whether the policy value is known
func (p SoftConflictPolicy) Valid() bool {
	switch p {
	case SoftConflictWarn, SoftConflictBlock, SoftConflictAllow:
		return true
	}
	return false
}

// EscalationStep names one relaxation applied by escalate
type EscalationStep string

const (
	StepWidenWave          EscalationStep = "widen_wave"
	StepIncludeFridge      EscalationStep = "include_fridge"
	StepAllowSoftConflicts EscalationStep = "allow_soft_conflicts"
)

// Valid reports whether the step is known
func (s EscalationStep) Valid() bool {
	switch s {
	case StepWidenWave, StepIncludeFridge, StepAllowSoftConflicts:
		return true
	}
	return false
}

// Weights are the candidate ranking weights used by the delivery side
type Weights struct {
	Skills    float64 `json:"skills" yaml:"skills"`
	Proximity float64 `json:"proximity" yaml:"proximity"`
	Fairness  float64 `json:"fairness" yaml:"fairness"`
}

// Policy governs how a campaign selects and contacts candidates
type Policy struct {
	Weights              Weights            `json:"weights" yaml:"weights"`
	AvailabilityTTLHours int                `json:"availability_ttl_hours" yaml:"availability_ttl_hours"`
	OfferTTLHours        int                `json:"offer_ttl_hours" yaml:"offer_ttl_hours"`
	WaveMultiplier       float64            `json:"wave_multiplier" yaml:"wave_multiplier"`
	ExcludeFridge        bool               `json:"exclude_fridge" yaml:"exclude_fridge"`
	SoftConflictPolicy   SoftConflictPolicy `json:"soft_conflict_policy" yaml:"soft_conflict_policy"`
	TickIntervalSeconds  int                `json:"tick_interval_seconds" yaml:"tick_interval_seconds"`
	EscalationSteps      []EscalationStep   `json:"escalation_steps" yaml:"escalation_steps"`
}

// DefaultPolicy returns the built-in campaign policy
func DefaultPolicy() Policy {
	return Policy{
		Weights:              Weights{Skills: 0.5, Proximity: 0.3, Fairness: 0.2},
		AvailabilityTTLHours: 24,
		OfferTTLHours:        12,
		WaveMultiplier:       1.0,
		ExcludeFridge:        true,
		SoftConflictPolicy:   SoftConflictWarn,
		TickIntervalSeconds:  300,
		EscalationSteps:      []EscalationStep{StepIncludeFridge, StepAllowSoftConflicts},
	}
}

// Validate checks a fully merged policy
func (p Policy) Validate() error {
	if p.TickIntervalSeconds <= 0 {
		return fmt.Errorf("tick_interval_seconds must be positive")
	}
	if p.WaveMultiplier <= 0 {
		return fmt.Errorf("wave_multiplier must be positive")
	}
	if p.AvailabilityTTLHours <= 0 || p.OfferTTLHours <= 0 {
		return fmt.Errorf("ttl hours must be positive")
	}
	if !p.SoftConflictPolicy.Valid() {
		return fmt.Errorf("invalid soft_conflict_policy %q", p.SoftConflictPolicy)
	}
	for _, step := range p.EscalationSteps {
		if !step.Valid() {
			return fmt.Errorf("unknown escalation step %q", step)
		}
	}
	return nil
}

// PolicyInput is a partially specified policy supplied when starting a campaign.
// Nil fields fall back to the defaults.
type PolicyInput struct {
	Weights              *Weights            `json:"weights,omitempty"`
	AvailabilityTTLHours *int                `json:"availability_ttl_hours,omitempty"`
	OfferTTLHours        *int                `json:"offer_ttl_hours,omitempty"`
	WaveMultiplier       *float64            `json:"wave_multiplier,omitempty"`
	ExcludeFridge        *bool               `json:"exclude_fridge,omitempty"`
	SoftConflictPolicy   *SoftConflictPolicy `json:"soft_conflict_policy,omitempty"`
	TickIntervalSeconds  *int                `json:"tick_interval_seconds,omitempty"`
	EscalationSteps      []EscalationStep    `json:"escalation_steps,omitempty"`
}

// Merge overlays the input on top of defaults
func (in *PolicyInput) Merge(defaults Policy) Policy {
	p := defaults
	p.EscalationSteps = append([]EscalationStep(nil), defaults.EscalationSteps...)
	if in == nil {
		return p
	}
	if in.Weights != nil {
		p.Weights = *in.Weights
	}
	if in.AvailabilityTTLHours != nil {
		p.AvailabilityTTLHours = *in.AvailabilityTTLHours
	}
	if in.OfferTTLHours != nil {
		p.OfferTTLHours = *in.OfferTTLHours
	}
	if in.WaveMultiplier != nil {
		p.WaveMultiplier = *in.WaveMultiplier
	}
	if in.ExcludeFridge != nil {
		p.ExcludeFridge = *in.ExcludeFridge
	}
	if in.SoftConflictPolicy != nil {
		p.SoftConflictPolicy = *in.SoftConflictPolicy
	}
	if in.TickIntervalSeconds != nil {
		p.TickIntervalSeconds = *in.TickIntervalSeconds
	}
	if in.EscalationSteps != nil {
		p.EscalationSteps = append([]EscalationStep(nil), in.EscalationSteps...)
	}
	return p
}
