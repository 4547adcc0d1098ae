package service

import "crew-staffing/internal/models"

// DeriveStage maps the facts of one role to its stage.
//
// Filled dominates every other signal, so a role that reaches its quota by
// direct assignment stops being contacted. Any live offer activity, or
// enough confirmed availability to cover the quota, moves the role to the
// offer stage and keeps availability probing closed.
func DeriveStage(required int, c models.RoleCounts) models.Stage {
	if required <= 0 || c.Assigned >= required {
		return models.StageFilled
	}
	if c.PendingOffers > 0 || c.AcceptedOffers > 0 || c.ConfirmedAvailability >= required {
		return models.StageOffer
	}
	return models.StageAvailability
}

// settleStage applies DeriveStage to a stored role. A role stays idle until
// the first contact for it appears; once it has left idle it never returns.
func settleStage(current models.Stage, required int, c models.RoleCounts) models.Stage {
	next := DeriveStage(required, c)
	if next == models.StageAvailability && current == models.StageIdle && !c.HasContact() {
		return models.StageIdle
	}
	return next
}
