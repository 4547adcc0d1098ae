package service

import "crew-staffing/internal/models"

// Notifier is told about every campaign change the orchestrator makes
type Notifier interface {
	CampaignUpdated(campaign *models.Campaign)
}

type noopNotifier struct{}

func (noopNotifier) CampaignUpdated(*models.Campaign) {}

func notifierOrNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
