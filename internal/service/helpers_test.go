package service

import (
	"context"
	"crew-staffing/internal/metrics"
	"crew-staffing/internal/models"
	"testing"
	"time"
)

var (
	testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	adminCaller       = models.Caller{UserID: "admin-1", Role: models.RoleAdmin}
	soundManager      = models.Caller{UserID: "mgr-sound", Role: models.RoleManagement, Department: models.DepartmentSound}
	logisticsManager  = models.Caller{UserID: "mgr-logistics", Role: models.RoleManagement, Department: models.DepartmentLogistics}
	technicianCaller  = models.Caller{UserID: "tech-1", Role: models.RoleTechnician, Department: models.DepartmentSound}
	logisticsOperator = models.Caller{UserID: "ops-1", Role: models.RoleLogistics}
)

type testServices struct {
	repo       *mockRepository
	campaigns  *CampaignService
	ticks      *TickService
	escalation *EscalationService
	metrics    *metrics.Metrics
}

func newTestServices() *testServices {
	repo := newMockRepository()
	m := metrics.NewMetrics()
	campaigns := NewCampaignService(repo, repo, models.DefaultPolicy(), NewRateLimiter(10), nil, m)
	campaigns.now = func() time.Time { return testNow }
	ticks := NewTickService(repo, repo, NewFactReader(repo, repo), nil, m)
	ticks.now = func() time.Time { return testNow }
	return &testServices{
		repo:       repo,
		campaigns:  campaigns,
		ticks:      ticks,
		escalation: NewEscalationService(repo, nil, m),
		metrics:    m,
	}
}

func (ts *testServices) startCampaign(t *testing.T, jobID string, dept models.Department) *models.Campaign {
	t.Helper()
	campaign, _, err := ts.campaigns.Start(context.Background(), adminCaller, &models.StartCampaignRequest{
		JobID:      jobID,
		Department: dept,
		Mode:       models.ModeAutomatic,
	})
	if err != nil {
		t.Fatalf("expected no error starting campaign, got %v", err)
	}
	return campaign
}
