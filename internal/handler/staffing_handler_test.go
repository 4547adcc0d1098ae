package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"crew-staffing/internal/auth"
	"crew-staffing/internal/metrics"
	"crew-staffing/internal/models"
	"crew-staffing/internal/repository"
	"crew-staffing/internal/service"
)

type testEnv struct {
	handler  *StaffingHandler
	repo     *repository.SQLiteRepository
	verifier *auth.Verifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := repository.NewSQLiteRepository(filepath.Join(t.TempDir(), "staffing.db"))
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	if err := repo.CreateJob(ctx, &models.Job{ID: "job-1", Title: "Arena load-in"}); err != nil {
		t.Fatalf("failed to seed job: %v", err)
	}
	err = repo.UpsertRequiredRole(ctx, &models.RequiredRole{
		JobID: "job-1", Department: models.DepartmentSound, RoleCode: "SND-FOH", Quantity: 2,
	})
	if err != nil {
		t.Fatalf("failed to seed required role: %v", err)
	}

	verifier, err := auth.NewVerifier("test-secret", "crew-staffing")
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}

	m := metrics.NewMetrics()
	campaigns := service.NewCampaignService(repo, repo, models.DefaultPolicy(), service.NewRateLimiter(0), nil, m)
	escalation := service.NewEscalationService(repo, nil, m)
	ticks := service.NewTickService(repo, repo, service.NewFactReader(repo, repo), nil, m)

	return &testEnv{
		handler:  NewStaffingHandler(campaigns, escalation, ticks, verifier, m),
		repo:     repo,
		verifier: verifier,
	}
}

func (e *testEnv) token(t *testing.T, caller models.Caller) string {
	t.Helper()
	token, err := e.verifier.Issue(caller, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (e *testEnv) post(t *testing.T, token string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/staffing", bytes.NewReader(data))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.Action(w, req)
	return w
}

func (e *testEnv) start(t *testing.T, token string) string {
	t.Helper()
	w := e.post(t, token, map[string]any{
		"action": "start", "job_id": "job-1", "department": "sound", "mode": "automatic",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var resp ActionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp.Campaign.ID
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return resp
}

var (
	soundManager  = models.Caller{UserID: "mgr-sound", Role: models.RoleManagement, Department: models.DepartmentSound}
	lightsManager = models.Caller{UserID: "mgr-lights", Role: models.RoleManagement, Department: models.DepartmentLights}
	scheduler     = models.Caller{UserID: "sweeper", Role: models.RoleService}
)

func TestAction_StartCampaign(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, env.token(t, soundManager), map[string]any{
		"action": "start", "job_id": "job-1", "department": "sound", "mode": "automatic",
		"policy": map[string]any{"tick_interval_seconds": 60},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var resp ActionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.RolesCreated == nil || *resp.RolesCreated != 1 {
		t.Errorf("expected 1 role created, got %v", resp.RolesCreated)
	}
	if resp.Campaign.Status != models.CampaignActive {
		t.Errorf("expected active campaign, got %s", resp.Campaign.Status)
	}
	if resp.Campaign.Policy.TickIntervalSeconds != 60 {
		t.Errorf("expected tick interval 60, got %d", resp.Campaign.Policy.TickIntervalSeconds)
	}
}

func TestAction_RequiresCredential(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "", map[string]any{"action": "start"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}

	w = env.post(t, "not-a-jwt", map[string]any{"action": "start"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAction_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, soundManager)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing action", map[string]any{}},
		{"unknown action", map[string]any{"action": "archive"}},
		{"start without job", map[string]any{"action": "start", "department": "sound", "mode": "manual"}},
		{"pause without campaign", map[string]any{"action": "pause"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.post(t, token, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d: %s", http.StatusBadRequest, w.Code, w.Body.String())
			}
			if resp := decodeError(t, w); resp.Code != "validation_error" || resp.Retryable {
				t.Errorf("unexpected error body %+v", resp)
			}
		})
	}
}

func TestAction_StartUnknownJob(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, env.token(t, soundManager), map[string]any{
		"action": "start", "job_id": "job-404", "department": "sound", "mode": "manual",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestAction_LifecycleAndAuthorization(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, soundManager)
	id := env.start(t, token)

	w := env.post(t, env.token(t, lightsManager), map[string]any{"action": "pause", "campaign_id": id})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, w.Code)
	}

	w = env.post(t, token, map[string]any{"action": "pause", "campaign_id": id})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var resp ActionResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Campaign.Status != models.CampaignPaused {
		t.Errorf("expected paused, got %s", resp.Campaign.Status)
	}

	w = env.post(t, token, map[string]any{"action": "pause", "campaign_id": id})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, w.Code)
	}
	if body := decodeError(t, w); body.Code != "invalid_state" || !body.Retryable {
		t.Errorf("expected retryable invalid_state, got %+v", body)
	}

	for _, action := range []string{"nudge", "resume", "stop"} {
		w = env.post(t, token, map[string]any{"action": action, "campaign_id": id})
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d: %s", action, http.StatusOK, w.Code, w.Body.String())
		}
	}

	campaign, err := env.repo.GetCampaignByID(context.Background(), id)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if campaign.Status != models.CampaignStopped {
		t.Errorf("expected stopped, got %s", campaign.Status)
	}
}

func TestAction_TickRequiresServiceCredential(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, soundManager)
	id := env.start(t, token)

	w := env.post(t, token, map[string]any{"action": "tick", "campaign_id": id})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, w.Code)
	}

	w = env.post(t, env.token(t, scheduler), map[string]any{"action": "tick", "campaign_id": id})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var result models.TickResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode tick result: %v", err)
	}
	if !result.TickCompleted || result.AllFilled || result.RolesProcessed != 1 {
		t.Errorf("unexpected tick result %+v", result)
	}
	if result.NextRunAt == nil {
		t.Error("expected next run to be scheduled")
	}
}

func TestAction_TickCompletesCampaign(t *testing.T) {
	env := newTestEnv(t)
	id := env.start(t, env.token(t, soundManager))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		err := env.repo.CreateAssignment(ctx, &models.Assignment{
			JobID: "job-1", TechnicianID: fmt.Sprintf("tech-%d", i), SoundRole: "SND-FOH",
			Status: models.AssignmentConfirmed,
		})
		if err != nil {
			t.Fatalf("failed to seed assignment: %v", err)
		}
	}

	w := env.post(t, env.token(t, scheduler), map[string]any{"action": "tick", "campaign_id": id})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var result models.TickResult
	json.NewDecoder(w.Body).Decode(&result)
	if !result.AllFilled || result.NextRunAt != nil {
		t.Errorf("expected completed tick with no next run, got %+v", result)
	}

	w = env.post(t, env.token(t, scheduler), map[string]any{"action": "tick", "campaign_id": id})
	if w.Code != http.StatusConflict {
		t.Errorf("expected status %d for completed campaign, got %d", http.StatusConflict, w.Code)
	}
}

func TestAction_EscalateUntilExhausted(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, soundManager)
	id := env.start(t, token)

	for i := 0; i < 2; i++ {
		w := env.post(t, token, map[string]any{"action": "escalate", "campaign_id": id})
		if w.Code != http.StatusOK {
			t.Fatalf("escalation %d: expected status %d, got %d: %s", i+1, http.StatusOK, w.Code, w.Body.String())
		}
	}

	w := env.post(t, token, map[string]any{"action": "escalate", "campaign_id": id})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, w.Code)
	}
	if body := decodeError(t, w); body.Code != "no_more_steps" {
		t.Errorf("expected no_more_steps, got %s", body.Code)
	}

	campaign, _ := env.repo.GetCampaignByID(context.Background(), id)
	if campaign.Policy.ExcludeFridge || campaign.Policy.SoftConflictPolicy != models.SoftConflictAllow {
		t.Errorf("expected both steps applied, got %+v", campaign.Policy)
	}
}

func TestGetCampaign(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, soundManager)
	id := env.start(t, token)

	req := httptest.NewRequest(http.MethodGet, "/campaigns/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.handler.GetCampaign(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var detail models.CampaignDetail
	if err := json.NewDecoder(w.Body).Decode(&detail); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if detail.Campaign.ID != id || len(detail.Roles) != 1 || detail.Roles[0].Stage != models.StageIdle {
		t.Errorf("unexpected campaign detail %+v", detail)
	}

	req = httptest.NewRequest(http.MethodGet, "/campaigns/missing", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	env.handler.GetCampaign(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestGetMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.start(t, env.token(t, soundManager))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	env.handler.GetMetrics(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var snapshot map[string]any
	if err := json.NewDecoder(w.Body).Decode(&snapshot); err != nil {
		t.Fatalf("failed to decode metrics: %v", err)
	}
	if snapshot["campaigns_started"] != float64(1) {
		t.Errorf("expected campaigns_started 1, got %v", snapshot["campaigns_started"])
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err       error
		status    int
		retryable bool
	}{
		{fmt.Errorf("wrap: %w", service.ErrValidation), http.StatusBadRequest, false},
		{service.ErrForbidden, http.StatusForbidden, false},
		{service.ErrNotFound, http.StatusNotFound, false},
		{service.ErrInvalidState, http.StatusConflict, true},
		{service.ErrLockContention, http.StatusConflict, true},
		{service.ErrNoMoreSteps, http.StatusUnprocessableEntity, false},
		{service.ErrRateLimited, http.StatusTooManyRequests, true},
		{errors.New("disk I/O error"), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.status {
			t.Errorf("%v: expected status %d, got %d", tt.err, tt.status, got)
		}
		if got := service.Retryable(tt.err); got != tt.retryable {
			t.Errorf("%v: expected retryable %v, got %v", tt.err, tt.retryable, got)
		}
	}
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, errors.New("database is locked"))

	body := decodeError(t, w)
	if body.Error != "internal error" || body.Code != "internal" {
		t.Errorf("unexpected body %+v", body)
	}
}
