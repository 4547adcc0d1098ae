package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"crew-staffing/internal/auth"
	"crew-staffing/internal/metrics"
	"crew-staffing/internal/models"
	"crew-staffing/internal/service"
)

const maxBodyBytes = 1 << 20

// StaffingHandler handles HTTP requests for staffing campaigns
type StaffingHandler struct {
	campaigns  *service.CampaignService
	escalation *service.EscalationService
	ticks      *service.TickService
	verifier   *auth.Verifier
	metrics    *metrics.Metrics
}

// NewStaffingHandler creates a new staffing handler
func NewStaffingHandler(campaigns *service.CampaignService, escalation *service.EscalationService, ticks *service.TickService, verifier *auth.Verifier, metrics *metrics.Metrics) *StaffingHandler {
	return &StaffingHandler{
		campaigns:  campaigns,
		escalation: escalation,
		ticks:      ticks,
		verifier:   verifier,
		metrics:    metrics,
	}
}

// ActionResponse is the body returned by lifecycle and escalation actions
type ActionResponse struct {
	Campaign     *models.Campaign `json:"campaign,omitempty"`
	RolesCreated *int             `json:"roles_created,omitempty"`
	Message      string           `json:"message,omitempty"`
}

// ErrorResponse is the body returned for failed requests
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// Action handles POST /staffing, dispatching on the action field
func (h *StaffingHandler) Action(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	caller, err := h.verifier.FromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: "unauthorized"})
		return
	}

	var req models.ActionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", service.ErrValidation))
		return
	}

	ctx := r.Context()
	action := strings.ToLower(strings.TrimSpace(req.Action))
	switch action {
	case "start":
		campaign, created, err := h.campaigns.Start(ctx, caller, &req.StartCampaignRequest)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ActionResponse{Campaign: campaign, RolesCreated: &created})

	case "pause", "resume", "stop", "nudge":
		campaign, err := h.lifecycleAction(action)(ctx, caller, req.CampaignID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ActionResponse{
			Campaign: campaign,
			Message:  fmt.Sprintf("%s applied, campaign is %s", action, campaign.Status),
		})

	case "escalate":
		campaign, message, err := h.escalation.Escalate(ctx, caller, req.CampaignID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ActionResponse{Campaign: campaign, Message: message})

	case "tick":
		if caller.Role != models.RoleService {
			writeError(w, fmt.Errorf("%w: tick requires a service credential", service.ErrForbidden))
			return
		}
		result, err := h.ticks.Tick(ctx, req.CampaignID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case "":
		writeError(w, fmt.Errorf("%w: action is required", service.ErrValidation))
	default:
		writeError(w, fmt.Errorf("%w: unknown action %q", service.ErrValidation, req.Action))
	}
}

type lifecycleFunc func(ctx context.Context, caller models.Caller, id string) (*models.Campaign, error)

func (h *StaffingHandler) lifecycleAction(action string) lifecycleFunc {
	switch action {
	case "pause":
		return h.campaigns.Pause
	case "resume":
		return h.campaigns.Resume
	case "stop":
		return h.campaigns.Stop
	default:
		return h.campaigns.Nudge
	}
}

// GetCampaign handles GET /campaigns/{id}
func (h *StaffingHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	caller, err := h.verifier.FromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: "unauthorized"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/campaigns/")
	if id == "" || id == r.URL.Path {
		writeError(w, fmt.Errorf("%w: campaign id is required", service.ErrValidation))
		return
	}

	detail, err := h.campaigns.Get(r.Context(), caller, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetMetrics handles GET /metrics
func (h *StaffingHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.metrics.GetSnapshot())
}

// StatusFor maps an error class to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrLockContention):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoMoreSteps):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("error handling staffing request: %v", err)
		message = "internal error"
	}
	writeJSON(w, status, ErrorResponse{
		Error:     message,
		Code:      service.Classify(err),
		Retryable: service.Retryable(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("error encoding response: %v", err)
	}
}
