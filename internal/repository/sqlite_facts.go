package repository

import (
	"context"
	"crew-staffing/internal/models"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetJob retrieves a job by ID
func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	var startsAt, endsAt sql.NullInt64
	var createdAt int64

	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, starts_at, ends_at, created_at
		FROM jobs
		WHERE id = ?
	`, id).Scan(&job.ID, &job.Title, &startsAt, &endsAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if t := fromNullUnix(startsAt); t != nil {
		job.StartsAt = *t
	}
	if t := fromNullUnix(endsAt); t != nil {
		job.EndsAt = *t
	}
	job.CreatedAt = time.Unix(createdAt, 0)

	return &job, nil
}

// CreateJob inserts a job. Jobs are owned by the planning flows; this is
// used to seed the fact store.
func (r *SQLiteRepository) CreateJob(ctx context.Context, job *models.Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	var startsAt, endsAt any
	if !job.StartsAt.IsZero() {
		startsAt = job.StartsAt.Unix()
	}
	if !job.EndsAt.IsZero() {
		endsAt = job.EndsAt.Unix()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, title, starts_at, ends_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, job.ID, job.Title, startsAt, endsAt, job.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// ListRequiredRoles retrieves the role quotas of a department on a job
func (r *SQLiteRepository) ListRequiredRoles(ctx context.Context, jobID string, department models.Department) ([]*models.RequiredRole, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT job_id, department, role_code, quantity
		FROM required_roles
		WHERE job_id = ? AND department = ?
		ORDER BY role_code ASC
	`, jobID, department)
	if err != nil {
		return nil, fmt.Errorf("failed to query required roles: %w", err)
	}
	defer rows.Close()

	var roles []*models.RequiredRole
	for rows.Next() {
		var role models.RequiredRole
		if err := rows.Scan(&role.JobID, &role.Department, &role.RoleCode, &role.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan required role: %w", err)
		}
		roles = append(roles, &role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate required roles: %w", err)
	}

	return roles, nil
}

// UpsertRequiredRole sets the quota of a role
func (r *SQLiteRepository) UpsertRequiredRole(ctx context.Context, role *models.RequiredRole) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO required_roles (job_id, department, role_code, quantity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (job_id, department, role_code) DO UPDATE SET quantity = excluded.quantity
	`, role.JobID, role.Department, role.RoleCode, role.Quantity)
	if err != nil {
		return fmt.Errorf("failed to upsert required role: %w", err)
	}
	return nil
}

// ListAssignments retrieves all assignments on a job
func (r *SQLiteRepository) ListAssignments(ctx context.Context, jobID string) ([]*models.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, technician_id, sound_role, lights_role, video_role, production_role,
		       status, created_at
		FROM assignments
		WHERE job_id = ?
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*models.Assignment
	for rows.Next() {
		var a models.Assignment
		var sound, lights, video, production sql.NullString
		var createdAt int64
		err := rows.Scan(&a.ID, &a.JobID, &a.TechnicianID, &sound, &lights, &video, &production, &a.Status, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.SoundRole = sound.String
		a.LightsRole = lights.String
		a.VideoRole = video.String
		a.ProductionRole = production.String
		a.CreatedAt = time.Unix(createdAt, 0)
		assignments = append(assignments, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignments: %w", err)
	}

	return assignments, nil
}

// CreateAssignment inserts an assignment
func (r *SQLiteRepository) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assignments (id, job_id, technician_id, sound_role, lights_role, video_role,
			production_role, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.JobID,
		a.TechnicianID,
		nullString(a.SoundRole),
		nullString(a.LightsRole),
		nullString(a.VideoRole),
		nullString(a.ProductionRole),
		a.Status,
		a.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

// ListOpenRequests retrieves pending and confirmed availability and offer
// requests for a job
func (r *SQLiteRepository) ListOpenRequests(ctx context.Context, jobID string) ([]*models.StaffingRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, profile_id, phase, status, created_at, updated_at
		FROM staffing_requests
		WHERE job_id = ?
		  AND phase IN ('availability', 'offer')
		  AND status IN ('pending', 'confirmed')
		ORDER BY created_at ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staffing requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.StaffingRequest
	for rows.Next() {
		var req models.StaffingRequest
		var createdAt, updatedAt int64
		err := rows.Scan(&req.ID, &req.JobID, &req.ProfileID, &req.Phase, &req.Status, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staffing request: %w", err)
		}
		req.CreatedAt = time.Unix(createdAt, 0)
		req.UpdatedAt = time.Unix(updatedAt, 0)
		requests = append(requests, &req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staffing requests: %w", err)
	}

	return requests, nil
}

// CreateStaffingRequest inserts a staffing request
func (r *SQLiteRepository) CreateStaffingRequest(ctx context.Context, req *models.StaffingRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	now := time.Now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = req.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO staffing_requests (id, job_id, profile_id, phase, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.JobID, req.ProfileID, req.Phase, req.Status, req.CreatedAt.Unix(), req.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create staffing request: %w", err)
	}
	return nil
}

// UpdateStaffingRequestStatus records a recipient's response
func (r *SQLiteRepository) UpdateStaffingRequestStatus(ctx context.Context, id string, status models.RequestStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE staffing_requests SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update staffing request status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRoleBindings retrieves the role bindings of all requests on a job
func (r *SQLiteRepository) ListRoleBindings(ctx context.Context, jobID string) ([]*models.RequestRoleBinding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT b.request_id, b.role_code, b.event_id, b.bound_at
		FROM request_role_bindings b
		JOIN staffing_requests r ON r.id = b.request_id
		WHERE r.job_id = ?
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query role bindings: %w", err)
	}
	defer rows.Close()

	var bindings []*models.RequestRoleBinding
	for rows.Next() {
		var b models.RequestRoleBinding
		var boundAt int64
		if err := rows.Scan(&b.RequestID, &b.RoleCode, &b.EventID, &boundAt); err != nil {
			return nil, fmt.Errorf("failed to scan role binding: %w", err)
		}
		b.BoundAt = time.Unix(boundAt, 0)
		bindings = append(bindings, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate role bindings: %w", err)
	}

	return bindings, nil
}

// ListSendEvents retrieves the send events of a job in the order they were written
func (r *SQLiteRepository) ListSendEvents(ctx context.Context, jobID string) ([]*models.StaffingEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, request_id, job_id, profile_id, phase, role_code, created_at
		FROM staffing_events
		WHERE job_id = ?
		ORDER BY created_at ASC, seq ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staffing events: %w", err)
	}
	defer rows.Close()

	var events []*models.StaffingEvent
	for rows.Next() {
		var e models.StaffingEvent
		var createdAt int64
		err := rows.Scan(&e.ID, &e.RequestID, &e.JobID, &e.ProfileID, &e.Phase, &e.RoleCode, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staffing event: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staffing events: %w", err)
	}

	return events, nil
}

// RecordContactSent appends a send event and binds the request to the
// event's role. The first binding for a request wins; a later send for a
// different role is still logged and reported as ErrRoleBindingConflict.
func (r *SQLiteRepository) RecordContactSent(ctx context.Context, event *models.StaffingEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO staffing_events (id, request_id, job_id, profile_id, phase, role_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.RequestID, event.JobID, event.ProfileID, event.Phase, event.RoleCode, event.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert staffing event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO request_role_bindings (request_id, role_code, event_id, bound_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (request_id) DO NOTHING
	`, event.RequestID, event.RoleCode, event.ID, event.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to bind request role: %w", err)
	}

	var bound string
	err = tx.QueryRowContext(ctx,
		`SELECT role_code FROM request_role_bindings WHERE request_id = ?`, event.RequestID,
	).Scan(&bound)
	if err != nil {
		return fmt.Errorf("failed to read request role binding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if bound != event.RoleCode {
		return &ErrRoleBindingConflict{RequestID: event.RequestID, Bound: bound, Attempted: event.RoleCode}
	}
	return nil
}
