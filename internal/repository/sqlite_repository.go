package repository

import (
	"context"
	"crew-staffing/internal/models"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRepository implements CampaignRepository, FactRepository and
// RunLocker using SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// initSchema initializes the database schema
func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		starts_at INTEGER,
		ends_at INTEGER,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS required_roles (
		job_id TEXT NOT NULL,
		department TEXT NOT NULL,
		role_code TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		PRIMARY KEY (job_id, department, role_code)
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		technician_id TEXT NOT NULL,
		sound_role TEXT,
		lights_role TEXT,
		video_role TEXT,
		production_role TEXT,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_job_id ON assignments(job_id);

	CREATE TABLE IF NOT EXISTS staffing_requests (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		profile_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_staffing_requests_job ON staffing_requests(job_id, phase, status);

	CREATE TABLE IF NOT EXISTS staffing_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		request_id TEXT NOT NULL,
		job_id TEXT NOT NULL,
		profile_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		role_code TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_staffing_events_job ON staffing_events(job_id, created_at);

	CREATE TABLE IF NOT EXISTS request_role_bindings (
		request_id TEXT PRIMARY KEY,
		role_code TEXT NOT NULL,
		event_id TEXT NOT NULL,
		bound_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS staffing_campaigns (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		department TEXT NOT NULL,
		created_by TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		policy TEXT NOT NULL,
		offer_message TEXT,
		escalation_step_index INTEGER NOT NULL DEFAULT 0,
		run_lock TEXT,
		last_run_at INTEGER,
		next_run_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_campaigns_due ON staffing_campaigns(status, next_run_at);
	CREATE INDEX IF NOT EXISTS idx_campaigns_job ON staffing_campaigns(job_id, department);

	CREATE TABLE IF NOT EXISTS staffing_campaign_roles (
		campaign_id TEXT NOT NULL REFERENCES staffing_campaigns(id) ON DELETE CASCADE,
		role_code TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT 'idle',
		assigned_count INTEGER NOT NULL DEFAULT 0,
		pending_availability INTEGER NOT NULL DEFAULT 0,
		confirmed_availability INTEGER NOT NULL DEFAULT 0,
		pending_offers INTEGER NOT NULL DEFAULT 0,
		accepted_offers INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (campaign_id, role_code)
	);
	`

	_, err := r.db.Exec(schema)
	return err
}

const campaignColumns = `
	id, job_id, department, created_by, mode, status, policy, offer_message,
	escalation_step_index, run_lock, last_run_at, next_run_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	var c models.Campaign
	var policyJSON string
	var offerMessage, runLock sql.NullString
	var lastRunAt, nextRunAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&c.ID,
		&c.JobID,
		&c.Department,
		&c.CreatedBy,
		&c.Mode,
		&c.Status,
		&policyJSON,
		&offerMessage,
		&c.EscalationStepIndex,
		&runLock,
		&lastRunAt,
		&nextRunAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(policyJSON), &c.Policy); err != nil {
		return nil, fmt.Errorf("failed to decode policy of campaign %s: %w", c.ID, err)
	}
	c.OfferMessage = offerMessage.String
	c.RunLock = runLock.String
	c.LastRunAt = fromNullUnix(lastRunAt)
	c.NextRunAt = fromNullUnix(nextRunAt)
	c.CreatedAt = time.Unix(createdAt, 0)
	c.UpdatedAt = time.Unix(updatedAt, 0)

	return &c, nil
}

// CreateCampaign inserts a campaign and its role records in one transaction
func (r *SQLiteRepository) CreateCampaign(ctx context.Context, campaign *models.Campaign, roles []*models.CampaignRole) error {
	policyJSON, err := json.Marshal(campaign.Policy)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = now
	}
	campaign.UpdatedAt = campaign.CreatedAt

	_, err = tx.ExecContext(ctx, `
		INSERT INTO staffing_campaigns (`+campaignColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		campaign.ID,
		campaign.JobID,
		campaign.Department,
		campaign.CreatedBy,
		campaign.Mode,
		campaign.Status,
		string(policyJSON),
		nullString(campaign.OfferMessage),
		campaign.EscalationStepIndex,
		nullString(campaign.RunLock),
		toNullUnix(campaign.LastRunAt),
		toNullUnix(campaign.NextRunAt),
		campaign.CreatedAt.Unix(),
		campaign.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert campaign: %w", err)
	}

	for _, role := range roles {
		role.CampaignID = campaign.ID
		role.UpdatedAt = campaign.CreatedAt
		_, err = tx.ExecContext(ctx, `
			INSERT INTO staffing_campaign_roles (campaign_id, role_code, stage, assigned_count,
				pending_availability, confirmed_availability, pending_offers, accepted_offers, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			role.CampaignID,
			role.RoleCode,
			role.Stage,
			role.AssignedCount,
			role.PendingAvailability,
			role.ConfirmedAvailability,
			role.PendingOffers,
			role.AcceptedOffers,
			role.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert campaign role %s: %w", role.RoleCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetCampaignByID retrieves a campaign by ID
func (r *SQLiteRepository) GetCampaignByID(ctx context.Context, id string) (*models.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM staffing_campaigns WHERE id = ?`, id)
	campaign, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

// ListCampaignRoles retrieves the role records of a campaign
func (r *SQLiteRepository) ListCampaignRoles(ctx context.Context, campaignID string) ([]*models.CampaignRole, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT campaign_id, role_code, stage, assigned_count, pending_availability,
		       confirmed_availability, pending_offers, accepted_offers, updated_at
		FROM staffing_campaign_roles
		WHERE campaign_id = ?
		ORDER BY role_code ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign roles: %w", err)
	}
	defer rows.Close()

	var roles []*models.CampaignRole
	for rows.Next() {
		var role models.CampaignRole
		var updatedAt int64
		err := rows.Scan(
			&role.CampaignID,
			&role.RoleCode,
			&role.Stage,
			&role.AssignedCount,
			&role.PendingAvailability,
			&role.ConfirmedAvailability,
			&role.PendingOffers,
			&role.AcceptedOffers,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign role: %w", err)
		}
		role.UpdatedAt = time.Unix(updatedAt, 0)
		roles = append(roles, &role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate campaign roles: %w", err)
	}

	return roles, nil
}

// UpdateCampaignRole writes the counters and stage of a role record
func (r *SQLiteRepository) UpdateCampaignRole(ctx context.Context, role *models.CampaignRole) error {
	role.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE staffing_campaign_roles
		SET stage = ?, assigned_count = ?, pending_availability = ?, confirmed_availability = ?,
		    pending_offers = ?, accepted_offers = ?, updated_at = ?
		WHERE campaign_id = ? AND role_code = ?
	`,
		role.Stage,
		role.AssignedCount,
		role.PendingAvailability,
		role.ConfirmedAvailability,
		role.PendingOffers,
		role.AcceptedOffers,
		role.UpdatedAt.Unix(),
		role.CampaignID,
		role.RoleCode,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionCampaign conditionally changes a campaign's status
func (r *SQLiteRepository) TransitionCampaign(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus, nextRunAt *time.Time) (bool, error) {
	now := time.Now().Unix()
	query := `UPDATE staffing_campaigns SET status = ?, updated_at = ?`
	args := []any{to, now}
	if nextRunAt != nil {
		query += `, next_run_at = ?`
		args = append(args, nextRunAt.Unix())
	}
	query += ` WHERE id = ? AND status IN (` + placeholders(len(from)) + `)`
	args = append(args, id)
	for _, status := range from {
		args = append(args, status)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to transition campaign: %w", err)
	}
	return n == 1, nil
}

// ScheduleCampaign conditionally sets a campaign's next run time
func (r *SQLiteRepository) ScheduleCampaign(ctx context.Context, id string, from []models.CampaignStatus, nextRunAt time.Time) (bool, error) {
	args := []any{nextRunAt.Unix(), time.Now().Unix(), id}
	for _, status := range from {
		args = append(args, status)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE staffing_campaigns
		SET next_run_at = ?, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders(len(from))+`)
	`, args...)
	if err != nil {
		return false, fmt.Errorf("failed to schedule campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to schedule campaign: %w", err)
	}
	return n == 1, nil
}

// UpdateCampaignPolicy writes an escalated policy guarded by the step index
func (r *SQLiteRepository) UpdateCampaignPolicy(ctx context.Context, id string, expectedStep int, policy models.Policy, step int) (bool, error) {
	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return false, fmt.Errorf("failed to encode policy: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE staffing_campaigns
		SET policy = ?, escalation_step_index = ?, updated_at = ?
		WHERE id = ? AND escalation_step_index = ?
	`, string(policyJSON), step, time.Now().Unix(), id, expectedStep)
	if err != nil {
		return false, fmt.Errorf("failed to update campaign policy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update campaign policy: %w", err)
	}
	return n == 1, nil
}

// TryAcquire takes the run lock of a campaign. The swap is conditioned on
// the lock still holding the value that was read, so two racing callers
// cannot both succeed.
func (r *SQLiteRepository) TryAcquire(ctx context.Context, key string, now time.Time, staleAfter time.Duration) (*Lease, error) {
	var current sql.NullString
	var lastRunAt sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT run_lock, last_run_at FROM staffing_campaigns WHERE id = ?`, key,
	).Scan(&current, &lastRunAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read run lock: %w", err)
	}

	lease := &Lease{Token: uuid.New().String()}
	if current.Valid {
		if lastRunAt.Valid && now.Sub(time.Unix(lastRunAt.Int64, 0)) < staleAfter {
			return nil, ErrLockHeld
		}
		lease.Reclaimed = true
	}

	// IS compares NULL to NULL as equal
	res, err := r.db.ExecContext(ctx, `
		UPDATE staffing_campaigns
		SET run_lock = ?, last_run_at = ?, updated_at = ?
		WHERE id = ? AND run_lock IS ?
	`, lease.Token, now.Unix(), now.Unix(), key, current)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if n == 0 {
		return nil, ErrLockHeld
	}

	return lease, nil
}

// Release clears the run lock if it is still held under token
func (r *SQLiteRepository) Release(ctx context.Context, key, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE staffing_campaigns
		SET run_lock = NULL, updated_at = ?
		WHERE id = ? AND run_lock = ?
	`, time.Now().Unix(), key, token)
	if err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

// FinishTick releases the run lock and records the tick outcome. Status and
// next run time are only written while the campaign is still active so a
// pause or stop that landed mid-tick is preserved.
func (r *SQLiteRepository) FinishTick(ctx context.Context, id, token string, status models.CampaignStatus, nextRunAt *time.Time, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE staffing_campaigns
		SET run_lock = NULL,
		    status = CASE WHEN status = 'active' THEN ? ELSE status END,
		    next_run_at = CASE WHEN status = 'active' THEN ? ELSE next_run_at END,
		    updated_at = ?
		WHERE id = ? AND run_lock = ?
	`, status, toNullUnix(nextRunAt), now.Unix(), id, token)
	if err != nil {
		return false, fmt.Errorf("failed to finish tick: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to finish tick: %w", err)
	}
	return n == 1, nil
}

// ListDueCampaigns returns active campaigns whose next run is due and whose
// run lock is free or stale
func (r *SQLiteRepository) ListDueCampaigns(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]*models.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM staffing_campaigns
		WHERE status = 'active'
		  AND next_run_at IS NOT NULL AND next_run_at <= ?
		  AND (run_lock IS NULL OR last_run_at IS NULL OR last_run_at <= ?)
		ORDER BY next_run_at ASC
		LIMIT ?
	`, now.Unix(), now.Add(-staleAfter).Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate campaigns: %w", err)
	}

	return campaigns, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return "NULL"
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// nullString converts an empty string to NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toNullUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
