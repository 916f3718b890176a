package postgres

import (
	"context"
	"fmt"

	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/repositories"
	"go.uber.org/zap"
)

const auditColumns = `id, action, user_id, email, path, reason, details,
		       ip_address, user_agent, request_id, timestamp`

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores one audit event
func (r *AuditRepository) Insert(ctx context.Context, event *models.AuditEvent) error {
	query := `
		INSERT INTO auth_events (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var details interface{}
	if len(event.Details) > 0 {
		details = []byte(event.Details)
	}

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		string(event.Action),
		event.UserID,
		event.Email,
		event.Path,
		event.Reason,
		details,
		event.IPAddress,
		event.UserAgent,
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	r.logger.Debug("audit event inserted", zap.String("id", event.ID.String()), zap.String("action", string(event.Action)))
	return nil
}

// ListRecent returns the newest events first
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]*models.AuditEvent, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM auth_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	return r.queryEvents(ctx, query, limit)
}

// ListByUser returns the newest events of one user first
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.AuditEvent, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM auth_events
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`
	return r.queryEvents(ctx, query, userID, limit)
}

func (r *AuditRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*models.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		event := &models.AuditEvent{}
		var action string
		var details []byte
		if err := rows.Scan(
			&event.ID,
			&action,
			&event.UserID,
			&event.Email,
			&event.Path,
			&event.Reason,
			&details,
			&event.IPAddress,
			&event.UserAgent,
			&event.RequestID,
			&event.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.Action = models.AuditAction(action)
		if len(details) > 0 {
			event.Details = append(event.Details[:0], details...)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}
