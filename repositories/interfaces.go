package repositories

import (
	"context"

	"github.com/upb/admin-portal/models"
)

// AuditRepository persists the authentication audit trail
type AuditRepository interface {
	// Insert stores one audit event
	Insert(ctx context.Context, event *models.AuditEvent) error

	// ListRecent returns the newest events first
	ListRecent(ctx context.Context, limit int) ([]*models.AuditEvent, error)

	// ListByUser returns the newest events of one user first
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.AuditEvent, error)
}
