package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of authentication event being audited
type AuditAction string

const (
	AuditActionSignInSucceeded AuditAction = "sign_in_succeeded"
	AuditActionSignInFailed    AuditAction = "sign_in_failed"
	AuditActionSignUp          AuditAction = "sign_up"
	AuditActionSignOut         AuditAction = "sign_out"
	AuditActionSessionExpired  AuditAction = "session_expired"
	AuditActionAccessDenied    AuditAction = "access_denied"
	AuditActionRoleAssigned    AuditAction = "role_assigned"
	AuditActionRoleRevoked     AuditAction = "role_revoked"
)

// AuditEvent is one entry of the authentication audit trail
type AuditEvent struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Action    AuditAction     `json:"action" db:"action"`
	UserID    string          `json:"user_id,omitempty" db:"user_id"`
	Email     string          `json:"email,omitempty" db:"email"`
	Path      string          `json:"path,omitempty" db:"path"`
	Reason    string          `json:"reason,omitempty" db:"reason"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string          `json:"user_agent,omitempty" db:"user_agent"`
	RequestID string          `json:"request_id,omitempty" db:"request_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditEvent model
func (AuditEvent) TableName() string {
	return "auth_events"
}

// NewAuditEvent creates a new AuditEvent instance
func NewAuditEvent(action AuditAction) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New(),
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// WithUser sets the user identity
func (e *AuditEvent) WithUser(userID UserID, email string) *AuditEvent {
	e.UserID = userID.String()
	e.Email = email
	return e
}

// WithProfile copies the identity out of a profile, if any
func (e *AuditEvent) WithProfile(p *UserProfile) *AuditEvent {
	if p == nil {
		return e
	}
	return e.WithUser(p.ID, p.Email)
}

// WithPath sets the requested location
func (e *AuditEvent) WithPath(path string) *AuditEvent {
	e.Path = path
	return e
}

// WithReason sets a short machine-readable reason
func (e *AuditEvent) WithReason(reason string) *AuditEvent {
	e.Reason = reason
	return e
}

// WithDetails sets the details
func (e *AuditEvent) WithDetails(details interface{}) *AuditEvent {
	if data, err := json.Marshal(details); err == nil {
		e.Details = data
	}
	return e
}

// WithRequest sets request metadata
func (e *AuditEvent) WithRequest(requestID, ipAddress, userAgent string) *AuditEvent {
	e.RequestID = requestID
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}
