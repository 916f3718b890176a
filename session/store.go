package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/upb/admin-portal/models"
	"go.uber.org/zap"
)

const (
	tokenKey = "auth_token"
	userKey  = "auth_user"
	epochKey = "epoch"

	// DefaultScope is used when the store is not bound to a browser session
	DefaultScope = "default"
)

// ErrEmptyCredential is returned when saving a session without a credential
var ErrEmptyCredential = errors.New("credential must not be empty")

// Epoch marks a session write attempt. Begin and Clear advance it; a write made
// with an older epoch is discarded.
type Epoch int64

// Store is the session store for one scope. It is safe for concurrent use;
// copies returned by Scope share the medium.
type Store struct {
	medium    Medium
	namespace string
	scope     string
	logger    *zap.Logger
}

// NewStore creates a store over the medium. Keys are prefixed with namespace.
func NewStore(medium Medium, namespace string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		medium:    medium,
		namespace: namespace,
		scope:     DefaultScope,
		logger:    logger,
	}
}

// Scope returns a store bound to the given scope id
func (s *Store) Scope(id string) *Store {
	if id == "" {
		id = DefaultScope
	}
	scoped := *s
	scoped.scope = id
	return &scoped
}

// ScopeID returns the scope this store is bound to
func (s *Store) ScopeID() string {
	return s.scope
}

func (s *Store) key(name string) string {
	return s.namespace + ":" + s.scope + ":" + name
}

// Save persists the credential and profile together. A nil profile stores the
// credential alone and removes any previous profile.
func (s *Store) Save(ctx context.Context, credential models.Credential, profile *models.UserProfile) error {
	b, err := s.saveBatch(credential, profile)
	if err != nil {
		return err
	}
	if _, err := s.medium.Apply(ctx, b); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Begin starts a write attempt and returns its epoch
func (s *Store) Begin(ctx context.Context) (Epoch, error) {
	n, err := s.medium.Incr(ctx, s.key(epochKey))
	if err != nil {
		return 0, fmt.Errorf("begin session write: %w", err)
	}
	return Epoch(n), nil
}

// SaveIfCurrent behaves like Save but only when no Begin or Clear happened since
// epoch was issued. It reports whether the write was applied.
func (s *Store) SaveIfCurrent(ctx context.Context, epoch Epoch, credential models.Credential, profile *models.UserProfile) (bool, error) {
	b, err := s.saveBatch(credential, profile)
	if err != nil {
		return false, err
	}
	b.Guard = s.key(epochKey)
	b.Expect = int64(epoch)

	applied, err := s.medium.Apply(ctx, b)
	if err != nil {
		return false, fmt.Errorf("save session: %w", err)
	}
	if !applied {
		s.logger.Debug("Discarded superseded session write",
			zap.String("scope", s.scope),
			zap.Int64("epoch", int64(epoch)),
		)
	}
	return applied, nil
}

func (s *Store) saveBatch(credential models.Credential, profile *models.UserProfile) (Batch, error) {
	if credential == "" {
		return Batch{}, ErrEmptyCredential
	}

	b := Batch{Set: map[string]string{s.key(tokenKey): string(credential)}}
	if profile == nil {
		b.Delete = []string{s.key(userKey)}
		return b, nil
	}

	data, err := json.Marshal(profile.EnsureRoles())
	if err != nil {
		return Batch{}, fmt.Errorf("encode profile: %w", err)
	}
	b.Set[s.key(userKey)] = string(data)
	return b, nil
}

// DiscardCredential removes credential if it is still stored without a profile,
// leaving anything a newer write put there alone. It reports whether it removed it.
func (s *Store) DiscardCredential(ctx context.Context, credential models.Credential) (bool, error) {
	if credential == "" {
		return false, nil
	}
	removed, err := s.medium.Apply(ctx, Batch{
		Match:  map[string]string{s.key(tokenKey): string(credential)},
		Absent: []string{s.key(userKey)},
		Delete: []string{s.key(tokenKey)},
	})
	if err != nil {
		return false, fmt.Errorf("discard credential: %w", err)
	}
	return removed, nil
}

// Current returns credential and profile from a single read.
// Medium failures and corrupt data read as no session.
func (s *Store) Current(ctx context.Context) models.Session {
	vals, err := s.medium.Load(ctx, s.key(tokenKey), s.key(userKey))
	if err != nil {
		s.logger.Error("Failed to read session", zap.String("scope", s.scope), zap.Error(err))
		return models.Session{}
	}
	return models.Session{
		Credential: models.Credential(vals[s.key(tokenKey)]),
		Profile:    s.decodeProfile(vals[s.key(userKey)]),
	}
}

// CurrentUser returns the stored profile, or nil when absent or unreadable
func (s *Store) CurrentUser(ctx context.Context) *models.UserProfile {
	vals, err := s.medium.Load(ctx, s.key(userKey))
	if err != nil {
		s.logger.Error("Failed to read session profile", zap.String("scope", s.scope), zap.Error(err))
		return nil
	}
	return s.decodeProfile(vals[s.key(userKey)])
}

// CurrentCredential returns the stored credential, if any
func (s *Store) CurrentCredential(ctx context.Context) (models.Credential, bool) {
	vals, err := s.medium.Load(ctx, s.key(tokenKey))
	if err != nil {
		s.logger.Error("Failed to read session credential", zap.String("scope", s.scope), zap.Error(err))
		return "", false
	}
	token := vals[s.key(tokenKey)]
	return models.Credential(token), token != ""
}

// IsAuthenticated reports whether a credential is stored, regardless of the profile
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	_, ok := s.CurrentCredential(ctx)
	return ok
}

// Clear removes credential and profile and invalidates pending write attempts.
// Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.medium.Apply(ctx, Batch{
		Delete: []string{s.key(tokenKey), s.key(userKey)},
		Incr:   []string{s.key(epochKey)},
	})
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Ping checks the medium
func (s *Store) Ping(ctx context.Context) error {
	return s.medium.Ping(ctx)
}

func (s *Store) decodeProfile(raw string) *models.UserProfile {
	if raw == "" {
		return nil
	}
	var p models.UserProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn("Discarding unreadable session profile",
			zap.String("scope", s.scope),
			zap.Error(err),
		)
		return nil
	}
	return p.EnsureRoles()
}
