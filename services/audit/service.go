package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/repositories"
	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned when events are queued before Start or after Stop
	ErrNotStarted = errors.New("audit service not started")
	// ErrBufferFull is returned when the event buffer cannot take more events
	ErrBufferFull = errors.New("audit event buffer full")
	// ErrNoRepository is returned by queries when events only go to the log
	ErrNoRepository = errors.New("audit trail is not persisted")
)

// Recorder accepts audit events without blocking the caller
type Recorder interface {
	Record(ctx context.Context, event *models.AuditEvent)
}

// Service writes audit events asynchronously through a pool of workers.
// Without a repository the events are written to the logger instead.
type Service struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *models.AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	started     bool
	stopped     bool
	mu          sync.RWMutex
}

// Config holds configuration for the Service
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewService creates a new audit Service. auditRepo may be nil.
func NewService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *Service {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.BufferSize < 0 {
		config.BufferSize = 0
	}
	return &Service{
		auditRepo:   auditRepo,
		logger:      logger,
		eventChan:   make(chan *models.AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize),
		zap.Bool("persistent", s.auditRepo != nil))

	return nil
}

// Stop stops accepting events and waits for the queued ones to be written
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	s.stopped = true
	pending := len(s.eventChan)
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event without blocking
func (s *Service) LogEvent(event *models.AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Action)),
			zap.String("user_id", event.UserID))
		return ErrBufferFull
	}
}

// Record fills in request metadata from ctx and queues the event. Failures are
// logged; auditing never fails the caller.
func (s *Service) Record(ctx context.Context, event *models.AuditEvent) {
	if event == nil {
		return
	}
	if meta, ok := RequestMetaFrom(ctx); ok {
		if event.RequestID == "" {
			event.RequestID = meta.RequestID
		}
		if event.IPAddress == "" {
			event.IPAddress = meta.IPAddress
		}
		if event.UserAgent == "" {
			event.UserAgent = meta.UserAgent
		}
	}
	if err := s.LogEvent(event); err != nil && !errors.Is(err, ErrBufferFull) {
		s.logger.Debug("audit event not queued", zap.String("action", string(event.Action)), zap.Error(err))
	}
}

// Recent returns the newest persisted events
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]*models.AuditEvent, error) {
	if s.auditRepo == nil {
		return nil, ErrNoRepository
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if userID != "" {
		return s.auditRepo.ListByUser(ctx, userID, limit)
	}
	return s.auditRepo.ListRecent(ctx, limit)
}

// worker processes events from the channel
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Action)),
				zap.String("user_id", event.UserID))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent writes a single audit event
func (s *Service) processEvent(event *models.AuditEvent) error {
	if s.auditRepo == nil {
		s.logger.Info("auth event",
			zap.String("action", string(event.Action)),
			zap.String("user_id", event.UserID),
			zap.String("email", event.Email),
			zap.String("path", event.Path),
			zap.String("reason", event.Reason),
			zap.String("request_id", event.RequestID),
			zap.Time("timestamp", event.Timestamp))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started,
		Persistent:    s.auditRepo != nil,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
	Persistent    bool
}
