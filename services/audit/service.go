// Package audit records account events asynchronously. A fixed pool of
// workers drains a buffered queue into the audit repository, so login and
// person management never wait on the insert.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/upb/tokengate/models"
	"github.com/upb/tokengate/repositories"
	"go.uber.org/zap"
)

// maxListLimit caps the number of entries returned by Recent
const maxListLimit = 500

var (
	// ErrNotRunning is returned when events are queued before Start or after Stop
	ErrNotRunning = errors.New("audit service not running")
	// ErrQueueFull is returned when the queue has no room for another event
	ErrQueueFull = errors.New("audit queue full")
)

// Config holds configuration for the AuditService
type Config struct {
	BufferSize   int           // queued events before Enqueue starts dropping
	WorkerCount  int           // concurrent inserts
	WriteTimeout time.Duration // per-insert deadline
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// AuditService writes account events in the background
type AuditService struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
	cfg    Config

	mu      sync.RWMutex
	queue   chan *models.AuditLog
	running bool
	stopped bool
	wg      sync.WaitGroup

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewAuditService creates a new AuditService. Zero config values take their defaults.
func NewAuditService(repo repositories.AuditRepository, logger *zap.Logger, cfg Config) *AuditService {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	return &AuditService{
		repo:   repo,
		logger: logger,
		cfg:    cfg,
		queue:  make(chan *models.AuditLog, cfg.BufferSize),
	}
}

// Start launches the workers. A service runs at most once.
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.stopped {
		return errors.New("audit service already started")
	}
	s.wg.Add(s.cfg.WorkerCount)
	for i := 0; i < s.cfg.WorkerCount; i++ {
		go s.worker(i)
	}
	s.running = true

	s.logger.Info("audit service started",
		zap.Int("workers", s.cfg.WorkerCount),
		zap.Int("buffer_size", s.cfg.BufferSize))
	return nil
}

// Stop closes the queue and waits up to timeout for queued events to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.stopped = true
	close(s.queue)
	pending := len(s.queue)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending", pending))

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		stats := s.GetStats()
		s.logger.Info("audit service stopped",
			zap.Int64("written", stats.Written),
			zap.Int64("failed", stats.Failed),
			zap.Int64("dropped", stats.Dropped))
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Enqueue queues an event without blocking
func (s *AuditService) Enqueue(log *models.AuditLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running {
		return ErrNotRunning
	}

	select {
	case s.queue <- log:
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit queue full, dropping event",
			zap.String("action", string(log.Action)),
			zap.String("username", log.Username))
		return ErrQueueFull
	}
}

// Record queues an account event. Failures are logged, never returned.
func (s *AuditService) Record(log *models.AuditLog) {
	if err := s.Enqueue(log); err != nil && !errors.Is(err, ErrQueueFull) {
		s.logger.Debug("audit event not recorded",
			zap.String("action", string(log.Action)),
			zap.Error(err))
	}
}

// Recent returns the newest entries, optionally filtered by username
func (s *AuditService) Recent(ctx context.Context, username string, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	if username != "" {
		return s.repo.ListByUsername(ctx, username, limit)
	}
	return s.repo.List(ctx, limit)
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	for log := range s.queue {
		if err := s.write(log); err != nil {
			s.failed.Add(1)
			s.logger.Error("failed to write audit event",
				zap.Int("worker", id),
				zap.String("action", string(log.Action)),
				zap.String("username", log.Username),
				zap.Error(err))
			continue
		}
		s.written.Add(1)
	}
}

func (s *AuditService) write(log *models.AuditLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	if err := s.repo.Insert(ctx, log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Stats is a snapshot of the service state
type Stats struct {
	BufferSize  int
	WorkerCount int
	Pending     int
	Started     bool
	Written     int64
	Failed      int64
	Dropped     int64
}

// GetStats returns a snapshot of the service state
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:  s.cfg.BufferSize,
		WorkerCount: s.cfg.WorkerCount,
		Pending:     len(s.queue),
		Started:     s.running,
		Written:     s.written.Load(),
		Failed:      s.failed.Load(),
		Dropped:     s.dropped.Load(),
	}
}
