package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/tokengate/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// MockAuditRepository is a mock implementation of AuditRepository
type MockAuditRepository struct {
	mock.Mock
	mu           sync.Mutex
	insertedLogs []*models.AuditLog
}

func (m *MockAuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	args := m.Called(ctx, log)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertedLogs = append(m.insertedLogs, log)
	return args.Error(0)
}

func (m *MockAuditRepository) List(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, limit)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) ListByUsername(ctx context.Context, username string, limit int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, username, limit)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) GetInsertedLogs() []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditLog(nil), m.insertedLogs...)
}

func (m *MockAuditRepository) insertedCount() int {
	return len(m.GetInsertedLogs())
}

func newLog(action models.AuditAction, username string) *models.AuditLog {
	return models.NewAuditLog(action, username)
}

func TestAuditService_StartStop(t *testing.T) {
	service := NewAuditService(new(MockAuditRepository), zaptest.NewLogger(t), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	assert.Error(t, service.Start(), "a running service cannot start again")

	require.NoError(t, service.Stop(5*time.Second))
	assert.False(t, service.GetStats().Started)

	// a stopped service refuses events and cannot restart
	assert.ErrorIs(t, service.Enqueue(newLog(models.AuditActionLogout, "alice")), ErrNotRunning)
	assert.Error(t, service.Start())
	assert.ErrorIs(t, service.Stop(time.Second), ErrNotRunning)
}

func TestAuditService_Enqueue(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zaptest.NewLogger(t), Config{BufferSize: 100, WorkerCount: 2})
	assert.ErrorIs(t, service.Enqueue(newLog(models.AuditActionLogout, "alice")), ErrNotRunning)

	require.NoError(t, service.Start())
	defer service.Stop(5 * time.Second)

	require.NoError(t, service.Enqueue(newLog(models.AuditActionLoginSucceeded, "alice")))

	require.Eventually(t, func() bool { return mockRepo.insertedCount() == 1 }, time.Second, 10*time.Millisecond)

	inserted := mockRepo.GetInsertedLogs()
	assert.Equal(t, "alice", inserted[0].Username)
	assert.Equal(t, models.AuditActionLoginSucceeded, inserted[0].Action)
	assert.Eventually(t, func() bool { return service.GetStats().Written == 1 }, time.Second, 10*time.Millisecond)
}

func TestAuditService_ConcurrentRecord(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 1000, WorkerCount: 5})
	require.NoError(t, service.Start())

	goroutines, perGoroutine := 10, 10
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				service.Record(newLog(models.AuditActionLoginFailed, "mallory"))
			}
		}()
	}
	wg.Wait()

	// Stop drains everything already queued
	require.NoError(t, service.Stop(5*time.Second))
	assert.Equal(t, goroutines*perGoroutine, mockRepo.insertedCount())
	assert.Equal(t, int64(goroutines*perGoroutine), service.GetStats().Written)
}

func TestAuditService_InsertFailuresAreCounted(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down"))

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, service.Start())

	service.Record(newLog(models.AuditActionLogout, "alice"))

	require.NoError(t, service.Stop(5*time.Second))
	stats := service.GetStats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(0), stats.Written)
}

func TestAuditService_QueueFull(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	release := make(chan struct{})
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		<-release
	})

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 5, WorkerCount: 1})
	require.NoError(t, service.Start())

	accepted := 0
	for i := 0; i < 20; i++ {
		err := service.Enqueue(newLog(models.AuditActionLoginFailed, "mallory"))
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, ErrQueueFull)
	}

	// one event held by the worker plus a full buffer
	assert.LessOrEqual(t, accepted, 6)
	assert.GreaterOrEqual(t, accepted, 5)
	assert.Equal(t, int64(20-accepted), service.GetStats().Dropped)

	close(release)
	require.NoError(t, service.Stop(5*time.Second))
}

func TestAuditService_StopTimeout(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	release := make(chan struct{})
	defer close(release)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		<-release
	})

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 1})
	require.NoError(t, service.Start())

	service.Record(newLog(models.AuditActionLogout, "alice"))

	err := service.Stop(100 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestAuditService_Recent(t *testing.T) {
	ctx := context.Background()
	logs := []*models.AuditLog{newLog(models.AuditActionLogout, "alice")}

	t.Run("all accounts", func(t *testing.T) {
		mockRepo := new(MockAuditRepository)
		mockRepo.On("List", ctx, 20).Return(logs, nil)
		service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())

		got, err := service.Recent(ctx, "", 20)
		require.NoError(t, err)
		assert.Equal(t, logs, got)
		mockRepo.AssertExpectations(t)
	})

	t.Run("one account with clamped limit", func(t *testing.T) {
		mockRepo := new(MockAuditRepository)
		mockRepo.On("ListByUsername", ctx, "alice", maxListLimit).Return(logs, nil)
		service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())

		got, err := service.Recent(ctx, "alice", 0)
		require.NoError(t, err)
		assert.Len(t, got, 1)
		mockRepo.AssertExpectations(t)
	})
}

func TestNewAuditService_Defaults(t *testing.T) {
	def := DefaultConfig()
	assert.Equal(t, 1000, def.BufferSize)
	assert.Equal(t, 2, def.WorkerCount)
	assert.Equal(t, 5*time.Second, def.WriteTimeout)

	stats := NewAuditService(new(MockAuditRepository), zap.NewNop(), Config{}).GetStats()
	assert.False(t, stats.Started)
	assert.Equal(t, def.BufferSize, stats.BufferSize)
	assert.Equal(t, def.WorkerCount, stats.WorkerCount)
	assert.Zero(t, stats.Pending)
}
