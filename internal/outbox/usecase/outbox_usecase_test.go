package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/allisson/tokenvault/internal/outbox/domain"
	tokenDomain "github.com/allisson/tokenvault/internal/token/domain"
)

// MockTxManager is a mock implementation of database.TxManager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

// MockOutboxEventRepository is a mock implementation of OutboxEventRepository
type MockOutboxEventRepository struct {
	mock.Mock
}

func (m *MockOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) GetPendingEvents(
	ctx context.Context,
	limit int,
) ([]*domain.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxEventRepository) Update(ctx context.Context, event *domain.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// MockEventProcessor is a mock implementation of EventProcessor
type MockEventProcessor struct {
	mock.Mock
}

func (m *MockEventProcessor) Process(ctx context.Context, event *domain.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{Interval: 5 * time.Second, BatchSize: 10, MaxRetries: 3}
}

func newTestUseCase(
	config Config,
) (*OutboxUseCase, *MockTxManager, *MockOutboxEventRepository, *MockEventProcessor) {
	txManager := &MockTxManager{}
	outboxRepo := &MockOutboxEventRepository{}
	eventProcessor := &MockEventProcessor{}
	uc := NewOutboxUseCase(config, txManager, outboxRepo, eventProcessor, nil)
	uc.now = func() time.Time { return fixedNow }
	return uc, txManager, outboxRepo, eventProcessor
}

func pendingEvent(eventType, payload string, retries int) *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:        uuid.Must(uuid.NewV7()),
		EventType: eventType,
		Payload:   payload,
		Status:    domain.OutboxEventStatusPending,
		Retries:   retries,
	}
}

func TestNewOutboxUseCase(t *testing.T) {
	config := testConfig()
	uc, _, _, _ := newTestUseCase(config)

	assert.NotNil(t, uc)
	assert.Equal(t, config, uc.config)
	assert.NotNil(t, uc.logger)
}

func TestOutboxUseCase_Start_ContextCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	config := testConfig()
	config.Interval = 100 * time.Millisecond
	uc, _, _, _ := newTestUseCase(config)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := uc.Start(ctx)
	assert.Equal(t, context.Canceled, err)
}

func TestOutboxUseCase_Start_ProcessesAndPrunes(t *testing.T) {
	defer goleak.VerifyNone(t)

	config := testConfig()
	config.Interval = 10 * time.Millisecond
	config.Retention = 24 * time.Hour
	uc, txManager, outboxRepo, _ := newTestUseCase(config)

	pruned := make(chan struct{}, 1)
	txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
	outboxRepo.On("GetPendingEvents", mock.Anything, config.BatchSize).Return([]*domain.OutboxEvent{}, nil)
	outboxRepo.On("DeleteProcessedBefore", mock.Anything, fixedNow.Add(-24*time.Hour)).
		Return(int64(2), nil).
		Run(func(mock.Arguments) {
			select {
			case pruned <- struct{}{}:
			default:
			}
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- uc.Start(ctx) }()

	select {
	case <-pruned:
	case <-time.After(2 * time.Second):
		t.Fatal("processor never pruned")
	}
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestOutboxUseCase_ProcessEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		uc, txManager, outboxRepo, eventProcessor := newTestUseCase(testConfig())
		events := []*domain.OutboxEvent{
			pendingEvent(tokenDomain.EventTypeKeyRotation, `{"oldVersion":1,"newVersion":2}`, 0),
			pendingEvent(tokenDomain.EventTypeTokenRevoked, `{"tokenIds":["tok-1"]}`, 0),
		}

		txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
		outboxRepo.On("GetPendingEvents", ctx, 10).Return(events, nil)
		eventProcessor.On("Process", ctx, events[0]).Return(nil)
		eventProcessor.On("Process", ctx, events[1]).Return(nil)
		outboxRepo.On("Update", ctx, mock.MatchedBy(func(e *domain.OutboxEvent) bool {
			return e.Status == domain.OutboxEventStatusProcessed &&
				e.ProcessedAt != nil && e.ProcessedAt.Equal(fixedNow)
		})).Return(nil).Times(2)

		require.NoError(t, uc.ProcessEvents(ctx))
		txManager.AssertExpectations(t)
		outboxRepo.AssertExpectations(t)
		eventProcessor.AssertExpectations(t)
	})

	t.Run("NoEvents", func(t *testing.T) {
		uc, txManager, outboxRepo, eventProcessor := newTestUseCase(testConfig())

		txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
		outboxRepo.On("GetPendingEvents", ctx, 10).Return([]*domain.OutboxEvent{}, nil)

		require.NoError(t, uc.ProcessEvents(ctx))
		eventProcessor.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
		outboxRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("GetPendingError", func(t *testing.T) {
		uc, txManager, outboxRepo, _ := newTestUseCase(testConfig())

		txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
		outboxRepo.On("GetPendingEvents", ctx, 10).Return(nil, errors.New("database error"))

		err := uc.ProcessEvents(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database error")
	})

	t.Run("ProcessorErrorSchedulesRetry", func(t *testing.T) {
		uc, txManager, outboxRepo, eventProcessor := newTestUseCase(testConfig())
		event := pendingEvent(tokenDomain.EventTypeTokenRevoked, `{}`, 0)

		txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
		outboxRepo.On("GetPendingEvents", ctx, 10).Return([]*domain.OutboxEvent{event}, nil)
		eventProcessor.On("Process", ctx, event).Return(errors.New("processing failed"))
		outboxRepo.On("Update", ctx, mock.MatchedBy(func(e *domain.OutboxEvent) bool {
			return e.ID == event.ID &&
				e.Retries == 1 &&
				e.Status == domain.OutboxEventStatusPending &&
				e.LastError != nil && *e.LastError == "processing failed"
		})).Return(nil)

		require.NoError(t, uc.ProcessEvents(ctx))
		outboxRepo.AssertExpectations(t)
	})

	t.Run("MaxRetriesReached", func(t *testing.T) {
		uc, txManager, outboxRepo, eventProcessor := newTestUseCase(testConfig())
		event := pendingEvent(tokenDomain.EventTypeTokenRevoked, `{}`, 2)

		txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
		outboxRepo.On("GetPendingEvents", ctx, 10).Return([]*domain.OutboxEvent{event}, nil)
		eventProcessor.On("Process", ctx, event).Return(errors.New("processing failed"))
		outboxRepo.On("Update", ctx, mock.MatchedBy(func(e *domain.OutboxEvent) bool {
			return e.Retries == 3 && e.Status == domain.OutboxEventStatusFailed
		})).Return(nil)

		require.NoError(t, uc.ProcessEvents(ctx))
		outboxRepo.AssertExpectations(t)
	})

	t.Run("UpdateError", func(t *testing.T) {
		uc, txManager, outboxRepo, eventProcessor := newTestUseCase(testConfig())
		event := pendingEvent(tokenDomain.EventTypeKeyRotation, `{}`, 0)

		txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
		outboxRepo.On("GetPendingEvents", ctx, 10).Return([]*domain.OutboxEvent{event}, nil)
		eventProcessor.On("Process", ctx, event).Return(nil)
		outboxRepo.On("Update", ctx, mock.AnythingOfType("*domain.OutboxEvent")).Return(errors.New("update failed"))

		err := uc.ProcessEvents(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "update failed")
	})
}

func TestOutboxUseCase_Prune(t *testing.T) {
	ctx := context.Background()

	t.Run("DisabledWithoutRetention", func(t *testing.T) {
		uc, _, outboxRepo, _ := newTestUseCase(testConfig())
		uc.prune(ctx)
		outboxRepo.AssertNotCalled(t, "DeleteProcessedBefore", mock.Anything, mock.Anything)
	})

	t.Run("ErrorIsLogged", func(t *testing.T) {
		config := testConfig()
		config.Retention = time.Hour
		uc, _, outboxRepo, _ := newTestUseCase(config)
		outboxRepo.On("DeleteProcessedBefore", ctx, fixedNow.Add(-time.Hour)).
			Return(int64(0), errors.New("database error"))

		uc.prune(ctx)
		outboxRepo.AssertExpectations(t)
	})
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		outboxRepo := &MockOutboxEventRepository{}
		publisher := NewPublisher(outboxRepo)
		publisher.now = func() time.Time { return fixedNow }

		payload := tokenDomain.TokenRevokedEvent{
			TokenIDs:  []string{"tok-1"},
			UserID:    "user-1",
			Reason:    "logout",
			RevokedAt: fixedNow,
		}
		outboxRepo.On("Create", ctx, mock.MatchedBy(func(e *domain.OutboxEvent) bool {
			return e.EventType == tokenDomain.EventTypeTokenRevoked &&
				e.Status == domain.OutboxEventStatusPending &&
				e.CreatedAt.Equal(fixedNow) &&
				assert.JSONEq(t,
					`{"tokenIds":["tok-1"],"userId":"user-1","reason":"logout","revokedAt":"2024-03-01T12:00:00Z"}`,
					e.Payload)
		})).Return(nil)

		require.NoError(t, publisher.Publish(ctx, tokenDomain.EventTypeTokenRevoked, payload))
		outboxRepo.AssertExpectations(t)
	})

	t.Run("EmptyEventType", func(t *testing.T) {
		outboxRepo := &MockOutboxEventRepository{}
		err := NewPublisher(outboxRepo).Publish(ctx, "", struct{}{})
		assert.ErrorIs(t, err, domain.ErrInvalidEventType)
		outboxRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("RepositoryError", func(t *testing.T) {
		outboxRepo := &MockOutboxEventRepository{}
		outboxRepo.On("Create", ctx, mock.Anything).Return(errors.New("insert failed"))

		err := NewPublisher(outboxRepo).Publish(ctx, tokenDomain.EventTypeKeyRotation, struct{}{})
		assert.EqualError(t, err, "insert failed")
	})
}

type recordedOperation struct {
	domain, operation, status string
}

type recordingMetrics struct {
	operations []recordedOperation
}

func (r *recordingMetrics) RecordOperation(_ context.Context, domainName, operation, status string) {
	r.operations = append(r.operations, recordedOperation{domainName, operation, status})
}

func (r *recordingMetrics) RecordDuration(context.Context, string, string, time.Duration, string) {}

func (r *recordingMetrics) RecordTokenEvent(context.Context, string, string) {}

func TestAuditEventProcessor_Process(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name      string
		eventType string
		payload   string
		wantErr   bool
	}{
		{
			name:      "KeyRotation",
			eventType: tokenDomain.EventTypeKeyRotation,
			payload:   `{"oldVersion":1,"newVersion":2,"timestamp":"2024-03-01T12:00:00Z","affectedTypes":["session"]}`,
		},
		{
			name:      "TokenRevoked",
			eventType: tokenDomain.EventTypeTokenRevoked,
			payload:   `{"tokenIds":["tok-1","tok-2"],"userId":"user-1","reason":"compromised","revokedAt":"2024-03-01T12:00:00Z"}`,
		},
		{
			name:      "UnknownEventType",
			eventType: "something.else",
			payload:   `{"data":"test"}`,
		},
		{
			name:      "InvalidKeyRotationPayload",
			eventType: tokenDomain.EventTypeKeyRotation,
			payload:   `invalid json`,
			wantErr:   true,
		},
		{
			name:      "InvalidTokenRevokedPayload",
			eventType: tokenDomain.EventTypeTokenRevoked,
			payload:   `{"tokenIds":"not-a-list"}`,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &recordingMetrics{}
			processor := NewAuditEventProcessor(logger, m)

			err := processor.Process(ctx, pendingEvent(tt.eventType, tt.payload, 0))

			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, m.operations)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []recordedOperation{{"audit", tt.eventType, "success"}}, m.operations)
		})
	}
}

func TestNewAuditEventProcessor_Defaults(t *testing.T) {
	processor := NewAuditEventProcessor(nil, nil)
	assert.NotNil(t, processor.logger)
	assert.NotNil(t, processor.metrics)
	assert.NoError(t, processor.Process(context.Background(), pendingEvent("x", `{}`, 0)))
}
