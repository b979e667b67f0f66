package push

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/circuitbreaker"
	"github.com/poupadigital/poupapush/internal/db"
)

type mockSender struct {
	sendErr   error
	sendCalls int
}

func (m *mockSender) Name() string { return "mock" }

func (m *mockSender) Send(ctx context.Context, lead *db.Lead, msg Message) error {
	m.sendCalls++
	return m.sendErr
}

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func testLead() *db.Lead {
	return &db.Lead{ID: uuid.New(), Endpoint: "https://push.example.com/sub/abc"}
}

func TestProtectedSender_PassesThrough(t *testing.T) {
	mock := &mockSender{}
	cb := circuitbreaker.New(circuitbreaker.Config{Name: "test", MaxFailures: 5}, testLogger())
	ps := NewProtectedSender(mock, cb, testLogger())

	if err := ps.Send(context.Background(), testLead(), Message{Title: "Oi"}); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if mock.sendCalls != 1 {
		t.Fatalf("calls = %d", mock.sendCalls)
	}
}

func TestProtectedSender_FailFastWhenOpen(t *testing.T) {
	mock := &mockSender{sendErr: errors.New("vendor down")}
	cb := circuitbreaker.New(circuitbreaker.Config{Name: "test", MaxFailures: 2}, testLogger())
	ps := NewProtectedSender(mock, cb, testLogger())

	ps.Send(context.Background(), testLead(), Message{})
	ps.Send(context.Background(), testLead(), Message{})
	mock.sendCalls = 0

	err := ps.Send(context.Background(), testLead(), Message{})
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got: %v", err)
	}
	if mock.sendCalls != 0 {
		t.Fatalf("sender called %d times when circuit open", mock.sendCalls)
	}
}

func TestProtectedSender_RecordsOutcomes(t *testing.T) {
	mock := &mockSender{}
	cb := circuitbreaker.New(circuitbreaker.Config{Name: "test", MaxFailures: 5}, testLogger())
	ps := NewProtectedSender(mock, cb, testLogger())

	ps.Send(context.Background(), testLead(), Message{})
	if cb.Stats().TotalSuccesses != 1 {
		t.Fatal("expected 1 success")
	}

	mock.sendErr = errors.New("fail")
	ps.Send(context.Background(), testLead(), Message{})
	if cb.Stats().TotalFailures != 1 {
		t.Fatal("expected 1 failure")
	}
}

func TestProtectedSender_FullLifecycle(t *testing.T) {
	mock := &mockSender{}
	cb := circuitbreaker.New(circuitbreaker.Config{Name: "lifecycle", MaxFailures: 3, RecoveryTimeout: 50 * time.Millisecond}, testLogger())
	ps := NewProtectedSender(mock, cb, testLogger())
	lead := testLead()

	// Phase 1: working
	if err := ps.Send(context.Background(), lead, Message{}); err != nil {
		t.Fatalf("phase1: %v", err)
	}

	// Phase 2: vendor fails, circuit opens
	mock.sendErr = errors.New("push service down")
	for i := 0; i < 3; i++ {
		ps.Send(context.Background(), lead, Message{})
	}
	if cb.GetState() != circuitbreaker.StateOpen {
		t.Fatalf("phase2: expected open, got %s", cb.GetState())
	}

	// Phase 3: fail fast
	mock.sendCalls = 0
	err := ps.Send(context.Background(), lead, Message{})
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Fatalf("phase3: %v", err)
	}
	if mock.sendCalls != 0 {
		t.Fatal("phase3: sender should not be called")
	}

	// Phase 4: wait for recovery
	time.Sleep(60 * time.Millisecond)

	// Phase 5: vendor recovers
	mock.sendErr = nil
	if err := ps.Send(context.Background(), lead, Message{}); err != nil {
		t.Fatalf("phase5: %v", err)
	}
	if cb.GetState() != circuitbreaker.StateClosed {
		t.Fatalf("phase5: expected closed, got %s", cb.GetState())
	}

	// Phase 6: normal traffic
	for i := 0; i < 5; i++ {
		if err := ps.Send(context.Background(), lead, Message{}); err != nil {
			t.Fatalf("phase6[%d]: %v", i, err)
		}
	}
}
