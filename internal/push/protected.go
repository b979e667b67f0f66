package push

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/circuitbreaker"
	"github.com/poupadigital/poupapush/internal/db"
)

// ProtectedSender wraps a Sender with a circuit breaker so a failing
// push vendor does not stall an entire campaign fan-out. When the
// breaker is open, Send fails fast with ErrCircuitOpen.
type ProtectedSender struct {
	sender  Sender
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps the given sender with the given breaker.
func NewProtectedSender(sender Sender, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: breaker,
		logger:  logger,
	}
}

func (p *ProtectedSender) Name() string { return p.sender.Name() }

// Send delivers through the wrapped sender if the circuit allows it.
func (p *ProtectedSender) Send(ctx context.Context, lead *db.Lead, msg Message) error {
	if !p.breaker.Allow() {
		p.logger.Warn("push send rejected by circuit breaker",
			zap.String("breaker", p.breaker.Name()),
			zap.String("lead_id", lead.ID.String()),
		)
		return fmt.Errorf("%s: %w", p.breaker.Name(), circuitbreaker.ErrCircuitOpen)
	}

	if err := p.sender.Send(ctx, lead, msg); err != nil {
		p.breaker.RecordFailure()
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}
