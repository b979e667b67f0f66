package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// State is the session's notification permission state.
type State int

const (
	StateDefault State = iota // not asked yet
	StateGranted
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateDefault:
		return "default"
	case StateGranted:
		return "granted"
	case StateDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Prompter asks the user for notification permission. Implementations
// bridge to whatever surface the session runs on.
type Prompter interface {
	// Supported reports whether the platform has a native
	// notification capability at all.
	Supported() bool
	// Prompt issues the native permission prompt and returns the
	// resulting state.
	Prompt(ctx context.Context) (State, error)
}

// Gate tracks permission for one session and guarantees the user is
// prompted at most once. A denial is final for the session; the booking
// flow continues with overlay-only delivery.
type Gate struct {
	mu       sync.Mutex
	state    State
	prompted bool
	prompter Prompter
	onGrant  func(ctx context.Context)
	logger   *zap.Logger
}

// NewGate creates a permission gate for a fresh session.
func NewGate(prompter Prompter, logger *zap.Logger) *Gate {
	return &Gate{
		state:    StateDefault,
		prompter: prompter,
		logger:   logger,
	}
}

// OnGrant registers a callback invoked once when permission transitions
// to granted. Used to hook subscription capture and the confirmation
// notification.
func (g *Gate) OnGrant(fn func(ctx context.Context)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onGrant = fn
}

// State returns the current permission state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Request resolves the permission state, prompting at most once per
// session. Idempotent: a granted state returns true without a new
// prompt, and a denial is never re-asked.
func (g *Gate) Request(ctx context.Context) bool {
	g.mu.Lock()

	switch {
	case g.state == StateGranted:
		g.mu.Unlock()
		return true
	case g.state == StateDenied || g.prompted:
		g.mu.Unlock()
		return false
	case g.prompter == nil || !g.prompter.Supported():
		g.state = StateDenied
		g.mu.Unlock()
		g.logger.Debug("notifications unsupported on this platform")
		return false
	}

	g.prompted = true
	g.mu.Unlock()

	state, err := g.prompter.Prompt(ctx)
	if err != nil {
		g.logger.Warn("permission prompt failed", zap.Error(err))
		state = StateDenied
	}

	g.mu.Lock()
	g.state = state
	onGrant := g.onGrant
	g.mu.Unlock()

	g.logger.Info("notification permission resolved",
		zap.String("state", state.String()),
	)

	if state == StateGranted {
		if onGrant != nil {
			onGrant(ctx)
		}
		return true
	}
	return false
}
