package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrDuplicateSuppressed is returned when the same content was already
// delivered this session. It is a policy outcome, not a failure.
var ErrDuplicateSuppressed = errors.New("duplicate notification suppressed")

const (
	// DefaultDuration is how long a notification stays visible.
	DefaultDuration = 8 * time.Second
	// AutomationDuration is the longer display used for rule-driven
	// notifications.
	AutomationDuration = 10 * time.Second
)

// Action is one button on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is the rendered content handed to a channel.
type Notification struct {
	Title    string
	Body     string
	Icon     string
	Tag      string
	Actions  []Action
	Duration time.Duration
	Vibrate  []int
}

// Channel is one delivery surface: the in-app overlay or the native OS
// notification.
type Channel interface {
	Show(ctx context.Context, n Notification) error
}

// Options tunes a single delivery.
type Options struct {
	Tag      string
	Actions  []Action
	Duration time.Duration
	Vibrate  []int
	// CustomOnly skips the native channel even when permission is
	// granted.
	CustomOnly bool
}

// Delivery reports which channels actually rendered. Delivery is best
// effort: a channel failure is logged and recorded here, never raised.
type Delivery struct {
	Overlay bool
	Native  bool
}

// Notifier renders a notification on both channels. The overlay always
// shows (it needs no permission); the native channel is added when the
// gate is granted. Duplicate content within a session is suppressed.
type Notifier struct {
	gate    *Gate
	guard   *Guard
	overlay Channel
	native  Channel
	logger  *zap.Logger
}

func NewNotifier(gate *Gate, guard *Guard, overlay, native Channel, logger *zap.Logger) *Notifier {
	return &Notifier{
		gate:    gate,
		guard:   guard,
		overlay: overlay,
		native:  native,
		logger:  logger,
	}
}

// Deliver shows the notification. Returns ErrDuplicateSuppressed when
// the content already rendered this session.
func (n *Notifier) Deliver(ctx context.Context, title, body string, opts Options) (Delivery, error) {
	key := Key(opts.Tag, title, body)
	if !n.guard.Mark(key) {
		n.logger.Debug("notification suppressed",
			zap.String("key", key),
		)
		return Delivery{}, ErrDuplicateSuppressed
	}

	duration := opts.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}
	actions := opts.Actions
	if len(actions) == 0 {
		actions = []Action{
			{Action: "view", Title: "👀 Ver"},
			{Action: "dismiss", Title: "❌ Fechar"},
		}
	}
	vibrate := opts.Vibrate
	if len(vibrate) == 0 {
		vibrate = []int{200, 100, 200}
	}

	notif := Notification{
		Title:    title,
		Body:     body,
		Icon:     "/favicon.ico",
		Tag:      opts.Tag,
		Actions:  actions,
		Duration: duration,
		Vibrate:  vibrate,
	}

	var d Delivery

	if err := n.overlay.Show(ctx, notif); err != nil {
		n.logger.Warn("overlay render failed", zap.Error(err))
	} else {
		d.Overlay = true
	}

	if !opts.CustomOnly && n.native != nil && n.gate.State() == StateGranted {
		if err := n.native.Show(ctx, notif); err != nil {
			n.logger.Warn("native render failed, overlay stands", zap.Error(err))
		} else {
			d.Native = true
		}
	}

	return d, nil
}

// LogChannel logs notifications instead of rendering them. Stand-in for
// a real surface in workers and tests.
type LogChannel struct {
	Name   string
	Logger *zap.Logger
}

func (c *LogChannel) Show(ctx context.Context, notif Notification) error {
	c.Logger.Info("notification rendered",
		zap.String("channel", c.Name),
		zap.String("title", notif.Title),
		zap.String("body", notif.Body),
		zap.Duration("duration", notif.Duration),
	)
	return nil
}
