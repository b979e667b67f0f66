package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/client"
	"github.com/poupadigital/poupapush/internal/customer"
	"github.com/poupadigital/poupapush/internal/db"
	"github.com/poupadigital/poupapush/internal/notify"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// CampaignCreator creates a remarketing campaign when a rule fires.
type CampaignCreator interface {
	CreateCampaign(ctx context.Context, c client.Campaign) (*client.SendResult, error)
}

// EventTracker records automation telemetry. Best effort.
type EventTracker interface {
	TrackEvent(ctx context.Context, eventType string, data any) error
}

// Notifier renders the fired campaign locally.
type Notifier interface {
	Deliver(ctx context.Context, title, body string, opts notify.Options) (notify.Delivery, error)
}

var (
	_ CampaignCreator = (*client.Client)(nil)
	_ EventTracker    = (*client.Client)(nil)
	_ Notifier        = (*notify.Notifier)(nil)
)

// Outcome records what one rule firing actually did. The whole pipeline
// is best effort, so failures land here instead of propagating.
type Outcome struct {
	RuleID          string
	CampaignCreated bool
	Delivered       notify.Delivery
	Err             error
	At              time.Time
}

// Config tunes the engine's heartbeat.
type Config struct {
	// HeartbeatInterval is the cadence of the site-time counter and
	// rule polling.
	HeartbeatInterval time.Duration
	// InactivityEveryBeats is how many heartbeats between inactivity
	// checks.
	InactivityEveryBeats int
	Clock                Clock
}

// Engine evaluates the rule table against one visitor session. All state
// is owned by the instance; two engines never interfere. A single
// heartbeat drives the site-time counter, inactivity checks and the
// due-task queue, so there is one timer regardless of how many rules are
// scheduled.
type Engine struct {
	mu sync.Mutex

	rules     []Rule
	campaigns CampaignCreator
	tracker   EventTracker
	notifier  Notifier
	store     *customer.Store
	clock     Clock
	logger    *zap.Logger

	heartbeat       time.Duration
	inactivityEvery int

	// session state
	timeOnSite   int // seconds
	beats        int
	lastActivity time.Time
	formStarted  bool
	currentPage  string
	triggered    map[string]bool
	tasks        map[string]time.Time // rule id -> due time
	outcomes     []Outcome

	cancel context.CancelFunc
	wg     sync.WaitGroup // in-flight firings
}

// NewEngine creates an engine for a fresh session.
func NewEngine(rules []Rule, campaigns CampaignCreator, tracker EventTracker, notifier Notifier, store *customer.Store, cfg Config, logger *zap.Logger) *Engine {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = time.Second
	}
	if cfg.InactivityEveryBeats <= 0 {
		cfg.InactivityEveryBeats = 60
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}

	return &Engine{
		rules:           rules,
		campaigns:       campaigns,
		tracker:         tracker,
		notifier:        notifier,
		store:           store,
		clock:           cfg.Clock,
		logger:          logger,
		heartbeat:       cfg.HeartbeatInterval,
		inactivityEvery: cfg.InactivityEveryBeats,
		lastActivity:    cfg.Clock.Now(),
		triggered:       make(map[string]bool),
		tasks:           make(map[string]time.Time),
	}
}

// Start runs the heartbeat until Stop or context cancellation.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	e.logger.Info("automation engine started",
		zap.Int("rules", len(e.rules)),
		zap.Duration("heartbeat", e.heartbeat),
	)

	go func() {
		ticker := time.NewTicker(e.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("automation engine stopped")
				return
			case <-ticker.C:
				e.tick(ctx, e.clock.Now())
			}
		}
	}()
}

// Stop halts the heartbeat and waits for in-flight firings. Pending
// scheduled rules are abandoned.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

// PageView signals navigation to a page.
func (e *Engine) PageView(ctx context.Context, page string) {
	e.mu.Lock()
	e.currentPage = page
	e.lastActivity = e.clock.Now()
	var due []Rule
	for _, r := range e.rules {
		if r.Enabled && r.Trigger == TriggerPageVisit && r.Condition.Page == page {
			due = append(due, r)
		}
	}
	now := e.clock.Now()
	for _, r := range due {
		e.scheduleLocked(r, now)
	}
	e.mu.Unlock()
}

// Touch signals user activity (click, scroll, keypress).
func (e *Engine) Touch() {
	e.mu.Lock()
	e.lastActivity = e.clock.Now()
	e.mu.Unlock()
}

// FormFocus signals the visitor started filling a form.
func (e *Engine) FormFocus() {
	e.mu.Lock()
	e.formStarted = true
	e.mu.Unlock()
}

// FormAbandon signals the visitor left with a form in progress. No-op
// unless a form was started.
func (e *Engine) FormAbandon(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.formStarted {
		return
	}
	now := e.clock.Now()
	for _, r := range e.rules {
		if r.Enabled && r.Trigger == TriggerFormAbandon {
			e.scheduleLocked(r, now)
		}
	}
}

// CartAbandon signals an abandoned checkout.
func (e *Engine) CartAbandon(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	for _, r := range e.rules {
		if r.Enabled && r.Trigger == TriggerCartAbandon {
			e.scheduleLocked(r, now)
		}
	}
}

// TriggerRule arms a rule by id regardless of its condition.
func (e *Engine) TriggerRule(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	for _, r := range e.rules {
		if r.ID == id && r.Enabled {
			e.scheduleLocked(r, now)
			return
		}
	}
}

// CancelRule drops a scheduled-but-not-fired rule and allows it to be
// re-triggered later.
func (e *Engine) CancelRule(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[id]; ok {
		delete(e.tasks, id)
		delete(e.triggered, id)
		e.logger.Debug("scheduled rule cancelled", zap.String("rule_id", id))
	}
}

// Outcomes returns a copy of the firing log.
func (e *Engine) Outcomes() []Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Outcome, len(e.outcomes))
	copy(out, e.outcomes)
	return out
}

// tick advances the session by one heartbeat: bumps the site-time
// counter, polls conditions and fires due tasks.
func (e *Engine) tick(ctx context.Context, now time.Time) {
	e.mu.Lock()

	e.timeOnSite++
	e.beats++

	for _, r := range e.rules {
		if r.Enabled && r.Trigger == TriggerTimeOnSite &&
			r.Condition.TimeThresholdSeconds > 0 &&
			e.timeOnSite >= r.Condition.TimeThresholdSeconds {
			e.scheduleLocked(r, now)
		}
	}

	if e.beats%e.inactivityEvery == 0 {
		inactive := now.Sub(e.lastActivity)
		for _, r := range e.rules {
			if r.Enabled && r.Trigger == TriggerNoActivity &&
				r.Condition.InactivityMinutes > 0 &&
				inactive >= time.Duration(r.Condition.InactivityMinutes)*time.Minute {
				e.scheduleLocked(r, now)
			}
		}
	}

	var fire []Rule
	for _, r := range e.rules {
		if due, ok := e.tasks[r.ID]; ok && !due.After(now) {
			delete(e.tasks, r.ID)
			fire = append(fire, r)
		}
	}
	e.mu.Unlock()

	if len(fire) == 0 {
		return
	}

	// Firing does network calls; a slow campaign API must not stall
	// the heartbeat.
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for _, r := range fire {
			e.fire(ctx, r, now)
		}
	}()
}

// scheduleLocked arms a rule. The rule is marked triggered immediately,
// before its delay elapses, so a condition that stays true cannot
// double-schedule. Callers hold e.mu.
func (e *Engine) scheduleLocked(r Rule, now time.Time) {
	if e.triggered[r.ID] {
		return
	}
	e.triggered[r.ID] = true
	e.tasks[r.ID] = now.Add(time.Duration(r.DelayMinutes) * time.Minute)

	e.logger.Info("automation scheduled",
		zap.String("rule_id", r.ID),
		zap.String("rule", r.Name),
		zap.Int("delay_minutes", r.DelayMinutes),
	)
}

// fire creates the campaign, renders the hybrid notification and logs
// telemetry. Every step is best effort; the outcome records what stuck.
func (e *Engine) fire(ctx context.Context, r Rule, now time.Time) {
	data := e.sessionData()
	title := r.Campaign.Title
	body := personalize(r.Campaign, data)
	leadScore := data.QualityScore()

	minScore := 1
	if leadScore >= 3 {
		minScore = 3
	}

	outcome := Outcome{RuleID: r.ID, At: now}

	_, err := e.campaigns.CreateCampaign(ctx, client.Campaign{
		Name:           fmt.Sprintf("Auto: %s - %s", r.Name, now.Format("02/01/2006")),
		Title:          title,
		Body:           body,
		ScheduleType:   "immediate",
		TargetAudience: db.TargetAudience{MinQualityScore: &minScore},
	})
	if err != nil {
		outcome.Err = err
		e.logger.Warn("automation campaign failed",
			zap.String("rule_id", r.ID),
			zap.Error(err),
		)
	} else {
		outcome.CampaignCreated = true
	}

	if e.notifier != nil {
		delivered, derr := e.notifier.Deliver(ctx, title, body, notify.Options{
			Tag:      r.ID,
			Duration: notify.AutomationDuration,
			Vibrate:  []int{200, 100, 200, 100, 200},
			Actions: []notify.Action{
				{Action: "view", Title: "👀 Ver Detalhes"},
				{Action: "schedule", Title: "📅 Agendar"},
				{Action: "dismiss", Title: "❌ Dispensar"},
			},
		})
		if derr != nil && outcome.Err == nil {
			outcome.Err = derr
		}
		outcome.Delivered = delivered
	}

	if e.tracker != nil {
		if terr := e.tracker.TrackEvent(ctx, "push_notification_sent", map[string]any{
			"automation_type":   "automation_triggered",
			"rule_id":           r.ID,
			"rule_name":         r.Name,
			"trigger":           string(r.Trigger),
			"lead_score":        leadScore,
			"has_customer_data": data.Name != "",
		}); terr != nil {
			e.logger.Debug("automation telemetry failed", zap.Error(terr))
		}
	}

	e.mu.Lock()
	e.outcomes = append(e.outcomes, outcome)
	e.mu.Unlock()

	e.logger.Info("automation fired",
		zap.String("rule_id", r.ID),
		zap.String("rule", r.Name),
		zap.Bool("campaign_created", outcome.CampaignCreated),
		zap.Bool("overlay", outcome.Delivered.Overlay),
		zap.Bool("native", outcome.Delivered.Native),
	)
}

func (e *Engine) sessionData() customer.Data {
	if e.store == nil {
		return customer.Data{}
	}
	return e.store.Get()
}

// personalize prefixes the first name when known and appends the urgency
// marker for high-priority rules.
func personalize(c CampaignSpec, data customer.Data) string {
	body := c.Body
	if first := data.FirstName(); first != "" {
		body = "Olá " + first + ", " + strings.ToLower(body)
	}
	if c.Priority == PriorityHigh {
		body += " ⚡ Ação limitada!"
	}
	return body
}
