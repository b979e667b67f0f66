package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/client"
	"github.com/poupadigital/poupapush/internal/customer"
	"github.com/poupadigital/poupapush/internal/notify"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type mockCampaigns struct {
	mu      sync.Mutex
	created []client.Campaign
	err     error
	block   chan struct{} // when set, CreateCampaign waits on it
}

func (m *mockCampaigns) CreateCampaign(_ context.Context, c client.Campaign) (*client.SendResult, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	m.created = append(m.created, c)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &client.SendResult{Sent: 1, TotalLeads: 1}, nil
}

type mockTracker struct {
	mu     sync.Mutex
	events []trackedEvent
	err    error
}

type trackedEvent struct {
	eventType string
	data      any
}

func (m *mockTracker) TrackEvent(_ context.Context, eventType string, data any) error {
	m.mu.Lock()
	m.events = append(m.events, trackedEvent{eventType: eventType, data: data})
	m.mu.Unlock()
	return m.err
}

type mockNotifier struct {
	mu        sync.Mutex
	delivered []deliveredNotification
	result    notify.Delivery
	err       error
}

type deliveredNotification struct {
	title string
	body  string
	opts  notify.Options
}

func (m *mockNotifier) Deliver(_ context.Context, title, body string, opts notify.Options) (notify.Delivery, error) {
	m.mu.Lock()
	m.delivered = append(m.delivered, deliveredNotification{title: title, body: body, opts: opts})
	m.mu.Unlock()
	return m.result, m.err
}

type engineFixture struct {
	engine    *Engine
	clock     *fakeClock
	campaigns *mockCampaigns
	tracker   *mockTracker
	notifier  *mockNotifier
	store     *customer.Store
}

func newEngineFixture(t *testing.T, rules []Rule) *engineFixture {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)}
	campaigns := &mockCampaigns{}
	tracker := &mockTracker{}
	notifier := &mockNotifier{result: notify.Delivery{Overlay: true, Native: true}}
	store := customer.NewStore()

	engine := NewEngine(rules, campaigns, tracker, notifier, store, Config{Clock: clock}, zap.NewNop())

	return &engineFixture{
		engine:    engine,
		clock:     clock,
		campaigns: campaigns,
		tracker:   tracker,
		notifier:  notifier,
		store:     store,
	}
}

// ticks advances the clock one second per heartbeat, mirroring the
// running loop, then waits for any firing the last beats spawned.
func (f *engineFixture) ticks(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		f.clock.advance(time.Second)
		f.engine.tick(ctx, f.clock.now)
	}
	f.engine.wg.Wait()
}

// rulesByID narrows the default table so long tick runs do not trip
// unrelated rules.
func rulesByID(ids ...string) []Rule {
	var out []Rule
	for _, r := range DefaultRules() {
		for _, id := range ids {
			if r.ID == id {
				out = append(out, r)
			}
		}
	}
	return out
}

func TestEngineTimeOnSiteFiresAfterDelay(t *testing.T) {
	f := newEngineFixture(t, DefaultRules())
	ctx := context.Background()

	// 30s on site arms welcome-engagement with a 1 minute delay.
	f.ticks(ctx, 30)
	require.Empty(t, f.campaigns.created, "rule fired before its delay elapsed")

	f.ticks(ctx, 60)
	require.Len(t, f.campaigns.created, 1)

	c := f.campaigns.created[0]
	assert.Equal(t, "Auto: Engajamento de Boas-vindas - 10/03/2025", c.Name)
	assert.Equal(t, "👋 Olá! Precisa de ajuda?", c.Title)
	assert.Equal(t, "immediate", c.ScheduleType)
}

func TestEngineSchedulesAtMostOncePerRule(t *testing.T) {
	f := newEngineFixture(t, DefaultRules())
	ctx := context.Background()

	// The time-on-site condition stays true on every beat past the
	// threshold. The rule still fires exactly once.
	f.ticks(ctx, 300)

	fired := 0
	for _, o := range f.engine.Outcomes() {
		if o.RuleID == "welcome-engagement" {
			fired++
		}
	}
	assert.Equal(t, 1, fired)
}

func TestEngineCancelThenRetrigger(t *testing.T) {
	f := newEngineFixture(t, rulesByID("cart-abandon-immediate"))
	ctx := context.Background()

	f.engine.TriggerRule("cart-abandon-immediate")
	f.engine.CancelRule("cart-abandon-immediate")

	f.ticks(ctx, 180)
	require.Empty(t, f.campaigns.created, "cancelled rule still fired")

	// Cancelling clears the triggered mark, so the rule can be armed
	// again.
	f.engine.TriggerRule("cart-abandon-immediate")
	f.ticks(ctx, 120)
	require.Len(t, f.campaigns.created, 1)
	assert.Equal(t, "cart-abandon-immediate", f.engine.Outcomes()[0].RuleID)
}

func TestEngineInactivityNudge(t *testing.T) {
	f := newEngineFixture(t, rulesByID("inactivity-nudge"))
	ctx := context.Background()

	// Checks run every 60 beats. 10 minutes idle with zero delay
	// fires on the first check past the threshold.
	f.ticks(ctx, 540)
	require.Empty(t, f.campaigns.created)

	f.ticks(ctx, 120)
	require.Len(t, f.campaigns.created, 1)
	assert.Equal(t, "⏰ Ainda por aqui?", f.campaigns.created[0].Title)

	// Idle time keeps growing but the rule does not re-fire.
	f.ticks(ctx, 600)
	assert.Len(t, f.campaigns.created, 1)
}

func TestEngineTouchResetsInactivity(t *testing.T) {
	f := newEngineFixture(t, rulesByID("inactivity-nudge"))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		f.ticks(ctx, 60)
		f.engine.Touch()
	}

	assert.Empty(t, f.campaigns.created, "activity should suppress the nudge")
}

func TestEngineFormAbandonRequiresFocus(t *testing.T) {
	f := newEngineFixture(t, DefaultRules())
	ctx := context.Background()

	f.engine.FormAbandon(ctx)
	f.ticks(ctx, 10)
	assert.Empty(t, f.campaigns.created, "abandon without a started form must be ignored")
}

func TestEngineFormAbandonFiresAfterFiveMinutes(t *testing.T) {
	f := newEngineFixture(t, rulesByID("form-abandon-recovery"))
	ctx := context.Background()

	f.engine.FormFocus()
	f.engine.FormAbandon(ctx)

	f.ticks(ctx, 299)
	require.Empty(t, f.campaigns.created)

	f.ticks(ctx, 1)
	require.Len(t, f.campaigns.created, 1)
	assert.Equal(t, "📝 Não perca seu progresso!", f.campaigns.created[0].Title)
}

func TestEnginePaymentPageVisit(t *testing.T) {
	f := newEngineFixture(t, rulesByID("payment-page-incentive"))
	ctx := context.Background()

	f.engine.PageView(ctx, "/servicos")
	f.ticks(ctx, 5)
	require.Empty(t, f.campaigns.created)

	f.engine.PageView(ctx, "/pagamento")
	f.ticks(ctx, 180)
	require.Len(t, f.campaigns.created, 1)
	assert.Equal(t, "💳 Últimos passos!", f.campaigns.created[0].Title)
}

func TestEnginePersonalizesWithCustomerData(t *testing.T) {
	f := newEngineFixture(t, rulesByID("form-abandon-recovery"))
	ctx := context.Background()

	f.store.Update(customer.Data{
		Name:  "Maria Silva",
		Email: "maria@example.com",
		Phone: "11999998888",
	})

	f.engine.FormFocus()
	f.engine.FormAbandon(ctx)
	f.ticks(ctx, 300)

	require.Len(t, f.campaigns.created, 1)
	body := f.campaigns.created[0].Body
	assert.Contains(t, body, "Olá Maria, ")
	assert.Contains(t, body, "⚡ Ação limitada!", "high priority appends the urgency marker")

	// Qualified session narrows the audience to scored leads.
	require.NotNil(t, f.campaigns.created[0].TargetAudience.MinQualityScore)
	assert.Equal(t, 3, *f.campaigns.created[0].TargetAudience.MinQualityScore)
}

func TestEngineAnonymousSessionTargetsEveryone(t *testing.T) {
	f := newEngineFixture(t, DefaultRules())
	ctx := context.Background()

	f.engine.TriggerRule("inactivity-nudge")
	f.ticks(ctx, 1)

	require.Len(t, f.campaigns.created, 1)
	body := f.campaigns.created[0].Body
	assert.NotContains(t, body, "Olá")
	assert.NotContains(t, body, "⚡", "low priority gets no urgency marker")

	require.NotNil(t, f.campaigns.created[0].TargetAudience.MinQualityScore)
	assert.Equal(t, 1, *f.campaigns.created[0].TargetAudience.MinQualityScore)
}

func TestEngineNotificationOptions(t *testing.T) {
	f := newEngineFixture(t, rulesByID("cart-abandon-immediate"))
	ctx := context.Background()

	f.engine.TriggerRule("cart-abandon-immediate")
	f.ticks(ctx, 120)

	require.Len(t, f.notifier.delivered, 1)
	d := f.notifier.delivered[0]
	assert.Equal(t, "🛒 Finalize seu agendamento!", d.title)
	assert.Equal(t, "cart-abandon-immediate", d.opts.Tag)
	assert.Equal(t, notify.AutomationDuration, d.opts.Duration)
	assert.Equal(t, []int{200, 100, 200, 100, 200}, d.opts.Vibrate)

	require.Len(t, d.opts.Actions, 3)
	assert.Equal(t, "👀 Ver Detalhes", d.opts.Actions[0].Title)
	assert.Equal(t, "📅 Agendar", d.opts.Actions[1].Title)
	assert.Equal(t, "❌ Dispensar", d.opts.Actions[2].Title)
}

func TestEngineCampaignFailureStillDeliversLocally(t *testing.T) {
	f := newEngineFixture(t, DefaultRules())
	ctx := context.Background()
	f.campaigns.err = errors.New("api unavailable")

	f.engine.TriggerRule("inactivity-nudge")
	f.ticks(ctx, 1)

	outcomes := f.engine.Outcomes()
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].CampaignCreated)
	assert.Error(t, outcomes[0].Err)
	assert.True(t, outcomes[0].Delivered.Overlay, "local delivery proceeds despite the API failure")
	require.Len(t, f.notifier.delivered, 1)
}

func TestEngineTelemetryPayload(t *testing.T) {
	f := newEngineFixture(t, DefaultRules())
	ctx := context.Background()

	f.store.Update(customer.Data{Name: "João Santos", Email: "joao@example.com", Phone: "11988887777"})
	f.engine.TriggerRule("inactivity-nudge")
	f.ticks(ctx, 1)

	require.Len(t, f.tracker.events, 1)
	ev := f.tracker.events[0]
	assert.Equal(t, "push_notification_sent", ev.eventType)

	data, ok := ev.data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "inactivity-nudge", data["rule_id"])
	assert.Equal(t, "no_activity", data["trigger"])
	assert.Equal(t, true, data["has_customer_data"])
}

func TestEngineTrackerFailureIsNonFatal(t *testing.T) {
	f := newEngineFixture(t, DefaultRules())
	ctx := context.Background()
	f.tracker.err = errors.New("queue down")

	f.engine.TriggerRule("inactivity-nudge")
	f.ticks(ctx, 1)

	outcomes := f.engine.Outcomes()
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].CampaignCreated)
	assert.NoError(t, outcomes[0].Err)
}

func TestEngineSlowCampaignDoesNotBlockHeartbeat(t *testing.T) {
	f := newEngineFixture(t, rulesByID("inactivity-nudge"))
	ctx := context.Background()
	f.campaigns.block = make(chan struct{})

	f.engine.TriggerRule("inactivity-nudge")

	// The firing hangs on the campaign API; beats must keep flowing.
	// ticks() waits for in-flight firings, so beat manually here.
	for i := 0; i < 5; i++ {
		f.clock.advance(time.Second)
		f.engine.tick(ctx, f.clock.now)
	}
	assert.Empty(t, f.engine.Outcomes(), "outcome recorded while the campaign call is still in flight")

	close(f.campaigns.block)
	f.engine.wg.Wait()

	outcomes := f.engine.Outcomes()
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].CampaignCreated)
}

func TestEngineStartStopsOnStop(t *testing.T) {
	f := newEngineFixture(t, DefaultRules())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.engine.Start(ctx)
	f.engine.Stop()

	// Stop twice is safe.
	f.engine.Stop()
}

func TestDefaultRulesTable(t *testing.T) {
	rules := DefaultRules()
	require.Len(t, rules, 5)

	byID := make(map[string]Rule, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
		assert.True(t, r.Enabled, "rule %s should start enabled", r.ID)
		assert.NotEmpty(t, r.Campaign.Title)
		assert.NotEmpty(t, r.Campaign.Body)
	}

	assert.Equal(t, 30, byID["welcome-engagement"].Condition.TimeThresholdSeconds)
	assert.Equal(t, 1, byID["welcome-engagement"].DelayMinutes)
	assert.Equal(t, 5, byID["form-abandon-recovery"].DelayMinutes)
	assert.Equal(t, 2, byID["cart-abandon-immediate"].DelayMinutes)
	assert.Equal(t, 10, byID["inactivity-nudge"].Condition.InactivityMinutes)
	assert.Equal(t, 0, byID["inactivity-nudge"].DelayMinutes)
	assert.Equal(t, "/pagamento", byID["payment-page-incentive"].Condition.Page)
	assert.Equal(t, 3, byID["payment-page-incentive"].DelayMinutes)
}
