package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/db"
	"github.com/poupadigital/poupapush/internal/push"
	"github.com/poupadigital/poupapush/internal/redis"
)

type mockRepo struct {
	leads        []*db.Lead
	listErr      error
	gotAudience  *db.TargetAudience
	notified     map[uuid.UUID]bool
	finishedID   uuid.UUID
	finishedSent int
}

func newMockRepo(leads ...*db.Lead) *mockRepo {
	return &mockRepo{leads: leads, notified: make(map[uuid.UUID]bool)}
}

func (m *mockRepo) GetLead(ctx context.Context, id uuid.UUID) (*db.Lead, error) {
	for _, l := range m.leads {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, db.ErrLeadNotFound
}

func (m *mockRepo) ListActiveLeads(ctx context.Context, audience *db.TargetAudience) ([]*db.Lead, error) {
	m.gotAudience = audience
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.leads, nil
}

func (m *mockRepo) MarkLeadNotified(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	m.notified[id] = true
	return nil
}

func (m *mockRepo) FinishCampaign(ctx context.Context, id uuid.UUID, totalSent int) error {
	m.finishedID = id
	m.finishedSent = totalSent
	return nil
}

type mockPushSender struct {
	failFor map[uuid.UUID]error
	sent    []uuid.UUID
}

func (m *mockPushSender) Name() string { return "mock" }

func (m *mockPushSender) Send(ctx context.Context, lead *db.Lead, msg push.Message) error {
	if err, ok := m.failFor[lead.ID]; ok {
		return err
	}
	m.sent = append(m.sent, lead.ID)
	return nil
}

type mockLocker struct {
	held     map[string]bool
	released []string
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[string]bool)}
}

func (m *mockLocker) Acquire(ctx context.Context, campaignID string) error {
	if m.held[campaignID] {
		return redis.ErrDispatchInProgress
	}
	m.held[campaignID] = true
	return nil
}

func (m *mockLocker) Release(ctx context.Context, campaignID string) error {
	delete(m.held, campaignID)
	m.released = append(m.released, campaignID)
	return nil
}

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func activeLead() *db.Lead {
	return &db.Lead{
		ID:           uuid.New(),
		Endpoint:     "https://push.example.com/" + uuid.NewString(),
		QualityScore: 1,
		IsActive:     true,
	}
}

func testCampaign() *db.Campaign {
	minScore := 3
	return &db.Campaign{
		ID:           uuid.New(),
		Name:         "Reengajamento",
		Title:        "📄 Seu documento te espera!",
		Body:         "Finalize seu agendamento",
		Icon:         "/favicon.ico",
		Badge:        "/favicon.ico",
		ScheduleType: db.ScheduleImmediate,
		Status:       db.CampaignPending,
		TargetAudience: db.TargetAudience{
			MinQualityScore: &minScore,
		},
	}
}

func TestFanout_SendsToAllLeads(t *testing.T) {
	l1, l2, l3 := activeLead(), activeLead(), activeLead()
	repo := newMockRepo(l1, l2, l3)
	sender := &mockPushSender{}
	d := New(repo, newMockLocker(), sender, testLogger())

	c := testCampaign()
	result, err := d.Fanout(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if result.TotalLeads != 3 || result.Sent != 3 || result.Errors != 0 {
		t.Fatalf("result = %+v", result)
	}
	if len(sender.sent) != 3 {
		t.Fatalf("sender calls = %d", len(sender.sent))
	}
	if repo.finishedID != c.ID || repo.finishedSent != 3 {
		t.Fatalf("finish = %s/%d", repo.finishedID, repo.finishedSent)
	}
}

func TestFanout_PassesAudienceFilter(t *testing.T) {
	repo := newMockRepo()
	d := New(repo, newMockLocker(), &mockPushSender{}, testLogger())

	c := testCampaign()
	if _, err := d.Fanout(context.Background(), c); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if repo.gotAudience == nil || repo.gotAudience.MinQualityScore == nil {
		t.Fatal("audience filter not forwarded")
	}
	if *repo.gotAudience.MinQualityScore != 3 {
		t.Fatalf("min_quality_score = %d", *repo.gotAudience.MinQualityScore)
	}
}

func TestFanout_CountsPartialFailures(t *testing.T) {
	l1, l2, l3 := activeLead(), activeLead(), activeLead()
	repo := newMockRepo(l1, l2, l3)
	sender := &mockPushSender{failFor: map[uuid.UUID]error{l2.ID: errors.New("endpoint down")}}
	d := New(repo, newMockLocker(), sender, testLogger())

	result, err := d.Fanout(context.Background(), testCampaign())
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if result.Sent != 2 || result.Errors != 1 || result.TotalLeads != 3 {
		t.Fatalf("result = %+v", result)
	}
	if repo.notified[l2.ID] {
		t.Fatal("failed lead should not be marked notified")
	}
	if !repo.notified[l1.ID] || !repo.notified[l3.ID] {
		t.Fatal("successful leads should be marked notified")
	}
	if repo.finishedSent != 2 {
		t.Fatalf("finished sent = %d", repo.finishedSent)
	}
}

func TestFanout_RejectsConcurrentDispatch(t *testing.T) {
	repo := newMockRepo(activeLead())
	sender := &mockPushSender{}
	lock := newMockLocker()
	d := New(repo, lock, sender, testLogger())

	c := testCampaign()
	lock.held[c.ID.String()] = true

	_, err := d.Fanout(context.Background(), c)
	if !errors.Is(err, redis.ErrDispatchInProgress) {
		t.Fatalf("expected ErrDispatchInProgress, got: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("no sends expected when dispatch is in progress")
	}
}

func TestFanout_ReleasesLockOnListFailure(t *testing.T) {
	repo := newMockRepo()
	repo.listErr = errors.New("db down")
	lock := newMockLocker()
	d := New(repo, lock, &mockPushSender{}, testLogger())

	c := testCampaign()
	if _, err := d.Fanout(context.Background(), c); err == nil {
		t.Fatal("expected error")
	}
	if len(lock.released) != 1 || lock.released[0] != c.ID.String() {
		t.Fatalf("lock not released: %v", lock.released)
	}
}

func TestFanout_NilLockerStillDispatches(t *testing.T) {
	repo := newMockRepo(activeLead())
	sender := &mockPushSender{}
	d := New(repo, nil, sender, testLogger())

	result, err := d.Fanout(context.Background(), testCampaign())
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if result.Sent != 1 {
		t.Fatalf("sent = %d", result.Sent)
	}
}

func TestSendToLead_Success(t *testing.T) {
	lead := activeLead()
	repo := newMockRepo(lead)
	sender := &mockPushSender{}
	d := New(repo, newMockLocker(), sender, testLogger())

	if err := d.SendToLead(context.Background(), lead.ID, "Oi", "mensagem"); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if !repo.notified[lead.ID] {
		t.Fatal("lead should be marked notified")
	}
}

func TestSendToLead_InactiveLead(t *testing.T) {
	lead := activeLead()
	lead.IsActive = false
	repo := newMockRepo(lead)
	d := New(repo, newMockLocker(), &mockPushSender{}, testLogger())

	err := d.SendToLead(context.Background(), lead.ID, "Oi", "mensagem")
	if !errors.Is(err, ErrLeadInactive) {
		t.Fatalf("expected ErrLeadInactive, got: %v", err)
	}
}

func TestSendToLead_UnknownLead(t *testing.T) {
	repo := newMockRepo()
	d := New(repo, newMockLocker(), &mockPushSender{}, testLogger())

	err := d.SendToLead(context.Background(), uuid.New(), "Oi", "mensagem")
	if !errors.Is(err, db.ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got: %v", err)
	}
}
