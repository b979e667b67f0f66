package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/db"
	"github.com/poupadigital/poupapush/internal/metrics"
	"github.com/poupadigital/poupapush/internal/push"
	"github.com/poupadigital/poupapush/internal/redis"
)

// Repository is the subset of the persistence layer the dispatcher needs.
type Repository interface {
	GetLead(ctx context.Context, id uuid.UUID) (*db.Lead, error)
	ListActiveLeads(ctx context.Context, audience *db.TargetAudience) ([]*db.Lead, error)
	MarkLeadNotified(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	FinishCampaign(ctx context.Context, id uuid.UUID, totalSent int) error
}

// Locker guards a campaign dispatch so concurrent triggers for the same
// campaign fan out at most once.
type Locker interface {
	Acquire(ctx context.Context, campaignID string) error
	Release(ctx context.Context, campaignID string) error
}

// Result summarizes one campaign fan-out. A fan-out is best effort: some
// leads may fail while others succeed, so callers get counts, not a
// single verdict.
type Result struct {
	Sent       int `json:"sent"`
	Errors     int `json:"errors"`
	TotalLeads int `json:"total_leads"`
}

// ErrLeadInactive is returned by SendToLead when the target lead has an
// inactive subscription.
var ErrLeadInactive = errors.New("lead is not active")

// Dispatcher fans a campaign out to its audience through the configured
// push sender.
type Dispatcher struct {
	repo   Repository
	lock   Locker
	sender push.Sender
	logger *zap.Logger
}

// New creates a Dispatcher. lock may be nil when Redis is unavailable;
// dispatch then runs without the duplicate-fanout guard.
func New(repo Repository, lock Locker, sender push.Sender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		lock:   lock,
		sender: sender,
		logger: logger,
	}
}

// Fanout delivers the campaign to every active lead matching its audience
// filter. The per-campaign lock is acquired first; a concurrent fan-out of
// the same campaign returns redis.ErrDispatchInProgress. Individual send
// failures are counted, logged and skipped; there are no per-lead retries.
func (d *Dispatcher) Fanout(ctx context.Context, campaign *db.Campaign) (*Result, error) {
	start := time.Now()

	if d.lock != nil {
		if err := d.lock.Acquire(ctx, campaign.ID.String()); err != nil {
			return nil, err
		}
	}

	leads, err := d.repo.ListActiveLeads(ctx, &campaign.TargetAudience)
	if err != nil {
		if d.lock != nil {
			if relErr := d.lock.Release(ctx, campaign.ID.String()); relErr != nil {
				d.logger.Warn("failed to release dispatch lock",
					zap.String("campaign_id", campaign.ID.String()),
					zap.Error(relErr),
				)
			}
		}
		return nil, fmt.Errorf("failed to list audience: %w", err)
	}

	msg := push.Message{
		Title:      campaign.Title,
		Body:       campaign.Body,
		Icon:       campaign.Icon,
		Badge:      campaign.Badge,
		CampaignID: campaign.ID,
	}

	result := &Result{TotalLeads: len(leads)}
	for _, lead := range leads {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("fan-out interrupted",
				zap.String("campaign_id", campaign.ID.String()),
				zap.Int("sent", result.Sent),
				zap.Int("remaining", result.TotalLeads-result.Sent-result.Errors),
			)
			break
		}

		if err := d.sender.Send(ctx, lead, msg); err != nil {
			result.Errors++
			metrics.RecordPushDelivery("error")
			d.logger.Warn("push delivery failed",
				zap.String("campaign_id", campaign.ID.String()),
				zap.String("lead_id", lead.ID.String()),
				zap.Error(err),
			)
			continue
		}

		result.Sent++
		metrics.RecordPushDelivery("sent")
		if err := d.repo.MarkLeadNotified(ctx, lead.ID, time.Now()); err != nil {
			d.logger.Warn("failed to mark lead notified",
				zap.String("lead_id", lead.ID.String()),
				zap.Error(err),
			)
		}
	}

	if err := d.repo.FinishCampaign(ctx, campaign.ID, result.Sent); err != nil {
		d.logger.Error("failed to finish campaign",
			zap.String("campaign_id", campaign.ID.String()),
			zap.Error(err),
		)
	}

	metrics.RecordCampaignDispatched(campaign.ScheduleType, time.Since(start))
	d.logger.Info("campaign fan-out complete",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("name", campaign.Name),
		zap.Int("total_leads", result.TotalLeads),
		zap.Int("sent", result.Sent),
		zap.Int("errors", result.Errors),
		zap.Duration("duration", time.Since(start)),
	)

	// The lock is left to expire so a re-trigger inside the TTL window
	// stays suppressed.
	return result, nil
}

// SendToLead delivers a one-off message to a single lead outside any
// campaign. Used for targeted nudges from the automation engine.
func (d *Dispatcher) SendToLead(ctx context.Context, leadID uuid.UUID, title, body string) error {
	lead, err := d.repo.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	if !lead.IsActive {
		return fmt.Errorf("lead %s: %w", leadID, ErrLeadInactive)
	}

	msg := push.Message{
		Title: title,
		Body:  body,
		Icon:  "/favicon.ico",
		Badge: "/favicon.ico",
	}
	if err := d.sender.Send(ctx, lead, msg); err != nil {
		metrics.RecordPushDelivery("error")
		return fmt.Errorf("failed to send to lead %s: %w", leadID, err)
	}

	metrics.RecordPushDelivery("sent")
	if err := d.repo.MarkLeadNotified(ctx, lead.ID, time.Now()); err != nil {
		d.logger.Warn("failed to mark lead notified",
			zap.String("lead_id", lead.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

// compile-time checks against the concrete implementations
var (
	_ Repository = (*db.Repository)(nil)
	_ Locker     = (*redis.DispatchLock)(nil)
)
