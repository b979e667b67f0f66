package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/db"
	"github.com/poupadigital/poupapush/internal/dispatch"
)

// Repository is the subset of the persistence layer the scheduler needs.
type Repository interface {
	ClaimDueCampaigns(ctx context.Context, limit int) ([]*db.Campaign, error)
	ReleaseCampaign(ctx context.Context, id uuid.UUID) error
}

// Dispatcher fans a claimed campaign out to its audience.
type Dispatcher interface {
	Fanout(ctx context.Context, campaign *db.Campaign) (*dispatch.Result, error)
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

// Scheduler polls for scheduled campaigns whose time has come and hands
// them to the dispatcher. Claiming flips the campaign to dispatching, so
// multiple instances can poll the same table without double-sending.
type Scheduler struct {
	repo       Repository
	dispatcher Dispatcher
	config     Config
	logger     *zap.Logger
}

func New(repo Repository, dispatcher Dispatcher, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}

	return &Scheduler{
		repo:       repo,
		dispatcher: dispatcher,
		config:     cfg,
		logger:     logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.Info("campaign scheduler started",
		zap.Duration("poll_interval", s.config.PollInterval),
		zap.Int("batch_size", s.config.BatchSize),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("campaign scheduler stopping")
			return
		case <-ticker.C:
			s.processBatch(ctx)
		}
	}
}

func (s *Scheduler) processBatch(ctx context.Context) {
	campaigns, err := s.repo.ClaimDueCampaigns(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.Error("failed to claim due campaigns", zap.Error(err))
		return
	}
	if len(campaigns) == 0 {
		return
	}

	s.logger.Info("claimed due campaigns", zap.Int("count", len(campaigns)))

	for _, c := range campaigns {
		s.processCampaign(ctx, c)
	}
}

func (s *Scheduler) processCampaign(ctx context.Context, c *db.Campaign) {
	result, err := s.dispatcher.Fanout(ctx, c)
	if err != nil {
		s.logger.Error("scheduled fan-out failed",
			zap.String("campaign_id", c.ID.String()),
			zap.String("name", c.Name),
			zap.Error(err),
		)
		// Put the campaign back so the next poll retries it.
		if relErr := s.repo.ReleaseCampaign(ctx, c.ID); relErr != nil {
			s.logger.Error("failed to release campaign",
				zap.String("campaign_id", c.ID.String()),
				zap.Error(relErr),
			)
		}
		return
	}

	s.logger.Info("scheduled campaign dispatched",
		zap.String("campaign_id", c.ID.String()),
		zap.String("name", c.Name),
		zap.Int("sent", result.Sent),
		zap.Int("errors", result.Errors),
	)
}
