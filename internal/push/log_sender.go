package push

import (
	"context"

	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/db"
)

// LogSender logs messages instead of delivering them. It stands in for
// the real vendor in local development when no VAPID keys are configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(ctx context.Context, lead *db.Lead, msg Message) error {
	s.logger.Info("LOG SENDER: would deliver push",
		zap.String("lead_id", lead.ID.String()),
		zap.String("endpoint", lead.Endpoint),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
		zap.String("campaign_id", msg.CampaignID.String()),
	)
	return nil
}
