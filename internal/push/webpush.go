package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/db"
)

// WebPushConfig holds the VAPID credentials used to sign push requests.
type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	// Subject is the contact URI sent to the push service,
	// e.g. "mailto:contato@poupagenda.site".
	Subject string
	// TTL is how long the push service holds an undelivered message.
	TTL time.Duration
}

// WebPushSender delivers notifications through the Web Push protocol
// using VAPID authentication.
type WebPushSender struct {
	config WebPushConfig
	logger *zap.Logger
}

// payload mirrors what the service worker expects on the other end.
type payload struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Icon  string      `json:"icon,omitempty"`
	Badge string      `json:"badge,omitempty"`
	Data  payloadData `json:"data"`
}

type payloadData struct {
	CampaignID string `json:"campaign_id,omitempty"`
	URL        string `json:"url"`
	Timestamp  int64  `json:"timestamp"`
}

// NewWebPushSender creates a sender backed by the Web Push protocol.
func NewWebPushSender(cfg WebPushConfig, logger *zap.Logger) (*WebPushSender, error) {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil, fmt.Errorf("webpush sender requires VAPID key pair")
	}
	if cfg.Subject == "" {
		cfg.Subject = "mailto:contato@poupagenda.site"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * time.Second
	}
	return &WebPushSender{config: cfg, logger: logger}, nil
}

func (s *WebPushSender) Name() string { return "webpush" }

// Send pushes the message to the lead's subscription endpoint.
func (s *WebPushSender) Send(ctx context.Context, lead *db.Lead, msg Message) error {
	url := msg.URL
	if url == "" {
		url = "/"
	}

	body, err := json.Marshal(payload{
		Title: msg.Title,
		Body:  msg.Body,
		Icon:  msg.Icon,
		Badge: msg.Badge,
		Data: payloadData{
			CampaignID: msg.CampaignID.String(),
			URL:        url,
			Timestamp:  time.Now().UnixMilli(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	sub := &webpush.Subscription{
		Endpoint: lead.Endpoint,
		Keys: webpush.Keys{
			P256dh: lead.P256dhKey,
			Auth:   lead.AuthKey,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, sub, &webpush.Options{
		Subscriber:      s.config.Subject,
		VAPIDPublicKey:  s.config.PublicKey,
		VAPIDPrivateKey: s.config.PrivateKey,
		TTL:             int(s.config.TTL.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("webpush send failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		s.logger.Warn("push subscription no longer valid",
			zap.String("lead_id", lead.ID.String()),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("lead %s: %w", lead.ID, ErrSubscriptionGone)

	case resp.StatusCode >= 400:
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}

	s.logger.Debug("push delivered",
		zap.String("lead_id", lead.ID.String()),
		zap.String("campaign_id", msg.CampaignID.String()),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}
