package push

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/poupadigital/poupapush/internal/db"
)

// Message is the notification payload delivered to a subscriber.
type Message struct {
	Title      string
	Body       string
	Icon       string
	Badge      string
	CampaignID uuid.UUID
	URL        string
}

// Sender delivers a push message to a single lead's subscription.
// Implementations must be safe for concurrent use; campaign fan-out
// calls Send from multiple goroutines.
type Sender interface {
	Send(ctx context.Context, lead *db.Lead, msg Message) error
	Name() string
}

// ErrSubscriptionGone signals that the vendor rejected the subscription
// as permanently invalid (expired or unsubscribed endpoint).
var ErrSubscriptionGone = errors.New("push subscription gone")
