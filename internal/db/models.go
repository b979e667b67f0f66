package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Lead is one captured push subscription plus whatever contact data the
// visitor has volunteered so far. Endpoint is the upsert key: one row per
// logical device/browser.
type Lead struct {
	ID        uuid.UUID `json:"id"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"p256dh_key"`
	AuthKey   string    `json:"auth_key"`

	UserAgent   *string `json:"user_agent,omitempty"`
	Referrer    *string `json:"referrer,omitempty"`
	UTMSource   *string `json:"utm_source,omitempty"`
	UTMMedium   *string `json:"utm_medium,omitempty"`
	UTMCampaign *string `json:"utm_campaign,omitempty"`

	CustomerName                *string `json:"customer_name,omitempty"`
	CustomerPhone               *string `json:"customer_phone,omitempty"`
	CustomerCPF                 *string `json:"customer_cpf,omitempty"`
	CustomerAddressStreet       *string `json:"customer_address_street,omitempty"`
	CustomerAddressNumber       *string `json:"customer_address_number,omitempty"`
	CustomerAddressComplement   *string `json:"customer_address_complement,omitempty"`
	CustomerAddressNeighborhood *string `json:"customer_address_neighborhood,omitempty"`
	CustomerAddressCity         *string `json:"customer_address_city,omitempty"`
	CustomerAddressState        *string `json:"customer_address_state,omitempty"`
	CustomerAddressZipCode      *string `json:"customer_address_zip_code,omitempty"`
	CustomerAddressCountry      string  `json:"customer_address_country"`

	InterestedProduct *string `json:"interested_product,omitempty"`
	LeadSource        string  `json:"lead_source"`

	QualityScore         int        `json:"quality_score"`
	IsActive             bool       `json:"is_active"`
	HasMadePurchase      bool       `json:"has_made_purchase"`
	PurchaseAmount       *float64   `json:"purchase_amount,omitempty"`
	LastPurchaseDate     *time.Time `json:"last_purchase_date,omitempty"`
	LastNotificationSent *time.Time `json:"last_notification_sent,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lead source constants
const (
	SourcePermission = "notification_permission"
	SourceFormFill   = "form_fill"
)

// ScoreLead derives the quality score (1-5) from field presence.
// Base 1 for accepting notifications; name, phone, a full address and a
// completed purchase add one point each.
func ScoreLead(l *Lead) int {
	score := 1
	if l.CustomerName != nil && *l.CustomerName != "" {
		score++
	}
	if l.CustomerPhone != nil && *l.CustomerPhone != "" {
		score++
	}
	if hasText(l.CustomerAddressStreet) && hasText(l.CustomerAddressCity) && hasText(l.CustomerAddressState) {
		score++
	}
	if l.HasMadePurchase {
		score++
	}
	if score > 5 {
		score = 5
	}
	return score
}

func hasText(s *string) bool {
	return s != nil && *s != ""
}

// LeadUpdate is a partial update applied to an existing lead, keyed by
// endpoint. Nil fields are left untouched.
type LeadUpdate struct {
	CustomerName                *string  `json:"customer_name,omitempty"`
	CustomerPhone               *string  `json:"customer_phone,omitempty"`
	CustomerCPF                 *string  `json:"customer_cpf,omitempty"`
	CustomerAddressStreet       *string  `json:"customer_address_street,omitempty"`
	CustomerAddressNumber       *string  `json:"customer_address_number,omitempty"`
	CustomerAddressComplement   *string  `json:"customer_address_complement,omitempty"`
	CustomerAddressNeighborhood *string  `json:"customer_address_neighborhood,omitempty"`
	CustomerAddressCity         *string  `json:"customer_address_city,omitempty"`
	CustomerAddressState        *string  `json:"customer_address_state,omitempty"`
	CustomerAddressZipCode      *string  `json:"customer_address_zip_code,omitempty"`
	CustomerAddressCountry      *string  `json:"customer_address_country,omitempty"`
	InterestedProduct           *string  `json:"interested_product,omitempty"`
	LeadSource                  *string  `json:"lead_source,omitempty"`
	HasMadePurchase             *bool    `json:"has_made_purchase,omitempty"`
	PurchaseAmount              *float64 `json:"purchase_amount,omitempty"`
}

// TargetAudience holds the campaign segmentation predicates. All set fields
// are ANDed together; simple equality except the score floor.
type TargetAudience struct {
	HasMadePurchase   *bool   `json:"has_made_purchase,omitempty"`
	MinQualityScore   *int    `json:"min_quality_score,omitempty"`
	LeadSource        *string `json:"lead_source,omitempty"`
	InterestedProduct *string `json:"interested_product,omitempty"`
	CustomerCity      *string `json:"customer_city,omitempty"`
	CustomerState     *string `json:"customer_state,omitempty"`
}

// Schedule type constants
const (
	ScheduleImmediate = "immediate"
	ScheduleScheduled = "scheduled"
)

// Campaign status constants
const (
	CampaignPending     = "pending"
	CampaignDispatching = "dispatching"
	CampaignSent        = "sent"
)

// Campaign is a remarketing dispatch record: a titled/bodied message plus
// an optional audience filter and the aggregate counters the dispatcher
// updates after fan-out.
type Campaign struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	Icon           string         `json:"icon"`
	Badge          string         `json:"badge"`
	TargetAudience TargetAudience `json:"target_audience"`
	ScheduleType   string         `json:"schedule_type"`
	ScheduledFor   *time.Time     `json:"scheduled_for,omitempty"`
	Status         string         `json:"status"`
	TotalSent      int            `json:"total_sent"`
	TotalDelivered int            `json:"total_delivered"`
	TotalClicked   int            `json:"total_clicked"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AnalyticsEvent is a free-form engagement event. UserID stays nil for
// anonymous events.
type AnalyticsEvent struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data"`
	UserID    *uuid.UUID      `json:"user_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
