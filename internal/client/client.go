package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/db"
)

// Client is the HTTP client for the lead/campaign API. The storefront
// session layer (permission capture, automation engine) talks to the
// dispatcher through it instead of touching the database.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

func New(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// Subscription is the Web Push subscription plus visitor context sent on
// capture.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`

	UserAgent   string `json:"user_agent,omitempty"`
	Referrer    string `json:"referrer,omitempty"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`

	CustomerName                string `json:"customer_name,omitempty"`
	CustomerPhone               string `json:"customer_phone,omitempty"`
	CustomerCPF                 string `json:"customer_cpf,omitempty"`
	CustomerAddressStreet       string `json:"customer_address_street,omitempty"`
	CustomerAddressNumber       string `json:"customer_address_number,omitempty"`
	CustomerAddressComplement   string `json:"customer_address_complement,omitempty"`
	CustomerAddressNeighborhood string `json:"customer_address_neighborhood,omitempty"`
	CustomerAddressCity         string `json:"customer_address_city,omitempty"`
	CustomerAddressState        string `json:"customer_address_state,omitempty"`
	CustomerAddressZipCode      string `json:"customer_address_zip_code,omitempty"`

	InterestedProduct string `json:"interested_product,omitempty"`
	LeadSource        string `json:"lead_source,omitempty"`
}

// Campaign is the creation payload for a remarketing campaign.
type Campaign struct {
	Name           string            `json:"name"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Icon           string            `json:"icon,omitempty"`
	Badge          string            `json:"badge,omitempty"`
	TargetAudience db.TargetAudience `json:"target_audience"`
	ScheduleType   string            `json:"schedule_type,omitempty"`
	ScheduledFor   *time.Time        `json:"scheduled_for,omitempty"`
}

// SendResult mirrors the API's fan-out summary.
type SendResult struct {
	Sent       int `json:"sent"`
	Errors     int `json:"errors"`
	TotalLeads int `json:"total_leads"`
}

// SaveLead captures a subscription. Returns the lead id.
func (c *Client) SaveLead(ctx context.Context, sub Subscription) (string, error) {
	var resp struct {
		Success bool   `json:"success"`
		LeadID  string `json:"lead_id"`
	}
	if err := c.post(ctx, "/v1/leads", sub, &resp); err != nil {
		return "", err
	}
	return resp.LeadID, nil
}

// UpdateLead applies a partial update to the lead with the given endpoint.
func (c *Client) UpdateLead(ctx context.Context, endpoint string, upd db.LeadUpdate) error {
	body := struct {
		Endpoint string `json:"endpoint"`
		db.LeadUpdate
	}{Endpoint: endpoint, LeadUpdate: upd}

	return c.post(ctx, "/v1/leads/update", body, nil)
}

// CreateCampaign creates a campaign. For immediate campaigns the fan-out
// summary comes back in the response.
func (c *Client) CreateCampaign(ctx context.Context, campaign Campaign) (*SendResult, error) {
	var resp struct {
		Success    bool        `json:"success"`
		SentResult *SendResult `json:"sent_result"`
	}
	if err := c.post(ctx, "/v1/campaigns", campaign, &resp); err != nil {
		return nil, err
	}
	return resp.SentResult, nil
}

// SendCampaign re-triggers an existing campaign by id.
func (c *Client) SendCampaign(ctx context.Context, campaignID string) (*SendResult, error) {
	var resp struct {
		Success    bool        `json:"success"`
		SentResult *SendResult `json:"sent_result"`
	}
	if err := c.post(ctx, "/v1/campaigns/"+campaignID+"/send", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.SentResult, nil
}

// SendToLead pushes a one-off message to a single lead.
func (c *Client) SendToLead(ctx context.Context, leadID, title, body string) error {
	payload := map[string]string{"title": title, "body": body}
	return c.post(ctx, "/v1/leads/"+leadID+"/send", payload, nil)
}

// GetLeads lists the active leads.
func (c *Client) GetLeads(ctx context.Context) ([]*db.Lead, error) {
	var resp struct {
		Success bool       `json:"success"`
		Leads   []*db.Lead `json:"leads"`
	}
	if err := c.get(ctx, "/v1/leads", &resp); err != nil {
		return nil, err
	}
	return resp.Leads, nil
}

// TrackEvent records an engagement event.
func (c *Client) TrackEvent(ctx context.Context, eventType string, data any) error {
	payload := map[string]any{"event_type": eventType}
	if data != nil {
		payload["event_data"] = data
	}
	return c.post(ctx, "/v1/analytics", payload, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, path, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("api request rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw),
		)
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
