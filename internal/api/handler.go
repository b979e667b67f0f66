package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/db"
	"github.com/poupadigital/poupapush/internal/dispatch"
	"github.com/poupadigital/poupapush/internal/metrics"
	"github.com/poupadigital/poupapush/internal/redis"
)

// LeadRepository defines the database operations the API needs.
type LeadRepository interface {
	UpsertLead(ctx context.Context, lead *db.Lead) error
	UpdateLeadByEndpoint(ctx context.Context, endpoint string, upd *db.LeadUpdate) (*db.Lead, error)
	ListActiveLeads(ctx context.Context, audience *db.TargetAudience) ([]*db.Lead, error)
	CreateCampaign(ctx context.Context, c *db.Campaign) error
	GetCampaign(ctx context.Context, id uuid.UUID) (*db.Campaign, error)
	ListCampaigns(ctx context.Context, limit, offset int) ([]*db.Campaign, error)
	InsertAnalyticsEvent(ctx context.Context, event *db.AnalyticsEvent) error
}

// Dispatcher fans campaigns out and sends one-off pushes.
type Dispatcher interface {
	Fanout(ctx context.Context, campaign *db.Campaign) (*dispatch.Result, error)
	SendToLead(ctx context.Context, leadID uuid.UUID, title, body string) error
}

// AnalyticsQueue mirrors analytics events to a message queue.
type AnalyticsQueue interface {
	Enqueue(ctx context.Context, event *db.AnalyticsEvent) (string, error)
}

// LeadRequest is the subscription capture body. Keys follow the Web Push
// subscription JSON shape produced by the browser.
type LeadRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`

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
	CustomerAddressCountry      string  `json:"customer_address_country,omitempty"`

	InterestedProduct *string `json:"interested_product,omitempty"`
	LeadSource        string  `json:"lead_source,omitempty"`
}

// LeadUpdateRequest is the partial update body, keyed by endpoint.
type LeadUpdateRequest struct {
	Endpoint string `json:"endpoint"`
	db.LeadUpdate
}

// CampaignRequest is the campaign creation body.
type CampaignRequest struct {
	Name           string            `json:"name"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Icon           string            `json:"icon,omitempty"`
	Badge          string            `json:"badge,omitempty"`
	TargetAudience db.TargetAudience `json:"target_audience"`
	ScheduleType   string            `json:"schedule_type,omitempty"`
	ScheduledFor   *time.Time        `json:"scheduled_for,omitempty"`
}

// AnalyticsRequest is the engagement tracking body.
type AnalyticsRequest struct {
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data,omitempty"`
	UserID    *uuid.UUID      `json:"user_id,omitempty"`
}

// SendRequest is the one-off push body for a single lead.
type SendRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger     *zap.Logger
	repo       LeadRepository
	dispatcher Dispatcher
	producer   AnalyticsQueue // nil if SQS not configured
}

// NewHandler creates a new API handler.
func NewHandler(logger *zap.Logger, repo LeadRepository, dispatcher Dispatcher) *Handler {
	return &Handler{
		logger:     logger,
		repo:       repo,
		dispatcher: dispatcher,
	}
}

// NewHandlerWithQueue creates a handler that additionally mirrors
// analytics events to a queue.
func NewHandlerWithQueue(logger *zap.Logger, repo LeadRepository, dispatcher Dispatcher, producer AnalyticsQueue) *Handler {
	return &Handler{
		logger:     logger,
		repo:       repo,
		dispatcher: dispatcher,
		producer:   producer,
	}
}

// SaveLead handles POST /v1/leads. Capture is an upsert keyed by the
// subscription endpoint, so re-granting permission on the same browser
// merges into the existing lead instead of duplicating it.
func (h *Handler) SaveLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.Endpoint == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing endpoint", "endpoint is required")
		return
	}
	if req.Keys.P256dh == "" || req.Keys.Auth == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing subscription keys", "keys.p256dh and keys.auth are required")
		return
	}

	source := req.LeadSource
	if source == "" {
		source = db.SourcePermission
	}
	country := req.CustomerAddressCountry
	if country == "" {
		country = "Brasil"
	}

	// Empty strings become nil so the upsert merge never erases data
	// already captured for this endpoint.
	lead := &db.Lead{
		ID:                          uuid.New(),
		Endpoint:                    req.Endpoint,
		P256dhKey:                   req.Keys.P256dh,
		AuthKey:                     req.Keys.Auth,
		UserAgent:                   blankToNil(req.UserAgent),
		Referrer:                    blankToNil(req.Referrer),
		UTMSource:                   blankToNil(req.UTMSource),
		UTMMedium:                   blankToNil(req.UTMMedium),
		UTMCampaign:                 blankToNil(req.UTMCampaign),
		CustomerName:                blankToNil(req.CustomerName),
		CustomerPhone:               blankToNil(req.CustomerPhone),
		CustomerCPF:                 blankToNil(req.CustomerCPF),
		CustomerAddressStreet:       blankToNil(req.CustomerAddressStreet),
		CustomerAddressNumber:       blankToNil(req.CustomerAddressNumber),
		CustomerAddressComplement:   blankToNil(req.CustomerAddressComplement),
		CustomerAddressNeighborhood: blankToNil(req.CustomerAddressNeighborhood),
		CustomerAddressCity:         blankToNil(req.CustomerAddressCity),
		CustomerAddressState:        blankToNil(req.CustomerAddressState),
		CustomerAddressZipCode:      blankToNil(req.CustomerAddressZipCode),
		CustomerAddressCountry:      country,
		InterestedProduct:           blankToNil(req.InterestedProduct),
		LeadSource:                  source,
		IsActive:                    true,
	}
	lead.QualityScore = db.ScoreLead(lead)

	if err := h.repo.UpsertLead(ctx, lead); err != nil {
		h.logger.Error("failed to save lead",
			zap.Error(err),
			zap.String("endpoint", req.Endpoint),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to save lead", "")
		return
	}

	metrics.RecordLeadSaved(source)
	h.logger.Info("lead saved",
		zap.String("lead_id", lead.ID.String()),
		zap.String("lead_source", source),
		zap.Int("quality_score", lead.QualityScore),
	)

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Lead salvo com sucesso!",
		"lead_id":       lead.ID.String(),
		"quality_score": lead.QualityScore,
	})
}

// UpdateLead handles POST /v1/leads/update. The lead is addressed by its
// subscription endpoint; only the provided fields change.
func (h *Handler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LeadUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.Endpoint == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing endpoint", "endpoint is required")
		return
	}

	lead, err := h.repo.UpdateLeadByEndpoint(ctx, req.Endpoint, &req.LeadUpdate)
	if err != nil {
		if errors.Is(err, db.ErrLeadNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Lead not found", "")
			return
		}
		h.logger.Error("failed to update lead",
			zap.Error(err),
			zap.String("endpoint", req.Endpoint),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update lead", "")
		return
	}

	h.logger.Info("lead updated",
		zap.String("lead_id", lead.ID.String()),
		zap.Int("quality_score", lead.QualityScore),
	)

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Lead atualizado com sucesso!",
		"lead":    lead,
	})
}

// ListLeads handles GET /v1/leads. Returns active leads, newest first.
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	leads, err := h.repo.ListActiveLeads(ctx, nil)
	if err != nil {
		h.logger.Error("failed to list leads", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list leads", "")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"leads":   leads,
		"count":   len(leads),
	})
}

// SendToLead handles POST /v1/leads/{id}/send.
func (h *Handler) SendToLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	leadID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid lead ID", "ID must be a valid UUID")
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.Title == "" || req.Body == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing message fields", "title and body are required")
		return
	}

	if err := h.dispatcher.SendToLead(ctx, leadID, req.Title, req.Body); err != nil {
		switch {
		case errors.Is(err, db.ErrLeadNotFound):
			h.writeError(w, http.StatusNotFound, "not_found", "Lead not found", "")
		case errors.Is(err, dispatch.ErrLeadInactive):
			h.writeError(w, http.StatusConflict, "lead_inactive", "Lead is not active", "the subscription was deactivated")
		default:
			h.logger.Error("failed to send to lead",
				zap.Error(err),
				zap.String("lead_id", idStr),
			)
			h.writeError(w, http.StatusInternalServerError, "send_error", "Failed to send push", "")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// CreateCampaign handles POST /v1/campaigns. Immediate campaigns fan out
// before the response; scheduled ones wait for the background scheduler.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.Name == "" || req.Title == "" || req.Body == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "name, title, and body are required")
		return
	}

	scheduleType := req.ScheduleType
	if scheduleType == "" {
		scheduleType = db.ScheduleImmediate
	}
	if scheduleType != db.ScheduleImmediate && scheduleType != db.ScheduleScheduled {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid schedule_type", "schedule_type must be immediate or scheduled")
		return
	}
	if scheduleType == db.ScheduleScheduled && req.ScheduledFor == nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing scheduled_for", "scheduled campaigns require scheduled_for")
		return
	}

	campaign := &db.Campaign{
		ID:             uuid.New(),
		Name:           req.Name,
		Title:          req.Title,
		Body:           req.Body,
		Icon:           req.Icon,
		Badge:          req.Badge,
		TargetAudience: req.TargetAudience,
		ScheduleType:   scheduleType,
		ScheduledFor:   req.ScheduledFor,
		Status:         db.CampaignPending,
	}

	if err := h.repo.CreateCampaign(ctx, campaign); err != nil {
		h.logger.Error("failed to create campaign",
			zap.Error(err),
			zap.String("name", req.Name),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create campaign", "")
		return
	}

	h.logger.Info("campaign created",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("name", campaign.Name),
		zap.String("schedule_type", scheduleType),
	)

	if scheduleType == db.ScheduleImmediate {
		result, err := h.dispatcher.Fanout(ctx, campaign)
		if err != nil {
			if errors.Is(err, redis.ErrDispatchInProgress) {
				h.writeError(w, http.StatusConflict, "dispatch_in_progress", "Campaign is already being sent", "")
				return
			}
			h.logger.Error("immediate fan-out failed",
				zap.Error(err),
				zap.String("campaign_id", campaign.ID.String()),
			)
			h.writeError(w, http.StatusInternalServerError, "dispatch_error", "Failed to send campaign", "")
			return
		}

		h.respondJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"campaign":    campaign,
			"sent_result": result,
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"campaign": campaign,
		"message":  "Campanha criada e agendada!",
	})
}

// SendCampaign handles POST /v1/campaigns/{id}/send. Manual re-trigger of
// an existing campaign.
func (h *Handler) SendCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	campaignID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid campaign ID", "ID must be a valid UUID")
		return
	}

	campaign, err := h.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, db.ErrCampaignNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Campaign not found", "")
			return
		}
		h.logger.Error("failed to get campaign",
			zap.Error(err),
			zap.String("campaign_id", idStr),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get campaign", "")
		return
	}

	result, err := h.dispatcher.Fanout(ctx, campaign)
	if err != nil {
		if errors.Is(err, redis.ErrDispatchInProgress) {
			h.writeError(w, http.StatusConflict, "dispatch_in_progress", "Campaign is already being sent", "")
			return
		}
		h.logger.Error("fan-out failed",
			zap.Error(err),
			zap.String("campaign_id", idStr),
		)
		h.writeError(w, http.StatusInternalServerError, "dispatch_error", "Failed to send campaign", "")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"sent_result": result,
	})
}

// ListCampaigns handles GET /v1/campaigns?limit=20&offset=0
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	campaigns, err := h.repo.ListCampaigns(ctx, limit, offset)
	if err != nil {
		h.logger.Error("failed to list campaigns", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list campaigns", "")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"campaigns": campaigns,
		"limit":     limit,
		"offset":    offset,
		"count":     len(campaigns),
	})
}

// TrackEvent handles POST /v1/analytics. Events are stored in Postgres
// and mirrored to the queue when one is configured; the mirror is best
// effort and never fails the request.
func (h *Handler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AnalyticsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.EventType == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing event_type", "event_type is required")
		return
	}
	if len(req.EventData) > 0 && !json.Valid(req.EventData) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid event_data", "event_data must be valid JSON")
		return
	}

	event := &db.AnalyticsEvent{
		ID:        uuid.New(),
		EventType: req.EventType,
		EventData: req.EventData,
		UserID:    req.UserID,
		CreatedAt: time.Now(),
	}

	if err := h.repo.InsertAnalyticsEvent(ctx, event); err != nil {
		h.logger.Error("failed to insert analytics event",
			zap.Error(err),
			zap.String("event_type", req.EventType),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to track event", "")
		return
	}

	metrics.RecordAnalyticsEvent(req.EventType)

	if h.producer != nil {
		if _, err := h.producer.Enqueue(ctx, event); err != nil {
			h.logger.Warn("failed to mirror analytics event to queue",
				zap.Error(err),
				zap.String("event_id", event.ID.String()),
			)
		}
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"event_id": event.ID.String(),
	})
}

// blankToNil drops empty-string values so they read as absent.
func blankToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
