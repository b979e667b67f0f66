package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Domain errors surfaced by the repository
var (
	ErrLeadNotFound     = errors.New("lead not found")
	ErrCampaignNotFound = errors.New("campaign not found")
)

const leadColumns = `
	id, endpoint, p256dh_key, auth_key, user_agent, referrer,
	utm_source, utm_medium, utm_campaign,
	customer_name, customer_phone, customer_cpf,
	customer_address_street, customer_address_number, customer_address_complement,
	customer_address_neighborhood, customer_address_city, customer_address_state,
	customer_address_zip_code, customer_address_country,
	interested_product, lead_source, quality_score, is_active,
	has_made_purchase, purchase_amount, last_purchase_date, last_notification_sent,
	created_at, updated_at`

const campaignColumns = `
	id, name, title, body, icon, badge, target_audience, schedule_type,
	scheduled_for, status, total_sent, total_delivered, total_clicked,
	sent_at, created_at, updated_at`

// Repository handles database operations for leads, campaigns and
// analytics events
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID, &l.Endpoint, &l.P256dhKey, &l.AuthKey, &l.UserAgent, &l.Referrer,
		&l.UTMSource, &l.UTMMedium, &l.UTMCampaign,
		&l.CustomerName, &l.CustomerPhone, &l.CustomerCPF,
		&l.CustomerAddressStreet, &l.CustomerAddressNumber, &l.CustomerAddressComplement,
		&l.CustomerAddressNeighborhood, &l.CustomerAddressCity, &l.CustomerAddressState,
		&l.CustomerAddressZipCode, &l.CustomerAddressCountry,
		&l.InterestedProduct, &l.LeadSource, &l.QualityScore, &l.IsActive,
		&l.HasMadePurchase, &l.PurchaseAmount, &l.LastPurchaseDate, &l.LastNotificationSent,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanCampaign(row rowScanner) (*Campaign, error) {
	var c Campaign
	var audience []byte
	err := row.Scan(
		&c.ID, &c.Name, &c.Title, &c.Body, &c.Icon, &c.Badge, &audience,
		&c.ScheduleType, &c.ScheduledFor, &c.Status,
		&c.TotalSent, &c.TotalDelivered, &c.TotalClicked,
		&c.SentAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(audience) > 0 {
		if err := json.Unmarshal(audience, &c.TargetAudience); err != nil {
			return nil, fmt.Errorf("decode target_audience: %w", err)
		}
	}
	return &c, nil
}

// UpsertLead inserts a lead or merges it into the existing row for the same
// endpoint. Contact fields merge progressively (an upsert never erases data
// already captured) and the quality score never decreases.
func (r *Repository) UpsertLead(ctx context.Context, lead *Lead) error {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if lead.LeadSource == "" {
		lead.LeadSource = SourcePermission
	}
	if lead.CustomerAddressCountry == "" {
		lead.CustomerAddressCountry = "Brasil"
	}
	lead.QualityScore = ScoreLead(lead)

	query := `
		INSERT INTO leads (
			id, endpoint, p256dh_key, auth_key, user_agent, referrer,
			utm_source, utm_medium, utm_campaign,
			customer_name, customer_phone, customer_cpf,
			customer_address_street, customer_address_number, customer_address_complement,
			customer_address_neighborhood, customer_address_city, customer_address_state,
			customer_address_zip_code, customer_address_country,
			interested_product, lead_source, quality_score, is_active,
			has_made_purchase, purchase_amount
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, TRUE, $24, $25
		)
		ON CONFLICT (endpoint) DO UPDATE SET
			p256dh_key = EXCLUDED.p256dh_key,
			auth_key = EXCLUDED.auth_key,
			user_agent = COALESCE(NULLIF(EXCLUDED.user_agent, ''), leads.user_agent),
			referrer = COALESCE(NULLIF(EXCLUDED.referrer, ''), leads.referrer),
			utm_source = COALESCE(NULLIF(EXCLUDED.utm_source, ''), leads.utm_source),
			utm_medium = COALESCE(NULLIF(EXCLUDED.utm_medium, ''), leads.utm_medium),
			utm_campaign = COALESCE(NULLIF(EXCLUDED.utm_campaign, ''), leads.utm_campaign),
			customer_name = COALESCE(NULLIF(EXCLUDED.customer_name, ''), leads.customer_name),
			customer_phone = COALESCE(NULLIF(EXCLUDED.customer_phone, ''), leads.customer_phone),
			customer_cpf = COALESCE(NULLIF(EXCLUDED.customer_cpf, ''), leads.customer_cpf),
			customer_address_street = COALESCE(NULLIF(EXCLUDED.customer_address_street, ''), leads.customer_address_street),
			customer_address_number = COALESCE(NULLIF(EXCLUDED.customer_address_number, ''), leads.customer_address_number),
			customer_address_complement = COALESCE(NULLIF(EXCLUDED.customer_address_complement, ''), leads.customer_address_complement),
			customer_address_neighborhood = COALESCE(NULLIF(EXCLUDED.customer_address_neighborhood, ''), leads.customer_address_neighborhood),
			customer_address_city = COALESCE(NULLIF(EXCLUDED.customer_address_city, ''), leads.customer_address_city),
			customer_address_state = COALESCE(NULLIF(EXCLUDED.customer_address_state, ''), leads.customer_address_state),
			customer_address_zip_code = COALESCE(NULLIF(EXCLUDED.customer_address_zip_code, ''), leads.customer_address_zip_code),
			customer_address_country = EXCLUDED.customer_address_country,
			interested_product = COALESCE(NULLIF(EXCLUDED.interested_product, ''), leads.interested_product),
			lead_source = EXCLUDED.lead_source,
			quality_score = GREATEST(leads.quality_score, EXCLUDED.quality_score),
			is_active = TRUE,
			has_made_purchase = leads.has_made_purchase OR EXCLUDED.has_made_purchase,
			purchase_amount = COALESCE(EXCLUDED.purchase_amount, leads.purchase_amount),
			updated_at = NOW()
		RETURNING id, quality_score, created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		lead.ID, lead.Endpoint, lead.P256dhKey, lead.AuthKey, lead.UserAgent, lead.Referrer,
		lead.UTMSource, lead.UTMMedium, lead.UTMCampaign,
		lead.CustomerName, lead.CustomerPhone, lead.CustomerCPF,
		lead.CustomerAddressStreet, lead.CustomerAddressNumber, lead.CustomerAddressComplement,
		lead.CustomerAddressNeighborhood, lead.CustomerAddressCity, lead.CustomerAddressState,
		lead.CustomerAddressZipCode, lead.CustomerAddressCountry,
		lead.InterestedProduct, lead.LeadSource, lead.QualityScore,
		lead.HasMadePurchase, lead.PurchaseAmount,
	).Scan(&lead.ID, &lead.QualityScore, &lead.CreatedAt, &lead.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to upsert lead",
			zap.Error(err),
			zap.String("endpoint", lead.Endpoint),
		)
		return fmt.Errorf("upsert lead: %w", err)
	}

	r.logger.Info("lead saved",
		zap.String("lead_id", lead.ID.String()),
		zap.String("lead_source", lead.LeadSource),
		zap.Int("quality_score", lead.QualityScore),
	)

	return nil
}

// UpdateLeadByEndpoint applies a partial update to the lead with the given
// endpoint and recomputes its quality score (upward only). Setting
// has_made_purchase also stamps last_purchase_date.
func (r *Repository) UpdateLeadByEndpoint(ctx context.Context, endpoint string, upd *LeadUpdate) (*Lead, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{endpoint}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.CustomerName != nil {
		add("customer_name", *upd.CustomerName)
	}
	if upd.CustomerPhone != nil {
		add("customer_phone", *upd.CustomerPhone)
	}
	if upd.CustomerCPF != nil {
		add("customer_cpf", *upd.CustomerCPF)
	}
	if upd.CustomerAddressStreet != nil {
		add("customer_address_street", *upd.CustomerAddressStreet)
	}
	if upd.CustomerAddressNumber != nil {
		add("customer_address_number", *upd.CustomerAddressNumber)
	}
	if upd.CustomerAddressComplement != nil {
		add("customer_address_complement", *upd.CustomerAddressComplement)
	}
	if upd.CustomerAddressNeighborhood != nil {
		add("customer_address_neighborhood", *upd.CustomerAddressNeighborhood)
	}
	if upd.CustomerAddressCity != nil {
		add("customer_address_city", *upd.CustomerAddressCity)
	}
	if upd.CustomerAddressState != nil {
		add("customer_address_state", *upd.CustomerAddressState)
	}
	if upd.CustomerAddressZipCode != nil {
		add("customer_address_zip_code", *upd.CustomerAddressZipCode)
	}
	if upd.CustomerAddressCountry != nil {
		add("customer_address_country", *upd.CustomerAddressCountry)
	}
	if upd.InterestedProduct != nil {
		add("interested_product", *upd.InterestedProduct)
	}
	if upd.LeadSource != nil {
		add("lead_source", *upd.LeadSource)
	}
	if upd.PurchaseAmount != nil {
		add("purchase_amount", *upd.PurchaseAmount)
	}
	if upd.HasMadePurchase != nil {
		add("has_made_purchase", *upd.HasMadePurchase)
		if *upd.HasMadePurchase {
			sets = append(sets, "last_purchase_date = NOW()")
		}
	}

	query := fmt.Sprintf(
		"UPDATE leads SET %s WHERE endpoint = $1 RETURNING %s",
		strings.Join(sets, ", "), leadColumns,
	)

	lead, err := scanLead(r.db.Pool().QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		r.logger.Error("failed to update lead",
			zap.Error(err),
			zap.String("endpoint", endpoint),
		)
		return nil, fmt.Errorf("update lead: %w", err)
	}

	// Recompute the score from the merged row. Monotonic: only ever raised.
	if score := ScoreLead(lead); score > lead.QualityScore {
		_, err = r.db.Pool().Exec(ctx,
			"UPDATE leads SET quality_score = $1 WHERE id = $2",
			score, lead.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("update quality score: %w", err)
		}
		lead.QualityScore = score
	}

	r.logger.Info("lead updated",
		zap.String("lead_id", lead.ID.String()),
		zap.Int("quality_score", lead.QualityScore),
	)

	return lead, nil
}

// GetLead retrieves a lead by ID
func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (*Lead, error) {
	query := fmt.Sprintf("SELECT %s FROM leads WHERE id = $1", leadColumns)

	lead, err := scanLead(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query lead: %w", err)
	}
	return lead, nil
}

// ListActiveLeads returns active leads matching the audience predicates,
// newest first. A nil audience means every active lead.
func (r *Repository) ListActiveLeads(ctx context.Context, audience *TargetAudience) ([]*Lead, error) {
	where := []string{"is_active = TRUE"}
	var args []any

	cond := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if audience != nil {
		if audience.HasMadePurchase != nil {
			cond("has_made_purchase = $%d", *audience.HasMadePurchase)
		}
		if audience.MinQualityScore != nil {
			cond("quality_score >= $%d", *audience.MinQualityScore)
		}
		if audience.LeadSource != nil {
			cond("lead_source = $%d", *audience.LeadSource)
		}
		if audience.InterestedProduct != nil {
			cond("interested_product = $%d", *audience.InterestedProduct)
		}
		if audience.CustomerCity != nil {
			cond("customer_address_city = $%d", *audience.CustomerCity)
		}
		if audience.CustomerState != nil {
			cond("customer_address_state = $%d", *audience.CustomerState)
		}
	}

	query := fmt.Sprintf(
		"SELECT %s FROM leads WHERE %s ORDER BY created_at DESC",
		leadColumns, strings.Join(where, " AND "),
	)

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var leads []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, lead)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return leads, nil
}

// MarkLeadNotified stamps last_notification_sent after a successful push
func (r *Repository) MarkLeadNotified(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	result, err := r.db.Pool().Exec(ctx,
		"UPDATE leads SET last_notification_sent = $1, updated_at = NOW() WHERE id = $2",
		sentAt, id,
	)
	if err != nil {
		return fmt.Errorf("mark lead notified: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// CreateCampaign inserts a new campaign record
func (r *Repository) CreateCampaign(ctx context.Context, c *Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Icon == "" {
		c.Icon = "/favicon.ico"
	}
	if c.Badge == "" {
		c.Badge = "/favicon.ico"
	}
	if c.ScheduleType == "" {
		c.ScheduleType = ScheduleImmediate
	}
	c.Status = CampaignPending

	audience, err := json.Marshal(c.TargetAudience)
	if err != nil {
		return fmt.Errorf("encode target_audience: %w", err)
	}

	query := `
		INSERT INTO campaigns (
			id, name, title, body, icon, badge, target_audience,
			schedule_type, scheduled_for, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err = r.db.Pool().QueryRow(ctx, query,
		c.ID, c.Name, c.Title, c.Body, c.Icon, c.Badge, audience,
		c.ScheduleType, c.ScheduledFor, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create campaign",
			zap.Error(err),
			zap.String("name", c.Name),
		)
		return fmt.Errorf("insert campaign: %w", err)
	}

	r.logger.Info("campaign created",
		zap.String("campaign_id", c.ID.String()),
		zap.String("name", c.Name),
		zap.String("schedule_type", c.ScheduleType),
	)

	return nil
}

// GetCampaign retrieves a campaign by ID
func (r *Repository) GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	query := fmt.Sprintf("SELECT %s FROM campaigns WHERE id = $1", campaignColumns)

	c, err := scanCampaign(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query campaign: %w", err)
	}
	return c, nil
}

// ListCampaigns returns campaigns with pagination, newest first
func (r *Repository) ListCampaigns(ctx context.Context, limit, offset int) ([]*Campaign, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM campaigns ORDER BY created_at DESC LIMIT $1 OFFSET $2",
		campaignColumns,
	)

	rows, err := r.db.Pool().Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return campaigns, nil
}

// ClaimDueCampaigns atomically claims scheduled campaigns whose time has
// come, flipping them to dispatching so a second scheduler instance cannot
// pick them up.
func (r *Repository) ClaimDueCampaigns(ctx context.Context, limit int) ([]*Campaign, error) {
	query := fmt.Sprintf(`
		UPDATE campaigns SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM campaigns
			WHERE status = $2 AND schedule_type = $3 AND scheduled_for <= NOW()
			ORDER BY scheduled_for ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, campaignColumns)

	rows, err := r.db.Pool().Query(ctx, query,
		CampaignDispatching, CampaignPending, ScheduleScheduled, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}

	return campaigns, rows.Err()
}

// FinishCampaign records the fan-out result on the campaign row
func (r *Repository) FinishCampaign(ctx context.Context, id uuid.UUID, totalSent int) error {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE campaigns
		SET status = $1, total_sent = $2, sent_at = NOW(), updated_at = NOW()
		WHERE id = $3`,
		CampaignSent, totalSent, id,
	)
	if err != nil {
		return fmt.Errorf("finish campaign: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// ReleaseCampaign puts a claimed campaign back to pending so a later
// scheduler pass can retry the claim (the fan-out itself is never retried)
func (r *Repository) ReleaseCampaign(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool().Exec(ctx,
		"UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		CampaignPending, id, CampaignDispatching,
	)
	if err != nil {
		return fmt.Errorf("release campaign: %w", err)
	}
	return nil
}

// InsertAnalyticsEvent stores an engagement event
func (r *Repository) InsertAnalyticsEvent(ctx context.Context, event *AnalyticsEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if len(event.EventData) == 0 {
		event.EventData = json.RawMessage("{}")
	}

	query := `
		INSERT INTO analytics_events (id, event_type, event_data, user_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		event.ID, event.EventType, event.EventData, event.UserID,
	).Scan(&event.CreatedAt)

	if err != nil {
		r.logger.Error("failed to insert analytics event",
			zap.Error(err),
			zap.String("event_type", event.EventType),
		)
		return fmt.Errorf("insert analytics event: %w", err)
	}

	return nil
}
