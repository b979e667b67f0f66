package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.ultramsg.com"

// Config holds the UltraMsg instance credentials.
type Config struct {
	InstanceID string
	Token      string
	// BaseURL overrides the UltraMsg API host; used in tests.
	BaseURL string
}

// Client talks to the UltraMsg WhatsApp gateway. One client per
// configured instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
	instanceID string
	token      string
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.InstanceID == "" || cfg.Token == "" {
		return nil, fmt.Errorf("ultramsg credentials not configured")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		instanceID: cfg.InstanceID,
		token:      cfg.Token,
		logger:     logger,
	}, nil
}

type sendResponse struct {
	Sent  string `json:"sent"`
	ID    int64  `json:"id"`
	Error any    `json:"error"`
}

// SendMessage delivers a plain text message to the given phone number.
func (c *Client) SendMessage(ctx context.Context, to, body string) error {
	form := url.Values{
		"token":    {c.token},
		"to":       {to},
		"body":     {body},
		"priority": {"1"},
	}

	endpoint := fmt.Sprintf("%s/%s/messages/chat", c.baseURL, c.instanceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build ultramsg request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ultramsg request failed: %w", err)
	}
	defer resp.Body.Close()

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode ultramsg response: %w", err)
	}

	if resp.StatusCode >= 400 || result.Error != nil {
		return fmt.Errorf("ultramsg returned status %d: %v", resp.StatusCode, result.Error)
	}

	c.logger.Info("whatsapp message sent",
		zap.String("to", to),
		zap.Int64("message_id", result.ID),
	)
	return nil
}

// SendPixPayment sends the PIX copy-and-paste code with payment
// instructions after a charge is generated.
func (c *Client) SendPixPayment(ctx context.Context, p PixPayment) error {
	return c.SendMessage(ctx, p.CustomerPhone, p.message())
}

// PixPayment carries everything needed for the PIX WhatsApp message.
type PixPayment struct {
	CustomerName  string
	CustomerPhone string
	PixCode       string
	Amount        float64
	ServiceName   string
}

func (p PixPayment) message() string {
	return fmt.Sprintf(`🏛️ *POUPATEMPO - Pagamento PIX Gerado*

👤 *Cliente:* %s
📋 *Serviço:* %s
💰 *Valor:* %s

📱 *Código PIX (Copia e Cola):*
`+"```"+`
%s
`+"```"+`

⏰ *ATENÇÃO:* Este PIX expira em 30 minutos!

Para pagar:
1. Abra o app do seu banco
2. Escolha a opção PIX
3. Cole o código acima ou escaneie o QR Code
4. Confirme o pagamento

Após o pagamento, você receberá a confirmação por email.

---
*Poupatempo - Portal Oficial*`,
		p.CustomerName, p.ServiceName, formatBRL(p.Amount), p.PixCode)
}

// formatBRL renders an amount as "R$ 12,34".
func formatBRL(amount float64) string {
	return "R$ " + strings.Replace(fmt.Sprintf("%.2f", amount), ".", ",", 1)
}
