package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/mail"
	"github.com/poupadigital/poupapush/internal/whatsapp"
)

// Mailer sends templated transactional email.
type Mailer interface {
	Send(ctx context.Context, to, template string, data map[string]string) error
}

// PixSender delivers a PIX charge over WhatsApp.
type PixSender interface {
	SendPixPayment(ctx context.Context, p whatsapp.PixPayment) error
}

var (
	_ Mailer    = (*mail.SESMailer)(nil)
	_ PixSender = (*whatsapp.Client)(nil)
)

// EmailRequest is the transactional email body. Data fills the
// template's {placeholder} tokens.
type EmailRequest struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

// PixRequest is the WhatsApp PIX charge body.
type PixRequest struct {
	CustomerName  string  `json:"customer_name"`
	CustomerPhone string  `json:"customer_phone"`
	PixCode       string  `json:"pix_code"`
	Amount        float64 `json:"amount"`
	ServiceName   string  `json:"service_name"`
}

// MessagingHandler serves the transactional channels, email and
// WhatsApp, that sit beside the push pipeline.
type MessagingHandler struct {
	logger *zap.Logger
	mailer Mailer
	pix    PixSender // nil when WhatsApp is not configured
}

// NewMessagingHandler creates the transactional messaging handler.
func NewMessagingHandler(logger *zap.Logger, mailer Mailer, pix PixSender) *MessagingHandler {
	return &MessagingHandler{
		logger: logger,
		mailer: mailer,
		pix:    pix,
	}
}

// SendEmail handles POST /v1/email.
func (h *MessagingHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", err.Error())
		return
	}

	if req.To == "" || req.Template == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Validation failed",
			"to and template are required")
		return
	}

	if err := h.mailer.Send(r.Context(), req.To, req.Template, req.Data); err != nil {
		if errors.Is(err, mail.ErrUnknownTemplate) {
			h.writeError(w, http.StatusBadRequest, "validation_error", "Validation failed", err.Error())
			return
		}
		h.logger.Error("email send failed",
			zap.String("template", req.Template),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error",
			"Failed to send email")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Email enviado com sucesso!",
	})
}

// SendPix handles POST /v1/whatsapp/pix.
func (h *MessagingHandler) SendPix(w http.ResponseWriter, r *http.Request) {
	if h.pix == nil {
		h.writeError(w, http.StatusServiceUnavailable, "channel_unavailable", "WhatsApp not configured",
			"The WhatsApp gateway is not configured on this deployment")
		return
	}

	var req PixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", err.Error())
		return
	}

	if req.CustomerPhone == "" || req.PixCode == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Validation failed",
			"customer_phone and pix_code are required")
		return
	}

	err := h.pix.SendPixPayment(r.Context(), whatsapp.PixPayment{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		PixCode:       req.PixCode,
		Amount:        req.Amount,
		ServiceName:   req.ServiceName,
	})
	if err != nil {
		h.logger.Error("whatsapp pix send failed",
			zap.String("phone", req.CustomerPhone),
			zap.Error(err),
		)
		h.writeError(w, http.StatusBadGateway, "gateway_error", "WhatsApp delivery failed",
			"The WhatsApp gateway rejected the message")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Mensagem PIX enviada com sucesso!",
	})
}

func (h *MessagingHandler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *MessagingHandler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
