package whatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func TestSendMessage_PostsFormToInstanceEndpoint(t *testing.T) {
	var gotPath string
	var gotForm map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content-type = %s", ct)
		}
		r.ParseForm()
		gotForm = map[string]string{
			"token":    r.PostForm.Get("token"),
			"to":       r.PostForm.Get("to"),
			"body":     r.PostForm.Get("body"),
			"priority": r.PostForm.Get("priority"),
		}
		w.Write([]byte(`{"sent":"true","id":101}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{InstanceID: "instance42", Token: "tok", BaseURL: srv.URL}, testLogger())
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}

	if err := c.SendMessage(context.Background(), "+5511999990000", "Olá!"); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if gotPath != "/instance42/messages/chat" {
		t.Fatalf("path = %s", gotPath)
	}
	if gotForm["token"] != "tok" || gotForm["to"] != "+5511999990000" || gotForm["body"] != "Olá!" || gotForm["priority"] != "1" {
		t.Fatalf("form = %v", gotForm)
	}
}

func TestSendMessage_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(Config{InstanceID: "i", Token: "bad", BaseURL: srv.URL}, testLogger())
	if err := c.SendMessage(context.Background(), "+5511999990000", "Olá!"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	if _, err := NewClient(Config{}, testLogger()); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := NewClient(Config{InstanceID: "i"}, testLogger()); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestPixPayment_Message(t *testing.T) {
	p := PixPayment{
		CustomerName:  "João Santos",
		CustomerPhone: "+5511988887777",
		PixCode:       "00020126pixcopiaecola520400005303986",
		Amount:        63.3,
		ServiceName:   "CNH - Renovação",
	}
	msg := p.message()

	for _, want := range []string{
		"🏛️ *POUPATEMPO - Pagamento PIX Gerado*",
		"João Santos",
		"CNH - Renovação",
		"R$ 63,30",
		"00020126pixcopiaecola520400005303986",
		"expira em 30 minutos",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q", want)
		}
	}
}

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{63.3, "R$ 63,30"},
		{0, "R$ 0,00"},
		{1250.5, "R$ 1250,50"},
	}
	for _, tt := range tests {
		if got := formatBRL(tt.amount); got != tt.want {
			t.Errorf("formatBRL(%v) = %s, want %s", tt.amount, got, tt.want)
		}
	}
}
