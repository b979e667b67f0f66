package mail

import (
	"errors"
	"fmt"
	"strings"
)

// Template names accepted by Mailer.Send.
const (
	TemplateBooking      = "agendamento"
	TemplateReminder     = "lembrete"
	TemplateCancellation = "cancelamento"
	TemplateWelcome      = "boas-vindas"
)

// Template pairs a subject line with an HTML body. Both may contain
// {placeholder} tokens filled from the send data.
type Template struct {
	Subject string
	HTML    string
}

var templates = map[string]Template{
	TemplateBooking: {
		Subject: "✅ Agendamento Confirmado - {servico}",
		HTML: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="color: #2563eb;">🎉 Agendamento Confirmado!</h1>
  <p>Olá <strong>{nome}</strong>,</p>
  <p>Seu agendamento foi confirmado com sucesso!</p>
  <div style="background: #f8fafc; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h3>📋 Detalhes do Agendamento:</h3>
    <p><strong>Serviço:</strong> {servico}</p>
    <p><strong>Data:</strong> {data}</p>
    <p><strong>Horário:</strong> {horario}</p>
    <p><strong>Local:</strong> {unidade}</p>
    <p><strong>Endereço:</strong> {endereco}</p>
  </div>
  <p>Chegue com 15 minutos de antecedência.</p>
  <p>Em caso de dúvidas, entre em contato conosco.</p>
</div>`,
	},

	TemplateReminder: {
		Subject: "⏰ Lembrete: Agendamento Amanhã - {servico}",
		HTML: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="color: #f59e0b;">⏰ Lembrete de Agendamento</h1>
  <p>Olá <strong>{nome}</strong>,</p>
  <p>Este é um lembrete do seu agendamento <strong>amanhã</strong>:</p>
  <div style="background: #fef3c7; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <p><strong>Serviço:</strong> {servico}</p>
    <p><strong>Horário:</strong> {horario}</p>
    <p><strong>Local:</strong> {unidade}</p>
  </div>
  <p>✅ Chegue com 15 minutos de antecedência</p>
  <p>📱 Tenha seus documentos em mãos</p>
</div>`,
	},

	TemplateCancellation: {
		Subject: "❌ Agendamento Cancelado - {servico}",
		HTML: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="color: #dc2626;">❌ Agendamento Cancelado</h1>
  <p>Olá <strong>{nome}</strong>,</p>
  <p>Seu agendamento foi cancelado:</p>
  <div style="background: #fee2e2; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <p><strong>Serviço:</strong> {servico}</p>
    <p><strong>Data:</strong> {data}</p>
    <p><strong>Horário:</strong> {horario}</p>
  </div>
  <p>Você pode reagendar a qualquer momento através do nosso site.</p>
</div>`,
	},

	TemplateWelcome: {
		Subject: "👋 Bem-vindo(a) ao Poupa Tempo!",
		HTML: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="color: #2563eb;">👋 Bem-vindo(a)!</h1>
  <p>Olá <strong>{nome}</strong>,</p>
  <p>Que bom ter você conosco! 🎉</p>
  <p>Agende seus documentos sem filas e sem complicação.</p>
</div>`,
	},
}

// ErrUnknownTemplate is returned when the template name is not in the
// catalogue.
var ErrUnknownTemplate = errors.New("unknown email template")

// Render fills the named template with the given data. Unknown template
// names are an error; placeholders without data are left as-is.
func Render(name string, data map[string]string) (subject, html string, err error) {
	tpl, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(tpl.Subject), r.Replace(tpl.HTML), nil
}
