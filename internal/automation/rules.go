package automation

// TriggerKind classifies what kind of signal arms a rule.
type TriggerKind string

const (
	TriggerPageVisit   TriggerKind = "page_visit"
	TriggerTimeOnSite  TriggerKind = "time_on_site"
	TriggerFormAbandon TriggerKind = "form_abandon"
	TriggerCartAbandon TriggerKind = "cart_abandon"
	TriggerNoActivity  TriggerKind = "no_activity"
)

// Priority levels for rule campaigns.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Condition holds the trigger parameters. Only the fields relevant to
// the rule's trigger kind are set.
type Condition struct {
	// Page is the path that arms a page_visit rule.
	Page string
	// TimeThresholdSeconds arms a time_on_site rule.
	TimeThresholdSeconds int
	// InactivityMinutes arms a no_activity rule.
	InactivityMinutes int
}

// CampaignSpec is the message a rule dispatches when it fires.
type CampaignSpec struct {
	Title    string
	Body     string
	Priority string
}

// Rule maps a visitor-behavior condition to a delayed campaign dispatch.
// Rules are static and defined at process start; each fires at most once
// per session.
type Rule struct {
	ID           string
	Name         string
	Trigger      TriggerKind
	Condition    Condition
	DelayMinutes int
	Campaign     CampaignSpec
	Enabled      bool
}

// DefaultRules returns the standard storefront rule table.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:           "welcome-engagement",
			Name:         "Engajamento de Boas-vindas",
			Trigger:      TriggerTimeOnSite,
			Condition:    Condition{TimeThresholdSeconds: 30},
			DelayMinutes: 1,
			Campaign: CampaignSpec{
				Title:    "👋 Olá! Precisa de ajuda?",
				Body:     "Vejo que você está navegando pelo nosso site. Posso ajudá-lo a agilizar seu atendimento?",
				Priority: PriorityMedium,
			},
			Enabled: true,
		},
		{
			ID:           "form-abandon-recovery",
			Name:         "Recuperação de Formulário Abandonado",
			Trigger:      TriggerFormAbandon,
			DelayMinutes: 5,
			Campaign: CampaignSpec{
				Title:    "📝 Não perca seu progresso!",
				Body:     "Você começou a preencher um formulário. Que tal finalizarmos juntos? É rápido!",
				Priority: PriorityHigh,
			},
			Enabled: true,
		},
		{
			ID:           "cart-abandon-immediate",
			Name:         "Carrinho Abandonado - Imediato",
			Trigger:      TriggerCartAbandon,
			DelayMinutes: 2,
			Campaign: CampaignSpec{
				Title:    "🛒 Finalize seu agendamento!",
				Body:     "Você estava quase finalizando! Não perca essa oportunidade de garantir seu atendimento.",
				Priority: PriorityHigh,
			},
			Enabled: true,
		},
		{
			ID:           "inactivity-nudge",
			Name:         "Estímulo por Inatividade",
			Trigger:      TriggerNoActivity,
			Condition:    Condition{InactivityMinutes: 10},
			DelayMinutes: 0,
			Campaign: CampaignSpec{
				Title:    "⏰ Ainda por aqui?",
				Body:     "Que tal agilizarmos seu atendimento? Temos horários disponíveis ainda hoje!",
				Priority: PriorityLow,
			},
			Enabled: true,
		},
		{
			ID:           "payment-page-incentive",
			Name:         "Incentivo na Página de Pagamento",
			Trigger:      TriggerPageVisit,
			Condition:    Condition{Page: "/pagamento"},
			DelayMinutes: 3,
			Campaign: CampaignSpec{
				Title:    "💳 Últimos passos!",
				Body:     "Você está quase lá! Finalize o pagamento e garanta seu agendamento prioritário.",
				Priority: PriorityHigh,
			},
			Enabled: true,
		},
	}
}
