// Command agent runs a scripted visitor session against a running API
// server, exercising the permission gate, lead capture, hybrid delivery
// and the automation rule table end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/automation"
	"github.com/poupadigital/poupapush/internal/client"
	"github.com/poupadigital/poupapush/internal/customer"
	"github.com/poupadigital/poupapush/internal/notify"
	"github.com/poupadigital/poupapush/internal/observ"
)

// grantAllPrompter stands in for the browser permission dialog.
type grantAllPrompter struct{}

func (grantAllPrompter) Supported() bool { return true }

func (grantAllPrompter) Prompt(ctx context.Context) (notify.State, error) {
	return notify.StateGranted, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	logger, err := observ.NewLogger("development", "debug")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	api := client.New(apiURL, logger)
	store := customer.NewStore()

	gate := notify.NewGate(grantAllPrompter{}, logger)
	notifier := notify.NewNotifier(gate, notify.NewGuard(),
		&notify.LogChannel{Name: "overlay", Logger: logger},
		&notify.LogChannel{Name: "native", Logger: logger},
		logger,
	)

	sub := client.Subscription{
		Endpoint:   fmt.Sprintf("https://demo.push/%d", time.Now().UnixNano()),
		UserAgent:  "poupapush-agent",
		LeadSource: "notification_permission",
	}
	sub.Keys.P256dh = "demo-p256dh"
	sub.Keys.Auth = "demo-auth"

	capture := notify.NewCaptureWithConfirmation(api, store, sub, notifier, logger)
	gate.OnGrant(capture.Run)

	ctx := context.Background()

	if !gate.Request(ctx) {
		return fmt.Errorf("permission not granted")
	}

	engine := automation.NewEngine(automation.DefaultRules(), api, api, notifier,
		store, automation.Config{}, logger)
	engine.Start(ctx)
	defer engine.Stop()

	// A scripted visit: browse, start a form with known contact data,
	// abandon it, reach the payment page, go idle.
	engine.PageView(ctx, "/")
	store.Update(customer.Data{
		Name:  "Maria Demo",
		Phone: "11 99999-0000",
		Email: "maria.demo@example.com",
	})
	engine.FormFocus()
	time.Sleep(2 * time.Second)
	engine.FormAbandon(ctx)
	engine.PageView(ctx, "/pagamento")

	// inactivity-nudge has a zero-minute delay, so it fires on the
	// next heartbeat and shows the full pipeline without waiting out
	// the other rules' delays.
	engine.TriggerRule("inactivity-nudge")
	time.Sleep(3 * time.Second)

	for _, o := range engine.Outcomes() {
		logger.Info("automation outcome",
			zap.String("rule_id", o.RuleID),
			zap.Bool("campaign_created", o.CampaignCreated),
			zap.Bool("overlay", o.Delivered.Overlay),
			zap.Bool("native", o.Delivered.Native),
			zap.Error(o.Err),
		)
	}

	leads, err := api.GetLeads(ctx)
	if err != nil {
		return fmt.Errorf("failed to list leads: %w", err)
	}
	logger.Info("session finished", zap.Int("active_leads", len(leads)))

	return nil
}
