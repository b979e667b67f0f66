package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/client"
	"github.com/poupadigital/poupapush/internal/customer"
)

// LeadSaver is the slice of the API client the capture path uses.
type LeadSaver interface {
	SaveLead(ctx context.Context, sub client.Subscription) (string, error)
}

// Capture upserts the session's push subscription as a lead, merging any
// customer data already collected, and renders a confirmation
// notification when a notifier is attached. Strictly best effort: the
// commerce flow never waits on it and a failure is only logged.
type Capture struct {
	saver    LeadSaver
	store    *customer.Store
	base     client.Subscription
	notifier *Notifier
	logger   *zap.Logger
}

// NewCapture creates the capture hook. base carries the subscription
// credentials and acquisition metadata (endpoint, keys, referrer, UTM).
func NewCapture(saver LeadSaver, store *customer.Store, base client.Subscription, logger *zap.Logger) *Capture {
	if base.LeadSource == "" {
		base.LeadSource = "notification_permission"
	}
	return &Capture{
		saver:  saver,
		store:  store,
		base:   base,
		logger: logger,
	}
}

// NewCaptureWithConfirmation additionally renders a confirmation
// notification through the given notifier after the grant.
func NewCaptureWithConfirmation(saver LeadSaver, store *customer.Store, base client.Subscription, notifier *Notifier, logger *zap.Logger) *Capture {
	c := NewCapture(saver, store, base, logger)
	c.notifier = notifier
	return c
}

// Run performs the capture. Suitable as a Gate OnGrant hook.
func (c *Capture) Run(ctx context.Context) {
	sub := c.base
	if c.store != nil {
		data := c.store.Get()
		sub.CustomerName = data.Name
		sub.CustomerPhone = data.Phone
		sub.CustomerCPF = data.CPF
		sub.CustomerAddressStreet = data.AddressStreet
		sub.CustomerAddressNumber = data.AddressNumber
		sub.CustomerAddressComplement = data.AddressComplement
		sub.CustomerAddressNeighborhood = data.AddressNeighborhood
		sub.CustomerAddressCity = data.AddressCity
		sub.CustomerAddressState = data.AddressState
		sub.CustomerAddressZipCode = data.AddressZipCode
		sub.InterestedProduct = data.InterestedProduct
		if data.HasCompleteData() {
			sub.LeadSource = "form_fill"
		}
	}

	leadID, err := c.saver.SaveLead(ctx, sub)
	if err != nil {
		c.logger.Warn("lead capture failed",
			zap.Error(err),
			zap.String("endpoint", sub.Endpoint),
		)
	} else {
		c.logger.Info("lead captured",
			zap.String("lead_id", leadID),
			zap.String("lead_source", sub.LeadSource),
		)
	}

	// The confirmation renders even when the upsert fails; the user
	// granted permission and should see the channel work.
	if c.notifier != nil {
		_, derr := c.notifier.Deliver(ctx,
			"🔥 Notificação NATIVA!",
			"Vibração, som e botões como app real!",
			Options{
				Tag:     "permission-granted",
				Vibrate: []int{200, 100, 200},
			},
		)
		if derr != nil && !errors.Is(derr, ErrDuplicateSuppressed) {
			c.logger.Warn("confirmation notification failed", zap.Error(derr))
		}
	}
}
