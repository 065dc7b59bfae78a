package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	domainbilling "github.com/saasops/backend/internal/domain/billing"
	"github.com/saasops/backend/internal/domain/identity"
	"github.com/saasops/backend/internal/domain/shared"
	infrabilling "github.com/saasops/backend/internal/infrastructure/billing"
)

// WebhookService handles payment processor webhook events. Events are
// verified, deduplicated by event id, and dispatched to per-type handlers.
// Handler failures are reported in the result but never abort
// acknowledgement: the caller still answers 200 so the processor does not
// retry events that retrying cannot fix.
type WebhookService struct {
	config            *infrabilling.StripeConfig
	subscriptionSvc   *SubscriptionService
	invoiceSvc        *InvoiceService
	orgRepo           identity.OrganizationRepository
	notifier          Notifier
	idempotencyStore  shared.IdempotencyStore
	idempotencyConfig shared.IdempotencyConfig
	logger            *zap.Logger
}

// WebhookServiceConfig contains configuration for WebhookService
type WebhookServiceConfig struct {
	Config            *infrabilling.StripeConfig
	SubscriptionSvc   *SubscriptionService
	InvoiceSvc        *InvoiceService
	OrganizationRepo  identity.OrganizationRepository
	Notifier          Notifier
	IdempotencyStore  shared.IdempotencyStore
	IdempotencyConfig shared.IdempotencyConfig
	Logger            *zap.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(cfg WebhookServiceConfig) *WebhookService {
	return &WebhookService{
		config:            cfg.Config,
		subscriptionSvc:   cfg.SubscriptionSvc,
		invoiceSvc:        cfg.InvoiceSvc,
		orgRepo:           cfg.OrganizationRepo,
		notifier:          cfg.Notifier,
		idempotencyStore:  cfg.IdempotencyStore,
		idempotencyConfig: cfg.IdempotencyConfig,
		logger:            cfg.Logger,
	}
}

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// ProcessWebhook verifies and processes one webhook delivery. A signature
// failure returns a nil result with an error; everything after verification
// returns a result so the HTTP layer can acknowledge the delivery.
func (s *WebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.config.WebhookSecret)
	if err != nil {
		s.logger.Error("Failed to verify webhook signature", zap.Error(err))
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	s.logger.Info("Processing webhook event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: string(event.Type),
		Processed: true,
	}

	if s.alreadyProcessed(ctx, event.ID) {
		result.Message = "Event already processed"
		return result, nil
	}

	switch event.Type {
	case "checkout.session.completed":
		err = s.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created":
		err = s.handleSubscriptionCreated(ctx, event)
	case "customer.subscription.updated":
		err = s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		err = s.handleSubscriptionDeleted(ctx, event)
	case "invoice.paid":
		err = s.handleInvoicePaid(ctx, event)
	case "invoice.payment_failed":
		err = s.handleInvoicePaymentFailed(ctx, event)
	default:
		s.logger.Debug("Unhandled webhook event type",
			zap.String("event_type", string(event.Type)))
		result.Message = "Event type not handled"
	}

	if err != nil {
		s.logger.Error("Failed to process webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		result.Processed = false
		result.Message = err.Error()
		return result, err
	}

	return result, nil
}

// alreadyProcessed marks the event id and reports whether a previous
// delivery already ran. Store failures fall open: the event is handled
// again, which every handler tolerates.
func (s *WebhookService) alreadyProcessed(ctx context.Context, eventID string) bool {
	if s.idempotencyStore == nil || !s.idempotencyConfig.Enabled {
		return false
	}
	fresh, err := s.idempotencyStore.MarkProcessed(ctx, eventID, s.idempotencyConfig.TTL)
	if err != nil {
		s.logger.Warn("Idempotency store unavailable, processing event anyway",
			zap.String("event_id", eventID),
			zap.Error(err))
		return false
	}
	if !fresh {
		s.logger.Info("Skipping duplicate webhook event",
			zap.String("event_id", eventID))
	}
	return !fresh
}

// handleCheckoutCompleted links a finished checkout to the organization that
// started it and provisions the subscription the checkout paid for. The
// organization id travels in the session's client reference.
func (s *WebhookService) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	if session.ClientReferenceID == "" {
		s.logger.Warn("Checkout session has no client reference, skipping",
			zap.String("session_id", session.ID))
		return nil
	}

	orgID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		s.logger.Warn("Checkout session client reference is not an organization id",
			zap.String("session_id", session.ID),
			zap.String("client_reference_id", session.ClientReferenceID))
		return nil
	}

	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		if err == shared.ErrNotFound {
			s.logger.Warn("Organization not found for checkout session",
				zap.String("organization_id", orgID.String()))
			return nil
		}
		return fmt.Errorf("failed to find organization: %w", err)
	}

	customerID := org.StripeCustomerID
	if session.Customer != nil && session.Customer.ID != "" {
		customerID = session.Customer.ID
	}
	if customerID != org.StripeCustomerID {
		org.SetStripeCustomerID(customerID)
		if err := s.orgRepo.Save(ctx, org); err != nil {
			return fmt.Errorf("failed to save organization: %w", err)
		}
	}

	if session.Subscription == nil || session.Subscription.ID == "" {
		s.logger.Debug("Checkout session carries no subscription, nothing to provision",
			zap.String("session_id", session.ID))
		return nil
	}

	input := CreateSubscriptionInput{
		OrganizationID:       org.ID,
		Tier:                 tierFromMetadata(session.Metadata),
		Seats:                seatsFromSubscription(session.Subscription),
		StripeSubscriptionID: session.Subscription.ID,
		StripeCustomerID:     customerID,
		PeriodStart:          unixTime(session.Subscription.CurrentPeriodStart),
		PeriodEnd:            unixTime(session.Subscription.CurrentPeriodEnd),
		BillingCycleAnchor:   unixTime(session.Subscription.BillingCycleAnchor),
	}
	created, err := s.subscriptionSvc.CreateSubscription(ctx, input)
	if err != nil {
		if err == shared.ErrAlreadyExists {
			s.logger.Warn("Organization already holds a live subscription",
				zap.String("organization_id", org.ID.String()),
				zap.String("subscription_id", session.Subscription.ID))
			return nil
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	s.logger.Info("Checkout session provisioned",
		zap.String("organization_id", org.ID.String()),
		zap.String("session_id", session.ID),
		zap.String("subscription_id", created.StripeSubscriptionID))
	return nil
}

// handleSubscriptionCreated handles customer.subscription.created events
func (s *WebhookService) handleSubscriptionCreated(ctx context.Context, event stripe.Event) error {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	customerID := ""
	if subscription.Customer != nil {
		customerID = subscription.Customer.ID
	}
	if customerID == "" {
		s.logger.Warn("Subscription has no customer id, skipping",
			zap.String("subscription_id", subscription.ID))
		return nil
	}

	org, err := s.orgRepo.FindByStripeCustomerID(ctx, customerID)
	if err != nil {
		if err == shared.ErrNotFound {
			// Webhooks can arrive before checkout linking completes, or for
			// customers that are not ours. Acknowledge and move on.
			s.logger.Warn("Organization not found for customer",
				zap.String("customer_id", customerID))
			return nil
		}
		return fmt.Errorf("failed to find organization: %w", err)
	}

	input := CreateSubscriptionInput{
		OrganizationID:       org.ID,
		Tier:                 tierFromMetadata(subscription.Metadata),
		Seats:                seatsFromSubscription(&subscription),
		StripeSubscriptionID: subscription.ID,
		StripeCustomerID:     customerID,
		PeriodStart:          unixTime(subscription.CurrentPeriodStart),
		PeriodEnd:            unixTime(subscription.CurrentPeriodEnd),
		BillingCycleAnchor:   unixTime(subscription.BillingCycleAnchor),
	}
	created, err := s.subscriptionSvc.CreateSubscription(ctx, input)
	if err != nil {
		if err == shared.ErrAlreadyExists {
			s.logger.Warn("Organization already holds a live subscription",
				zap.String("organization_id", org.ID.String()),
				zap.String("subscription_id", subscription.ID))
			return nil
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	// The processor's initial status wins over our local default.
	if status, ok := mapStripeStatus(subscription.Status); ok && status != created.Status {
		return s.reconcileFromStripe(ctx, &subscription)
	}
	return nil
}

// handleSubscriptionUpdated handles customer.subscription.updated events
func (s *WebhookService) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	return s.reconcileFromStripe(ctx, &subscription)
}

// handleSubscriptionDeleted handles customer.subscription.deleted events
func (s *WebhookService) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	customerID := ""
	if subscription.Customer != nil {
		customerID = subscription.Customer.ID
	}

	_, err := s.subscriptionSvc.ReconcileStatus(ctx, ReconcileInput{
		StripeSubscriptionID: subscription.ID,
		StripeCustomerID:     customerID,
		Status:               domainbilling.SubscriptionStatusDeleted,
		PeriodStart:          unixTime(subscription.CurrentPeriodStart),
		PeriodEnd:            unixTime(subscription.CurrentPeriodEnd),
	})
	if err != nil {
		if err == shared.ErrNotFound {
			s.logger.Warn("Subscription not found for deletion",
				zap.String("subscription_id", subscription.ID))
			return nil
		}
		if isLifecycleConflict(err) {
			s.logger.Warn("Subscription already deleted",
				zap.String("subscription_id", subscription.ID))
			return nil
		}
		return fmt.Errorf("failed to reconcile deletion: %w", err)
	}
	return nil
}

// handleInvoicePaid handles invoice.paid events
func (s *WebhookService) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	org, sub, skip, err := s.resolveInvoiceTargets(ctx, &invoice)
	if err != nil || skip {
		return err
	}

	input := RecordInvoiceInput{
		OrganizationID: org.ID,
		StripeInvoice:  invoice.ID,
		AmountCents:    invoice.AmountPaid,
		Currency:       string(invoice.Currency),
		PeriodStart:    unixTime(invoice.PeriodStart),
		PeriodEnd:      unixTime(invoice.PeriodEnd),
		DueDate:        unixTime(invoice.DueDate),
	}
	if sub != nil {
		input.SubscriptionID = &sub.ID
	}
	if _, err := s.invoiceSvc.RecordPaid(ctx, input); err != nil {
		return fmt.Errorf("failed to record invoice: %w", err)
	}

	// A successful charge clears a delinquent subscription.
	if sub != nil && (sub.Status == domainbilling.SubscriptionStatusPastDue ||
		sub.Status == domainbilling.SubscriptionStatusUnpaid) {
		_, err := s.subscriptionSvc.ReconcileStatus(ctx, ReconcileInput{
			StripeSubscriptionID: sub.StripeSubscriptionID,
			Status:               domainbilling.SubscriptionStatusActive,
			PeriodStart:          unixTime(invoice.PeriodStart),
			PeriodEnd:            unixTime(invoice.PeriodEnd),
		})
		if err != nil && !isLifecycleConflict(err) {
			return fmt.Errorf("failed to recover subscription: %w", err)
		}
	}

	return nil
}

// handleInvoicePaymentFailed handles invoice.payment_failed events
func (s *WebhookService) handleInvoicePaymentFailed(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	org, sub, skip, err := s.resolveInvoiceTargets(ctx, &invoice)
	if err != nil || skip {
		return err
	}

	input := RecordInvoiceInput{
		OrganizationID: org.ID,
		StripeInvoice:  invoice.ID,
		AmountCents:    invoice.AmountDue,
		Currency:       string(invoice.Currency),
		PeriodStart:    unixTime(invoice.PeriodStart),
		PeriodEnd:      unixTime(invoice.PeriodEnd),
		DueDate:        unixTime(invoice.DueDate),
	}
	if sub != nil {
		input.SubscriptionID = &sub.ID
	}
	if _, err := s.invoiceSvc.RecordFailed(ctx, input, failureReason(&invoice)); err != nil {
		return fmt.Errorf("failed to record invoice: %w", err)
	}

	// Re-applying past_due for a newer period refreshes the grace deadline;
	// subscriptions that cannot legally go past_due surface as a lifecycle
	// conflict and the event is acknowledged as-is.
	if sub != nil {
		reconciled, err := s.subscriptionSvc.ReconcileStatus(ctx, ReconcileInput{
			StripeSubscriptionID: sub.StripeSubscriptionID,
			Status:               domainbilling.SubscriptionStatusPastDue,
			PeriodStart:          unixTime(invoice.PeriodStart),
			PeriodEnd:            unixTime(invoice.PeriodEnd),
		})
		if err != nil {
			if isLifecycleConflict(err) {
				return nil
			}
			return fmt.Errorf("failed to mark subscription past due: %w", err)
		}
		s.notifyPaymentFailed(ctx, org, reconciled)
	}

	return nil
}

// resolveInvoiceTargets finds the organization and subscription an invoice
// belongs to. skip is true for invoices we should acknowledge but ignore:
// no customer, not a subscription charge, or an unknown customer.
func (s *WebhookService) resolveInvoiceTargets(ctx context.Context, invoice *stripe.Invoice) (*identity.Organization, *domainbilling.Subscription, bool, error) {
	customerID := ""
	if invoice.Customer != nil {
		customerID = invoice.Customer.ID
	}
	if customerID == "" {
		s.logger.Warn("Invoice has no customer id, skipping",
			zap.String("invoice_id", invoice.ID))
		return nil, nil, true, nil
	}

	if invoice.Subscription == nil {
		s.logger.Debug("Invoice is not for a subscription, skipping",
			zap.String("invoice_id", invoice.ID))
		return nil, nil, true, nil
	}

	org, err := s.orgRepo.FindByStripeCustomerID(ctx, customerID)
	if err != nil {
		if err == shared.ErrNotFound {
			s.logger.Warn("Organization not found for customer",
				zap.String("customer_id", customerID))
			return nil, nil, true, nil
		}
		return nil, nil, false, fmt.Errorf("failed to find organization: %w", err)
	}

	sub, err := s.subscriptionSvc.GetSubscription(ctx, org.ID)
	if err != nil {
		if err == shared.ErrNotFound {
			return org, nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("failed to find subscription: %w", err)
	}
	return org, sub, false, nil
}

// notifyPaymentFailed dispatches the payment failure email off the webhook
// path. The send survives the request context ending but not its own timeout.
func (s *WebhookService) notifyPaymentFailed(ctx context.Context, org *identity.Organization, sub *domainbilling.Subscription) {
	if s.notifier == nil || org.ContactEmail == "" {
		return
	}
	body := "A payment for your subscription failed. Please update your payment method."
	if sub != nil && sub.GracePeriodEnd != nil {
		body = fmt.Sprintf(
			"A payment for your subscription failed. Please update your payment method before %s to keep access.",
			sub.GracePeriodEnd.Format("January 2, 2006"))
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifySendTimeout)
		defer cancel()
		if err := s.notifier.Send(sendCtx, org.ContactEmail, "Payment failed", body); err != nil {
			s.logger.Warn("Failed to send payment failure notification",
				zap.String("organization_id", org.ID.String()),
				zap.Error(err))
		}
	}()
}

// reconcileFromStripe maps a processor subscription onto our lifecycle and
// applies it. Unknown subscriptions are logged and acknowledged.
func (s *WebhookService) reconcileFromStripe(ctx context.Context, subscription *stripe.Subscription) error {
	status, ok := mapStripeStatus(subscription.Status)
	if !ok {
		s.logger.Warn("Unknown subscription status, skipping",
			zap.String("subscription_id", subscription.ID),
			zap.String("status", string(subscription.Status)))
		return nil
	}

	customerID := ""
	if subscription.Customer != nil {
		customerID = subscription.Customer.ID
	}

	_, err := s.subscriptionSvc.ReconcileStatus(ctx, ReconcileInput{
		StripeSubscriptionID: subscription.ID,
		StripeCustomerID:     customerID,
		Status:               status,
		PeriodStart:          unixTime(subscription.CurrentPeriodStart),
		PeriodEnd:            unixTime(subscription.CurrentPeriodEnd),
	})
	if err != nil {
		if err == shared.ErrNotFound {
			s.logger.Warn("Subscription not found for update",
				zap.String("subscription_id", subscription.ID))
			return nil
		}
		if isLifecycleConflict(err) {
			s.logger.Warn("Out-of-order subscription update ignored",
				zap.String("subscription_id", subscription.ID),
				zap.String("status", string(status)),
				zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to reconcile subscription: %w", err)
	}
	return nil
}

// isLifecycleConflict matches errors from events delivered out of order,
// such as an update arriving after the subscription was deleted. Retrying
// these can never succeed, so they are acknowledged and dropped.
func isLifecycleConflict(err error) bool {
	var derr *shared.DomainError
	if errors.As(err, &derr) {
		return derr.Code == "SUBSCRIPTION_DELETED" || derr.Code == "INVALID_TRANSITION"
	}
	return false
}

// mapStripeStatus translates the processor's status vocabulary into ours.
// canceled maps to deleted.
func mapStripeStatus(status stripe.SubscriptionStatus) (domainbilling.SubscriptionStatus, bool) {
	switch status {
	case stripe.SubscriptionStatusIncomplete:
		return domainbilling.SubscriptionStatusIncomplete, true
	case stripe.SubscriptionStatusIncompleteExpired:
		return domainbilling.SubscriptionStatusIncompleteExpired, true
	case stripe.SubscriptionStatusTrialing:
		return domainbilling.SubscriptionStatusTrialing, true
	case stripe.SubscriptionStatusActive:
		return domainbilling.SubscriptionStatusActive, true
	case stripe.SubscriptionStatusPastDue:
		return domainbilling.SubscriptionStatusPastDue, true
	case stripe.SubscriptionStatusUnpaid:
		return domainbilling.SubscriptionStatusUnpaid, true
	case stripe.SubscriptionStatusCanceled:
		return domainbilling.SubscriptionStatusDeleted, true
	default:
		return "", false
	}
}

func tierFromMetadata(metadata map[string]string) domainbilling.PlanTier {
	if tier, ok := metadata["tier"]; ok && tier != "" {
		return domainbilling.PlanTier(tier)
	}
	return domainbilling.PlanTierStarter
}

func seatsFromSubscription(subscription *stripe.Subscription) int {
	if subscription.Items != nil {
		for _, item := range subscription.Items.Data {
			if item.Quantity > 0 {
				return int(item.Quantity)
			}
		}
	}
	return 1
}

func failureReason(invoice *stripe.Invoice) string {
	if invoice.LastFinalizationError != nil && invoice.LastFinalizationError.Msg != "" {
		return invoice.LastFinalizationError.Msg
	}
	return "payment attempt failed"
}

func unixTime(ts int64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
