// Package subscriptions implements the synchronous subscription-management
// API on top of the account store and the payment provider. It owns all
// mutation of account records; the webhook relay only reads provider state.
package subscriptions

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/nimbusbilling/subrelay/app/models"
	"github.com/nimbusbilling/subrelay/internal/pkg/accountstore"
	"github.com/nimbusbilling/subrelay/internal/pkg/payments"
)

var (
	// ErrUserNotFound means no account record exists for the user id.
	ErrUserNotFound = errors.New("customer does not exist")
	// ErrAlreadySubscribed means the user already holds a live subscription
	// for the requested plan.
	ErrAlreadySubscribed = errors.New("user has existing plan")
	// ErrMissingEmail means a first-time subscribe arrived without the email
	// needed to create the provider customer.
	ErrMissingEmail = errors.New("missing email parameter")
	// ErrSubscriptionNotFound means the subscription id is not on the
	// user's account record.
	ErrSubscriptionNotFound = errors.New("subscription not available")
	// ErrNotCancelable means the subscription is not in a state that can be
	// canceled.
	ErrNotCancelable = errors.New("subscription cannot be cancelled")
	// ErrCustomerMismatch means the provider customer is not linked to the
	// requesting user.
	ErrCustomerMismatch = errors.New("customer mismatch")
)

// SubscribeRequest is the input for SubscribeToPlan.
type SubscribeRequest struct {
	PaymentToken string `json:"pmt_token" validate:"required"`
	PlanID       string `json:"plan_id" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	OrigSystem   string `json:"orig_system" validate:"required"`
}

func (r *SubscribeRequest) Validate() error {
	v := validator.New()

	return v.Struct(r)
}

// UpdatePaymentRequest is the input for UpdatePaymentMethod.
type UpdatePaymentRequest struct {
	PaymentToken string `json:"pmt_token" validate:"required"`
}

func (r *UpdatePaymentRequest) Validate() error {
	v := validator.New()

	return v.Struct(r)
}

// CustomerSummary is the read model for GET customer.
type CustomerSummary struct {
	PaymentType   string                       `json:"payment_type"`
	Last4         string                       `json:"last4"`
	ExpMonth      int64                        `json:"exp_month"`
	ExpYear       int64                        `json:"exp_year"`
	Subscriptions []models.SubscriptionSummary `json:"subscriptions"`
}

// Service implements the management operations.
type Service struct {
	store    *accountstore.Store
	provider payments.Service
}

func NewService(store *accountstore.Store, provider payments.Service) *Service {
	return &Service{store: store, provider: provider}
}

// ListPlans returns the provider's plan catalogue.
func (s *Service) ListPlans(ctx context.Context) ([]payments.Plan, error) {
	return s.provider.ListPlans(ctx)
}

// SubscribeToPlan subscribes the user to a plan, creating the provider
// customer on first use, and returns the refreshed subscription list.
func (s *Service) SubscribeToPlan(ctx context.Context, userID string, req SubscribeRequest) ([]models.SubscriptionSummary, error) {
	record, err := s.store.Get(ctx, userID)
	switch {
	case errors.Is(err, accountstore.ErrNotFound):
		record = nil
	case err != nil:
		return nil, err
	}

	if record != nil && record.HasActivePlan(req.PlanID) {
		return nil, ErrAlreadySubscribed
	}

	if record == nil || record.CustomerID == "" {
		if req.Email == "" {
			return nil, ErrMissingEmail
		}
		customer, err := s.provider.CreateCustomer(ctx, userID, req.Email, req.PaymentToken)
		if err != nil {
			return nil, err
		}
		record = &models.AccountRecord{
			UserID:     userID,
			CustomerID: customer.ID,
			OrigSystem: req.OrigSystem,
		}
	}

	if _, err := s.provider.Subscribe(ctx, record.CustomerID, req.PlanID); err != nil {
		return nil, err
	}
	return s.refreshRecord(ctx, record, req.OrigSystem)
}

// SubscriptionStatus refreshes and returns the user's subscription list.
func (s *Service) SubscriptionStatus(ctx context.Context, userID string) ([]models.SubscriptionSummary, error) {
	record, err := s.getRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.refreshRecord(ctx, record, record.OrigSystem)
}

// CancelSubscription cancels one of the user's subscriptions at the
// provider. The stored record keeps the entry; the next status refresh or
// webhook sync reflects the terminal state.
func (s *Service) CancelSubscription(ctx context.Context, userID, subscriptionID string) error {
	record, err := s.getRecord(ctx, userID)
	if err != nil {
		return err
	}
	if !record.HasSubscription(subscriptionID) {
		return ErrSubscriptionNotFound
	}

	sub, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != "active" && sub.Status != "trialing" {
		return ErrNotCancelable
	}
	if _, err := s.provider.CancelSubscription(ctx, subscriptionID); err != nil {
		return err
	}
	return nil
}

// UpdatePaymentMethod swaps the default payment source on the linked
// provider customer.
func (s *Service) UpdatePaymentMethod(ctx context.Context, userID, paymentToken string) error {
	record, err := s.getRecord(ctx, userID)
	if err != nil {
		return err
	}
	customer, err := s.provider.GetCustomer(ctx, record.CustomerID)
	if err != nil {
		return err
	}
	if customer.UserID() != userID {
		return ErrCustomerMismatch
	}
	return s.provider.UpdateSource(ctx, record.CustomerID, paymentToken)
}

// CustomerSummary returns the stored card plus the provider's current view
// of the user's subscriptions.
func (s *Service) CustomerSummary(ctx context.Context, userID string) (*CustomerSummary, error) {
	record, err := s.getRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	customer, err := s.provider.GetCustomer(ctx, record.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer.UserID() != userID {
		return nil, ErrCustomerMismatch
	}

	summary := &CustomerSummary{
		Subscriptions: summarize(customer.Subscriptions, record.OrigSystem),
	}
	if customer.DefaultCard != nil {
		summary.PaymentType = customer.DefaultCard.Funding
		summary.Last4 = customer.DefaultCard.Last4
		summary.ExpMonth = customer.DefaultCard.ExpMonth
		summary.ExpYear = customer.DefaultCard.ExpYear
	}
	return summary, nil
}

// DeleteAccount removes the account record. The provider customer is left
// untouched.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if _, err := s.getRecord(ctx, userID); err != nil {
		return err
	}
	return s.store.Delete(ctx, userID)
}

func (s *Service) getRecord(ctx context.Context, userID string) (*models.AccountRecord, error) {
	record, err := s.store.Get(ctx, userID)
	if errors.Is(err, accountstore.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// refreshRecord rewrites the stored subscription list from the provider
// and returns it.
func (s *Service) refreshRecord(ctx context.Context, record *models.AccountRecord, origSystem string) ([]models.SubscriptionSummary, error) {
	subs, err := s.provider.ListSubscriptions(ctx, record.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("refresh subscriptions for customer %s: %w", record.CustomerID, err)
	}
	record.Subscriptions = summarize(subs, origSystem)
	if err := s.store.Put(ctx, record); err != nil {
		return nil, err
	}
	return record.Subscriptions, nil
}

func summarize(subs []payments.Subscription, origSystem string) []models.SubscriptionSummary {
	out := make([]models.SubscriptionSummary, 0, len(subs))
	for _, sub := range subs {
		out = append(out, models.SubscriptionSummary{
			SubscriptionID:     sub.ID,
			PlanID:             sub.PlanID,
			Nickname:           sub.PlanNickname,
			Status:             sub.Status,
			CurrentPeriodStart: sub.CurrentPeriodStart,
			CurrentPeriodEnd:   sub.CurrentPeriodEnd,
			EndedAt:            sub.EndedAt,
			OrigSystem:         origSystem,
		})
	}
	return out
}
