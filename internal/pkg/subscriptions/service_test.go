package subscriptions

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusbilling/subrelay/app/models"
	"github.com/nimbusbilling/subrelay/internal/pkg/accountstore"
	"github.com/nimbusbilling/subrelay/internal/pkg/payments"
)

type fakeProvider struct {
	customers     map[string]*payments.Customer
	invoices      map[string]*payments.Invoice
	subscriptions map[string]*payments.Subscription
	listByCust    map[string][]payments.Subscription
	plans         []payments.Plan

	createdCustomers int
	canceled         []string
	updatedSources   []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		customers:     map[string]*payments.Customer{},
		invoices:      map[string]*payments.Invoice{},
		subscriptions: map[string]*payments.Subscription{},
		listByCust:    map[string][]payments.Subscription{},
	}
}

func (f *fakeProvider) GetCustomer(_ context.Context, id string) (*payments.Customer, error) {
	if c, ok := f.customers[id]; ok {
		return c, nil
	}
	return nil, payments.ErrNotFound
}

func (f *fakeProvider) GetInvoice(_ context.Context, id string) (*payments.Invoice, error) {
	if inv, ok := f.invoices[id]; ok {
		return inv, nil
	}
	return nil, payments.ErrNotFound
}

func (f *fakeProvider) CreateCustomer(_ context.Context, userID, email, _ string) (*payments.Customer, error) {
	f.createdCustomers++
	cust := &payments.Customer{
		ID:       "cus_new",
		Email:    email,
		Metadata: map[string]string{payments.MetadataUserIDKey: userID},
	}
	f.customers[cust.ID] = cust
	return cust, nil
}

func (f *fakeProvider) UpdateSource(_ context.Context, customerID, source string) error {
	if _, ok := f.customers[customerID]; !ok {
		return payments.ErrNotFound
	}
	f.updatedSources = append(f.updatedSources, customerID+":"+source)
	return nil
}

func (f *fakeProvider) Subscribe(_ context.Context, customerID, planID string) (*payments.Subscription, error) {
	if _, ok := f.customers[customerID]; !ok {
		return nil, payments.ErrNotFound
	}
	sub := payments.Subscription{ID: "sub_" + planID, PlanID: planID, Status: "active"}
	f.subscriptions[sub.ID] = &sub
	f.listByCust[customerID] = append(f.listByCust[customerID], sub)
	return &sub, nil
}

func (f *fakeProvider) CancelSubscription(_ context.Context, subscriptionID string) (*payments.Subscription, error) {
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, payments.ErrNotFound
	}
	f.canceled = append(f.canceled, subscriptionID)
	sub.CancelAtPeriodEnd = true
	return sub, nil
}

func (f *fakeProvider) GetSubscription(_ context.Context, subscriptionID string) (*payments.Subscription, error) {
	if sub, ok := f.subscriptions[subscriptionID]; ok {
		return sub, nil
	}
	return nil, payments.ErrNotFound
}

func (f *fakeProvider) ListSubscriptions(_ context.Context, customerID string) ([]payments.Subscription, error) {
	if _, ok := f.customers[customerID]; !ok {
		return nil, payments.ErrNotFound
	}
	return f.listByCust[customerID], nil
}

func (f *fakeProvider) ListPlans(_ context.Context) ([]payments.Plan, error) {
	return f.plans, nil
}

func newTestService(t *testing.T) (*Service, *fakeProvider, *accountstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := accountstore.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	provider := newFakeProvider()
	return NewService(store, provider), provider, store
}

func TestSubscribeFirstTimeCreatesCustomer(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	subs, err := svc.SubscribeToPlan(ctx, "user-123", SubscribeRequest{
		PaymentToken: "tok_visa",
		PlanID:       "plan_1",
		Email:        "u@example.com",
		OrigSystem:   "fxa",
	})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "plan_1", subs[0].PlanID)
	assert.Equal(t, "fxa", subs[0].OrigSystem)
	assert.Equal(t, 1, provider.createdCustomers)

	record, err := store.Get(ctx, "user-123")
	require.NoError(t, err)
	assert.Equal(t, "cus_new", record.CustomerID)
}

func TestSubscribeFirstTimeWithoutEmailFails(t *testing.T) {
	svc, provider, _ := newTestService(t)

	_, err := svc.SubscribeToPlan(context.Background(), "user-123", SubscribeRequest{
		PaymentToken: "tok_visa",
		PlanID:       "plan_1",
		OrigSystem:   "fxa",
	})
	assert.ErrorIs(t, err, ErrMissingEmail)
	assert.Zero(t, provider.createdCustomers)
}

func TestSubscribeDuplicatePlanFails(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	provider.customers["cus_1"] = &payments.Customer{ID: "cus_1"}
	require.NoError(t, store.Put(ctx, &models.AccountRecord{
		UserID:     "user-123",
		CustomerID: "cus_1",
		Subscriptions: []models.SubscriptionSummary{
			{SubscriptionID: "sub_1", PlanID: "plan_1", Status: "active"},
		},
	}))

	_, err := svc.SubscribeToPlan(ctx, "user-123", SubscribeRequest{
		PaymentToken: "tok_visa",
		PlanID:       "plan_1",
		OrigSystem:   "fxa",
	})
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
}

func TestSubscribeExistingCustomerAddsPlan(t *testing.T) {
	svc, provider, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SubscribeToPlan(ctx, "user-123", SubscribeRequest{
		PaymentToken: "tok_visa",
		PlanID:       "plan_1",
		Email:        "u@example.com",
		OrigSystem:   "fxa",
	})
	require.NoError(t, err)

	subs, err := svc.SubscribeToPlan(ctx, "user-123", SubscribeRequest{
		PaymentToken: "tok_visa",
		PlanID:       "plan_2",
		OrigSystem:   "fxa",
	})
	require.NoError(t, err)
	assert.Len(t, subs, 2)
	assert.Equal(t, 1, provider.createdCustomers)
}

func TestSubscriptionStatusUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.SubscriptionStatus(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCancelSubscription(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	provider.customers["cus_1"] = &payments.Customer{ID: "cus_1"}
	provider.subscriptions["sub_1"] = &payments.Subscription{ID: "sub_1", Status: "active"}
	require.NoError(t, store.Put(ctx, &models.AccountRecord{
		UserID:     "user-123",
		CustomerID: "cus_1",
		Subscriptions: []models.SubscriptionSummary{
			{SubscriptionID: "sub_1", PlanID: "plan_1", Status: "active"},
		},
	}))

	require.NoError(t, svc.CancelSubscription(ctx, "user-123", "sub_1"))
	assert.Equal(t, []string{"sub_1"}, provider.canceled)
}

func TestCancelSubscriptionNotOnRecord(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &models.AccountRecord{UserID: "user-123", CustomerID: "cus_1"}))

	err := svc.CancelSubscription(ctx, "user-123", "sub_other")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestCancelSubscriptionNotActive(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	provider.subscriptions["sub_1"] = &payments.Subscription{ID: "sub_1", Status: "canceled"}
	require.NoError(t, store.Put(ctx, &models.AccountRecord{
		UserID:     "user-123",
		CustomerID: "cus_1",
		Subscriptions: []models.SubscriptionSummary{
			{SubscriptionID: "sub_1", PlanID: "plan_1", Status: "canceled"},
		},
	}))

	err := svc.CancelSubscription(ctx, "user-123", "sub_1")
	assert.ErrorIs(t, err, ErrNotCancelable)
}

func TestUpdatePaymentMethodChecksCustomerLinkage(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	provider.customers["cus_1"] = &payments.Customer{
		ID:       "cus_1",
		Metadata: map[string]string{payments.MetadataUserIDKey: "someone-else"},
	}
	require.NoError(t, store.Put(ctx, &models.AccountRecord{UserID: "user-123", CustomerID: "cus_1"}))

	err := svc.UpdatePaymentMethod(ctx, "user-123", "tok_new")
	assert.ErrorIs(t, err, ErrCustomerMismatch)
	assert.Empty(t, provider.updatedSources)
}

func TestUpdatePaymentMethod(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	provider.customers["cus_1"] = &payments.Customer{
		ID:       "cus_1",
		Metadata: map[string]string{payments.MetadataUserIDKey: "user-123"},
	}
	require.NoError(t, store.Put(ctx, &models.AccountRecord{UserID: "user-123", CustomerID: "cus_1"}))

	require.NoError(t, svc.UpdatePaymentMethod(ctx, "user-123", "tok_new"))
	assert.Equal(t, []string{"cus_1:tok_new"}, provider.updatedSources)
}

func TestCustomerSummaryIncludesCard(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	provider.customers["cus_1"] = &payments.Customer{
		ID:       "cus_1",
		Metadata: map[string]string{payments.MetadataUserIDKey: "user-123"},
		Subscriptions: []payments.Subscription{
			{ID: "sub_1", PlanID: "plan_1", Status: "active"},
		},
		DefaultCard: &payments.Card{Funding: "credit", Last4: "4242", ExpMonth: 12, ExpYear: 2026},
	}
	require.NoError(t, store.Put(ctx, &models.AccountRecord{UserID: "user-123", CustomerID: "cus_1", OrigSystem: "fxa"}))

	summary, err := svc.CustomerSummary(ctx, "user-123")
	require.NoError(t, err)
	assert.Equal(t, "credit", summary.PaymentType)
	assert.Equal(t, "4242", summary.Last4)
	require.Len(t, summary.Subscriptions, 1)
	assert.Equal(t, "fxa", summary.Subscriptions[0].OrigSystem)
}

func TestDeleteAccount(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &models.AccountRecord{UserID: "user-123", CustomerID: "cus_1"}))
	require.NoError(t, svc.DeleteAccount(ctx, "user-123"))

	_, err := store.Get(ctx, "user-123")
	assert.ErrorIs(t, err, accountstore.ErrNotFound)

	assert.ErrorIs(t, svc.DeleteAccount(ctx, "user-123"), ErrUserNotFound)
}

func TestSubscribeRequestValidate(t *testing.T) {
	valid := &SubscribeRequest{PaymentToken: "tok", PlanID: "plan_1", OrigSystem: "fxa"}
	assert.NoError(t, valid.Validate())

	missing := &SubscribeRequest{PlanID: "plan_1"}
	assert.Error(t, missing.Validate())

	badEmail := &SubscribeRequest{PaymentToken: "tok", PlanID: "plan_1", OrigSystem: "fxa", Email: "not-an-email"}
	assert.Error(t, badEmail.Validate())
}
