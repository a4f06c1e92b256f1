package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nimbusbilling/subrelay/internal/pkg/payments"
	"github.com/nimbusbilling/subrelay/internal/pkg/subscriptions"
)

const managementTimeout = 15 * time.Second

// SubscriptionController exposes the synchronous management API.
type SubscriptionController struct {
	service *subscriptions.Service
}

func NewSubscriptionController(service *subscriptions.Service) *SubscriptionController {
	return &SubscriptionController{service: service}
}

// HandleListPlans returns the provider's plan catalogue.
func (sc *SubscriptionController) HandleListPlans(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), managementTimeout)
	defer cancel()

	plans, err := sc.service.ListPlans(ctx)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(plans)
}

// HandleSubscribe subscribes the user to a plan.
func (sc *SubscriptionController) HandleSubscribe(c *fiber.Ctx) error {
	uid := c.Params("uid")

	var req subscriptions.SubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "message": "Request body could not be parsed"})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), managementTimeout)
	defer cancel()

	subs, err := sc.service.SubscribeToPlan(ctx, uid, req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"subscriptions": subs})
}

// HandleSubscriptionStatus returns the user's refreshed subscription list.
func (sc *SubscriptionController) HandleSubscriptionStatus(c *fiber.Ctx) error {
	uid := c.Params("uid")

	ctx, cancel := context.WithTimeout(context.Background(), managementTimeout)
	defer cancel()

	subs, err := sc.service.SubscriptionStatus(ctx, uid)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"subscriptions": subs})
}

// HandleCancelSubscription cancels one subscription of the user.
func (sc *SubscriptionController) HandleCancelSubscription(c *fiber.Ctx) error {
	uid := c.Params("uid")
	subID := c.Params("sub_id")

	ctx, cancel := context.WithTimeout(context.Background(), managementTimeout)
	defer cancel()

	if err := sc.service.CancelSubscription(ctx, uid, subID); err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Subscription cancellation successful"})
}

// HandleGetCustomer returns the stored card plus current subscriptions.
func (sc *SubscriptionController) HandleGetCustomer(c *fiber.Ctx) error {
	uid := c.Params("uid")

	ctx, cancel := context.WithTimeout(context.Background(), managementTimeout)
	defer cancel()

	summary, err := sc.service.CustomerSummary(ctx, uid)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}

// HandleUpdatePayment swaps the default payment source.
func (sc *SubscriptionController) HandleUpdatePayment(c *fiber.Ctx) error {
	uid := c.Params("uid")

	var req subscriptions.UpdatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "message": "Request body could not be parsed"})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), managementTimeout)
	defer cancel()

	if err := sc.service.UpdatePaymentMethod(ctx, uid, req.PaymentToken); err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Payment method updated successfully"})
}

// HandleDeleteCustomer removes the account record.
func (sc *SubscriptionController) HandleDeleteCustomer(c *fiber.Ctx) error {
	uid := c.Params("uid")

	ctx, cancel := context.WithTimeout(context.Background(), managementTimeout)
	defer cancel()

	if err := sc.service.DeleteAccount(ctx, uid); err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Customer deleted successfully"})
}

// serviceError maps service errors onto the API's status codes.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, subscriptions.ErrUserNotFound),
		errors.Is(err, subscriptions.ErrSubscriptionNotFound),
		errors.Is(err, payments.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	case errors.Is(err, subscriptions.ErrAlreadySubscribed),
		errors.Is(err, subscriptions.ErrMissingEmail),
		errors.Is(err, subscriptions.ErrNotCancelable):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	case errors.Is(err, subscriptions.ErrCustomerMismatch):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}
}
