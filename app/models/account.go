package models

// SubscriptionSummary is one entry of the ordered subscription list kept on
// an account record. It mirrors what the provider reports at sync time.
type SubscriptionSummary struct {
	SubscriptionID     string `json:"subscription_id"`
	PlanID             string `json:"plan_id"`
	Nickname           string `json:"nickname"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	EndedAt            int64  `json:"ended_at"`
	OrigSystem         string `json:"orig_system,omitempty"`
}

// AccountRecord is the single durable item kept per user: the provider
// customer linkage plus the last-synced subscription list.
type AccountRecord struct {
	UserID        string                `json:"user_id"`
	CustomerID    string                `json:"customer_id"`
	OrigSystem    string                `json:"orig_system"`
	Subscriptions []SubscriptionSummary `json:"subscriptions"`
}

// HasActivePlan reports whether the record already carries a live
// subscription for the given plan.
func (a *AccountRecord) HasActivePlan(planID string) bool {
	for _, sub := range a.Subscriptions {
		if sub.PlanID != planID {
			continue
		}
		if sub.Status == "active" || sub.Status == "trialing" {
			return true
		}
	}
	return false
}

// HasSubscription reports whether the record lists the given subscription id.
func (a *AccountRecord) HasSubscription(subID string) bool {
	for _, sub := range a.Subscriptions {
		if sub.SubscriptionID == subID {
			return true
		}
	}
	return false
}
