package payments

// Projections of the provider's records carrying only the fields this
// service reads. Keeping these local means the relay core never touches the
// SDK's wire structs directly.

// Customer is the provider customer with its subscription list expanded.
type Customer struct {
	ID            string
	Email         string
	Metadata      map[string]string
	Subscriptions []Subscription
	DefaultCard   *Card
}

// UserID returns the account correlation id stored in the customer
// metadata, or "" when the customer was created outside this system.
func (c *Customer) UserID() string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[MetadataUserIDKey]
}

// MetadataUserIDKey is the metadata key linking a provider customer back to
// a local user.
const MetadataUserIDKey = "userid"

// Subscription is a provider subscription summary.
type Subscription struct {
	ID                 string
	Status             string
	PlanID             string
	PlanNickname       string
	PlanAmount         int64
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	CancelAtPeriodEnd  bool
	CanceledAt         int64
	CancelAt           int64
	EndedAt            int64
	LatestInvoiceID    string
}

// Invoice carries the fields needed to enrich a payment event.
type Invoice struct {
	ID             string
	SubscriptionID string
	PeriodStart    int64
	PeriodEnd      int64
}

// Plan is one provider billing plan.
type Plan struct {
	ID        string `json:"plan_id"`
	ProductID string `json:"product_id"`
	Interval  string `json:"interval"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Nickname  string `json:"nickname,omitempty"`
}

// Card is a stored payment card summary.
type Card struct {
	Funding  string `json:"funding"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}
