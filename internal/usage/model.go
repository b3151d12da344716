package usage

import "time"

// Plan is a billing plan.
type Plan string

const (
	PlanFree      Plan = "free"
	PlanMetered   Plan = "metered"
	PlanUnlimited Plan = "unlimited"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanMetered, PlanUnlimited:
		return true
	}
	return false
}

// Subscription statuses reported by the billing provider.
const (
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// DefaultFreeSignatures is the allowance of a new account.
const DefaultFreeSignatures = 5

// Account is a user's billing state.
type Account struct {
	UserID             string    `json:"userId"`
	Plan               Plan      `json:"plan"`
	SubscriptionID     string    `json:"subscriptionId,omitempty"`
	SubscriptionStatus string    `json:"subscriptionStatus,omitempty"`
	CustomerID         string    `json:"-"`
	FreeRemaining      int       `json:"freeRemaining"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Active reports whether the account has a paid subscription in good standing.
func (a Account) Active() bool {
	return a.SubscriptionStatus == StatusActive
}

// CanSend mirrors the allowance rules of RecordCompletion without consuming.
func (a Account) CanSend() bool {
	switch {
	case a.FreeRemaining > 0:
		return true
	case a.Plan == PlanUnlimited && a.Active():
		return true
	case a.Plan == PlanMetered && a.SubscriptionID != "" && a.Active():
		return true
	}
	return false
}

// Record is one metered signature completion.
type Record struct {
	SignatureID string    `json:"signatureId"`
	UserID      string    `json:"userId"`
	DocumentID  string    `json:"documentId"`
	Billed      bool      `json:"billed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Result reports what RecordCompletion did.
type Result struct {
	Recorded  bool `json:"recorded"`
	Billed    bool `json:"billed"`
	Duplicate bool `json:"duplicate"`
}

// Stats is the usage summary for the current calendar month.
type Stats struct {
	Account
	PeriodStart time.Time `json:"periodStart"`
	Used        int       `json:"used"`
	Billed      int       `json:"billed"`
	CanSend     bool      `json:"canSend"`
}
