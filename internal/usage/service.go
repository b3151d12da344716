package usage

import (
	"context"
	"errors"
	"time"

	"esign-backend/internal/shared/apperr"
	"esign-backend/internal/shared/metrics"
	"esign-backend/internal/shared/telemetry"
)

// Service meters signature completions against a user's plan.
type Service struct {
	store Store
	meter MeterClient
	now   func() time.Time
}

// NewService constructs a Service. A nil meter logs usage only.
func NewService(store Store, meter MeterClient) *Service {
	if meter == nil {
		meter = LogMeterClient{}
	}
	return &Service{store: store, meter: meter, now: time.Now}
}

// RecordCompletion records one completed signature for the document owner.
// Repeated calls for the same signature return the first outcome.
func (s *Service) RecordCompletion(ctx context.Context, ownerID, documentID, signatureID string) (Result, error) {
	duplicate := false
	rec, err := s.store.Track(ctx, ownerID, signatureID, func(acct *Account, prior *Record) (*Record, error) {
		if prior != nil {
			duplicate = true
			return prior, nil
		}
		rec := &Record{
			SignatureID: signatureID,
			UserID:      ownerID,
			DocumentID:  documentID,
			CreatedAt:   s.now().UTC(),
		}
		switch {
		case acct.FreeRemaining > 0:
			acct.FreeRemaining--
		case acct.Plan == PlanUnlimited && acct.Active():
		case acct.Plan == PlanMetered && acct.SubscriptionID != "" && acct.Active():
			if err := s.meter.RecordUsage(ctx, acct.SubscriptionID, 1); err != nil {
				metrics.IncMeterFailed()
				telemetry.Warn("usage.meter_failed", map[string]any{
					"user_id":         ownerID,
					"subscription_id": acct.SubscriptionID,
					"signature_id":    signatureID,
					"error":           err,
				})
			} else {
				rec.Billed = true
			}
		default:
			return nil, ErrNoActivePlan
		}
		return rec, nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Recorded: true, Billed: rec.Billed, Duplicate: duplicate}, nil
}

// Stats summarizes the current calendar month.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	acct, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	used, billed, err := s.store.CountSince(ctx, userID, start)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Account: acct, PeriodStart: start, Used: used, Billed: billed, CanSend: acct.CanSend()}, nil
}

// SelectPlan switches plans. Paid plans stay inactive until the provider
// confirms the subscription; choosing free drops any subscription.
func (s *Service) SelectPlan(ctx context.Context, userID string, plan Plan) (Account, error) {
	if !plan.Valid() {
		return Account{}, apperr.Validation("unknown plan %q", plan)
	}
	return s.store.UpdateAccount(ctx, userID, func(a *Account) error {
		if plan == PlanFree {
			a.SubscriptionID = ""
			a.SubscriptionStatus = ""
		} else if a.Plan != plan {
			a.SubscriptionStatus = ""
		}
		a.Plan = plan
		return nil
	})
}

// ApplyEvent updates the account an event refers to. Events for unknown
// subscriptions or customers are logged and ignored.
func (s *Service) ApplyEvent(ctx context.Context, ev Event) error {
	var err error
	switch e := ev.(type) {
	case SubscriptionActivated:
		_, err = s.store.UpdateAccount(ctx, e.UserID, func(a *Account) error {
			a.Plan = e.Plan
			a.SubscriptionID = e.SubscriptionID
			a.SubscriptionStatus = StatusActive
			if e.CustomerID != "" {
				a.CustomerID = e.CustomerID
			}
			return nil
		})
	case SubscriptionUpdated:
		err = s.updateFound(ctx, ev, s.store.FindBySubscription, e.SubscriptionID, func(a *Account) {
			a.SubscriptionStatus = e.Status
			if e.Status == StatusActive && e.Plan != "" {
				a.Plan = e.Plan
			}
		})
	case SubscriptionCanceled:
		err = s.updateFound(ctx, ev, s.store.FindBySubscription, e.SubscriptionID, func(a *Account) {
			a.Plan = PlanFree
			a.SubscriptionID = ""
			a.SubscriptionStatus = StatusCanceled
		})
	case InvoicePaid:
		err = s.updateFound(ctx, ev, s.store.FindByCustomer, e.CustomerID, func(a *Account) {
			a.SubscriptionStatus = StatusActive
		})
	case InvoicePaymentFailed:
		err = s.updateFound(ctx, ev, s.store.FindByCustomer, e.CustomerID, func(a *Account) {
			a.SubscriptionStatus = StatusPastDue
		})
	default:
		return apperr.Validation("unsupported event")
	}
	if err != nil {
		return err
	}
	telemetry.Info("usage.event_applied", map[string]any{"type": ev.Type()})
	return nil
}

func (s *Service) updateFound(ctx context.Context, ev Event, find func(context.Context, string) (Account, error), key string, mutate func(*Account)) error {
	acct, err := find(ctx, key)
	if errors.Is(err, ErrAccountNotFound) {
		telemetry.Warn("usage.event_unmatched", map[string]any{"type": ev.Type(), "key": key})
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.store.UpdateAccount(ctx, acct.UserID, func(a *Account) error {
		mutate(a)
		return nil
	})
	return err
}
