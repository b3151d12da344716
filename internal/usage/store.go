package usage

import (
	"context"
	"time"
)

// Store persists accounts and usage records. Implementations create accounts
// with the configured free allowance on first access.
type Store interface {
	GetAccount(ctx context.Context, userID string) (Account, error)
	// Track locks the account and passes it with any prior record for the
	// signature to fn. A returned record that differs from prior is inserted
	// and the account, as mutated by fn, is saved.
	Track(ctx context.Context, userID, signatureID string, fn func(acct *Account, prior *Record) (*Record, error)) (Record, error)
	UpdateAccount(ctx context.Context, userID string, fn func(*Account) error) (Account, error)
	FindBySubscription(ctx context.Context, subscriptionID string) (Account, error)
	FindByCustomer(ctx context.Context, customerID string) (Account, error)
	CountSince(ctx context.Context, userID string, since time.Time) (used, billed int, err error)
}
