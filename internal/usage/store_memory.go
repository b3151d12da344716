package usage

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu            sync.Mutex
	freeAllowance int
	accounts      map[string]Account
	records       map[string]Record
}

// NewMemoryStore constructs an in-memory Store.
func NewMemoryStore(freeAllowance int) Store {
	return &memoryStore{
		freeAllowance: freeAllowance,
		accounts:      make(map[string]Account),
		records:       make(map[string]Record),
	}
}

func (s *memoryStore) GetAccount(ctx context.Context, userID string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(userID), nil
}

func (s *memoryStore) Track(ctx context.Context, userID, signatureID string, fn func(*Account, *Record) (*Record, error)) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.ensureLocked(userID)
	var prior *Record
	if rec, ok := s.records[signatureID]; ok {
		prior = &rec
	}
	rec, err := fn(&acct, prior)
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return Record{}, nil
	}
	if rec == prior {
		return *rec, nil
	}
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[userID] = acct
	s.records[signatureID] = *rec
	return *rec, nil
}

func (s *memoryStore) UpdateAccount(ctx context.Context, userID string, fn func(*Account) error) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.ensureLocked(userID)
	if err := fn(&acct); err != nil {
		return Account{}, err
	}
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[userID] = acct
	return acct, nil
}

func (s *memoryStore) FindBySubscription(ctx context.Context, subscriptionID string) (Account, error) {
	return s.find(ctx, func(a Account) bool { return a.SubscriptionID == subscriptionID })
}

func (s *memoryStore) FindByCustomer(ctx context.Context, customerID string) (Account, error) {
	return s.find(ctx, func(a Account) bool { return a.CustomerID == customerID })
}

func (s *memoryStore) CountSince(ctx context.Context, userID string, since time.Time) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	used, billed := 0, 0
	for _, r := range s.records {
		if r.UserID != userID || r.CreatedAt.Before(since) {
			continue
		}
		used++
		if r.Billed {
			billed++
		}
	}
	return used, billed, nil
}

func (s *memoryStore) find(ctx context.Context, match func(Account) bool) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if match(a) {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *memoryStore) ensureLocked(userID string) Account {
	acct, ok := s.accounts[userID]
	if !ok {
		acct = Account{UserID: userID, Plan: PlanFree, FreeRemaining: s.freeAllowance, UpdatedAt: time.Now().UTC()}
		s.accounts[userID] = acct
	}
	return acct
}
