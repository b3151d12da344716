package usage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"esign-backend/internal/shared/storage/db"
)

type pgStore struct {
	DB            *sql.DB
	freeAllowance int
}

// NewPGStore constructs a Postgres-backed usage store.
func NewPGStore(sqlDB *sql.DB, freeAllowance int) Store {
	return &pgStore{DB: sqlDB, freeAllowance: freeAllowance}
}

const accountColumns = `user_id, plan, subscription_id, subscription_status, customer_id, free_remaining, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *pgStore) GetAccount(ctx context.Context, userID string) (Account, error) {
	var acct Account
	err := db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		acct, err = s.lockAccount(ctx, tx, userID)
		return err
	})
	return acct, err
}

func (s *pgStore) Track(ctx context.Context, userID, signatureID string, fn func(*Account, *Record) (*Record, error)) (Record, error) {
	var out Record
	err := db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		acct, err := s.lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		prior, err := selectRecord(ctx, tx, signatureID)
		if err != nil {
			return err
		}
		rec, err := fn(&acct, prior)
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		out = *rec
		if rec == prior {
			return nil
		}
		if err := saveAccount(ctx, tx, acct); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO usage_records (signature_id, user_id, document_id, billed, created_at)
VALUES ($1, $2, $3, $4, $5)`,
			rec.SignatureID, rec.UserID, rec.DocumentID, rec.Billed, rec.CreatedAt)
		return err
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

func (s *pgStore) UpdateAccount(ctx context.Context, userID string, fn func(*Account) error) (Account, error) {
	var acct Account
	err := db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		acct, err = s.lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := fn(&acct); err != nil {
			return err
		}
		acct.UpdatedAt = time.Now().UTC()
		return saveAccount(ctx, tx, acct)
	})
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}

func (s *pgStore) FindBySubscription(ctx context.Context, subscriptionID string) (Account, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM usage_accounts WHERE subscription_id = $1`, subscriptionID)
	return scanAccount(row)
}

func (s *pgStore) FindByCustomer(ctx context.Context, customerID string) (Account, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM usage_accounts WHERE customer_id = $1`, customerID)
	return scanAccount(row)
}

func (s *pgStore) CountSince(ctx context.Context, userID string, since time.Time) (int, int, error) {
	var used, billed int
	err := s.DB.QueryRowContext(ctx, `
SELECT COUNT(*), COUNT(*) FILTER (WHERE billed)
FROM usage_records
WHERE user_id = $1 AND created_at >= $2`, userID, since).Scan(&used, &billed)
	return used, billed, err
}

func (s *pgStore) lockAccount(ctx context.Context, tx *sql.Tx, userID string) (Account, error) {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO usage_accounts (user_id, plan, free_remaining) VALUES ($1, 'free', $2)
ON CONFLICT (user_id) DO NOTHING`, userID, s.freeAllowance); err != nil {
		return Account{}, err
	}
	row := tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM usage_accounts WHERE user_id = $1 FOR UPDATE`, userID)
	return scanAccount(row)
}

func saveAccount(ctx context.Context, tx *sql.Tx, acct Account) error {
	_, err := tx.ExecContext(ctx, `
UPDATE usage_accounts
SET plan = $2, subscription_id = $3, subscription_status = $4, customer_id = $5, free_remaining = $6, updated_at = now()
WHERE user_id = $1`,
		acct.UserID,
		string(acct.Plan),
		nullable(acct.SubscriptionID),
		nullable(acct.SubscriptionStatus),
		nullable(acct.CustomerID),
		acct.FreeRemaining,
	)
	return err
}

func selectRecord(ctx context.Context, tx *sql.Tx, signatureID string) (*Record, error) {
	var rec Record
	err := tx.QueryRowContext(ctx, `
SELECT signature_id, user_id, document_id, billed, created_at
FROM usage_records
WHERE signature_id = $1`, signatureID).Scan(&rec.SignatureID, &rec.UserID, &rec.DocumentID, &rec.Billed, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		acct           Account
		plan           string
		subscriptionID sql.NullString
		status         sql.NullString
		customerID     sql.NullString
	)
	err := row.Scan(&acct.UserID, &plan, &subscriptionID, &status, &customerID, &acct.FreeRemaining, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	acct.Plan = Plan(plan)
	acct.SubscriptionID = subscriptionID.String
	acct.SubscriptionStatus = status.String
	acct.CustomerID = customerID.String
	return acct, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
