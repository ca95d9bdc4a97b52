package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"

	"github.com/coinearn/backend/internal/audit"
	"github.com/coinearn/backend/internal/models"
)

// Outcome reports how the ledger handled a delta.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
)

var (
	// ErrInvalidInput means the request was rejected before any storage access.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAccountNotFound means the user has never transacted.
	ErrAccountNotFound = errors.New("account not found")
	// ErrStorageUnavailable means the atomic unit could not be committed.
	// Retrying the whole call is safe when an idempotency key was supplied.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrStorageCorruption means a conservation check failed for the account;
	// mutations are halted until the account is repaired.
	ErrStorageCorruption = errors.New("ledger corruption detected")
)

const accountCacheTTL = 5 * time.Minute

// LedgerService is the only authority for reading and mutating balances. All
// balance changes go through ApplyDelta; nothing else writes these tables.
type LedgerService struct {
	db    *sql.DB
	redis *redis.Client
	audit *audit.Logger
}

func NewLedgerService(db *sql.DB, redisClient *redis.Client) *LedgerService {
	return &LedgerService{
		db:    db,
		redis: redisClient,
		audit: audit.NewLogger(),
	}
}

// ApplyDelta applies one balance-changing event atomically and returns the
// resulting balance. Redelivery of an event whose idempotency key already
// committed is a no-op with outcome OutcomeDuplicate.
func (s *LedgerService) ApplyDelta(ctx context.Context, d models.Delta) (int64, Outcome, error) {
	if d.UserID == 0 {
		return 0, "", fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}

	// Fast path: a committed transaction with this key means the event was
	// already applied.
	if d.IdempotencyKey != "" {
		balance, found, err := s.committedBalance(ctx, d.UserID, d.IdempotencyKey)
		if err != nil {
			return 0, "", err
		}
		if found {
			s.audit.LogDuplicate(d.UserID, d.IdempotencyKey)
			return balance, OutcomeDuplicate, nil
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	// Upsert the profile, last write wins; empty strings (e.g. from an admin
	// adjustment) keep the previous values. The balance only moves through
	// the transaction append below.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (user_id, display_name, username, balance)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), accounts.display_name),
			username = COALESCE(NULLIF(EXCLUDED.username, ''), accounts.username),
			updated_at = NOW()`,
		d.UserID, d.DisplayName, d.Username)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	// The row lock serializes concurrent deltas for the same user; deltas for
	// different users never contend on it.
	var balance int64
	var frozen bool
	err = tx.QueryRowContext(ctx, `
		SELECT balance, frozen FROM accounts
		WHERE user_id = $1
		FOR UPDATE`, d.UserID).Scan(&balance, &frozen)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if frozen {
		return 0, "", fmt.Errorf("%w: account %d is frozen", ErrStorageCorruption, d.UserID)
	}

	// Re-check under the lock: the same key may have committed between the
	// fast path and here.
	if d.IdempotencyKey != "" {
		var exists bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM transactions
				WHERE user_id = $1 AND idempotency_key = $2 AND status = 'committed'
			)`, d.UserID, d.IdempotencyKey).Scan(&exists)
		if err != nil {
			return 0, "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if exists {
			s.audit.LogDuplicate(d.UserID, d.IdempotencyKey)
			return balance, OutcomeDuplicate, nil
		}
	}

	key := sql.NullString{String: d.IdempotencyKey, Valid: d.IdempotencyKey != ""}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (user_id, amount, description, idempotency_key, status)
		VALUES ($1, $2, $3, $4, 'committed')`,
		d.UserID, d.Amount, d.Description, key)
	if err != nil {
		if isUniqueViolation(err) {
			// Another process committed the same event first. Report it as
			// the duplicate it is.
			s.audit.LogDuplicate(d.UserID, d.IdempotencyKey)
			return balance, OutcomeDuplicate, nil
		}
		return 0, "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	var newBalance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE accounts SET balance = balance + $1, updated_at = NOW()
		WHERE user_id = $2
		RETURNING balance`, d.Amount, d.UserID).Scan(&newBalance)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.invalidateAccountCache(ctx, d.UserID)
	s.audit.LogApply(d.UserID, d.Amount, newBalance, d.Description)
	return newBalance, OutcomeApplied, nil
}

// GetAccount returns a read-only snapshot of the account. Callers rendering a
// balance should treat ErrAccountNotFound as balance zero.
func (s *LedgerService) GetAccount(ctx context.Context, userID int64) (*models.Account, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}

	if acct, ok := s.cachedAccount(ctx, userID); ok {
		return acct, nil
	}

	var acct models.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, display_name, username, balance, frozen, created_at, updated_at
		FROM accounts
		WHERE user_id = $1`, userID).
		Scan(&acct.UserID, &acct.DisplayName, &acct.Username, &acct.Balance,
			&acct.Frozen, &acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.cacheAccount(ctx, &acct)
	return &acct, nil
}

// ListTransactions returns the committed history for a user, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, description, COALESCE(idempotency_key, ''), status, created_at
		FROM transactions
		WHERE user_id = $1 AND status = 'committed'
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Description,
			&t.IdempotencyKey, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return txs, nil
}

// VerifyConservation recomputes the committed sum for the account and compares
// it against the stored balance. On mismatch the account is frozen so further
// deltas fail loudly instead of compounding a wrong balance.
func (s *LedgerService) VerifyConservation(ctx context.Context, userID int64) error {
	if userID == 0 {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `
		SELECT balance FROM accounts
		WHERE user_id = $1
		FOR UPDATE`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	var committedSum int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE user_id = $1 AND status = 'committed'`, userID).Scan(&committedSum)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if committedSum != balance {
		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts SET frozen = TRUE, updated_at = NOW()
			WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		s.invalidateAccountCache(ctx, userID)
		s.audit.LogCorruption(userID, balance, committedSum)
		return fmt.Errorf("%w: account %d balance %d != committed sum %d",
			ErrStorageCorruption, userID, balance, committedSum)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *LedgerService) committedBalance(ctx context.Context, userID int64, key string) (int64, bool, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT a.balance
		FROM accounts a
		JOIN transactions t ON t.user_id = a.user_id
		WHERE t.user_id = $1 AND t.idempotency_key = $2 AND t.status = 'committed'`,
		userID, key).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return balance, true, nil
}

func accountCacheKey(userID int64) string {
	return fmt.Sprintf("account:%d", userID)
}

func (s *LedgerService) cachedAccount(ctx context.Context, userID int64) (*models.Account, bool) {
	if s.redis == nil {
		return nil, false
	}
	data, err := s.redis.Get(ctx, accountCacheKey(userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var acct models.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, false
	}
	return &acct, true
}

func (s *LedgerService) cacheAccount(ctx context.Context, acct *models.Account) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(acct)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, accountCacheKey(acct.UserID), data, accountCacheTTL).Err(); err != nil {
		log.Printf("[LEDGER] Failed to cache account %d: %v", acct.UserID, err)
	}
}

func (s *LedgerService) invalidateAccountCache(ctx context.Context, userID int64) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, accountCacheKey(userID)).Err(); err != nil {
		log.Printf("[LEDGER] Failed to invalidate account cache %d: %v", userID, err)
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
