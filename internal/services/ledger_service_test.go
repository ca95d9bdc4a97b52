package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/coinearn/backend/internal/models"
)

func expectApply(mock sqlmock.Sqlmock, userID int64, name, username string, amount int64, desc, key string, balanceBefore, balanceAfter int64) {
	if key != "" {
		mock.ExpectQuery("SELECT a.balance").
			WithArgs(userID, key).
			WillReturnError(sql.ErrNoRows)
	}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(userID, name, username).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT balance, frozen FROM accounts").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"balance", "frozen"}).AddRow(balanceBefore, false))
	if key != "" {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(userID, key).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	}
	keyArg := driver.Value(key)
	if key == "" {
		keyArg = nil
	}
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(userID, amount, desc, keyArg).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("UPDATE accounts SET balance").
		WithArgs(amount, userID).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(balanceAfter))
	mock.ExpectCommit()
}

func TestLedgerService_ApplyDelta(t *testing.T) {
	ctx := context.Background()

	t.Run("registration then offer then redelivery then second offer", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewLedgerService(db, nil)

		// Zero-touch registration on a never-seen user.
		expectApply(mock, 1, "Ann", "ann", 0, "registration", "", 0, 0)
		balance, outcome, err := service.ApplyDelta(ctx, models.Delta{
			UserID: 1, DisplayName: "Ann", Username: "ann",
			Amount: 0, Description: "registration",
		})
		assert.NoError(t, err)
		assert.Equal(t, OutcomeApplied, outcome)
		assert.Equal(t, int64(0), balance)

		// Offer 777 pays 50.
		expectApply(mock, 1, "Ann", "ann", 50, "offer:777", "offer:777", 0, 50)
		balance, outcome, err = service.ApplyDelta(ctx, models.Delta{
			UserID: 1, DisplayName: "Ann", Username: "ann",
			Amount: 50, Description: "offer:777", IdempotencyKey: "offer:777",
		})
		assert.NoError(t, err)
		assert.Equal(t, OutcomeApplied, outcome)
		assert.Equal(t, int64(50), balance)

		// Redelivery of offer 777 is recognized on the fast path, no mutation.
		mock.ExpectQuery("SELECT a.balance").
			WithArgs(int64(1), "offer:777").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(50))
		balance, outcome, err = service.ApplyDelta(ctx, models.Delta{
			UserID: 1, DisplayName: "Ann", Username: "ann",
			Amount: 50, Description: "offer:777", IdempotencyKey: "offer:777",
		})
		assert.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, outcome)
		assert.Equal(t, int64(50), balance)

		// A different offer accumulates.
		expectApply(mock, 1, "Ann", "ann", 20, "offer:778", "offer:778", 50, 70)
		balance, outcome, err = service.ApplyDelta(ctx, models.Delta{
			UserID: 1, DisplayName: "Ann", Username: "ann",
			Amount: 20, Description: "offer:778", IdempotencyKey: "offer:778",
		})
		assert.NoError(t, err)
		assert.Equal(t, OutcomeApplied, outcome)
		assert.Equal(t, int64(70), balance)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user id fails before storage", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewLedgerService(db, nil)

		_, _, err = service.ApplyDelta(ctx, models.Delta{Amount: 10})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delta without key always applies", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewLedgerService(db, nil)

		expectApply(mock, 2, "Bob", "bob", 5, "bonus", "", 10, 15)
		balance, outcome, err := service.ApplyDelta(ctx, models.Delta{
			UserID: 2, DisplayName: "Bob", Username: "bob",
			Amount: 5, Description: "bonus",
		})
		assert.NoError(t, err)
		assert.Equal(t, OutcomeApplied, outcome)
		assert.Equal(t, int64(15), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("repeated registration refreshes the profile", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewLedgerService(db, nil)

		expectApply(mock, 4, "Ann", "ann", 0, "registration", "", 0, 0)
		_, _, err = service.ApplyDelta(ctx, models.Delta{
			UserID: 4, DisplayName: "Ann", Username: "ann",
			Amount: 0, Description: "registration",
		})
		assert.NoError(t, err)

		// The user renames themselves and contacts the bot again. The new
		// name must reach the accounts upsert; a keyless touch never
		// short-circuits before it.
		expectApply(mock, 4, "Ann Renamed", "ann", 0, "registration", "", 0, 0)
		_, outcome, err := service.ApplyDelta(ctx, models.Delta{
			UserID: 4, DisplayName: "Ann Renamed", Username: "ann",
			Amount: 0, Description: "registration",
		})
		assert.NoError(t, err)
		assert.Equal(t, OutcomeApplied, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("frozen account rejects mutation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewLedgerService(db, nil)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(int64(3), "Cat", "cat").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT balance, frozen FROM accounts").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"balance", "frozen"}).AddRow(100, true))
		mock.ExpectRollback()

		_, _, err = service.ApplyDelta(ctx, models.Delta{
			UserID: 3, DisplayName: "Cat", Username: "cat", Amount: 10, Description: "bonus",
		})
		assert.ErrorIs(t, err, ErrStorageCorruption)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent commit of the same key surfaces as duplicate", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewLedgerService(db, nil)

		// Another process commits the same event between the fast path and
		// our insert; the unique index reports it.
		mock.ExpectQuery("SELECT a.balance").
			WithArgs(int64(1), "offer:777").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(int64(1), "Ann", "ann").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT balance, frozen FROM accounts").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"balance", "frozen"}).AddRow(50, false))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int64(1), "offer:777").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec("INSERT INTO transactions").
			WithArgs(int64(1), int64(50), "offer:777", "offer:777").
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		balance, outcome, err := service.ApplyDelta(ctx, models.Delta{
			UserID: 1, DisplayName: "Ann", Username: "ann",
			Amount: 50, Description: "offer:777", IdempotencyKey: "offer:777",
		})
		assert.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, outcome)
		assert.Equal(t, int64(50), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure is retryable storage error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewLedgerService(db, nil)

		mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

		_, _, err = service.ApplyDelta(ctx, models.Delta{
			UserID: 1, Amount: 10, Description: "bonus",
		})
		assert.ErrorIs(t, err, ErrStorageUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_GetAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("existing account", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewLedgerService(db, nil)

		now := time.Now()
		mock.ExpectQuery("SELECT user_id, display_name, username, balance, frozen, created_at, updated_at FROM accounts").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "display_name", "username", "balance", "frozen", "created_at", "updated_at"}).
				AddRow(1, "Ann", "ann", 70, false, now, now))

		acct, err := service.GetAccount(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), acct.UserID)
		assert.Equal(t, int64(70), acct.Balance)
		assert.Equal(t, "Ann", acct.DisplayName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewLedgerService(db, nil)

		mock.ExpectQuery("SELECT user_id, display_name, username, balance, frozen, created_at, updated_at FROM accounts").
			WithArgs(int64(999)).
			WillReturnError(sql.ErrNoRows)

		_, err = service.GetAccount(ctx, 999)
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cache hit skips the database", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewLedgerService(db, redisClient)

		cached, _ := json.Marshal(models.Account{UserID: 1, DisplayName: "Ann", Username: "ann", Balance: 70})
		redisMock.ExpectGet("account:1").SetVal(string(cached))

		acct, err := service.GetAccount(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, int64(70), acct.Balance)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func TestLedgerService_ListTransactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db, nil)

	now := time.Now()
	mock.ExpectQuery("SELECT id, user_id, amount, description").
		WithArgs(int64(1), 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "description", "idempotency_key", "status", "created_at"}).
			AddRow(2, 1, 50, "offer:777", "offer:777", "committed", now).
			AddRow(1, 1, 0, "registration", "registration", "committed", now.Add(-time.Minute)))

	txs, err := service.ListTransactions(context.Background(), 1, 0)
	assert.NoError(t, err)
	assert.Len(t, txs, 2)
	assert.Equal(t, int64(50), txs[0].Amount)
	assert.Equal(t, "registration", txs[1].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerService_VerifyConservation(t *testing.T) {
	ctx := context.Background()

	t.Run("balance matches committed sum", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewLedgerService(db, nil)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance FROM accounts").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(70))
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(70))
		mock.ExpectCommit()

		assert.NoError(t, service.VerifyConservation(ctx, 1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mismatch freezes the account", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewLedgerService(db, nil)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance FROM accounts").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(70))
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(50))
		mock.ExpectExec("UPDATE accounts SET frozen").
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = service.VerifyConservation(ctx, 1)
		assert.ErrorIs(t, err, ErrStorageCorruption)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewLedgerService(db, nil)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance FROM accounts").
			WithArgs(int64(999)).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err = service.VerifyConservation(ctx, 999)
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
