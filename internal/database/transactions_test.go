package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/shopspring/decimal"
)

func TestCreateTransaction_DuplicateHash(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	params := store.CreateTransactionParams{
		Type:   models.TransactionWithdrawal,
		State:  models.TransactionPending,
		Amount: decimal.NewFromFloat(-0.5),
		Hash:   "0xabc123def456",
		UserId: "user1",
	}

	if _, err := service.CreateTransaction(ctx, params); err != nil {
		t.Fatalf("First CreateTransaction failed: %v", err)
	}

	_, err := service.CreateTransaction(ctx, params)
	if !errors.Is(err, store.ErrDuplicateHash) {
		t.Errorf("Expected ErrDuplicateHash, got: %v", err)
	}
}

func TestCreateTransaction_EmptyHashNotUnique(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	// Fee rows carry no hash of their own; several of them must coexist.
	for i := 0; i < 2; i++ {
		_, err := service.CreateTransaction(ctx, store.CreateTransactionParams{
			Type:         models.TransactionFee,
			State:        models.TransactionCompleted,
			Amount:       decimal.NewFromFloat(-0.001),
			UserId:       "user1",
			PreReviewed:  true,
			PreConfirmed: true,
		})
		if err != nil {
			t.Fatalf("CreateTransaction %d with empty hash failed: %v", i, err)
		}
	}
}

func TestCreateTransaction_PreConfirmed(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	tx, err := service.CreateTransaction(context.Background(), store.CreateTransactionParams{
		Type:         models.TransactionFee,
		State:        models.TransactionCompleted,
		Amount:       decimal.NewFromFloat(-0.01),
		UserId:       "user1",
		PreReviewed:  true,
		PreConfirmed: true,
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	if !tx.Confirmed() {
		t.Errorf("Expected pre-confirmed transaction to carry a confirmedDate")
	}
	if !tx.Reviewed() {
		t.Errorf("Expected pre-reviewed transaction to carry a reviewedDate")
	}
	if tx.FailedReview {
		t.Errorf("Expected pre-reviewed transaction to pass review")
	}
}

func TestListPendingTransactions_OnlyHashedPendingRows(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	pending, err := service.CreateTransaction(ctx, store.CreateTransactionParams{
		Type:   models.TransactionWithdrawal,
		State:  models.TransactionPending,
		Amount: decimal.NewFromInt(-1),
		Hash:   "0xpending111111",
		UserId: "user1",
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	// A fee row without a hash must never be polled.
	_, err = service.CreateTransaction(ctx, store.CreateTransactionParams{
		Type:         models.TransactionFee,
		State:        models.TransactionCompleted,
		Amount:       decimal.NewFromFloat(-0.01),
		UserId:       "user1",
		PreConfirmed: true,
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	confirmed, err := service.CreateTransaction(ctx, store.CreateTransactionParams{
		Type:   models.TransactionStaking,
		State:  models.TransactionPending,
		Amount: decimal.NewFromInt(2),
		Hash:   "0xconfirmed2222",
		UserId: "user1",
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	if err := service.ConfirmTransaction(ctx, confirmed.Id, models.TransactionCompleted, time.Now()); err != nil {
		t.Fatalf("ConfirmTransaction failed: %v", err)
	}

	rows, err := service.ListPendingTransactions(ctx)
	if err != nil {
		t.Fatalf("ListPendingTransactions failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 pending transaction, got %d", len(rows))
	}
	if rows[0].Id != pending.Id {
		t.Errorf("Expected pending transaction %s, got %s", pending.Id, rows[0].Id)
	}
}

func TestConfirmTransaction_WritesOnce(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	tx, err := service.CreateTransaction(ctx, store.CreateTransactionParams{
		Type:   models.TransactionReward,
		State:  models.TransactionPending,
		Amount: decimal.NewFromInt(3),
		Hash:   "0xreward3333333",
		UserId: "user1",
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	first := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := service.ConfirmTransaction(ctx, tx.Id, models.TransactionCompleted, first); err != nil {
		t.Fatalf("ConfirmTransaction failed: %v", err)
	}

	// A second verdict must not overwrite the first.
	if err := service.ConfirmTransaction(ctx, tx.Id, models.TransactionFailed, first.Add(time.Hour)); err != nil {
		t.Fatalf("Second ConfirmTransaction failed: %v", err)
	}

	stored, err := service.GetTransactionByHash(ctx, tx.Hash)
	if err != nil {
		t.Fatalf("GetTransactionByHash failed: %v", err)
	}
	if stored.State != models.TransactionCompleted {
		t.Errorf("Expected state COMPLETED after re-confirm, got %s", stored.State)
	}
	if stored.ConfirmedDate == nil || !stored.ConfirmedDate.Equal(first) {
		t.Errorf("Expected confirmedDate %v, got %v", first, stored.ConfirmedDate)
	}
}

func TestGetTransactionByHash_MissingReturnsNil(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	tx, err := service.GetTransactionByHash(context.Background(), "0xmissing000000")
	if err != nil {
		t.Fatalf("GetTransactionByHash failed: %v", err)
	}
	if tx != nil {
		t.Errorf("Expected nil for unknown hash, got %+v", tx)
	}
}

func TestReviewTransaction(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	tx, err := service.CreateTransaction(ctx, store.CreateTransactionParams{
		Type:   models.TransactionDeposit,
		State:  models.TransactionPending,
		Amount: decimal.NewFromInt(5),
		Hash:   "0xdeposit444444",
		UserId: "user1",
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	if tx.Reviewed() {
		t.Fatalf("Expected new transaction to be unreviewed")
	}

	if err := service.ReviewTransaction(ctx, tx.Id, false, time.Now()); err != nil {
		t.Fatalf("ReviewTransaction failed: %v", err)
	}

	stored, err := service.GetTransactionByHash(ctx, tx.Hash)
	if err != nil {
		t.Fatalf("GetTransactionByHash failed: %v", err)
	}
	if !stored.Reviewed() {
		t.Errorf("Expected reviewedDate to be set")
	}
	if !stored.FailedReview {
		t.Errorf("Expected failedReview for a rejected review")
	}
}
