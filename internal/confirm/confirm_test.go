package confirm

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"crypto-reward-engine/internal/chain"
	"crypto-reward-engine/internal/database"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupPoller(t *testing.T) (*Poller, store.LedgerStore, *chain.Simulated, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	service := database.NewServiceWithDB(db)
	if err := service.InitSchema(); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	ctx := context.Background()
	currency := models.CryptoCurrency{
		Id: "btc", Symbol: "BTC", Name: "Bitcoin",
		Infrastructure: "evm", Network: "testnet", TestNet: true,
		ReferenceRate: decimal.NewFromInt(2), Active: true,
	}
	if err := service.UpsertCryptoCurrency(ctx, currency); err != nil {
		t.Fatalf("Failed to upsert currency: %v", err)
	}

	sim := chain.NewSimulated(true)
	registry := chain.NewRegistry()
	registry.Register("evm", "testnet", sim)

	poller := NewPoller(service, registry, 50*time.Millisecond)

	cleanup := func() {
		db.Close()
	}
	return poller, service, sim, cleanup
}

func broadcast(t *testing.T, sim *chain.Simulated, amount string) string {
	t.Helper()
	hash, err := sim.SendTransaction(context.Background(), chain.SendParams{
		FromAddress: "from-address-1",
		ToAddress:   "to-address-1",
		Amount:      decimal.RequireFromString(amount),
	})
	if err != nil {
		t.Fatalf("SendTransaction failed: %v", err)
	}
	return hash
}

func createPending(t *testing.T, ledger store.LedgerStore, hash string) *models.Transaction {
	t.Helper()
	tx, err := ledger.CreateTransaction(context.Background(), store.CreateTransactionParams{
		Type:             models.TransactionWithdrawal,
		State:            models.TransactionPending,
		Amount:           decimal.NewFromInt(-1),
		Hash:             hash,
		CryptoCurrencyId: "btc",
		UserId:           "user1",
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	return tx
}

func TestRunOnce_ConfirmsCompletedTransfer(t *testing.T) {
	poller, ledger, sim, cleanup := setupPoller(t)
	defer cleanup()

	ctx := context.Background()
	hash := broadcast(t, sim, "1")
	createPending(t, ledger, hash)

	// First poll observes the transfer still pending on chain.
	if err := poller.RunOnce(ctx); err != nil {
		t.Fatalf("First RunOnce failed: %v", err)
	}
	tx, err := ledger.GetTransactionByHash(ctx, hash)
	if err != nil {
		t.Fatalf("GetTransactionByHash failed: %v", err)
	}
	if tx.Confirmed() {
		t.Fatalf("Expected transfer to stay pending after first poll")
	}

	// Second poll sees the chain verdict.
	if err := poller.RunOnce(ctx); err != nil {
		t.Fatalf("Second RunOnce failed: %v", err)
	}
	tx, err = ledger.GetTransactionByHash(ctx, hash)
	if err != nil {
		t.Fatalf("GetTransactionByHash failed: %v", err)
	}
	if !tx.Confirmed() {
		t.Fatalf("Expected transfer to be confirmed after second poll")
	}
	if tx.State != models.TransactionCompleted {
		t.Errorf("Expected state COMPLETED, got %s", tx.State)
	}
}

func TestRunOnce_MarksUnknownHashFailed(t *testing.T) {
	poller, ledger, _, cleanup := setupPoller(t)
	defer cleanup()

	ctx := context.Background()
	createPending(t, ledger, "0xneverbroadcast")

	if err := poller.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	tx, err := ledger.GetTransactionByHash(ctx, "0xneverbroadcast")
	if err != nil {
		t.Fatalf("GetTransactionByHash failed: %v", err)
	}
	if !tx.Confirmed() {
		t.Fatalf("Expected unknown transfer to reach a verdict")
	}
	if tx.State != models.TransactionFailed {
		t.Errorf("Expected state FAILED, got %s", tx.State)
	}
}

func TestRunOnce_SkipsHashlessRows(t *testing.T) {
	poller, ledger, _, cleanup := setupPoller(t)
	defer cleanup()

	ctx := context.Background()
	// A fee row recorded confirmed at creation never enters the poll set.
	fee, err := ledger.CreateTransaction(ctx, store.CreateTransactionParams{
		Type:             models.TransactionFee,
		State:            models.TransactionCompleted,
		Amount:           decimal.RequireFromString("-0.01"),
		CryptoCurrencyId: "btc",
		UserId:           "user1",
		PreReviewed:      true,
		PreConfirmed:     true,
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	if err := poller.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	transactions, err := ledger.ListPendingTransactions(ctx)
	if err != nil {
		t.Fatalf("ListPendingTransactions failed: %v", err)
	}
	if len(transactions) != 0 {
		t.Errorf("Expected no pollable transactions, got %d", len(transactions))
	}
	if fee.State != models.TransactionCompleted {
		t.Errorf("Expected fee row to stay completed, got %s", fee.State)
	}
}

func TestPoller_StartStop(t *testing.T) {
	poller, ledger, sim, cleanup := setupPoller(t)
	defer cleanup()

	ctx := context.Background()
	hash := broadcast(t, sim, "1")
	createPending(t, ledger, hash)

	poller.Start(ctx)
	// Give the loop time for the immediate run plus at least one tick.
	time.Sleep(150 * time.Millisecond)
	poller.Stop()

	tx, err := ledger.GetTransactionByHash(ctx, hash)
	if err != nil {
		t.Fatalf("GetTransactionByHash failed: %v", err)
	}
	if !tx.Confirmed() {
		t.Errorf("Expected running poller to confirm the transfer")
	}
}
