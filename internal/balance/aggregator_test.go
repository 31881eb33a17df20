package balance

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"crypto-reward-engine/internal/database"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupAggregator(t *testing.T) (*Aggregator, store.LedgerStore, *models.WalletAddress, func()) {
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
	user, err := service.CreateUser(ctx, "Test User", "test@example.com", "ACC-1")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	wallet, err := service.CreateWalletAddress(ctx, store.CreateWalletParams{
		UserId:           user.Id,
		CryptoCurrencyId: "btc",
		Address:          "wallet-address-1",
		Purpose:          models.PurposeUser,
	})
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}

	cleanup := func() {
		db.Close()
	}
	return NewAggregator(service), service, wallet, cleanup
}

type txSeed struct {
	txType    models.TransactionType
	amount    string
	hash      string
	confirmed bool
	reviewed  bool
	passed    bool
}

func seedTransaction(t *testing.T, ledger store.LedgerStore, wallet *models.WalletAddress, seed txSeed) *models.Transaction {
	t.Helper()
	ctx := context.Background()

	amount, err := decimal.NewFromString(seed.amount)
	if err != nil {
		t.Fatalf("Invalid seed amount %s: %v", seed.amount, err)
	}
	tx, err := ledger.CreateTransaction(ctx, store.CreateTransactionParams{
		Type:            seed.txType,
		State:           models.TransactionPending,
		Amount:          amount,
		Hash:            seed.hash,
		WalletAddressId: wallet.Id,
		UserId:          wallet.UserId,
	})
	if err != nil {
		t.Fatalf("Failed to seed transaction: %v", err)
	}
	if seed.confirmed {
		if err := ledger.ConfirmTransaction(ctx, tx.Id, models.TransactionCompleted, time.Now()); err != nil {
			t.Fatalf("Failed to confirm seed transaction: %v", err)
		}
	}
	if seed.reviewed {
		if err := ledger.ReviewTransaction(ctx, tx.Id, seed.passed, time.Now()); err != nil {
			t.Fatalf("Failed to review seed transaction: %v", err)
		}
	}
	return tx
}

func TestCompute_SpendableRequiresConfirmationAndReview(t *testing.T) {
	aggregator, ledger, wallet, cleanup := setupAggregator(t)
	defer cleanup()

	seedTransaction(t, ledger, wallet, txSeed{models.TransactionDeposit, "10", "0xdep1aaaaaaaa", true, true, true})
	seedTransaction(t, ledger, wallet, txSeed{models.TransactionDeposit, "5", "0xdep2bbbbbbbb", false, true, true})
	seedTransaction(t, ledger, wallet, txSeed{models.TransactionDeposit, "3", "0xdep3cccccccc", true, false, false})

	bal, err := aggregator.Compute(context.Background(), wallet)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if !bal.SpendableBalance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected spendable 10, got %s", bal.SpendableBalance.String())
	}
	if !bal.ConfirmedBalance.Equal(decimal.NewFromInt(13)) {
		t.Errorf("Expected confirmed 13, got %s", bal.ConfirmedBalance.String())
	}
	if !bal.UnconfirmedBalance.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected unconfirmed 5, got %s", bal.UnconfirmedBalance.String())
	}
	if !bal.UnreviewedBalance.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Expected unreviewed 3, got %s", bal.UnreviewedBalance.String())
	}
}

func TestCompute_FailedReviewExcludedFromSpendable(t *testing.T) {
	aggregator, ledger, wallet, cleanup := setupAggregator(t)
	defer cleanup()

	seedTransaction(t, ledger, wallet, txSeed{models.TransactionDeposit, "10", "0xdep1aaaaaaaa", true, true, true})
	seedTransaction(t, ledger, wallet, txSeed{models.TransactionDeposit, "4", "0xdep2bbbbbbbb", true, true, false})

	bal, err := aggregator.Compute(context.Background(), wallet)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if !bal.SpendableBalance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected spendable 10, got %s", bal.SpendableBalance.String())
	}
	if !bal.UnsuccessfullyReviewedBalance.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Expected unsuccessfully reviewed 4, got %s", bal.UnsuccessfullyReviewedBalance.String())
	}
}

func TestCompute_StakingFlipsSignInSpendable(t *testing.T) {
	aggregator, ledger, wallet, cleanup := setupAggregator(t)
	defer cleanup()

	seedTransaction(t, ledger, wallet, txSeed{models.TransactionDeposit, "10", "0xdep1aaaaaaaa", true, true, true})
	// A settled stake of 3: debits spendable, credits the staked pool.
	seedTransaction(t, ledger, wallet, txSeed{models.TransactionStaking, "3", "0xstk1dddddddd", true, true, true})
	// The fee the stake cost.
	seedTransaction(t, ledger, wallet, txSeed{models.TransactionFee, "-0.5", "0xfee1eeeeeeee", true, true, true})

	bal, err := aggregator.Compute(context.Background(), wallet)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if !bal.SpendableBalance.Equal(decimal.RequireFromString("6.5")) {
		t.Errorf("Expected spendable 6.5, got %s", bal.SpendableBalance.String())
	}
	if !bal.SpendableStakedBalance.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Expected staked 3, got %s", bal.SpendableStakedBalance.String())
	}
}

func TestCompute_StakingWithdrawalRestoresSpendable(t *testing.T) {
	aggregator, ledger, wallet, cleanup := setupAggregator(t)
	defer cleanup()

	seedTransaction(t, ledger, wallet, txSeed{models.TransactionDeposit, "10", "0xdep1aaaaaaaa", true, true, true})
	seedTransaction(t, ledger, wallet, txSeed{models.TransactionStaking, "3", "0xstk1dddddddd", true, true, true})
	// Unstake 2: negative staking amount credits spendable, debits the pool.
	seedTransaction(t, ledger, wallet, txSeed{models.TransactionStaking, "-2", "0xstk2ffffffff", true, true, true})

	bal, err := aggregator.Compute(context.Background(), wallet)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if !bal.SpendableBalance.Equal(decimal.NewFromInt(9)) {
		t.Errorf("Expected spendable 9, got %s", bal.SpendableBalance.String())
	}
	if !bal.SpendableStakedBalance.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected staked 1, got %s", bal.SpendableStakedBalance.String())
	}
}

func TestCompute_OutstandingInstructions(t *testing.T) {
	aggregator, ledger, wallet, cleanup := setupAggregator(t)
	defer cleanup()

	ctx := context.Background()
	seedTransaction(t, ledger, wallet, txSeed{models.TransactionDeposit, "10", "0xdep1aaaaaaaa", true, true, true})

	// An open withdrawal of 4 (stored negative).
	_, err := ledger.CreateInstruction(ctx, store.CreateInstructionParams{
		Type:            models.InstructionWithdrawal,
		Amount:          decimal.NewFromInt(-4),
		UserId:          wallet.UserId,
		WalletAddressId: wallet.Id,
	})
	if err != nil {
		t.Fatalf("Failed to create withdrawal instruction: %v", err)
	}
	// An open stake of 2 (stored positive, reserves spendable funds).
	_, err = ledger.CreateInstruction(ctx, store.CreateInstructionParams{
		Type:            models.InstructionStakingDeposit,
		Amount:          decimal.NewFromInt(2),
		UserId:          wallet.UserId,
		WalletAddressId: wallet.Id,
	})
	if err != nil {
		t.Fatalf("Failed to create staking instruction: %v", err)
	}

	bal, err := aggregator.Compute(ctx, wallet)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if !bal.OutstandingInstructionBalance.Equal(decimal.NewFromInt(-6)) {
		t.Errorf("Expected outstanding -6, got %s", bal.OutstandingInstructionBalance.String())
	}
	if !bal.OutstandingInstructionStakedBalance.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected outstanding staked 2, got %s", bal.OutstandingInstructionStakedBalance.String())
	}
}

func TestComputeExcluding_SkipsHeldInstruction(t *testing.T) {
	aggregator, ledger, wallet, cleanup := setupAggregator(t)
	defer cleanup()

	ctx := context.Background()
	seedTransaction(t, ledger, wallet, txSeed{models.TransactionDeposit, "10", "0xdep1aaaaaaaa", true, true, true})

	held, err := ledger.CreateInstruction(ctx, store.CreateInstructionParams{
		Type:            models.InstructionWithdrawal,
		Amount:          decimal.NewFromInt(-4),
		UserId:          wallet.UserId,
		WalletAddressId: wallet.Id,
	})
	if err != nil {
		t.Fatalf("Failed to create instruction: %v", err)
	}

	bal, err := aggregator.ComputeExcluding(ctx, wallet, held.Id)
	if err != nil {
		t.Fatalf("ComputeExcluding failed: %v", err)
	}
	if !bal.OutstandingInstructionBalance.IsZero() {
		t.Errorf("Expected held instruction to be excluded, got outstanding %s",
			bal.OutstandingInstructionBalance.String())
	}
}

func TestAuthorizeWithdrawal_Boundary(t *testing.T) {
	bal := &models.WalletAddressBalance{
		SpendableBalance:              decimal.NewFromInt(10),
		OutstandingInstructionBalance: decimal.NewFromInt(-4),
	}

	// Available is exactly 6; a request of 5.9 + 0.1 fits.
	if err := AuthorizeWithdrawal(bal, decimal.RequireFromString("5.9"), decimal.RequireFromString("0.1")); err != nil {
		t.Errorf("Expected exact-fit withdrawal to pass, got: %v", err)
	}
	err := AuthorizeWithdrawal(bal, decimal.NewFromInt(6), decimal.RequireFromString("0.1"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got: %v", err)
	}
}

func TestAuthorizeStakeWithdrawal_Boundary(t *testing.T) {
	bal := &models.WalletAddressBalance{
		SpendableStakedBalance:              decimal.NewFromInt(5),
		OutstandingInstructionStakedBalance: decimal.NewFromInt(-2),
	}

	if err := AuthorizeStakeWithdrawal(bal, decimal.NewFromInt(3)); err != nil {
		t.Errorf("Expected exact-fit unstake to pass, got: %v", err)
	}
	err := AuthorizeStakeWithdrawal(bal, decimal.RequireFromString("3.1"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got: %v", err)
	}
}
