package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// A single connection keeps the in-memory database shared between
	// concurrent test goroutines.
	db.SetMaxOpenConns(1)

	service := NewServiceWithDB(db)
	if err := service.InitSchema(); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func createTestInstruction(t *testing.T, service *Service, instructionType models.InstructionType, amount string) *models.Instruction {
	t.Helper()
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatalf("Invalid test amount %s: %v", amount, err)
	}
	instr, err := service.CreateInstruction(context.Background(), store.CreateInstructionParams{
		Type:   instructionType,
		Amount: parsed,
		UserId: "user1",
	})
	if err != nil {
		t.Fatalf("Failed to create instruction: %v", err)
	}
	return instr
}

func TestPickupInstruction_ClaimsOnce(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	instr := createTestInstruction(t, service, models.InstructionWithdrawal, "-1.5")

	picked, err := service.PickupInstruction(ctx, instr.Id, time.Now())
	if err != nil {
		t.Fatalf("First pickup failed: %v", err)
	}
	if picked.PickedUpDate == nil {
		t.Errorf("Expected pickedUpDate to be set after pickup")
	}

	_, err = service.PickupInstruction(ctx, instr.Id, time.Now())
	if !errors.Is(err, store.ErrNotEligible) {
		t.Errorf("Expected ErrNotEligible on second pickup, got: %v", err)
	}
}

func TestPickupInstruction_NotFound(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	_, err := service.PickupInstruction(context.Background(), "missing", time.Now())
	if !errors.Is(err, store.ErrInstructionNotFound) {
		t.Errorf("Expected ErrInstructionNotFound, got: %v", err)
	}
}

func TestPickupInstruction_ConcurrentSingleWinner(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	instr := createTestInstruction(t, service, models.InstructionWithdrawal, "-1")

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.PickupInstruction(ctx, instr.Id, time.Now())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
			continue
		}
		if !errors.Is(err, store.ErrNotEligible) {
			t.Errorf("Expected ErrNotEligible for losing pickup, got: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("Expected exactly 1 winning pickup, got %d", winners)
	}
}

func TestCompleteInstruction_RequiresPickup(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	instr := createTestInstruction(t, service, models.InstructionStakingDeposit, "2")

	_, err := service.CompleteInstruction(ctx, instr.Id, time.Now())
	if !errors.Is(err, store.ErrNotPickedUp) {
		t.Errorf("Expected ErrNotPickedUp, got: %v", err)
	}
}

func TestFailInstruction_IsTerminal(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	instr := createTestInstruction(t, service, models.InstructionWithdrawal, "-1")

	if _, err := service.PickupInstruction(ctx, instr.Id, time.Now()); err != nil {
		t.Fatalf("Pickup failed: %v", err)
	}
	failed, err := service.FailInstruction(ctx, instr.Id, "Transaction has not generated", time.Now())
	if err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if failed.FailedDate == nil {
		t.Errorf("Expected failedDate to be set")
	}
	if failed.FailedReason != "Transaction has not generated" {
		t.Errorf("Expected failed reason to be recorded, got %q", failed.FailedReason)
	}

	if _, err := service.CompleteInstruction(ctx, instr.Id, time.Now()); !errors.Is(err, store.ErrInstructionTerminal) {
		t.Errorf("Expected ErrInstructionTerminal on complete after fail, got: %v", err)
	}
	if _, err := service.PutBackInstruction(ctx, instr.Id); !errors.Is(err, store.ErrInstructionTerminal) {
		t.Errorf("Expected ErrInstructionTerminal on put back after fail, got: %v", err)
	}
}

func TestPutBackInstruction_MakesEligibleAgain(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	instr := createTestInstruction(t, service, models.InstructionWithdrawal, "-1")

	if _, err := service.PickupInstruction(ctx, instr.Id, time.Now()); err != nil {
		t.Fatalf("Pickup failed: %v", err)
	}

	eligible, err := service.ListEligibleInstructions(ctx, models.InstructionWithdrawal)
	if err != nil {
		t.Fatalf("ListEligibleInstructions failed: %v", err)
	}
	if len(eligible) != 0 {
		t.Errorf("Expected no eligible instructions while picked up, got %d", len(eligible))
	}

	returned, err := service.PutBackInstruction(ctx, instr.Id)
	if err != nil {
		t.Fatalf("PutBack failed: %v", err)
	}
	if returned.PickedUpDate != nil {
		t.Errorf("Expected pickedUpDate cleared after put back")
	}

	eligible, err = service.ListEligibleInstructions(ctx, models.InstructionWithdrawal)
	if err != nil {
		t.Fatalf("ListEligibleInstructions failed: %v", err)
	}
	if len(eligible) != 1 {
		t.Fatalf("Expected 1 eligible instruction after put back, got %d", len(eligible))
	}

	if _, err := service.PickupInstruction(ctx, instr.Id, time.Now()); err != nil {
		t.Errorf("Expected pickup to succeed after put back, got: %v", err)
	}
}

func TestSetInstructionActive_ExcludesFromEligible(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	instr := createTestInstruction(t, service, models.InstructionStakingDeposit, "3")

	if err := service.SetInstructionActive(ctx, instr.Id, false); err != nil {
		t.Fatalf("SetInstructionActive failed: %v", err)
	}

	eligible, err := service.ListEligibleInstructions(ctx, models.InstructionStakingDeposit)
	if err != nil {
		t.Fatalf("ListEligibleInstructions failed: %v", err)
	}
	if len(eligible) != 0 {
		t.Errorf("Expected inactive instruction to be excluded, got %d eligible", len(eligible))
	}

	if _, err := service.PickupInstruction(ctx, instr.Id, time.Now()); !errors.Is(err, store.ErrNotEligible) {
		t.Errorf("Expected ErrNotEligible for inactive instruction, got: %v", err)
	}
}

func TestHasInstructionForPeriod(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	from := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	exists, err := service.HasInstructionForPeriod(ctx, "user1", models.InstructionMonthlyReward, from, to)
	if err != nil {
		t.Fatalf("HasInstructionForPeriod failed: %v", err)
	}
	if exists {
		t.Errorf("Expected no instruction for empty period")
	}

	_, err = service.CreateInstruction(ctx, store.CreateInstructionParams{
		Type:     models.InstructionMonthlyReward,
		Amount:   decimal.NewFromInt(100),
		UserId:   "user1",
		FromDate: from,
		ToDate:   to,
	})
	if err != nil {
		t.Fatalf("CreateInstruction failed: %v", err)
	}

	exists, err = service.HasInstructionForPeriod(ctx, "user1", models.InstructionMonthlyReward, from, to)
	if err != nil {
		t.Fatalf("HasInstructionForPeriod failed: %v", err)
	}
	if !exists {
		t.Errorf("Expected instruction to be found for its period")
	}

	// A different period for the same user is not blocked.
	exists, err = service.HasInstructionForPeriod(ctx, "user1", models.InstructionMonthlyReward,
		from.AddDate(0, -1, 0), from)
	if err != nil {
		t.Fatalf("HasInstructionForPeriod failed: %v", err)
	}
	if exists {
		t.Errorf("Expected previous period to be free")
	}
}

func TestListOpenInstructionsForUser_ExcludesTerminal(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	open := createTestInstruction(t, service, models.InstructionWithdrawal, "-1")
	completed := createTestInstruction(t, service, models.InstructionWithdrawal, "-2")
	failed := createTestInstruction(t, service, models.InstructionWithdrawal, "-3")

	if _, err := service.PickupInstruction(ctx, completed.Id, time.Now()); err != nil {
		t.Fatalf("Pickup failed: %v", err)
	}
	if _, err := service.CompleteInstruction(ctx, completed.Id, time.Now()); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if _, err := service.FailInstruction(ctx, failed.Id, "rejected", time.Now()); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	instructions, err := service.ListOpenInstructionsForUser(ctx, "user1")
	if err != nil {
		t.Fatalf("ListOpenInstructionsForUser failed: %v", err)
	}
	if len(instructions) != 1 {
		t.Fatalf("Expected 1 open instruction, got %d", len(instructions))
	}
	if instructions[0].Id != open.Id {
		t.Errorf("Expected the unsettled instruction, got %s", instructions[0].Id)
	}
}

func TestCompleteInstructionWithChildren(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	parent := createTestInstruction(t, service, models.InstructionMonthlyReward, "1000")

	if _, err := service.PickupInstruction(ctx, parent.Id, time.Now()); err != nil {
		t.Fatalf("Pickup failed: %v", err)
	}

	children := []store.CreateInstructionParams{
		{Type: models.InstructionRewardPayment, Amount: decimal.NewFromInt(600), UserId: "user1"},
		{Type: models.InstructionRewardPayment, Amount: decimal.NewFromInt(400), UserId: "user1"},
	}
	inserted, err := service.CompleteInstructionWithChildren(ctx, parent.Id, children, time.Now())
	if err != nil {
		t.Fatalf("CompleteInstructionWithChildren failed: %v", err)
	}
	if len(inserted) != 2 {
		t.Fatalf("Expected 2 children, got %d", len(inserted))
	}
	for _, child := range inserted {
		if child.ParentInstructionId != parent.Id {
			t.Errorf("Expected child parent id %s, got %s", parent.Id, child.ParentInstructionId)
		}
		if !child.Eligible() {
			t.Errorf("Expected child %s to be eligible", child.Id)
		}
	}

	updated, err := service.GetInstruction(ctx, parent.Id)
	if err != nil {
		t.Fatalf("GetInstruction failed: %v", err)
	}
	if updated.CompletedDate == nil {
		t.Errorf("Expected parent to be completed")
	}
}

func TestCompleteInstructionWithChildren_RequiresPickup(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	parent := createTestInstruction(t, service, models.InstructionMonthlyReward, "1000")

	children := []store.CreateInstructionParams{
		{Type: models.InstructionRewardPayment, Amount: decimal.NewFromInt(1000), UserId: "user1"},
	}
	_, err := service.CompleteInstructionWithChildren(ctx, parent.Id, children, time.Now())
	if !errors.Is(err, store.ErrNotPickedUp) {
		t.Fatalf("Expected ErrNotPickedUp, got: %v", err)
	}

	// The rejected batch must not leave children behind.
	orphans, err := service.ListInstructions(ctx, store.InstructionFilter{Type: models.InstructionRewardPayment})
	if err != nil {
		t.Fatalf("ListInstructions failed: %v", err)
	}
	if len(orphans) != 0 {
		t.Errorf("Expected no children after rejected batch, got %d", len(orphans))
	}
}
