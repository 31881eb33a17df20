package database

import (
	"context"
	"errors"
	"testing"

	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/shopspring/decimal"
)

func TestRewardBands_InsertListDeactivate(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	band, err := service.InsertRewardBand(ctx, store.CreateBandParams{
		Type:             models.BandSpend,
		BandFrom:         decimal.Zero,
		BandTo:           decimal.NewFromInt(500),
		UpTo:             decimal.NewFromInt(500),
		PercentageReward: decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("InsertRewardBand failed: %v", err)
	}

	active, err := service.ListActiveRewardBands(ctx)
	if err != nil {
		t.Fatalf("ListActiveRewardBands failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("Expected 1 active band, got %d", len(active))
	}
	if !active[0].PercentageReward.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected percentage 2, got %s", active[0].PercentageReward.String())
	}

	if err := service.DeactivateRewardBand(ctx, band.Id); err != nil {
		t.Fatalf("DeactivateRewardBand failed: %v", err)
	}
	active, err = service.ListActiveRewardBands(ctx)
	if err != nil {
		t.Fatalf("ListActiveRewardBands failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected no active bands after deactivation, got %d", len(active))
	}
}

func TestReplaceRewardSelections_SumValidation(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	err := service.ReplaceRewardSelections(context.Background(), "user1", []models.RewardSelection{
		{UserId: "user1", CryptoCurrencyId: "btc", Percentage: decimal.NewFromInt(60)},
		{UserId: "user1", CryptoCurrencyId: "eth", Percentage: decimal.NewFromInt(30)},
	})
	if !errors.Is(err, store.ErrSelectionSum) {
		t.Errorf("Expected ErrSelectionSum for 90 percent total, got: %v", err)
	}
}

func TestReplaceRewardSelections_DuplicateCurrency(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	err := service.ReplaceRewardSelections(context.Background(), "user1", []models.RewardSelection{
		{UserId: "user1", CryptoCurrencyId: "btc", Percentage: decimal.NewFromInt(50)},
		{UserId: "user1", CryptoCurrencyId: "btc", Percentage: decimal.NewFromInt(50)},
	})
	if !errors.Is(err, store.ErrDuplicateSelection) {
		t.Errorf("Expected ErrDuplicateSelection, got: %v", err)
	}
}

func TestReplaceRewardSelections_SwapsFullSet(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	err := service.ReplaceRewardSelections(ctx, "user1", []models.RewardSelection{
		{UserId: "user1", CryptoCurrencyId: "btc", Percentage: decimal.NewFromInt(100)},
	})
	if err != nil {
		t.Fatalf("First ReplaceRewardSelections failed: %v", err)
	}

	err = service.ReplaceRewardSelections(ctx, "user1", []models.RewardSelection{
		{UserId: "user1", CryptoCurrencyId: "btc", Percentage: decimal.NewFromInt(60)},
		{UserId: "user1", CryptoCurrencyId: "eth", Percentage: decimal.NewFromInt(40)},
	})
	if err != nil {
		t.Fatalf("Second ReplaceRewardSelections failed: %v", err)
	}

	selections, err := service.GetRewardSelections(ctx, "user1")
	if err != nil {
		t.Fatalf("GetRewardSelections failed: %v", err)
	}
	if len(selections) != 2 {
		t.Fatalf("Expected 2 selections after replace, got %d", len(selections))
	}

	total := decimal.Zero
	for _, sel := range selections {
		total = total.Add(sel.Percentage)
	}
	if !total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected selections to sum to 100, got %s", total.String())
	}
}

func TestReplaceRewardSelections_ClearAllowed(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	err := service.ReplaceRewardSelections(ctx, "user1", []models.RewardSelection{
		{UserId: "user1", CryptoCurrencyId: "btc", Percentage: decimal.NewFromInt(100)},
	})
	if err != nil {
		t.Fatalf("ReplaceRewardSelections failed: %v", err)
	}

	if err := service.ReplaceRewardSelections(ctx, "user1", nil); err != nil {
		t.Fatalf("Clearing selections failed: %v", err)
	}

	selections, err := service.GetRewardSelections(ctx, "user1")
	if err != nil {
		t.Fatalf("GetRewardSelections failed: %v", err)
	}
	if len(selections) != 0 {
		t.Errorf("Expected no selections after clear, got %d", len(selections))
	}
}
