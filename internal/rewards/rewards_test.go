package rewards

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"crypto-reward-engine/internal/balance"
	"crypto-reward-engine/internal/bands"
	"crypto-reward-engine/internal/cards"
	"crypto-reward-engine/internal/chain"
	"crypto-reward-engine/internal/convert"
	"crypto-reward-engine/internal/database"
	"crypto-reward-engine/internal/lifecycle"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// rewardFixture wires the full reward pipeline against an in-memory ledger
// and a simulated chain.
type rewardFixture struct {
	ledger   store.LedgerStore
	engine   *lifecycle.Engine
	issuer   *Issuer
	fanOut   *FanOut
	spend    *cards.Static
	user     *models.User
	btc      *models.CryptoCurrency
	eth      *models.CryptoCurrency
	cleanup  func()
}

func setupRewards(t *testing.T) *rewardFixture {
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
	user, err := service.CreateUser(ctx, "Reward User", "reward@example.com", "ACC-1")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	btc := models.CryptoCurrency{
		Id: "btc", Symbol: "BTC", Name: "Bitcoin",
		Infrastructure: "evm", Network: "testnet", TestNet: true,
		ReferenceRate: decimal.NewFromInt(2), Active: true,
	}
	eth := models.CryptoCurrency{
		Id: "eth", Symbol: "ETH", Name: "Ethereum",
		Infrastructure: "evm", Network: "testnet", TestNet: true,
		ReferenceRate: decimal.RequireFromString("0.5"), Active: true,
	}
	for _, currency := range []models.CryptoCurrency{btc, eth} {
		if err := service.UpsertCryptoCurrency(ctx, currency); err != nil {
			t.Fatalf("Failed to upsert currency %s: %v", currency.Symbol, err)
		}
	}

	for _, currency := range []models.CryptoCurrency{btc, eth} {
		_, err := service.CreateWalletAddress(ctx, store.CreateWalletParams{
			UserId:           user.Id,
			CryptoCurrencyId: currency.Id,
			Address:          "user-wallet-" + currency.Id,
			Purpose:          models.PurposeUser,
		})
		if err != nil {
			t.Fatalf("Failed to create user wallet: %v", err)
		}
		_, err = service.CreateWalletAddress(ctx, store.CreateWalletParams{
			CryptoCurrencyId: currency.Id,
			Address:          "reward-wallet-" + currency.Id,
			Purpose:          models.PurposeReward,
		})
		if err != nil {
			t.Fatalf("Failed to create reward wallet: %v", err)
		}
	}

	registry := chain.NewRegistry()
	registry.Register("evm", "testnet", chain.NewSimulated(true))

	// One EUR of BTC costs 2 EUR per unit, ETH 0.5 EUR per unit.
	converter := convert.NewStatic("EUR", map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(2),
		"ETH": decimal.RequireFromString("0.5"),
	})
	spend := cards.NewStatic("EUR", nil)

	engine := lifecycle.NewEngine(service, nil)
	aggregator := balance.NewAggregator(service)
	resolver := bands.NewResolver(service)
	issuer := NewIssuer(service, resolver, aggregator, spend, converter, "EUR")
	fanOut := NewFanOut(engine, service, converter, registry, "EUR")

	return &rewardFixture{
		ledger:  service,
		engine:  engine,
		issuer:  issuer,
		fanOut:  fanOut,
		spend:   spend,
		user:    user,
		btc:     &btc,
		eth:     &eth,
		cleanup: func() { db.Close() },
	}
}

func pinnedClock() func() time.Time {
	at := time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestLastMonth(t *testing.T) {
	now := time.Date(2025, 8, 15, 10, 30, 0, 0, time.UTC)
	from, to := LastMonth(now)

	wantFrom := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	if !from.Equal(wantFrom) {
		t.Errorf("Expected from %v, got %v", wantFrom, from)
	}
	if !to.Equal(wantTo) {
		t.Errorf("Expected to %v, got %v", wantTo, to)
	}
}

func TestIssueRewardInstructions_CreatesParent(t *testing.T) {
	fixture := setupRewards(t)
	defer fixture.cleanup()

	ctx := context.Background()
	fixture.issuer.WithClock(pinnedClock())
	fixture.spend.SetSpend("ACC-1", decimal.NewFromInt(10000))

	// 10% of the capped spend: 1000 EUR.
	_, err := bands.NewResolver(fixture.ledger).CreateBand(ctx, store.CreateBandParams{
		Type:             models.BandSpend,
		BandFrom:         decimal.Zero,
		BandTo:           decimal.NewFromInt(100000),
		UpTo:             decimal.NewFromInt(100000),
		PercentageReward: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("CreateBand failed: %v", err)
	}

	if err := fixture.issuer.IssueRewardInstructions(ctx); err != nil {
		t.Fatalf("IssueRewardInstructions failed: %v", err)
	}

	parents, err := fixture.ledger.ListInstructions(ctx, store.InstructionFilter{Type: models.InstructionMonthlyReward})
	if err != nil {
		t.Fatalf("ListInstructions failed: %v", err)
	}
	if len(parents) != 1 {
		t.Fatalf("Expected 1 monthly reward instruction, got %d", len(parents))
	}
	parent := parents[0]
	if !parent.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected reward amount 1000, got %s", parent.Amount.String())
	}

	wantFrom, wantTo := LastMonth(pinnedClock()())
	if !parent.FromDate.Equal(wantFrom) || !parent.ToDate.Equal(wantTo) {
		t.Errorf("Expected period [%v, %v], got [%v, %v]", wantFrom, wantTo, parent.FromDate, parent.ToDate)
	}
}

func TestIssueRewardInstructions_IdempotentPerPeriod(t *testing.T) {
	fixture := setupRewards(t)
	defer fixture.cleanup()

	ctx := context.Background()
	fixture.issuer.WithClock(pinnedClock())
	fixture.spend.SetSpend("ACC-1", decimal.NewFromInt(10000))

	_, err := bands.NewResolver(fixture.ledger).CreateBand(ctx, store.CreateBandParams{
		Type:             models.BandSpend,
		BandFrom:         decimal.Zero,
		BandTo:           decimal.NewFromInt(100000),
		UpTo:             decimal.NewFromInt(100000),
		PercentageReward: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("CreateBand failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := fixture.issuer.IssueRewardInstructions(ctx); err != nil {
			t.Fatalf("IssueRewardInstructions run %d failed: %v", i, err)
		}
	}

	parents, err := fixture.ledger.ListInstructions(ctx, store.InstructionFilter{Type: models.InstructionMonthlyReward})
	if err != nil {
		t.Fatalf("ListInstructions failed: %v", err)
	}
	if len(parents) != 1 {
		t.Errorf("Expected 1 instruction after repeated runs, got %d", len(parents))
	}
}

func TestIssueRewardInstructions_NoRewardNoInstruction(t *testing.T) {
	fixture := setupRewards(t)
	defer fixture.cleanup()

	ctx := context.Background()
	fixture.issuer.WithClock(pinnedClock())

	// No spend, no stake, no bands.
	if err := fixture.issuer.IssueRewardInstructions(ctx); err != nil {
		t.Fatalf("IssueRewardInstructions failed: %v", err)
	}

	parents, err := fixture.ledger.ListInstructions(ctx, store.InstructionFilter{Type: models.InstructionMonthlyReward})
	if err != nil {
		t.Fatalf("ListInstructions failed: %v", err)
	}
	if len(parents) != 0 {
		t.Errorf("Expected no instructions without a reward, got %d", len(parents))
	}
}

func TestFanOut_SplitsBySelection(t *testing.T) {
	fixture := setupRewards(t)
	defer fixture.cleanup()

	ctx := context.Background()
	from, to := LastMonth(pinnedClock()())

	parent, err := fixture.ledger.CreateInstruction(ctx, store.CreateInstructionParams{
		Type:     models.InstructionMonthlyReward,
		Amount:   decimal.NewFromInt(1000),
		UserId:   fixture.user.Id,
		FromDate: from,
		ToDate:   to,
	})
	if err != nil {
		t.Fatalf("CreateInstruction failed: %v", err)
	}

	err = fixture.ledger.ReplaceRewardSelections(ctx, fixture.user.Id, []models.RewardSelection{
		{UserId: fixture.user.Id, CryptoCurrencyId: fixture.btc.Id, Percentage: decimal.NewFromInt(60)},
		{UserId: fixture.user.Id, CryptoCurrencyId: fixture.eth.Id, Percentage: decimal.NewFromInt(40)},
	})
	if err != nil {
		t.Fatalf("ReplaceRewardSelections failed: %v", err)
	}

	if err := fixture.fanOut.ProcessMonthlyRewardInstructions(ctx); err != nil {
		t.Fatalf("ProcessMonthlyRewardInstructions failed: %v", err)
	}

	settled, err := fixture.ledger.GetInstruction(ctx, parent.Id)
	if err != nil {
		t.Fatalf("GetInstruction failed: %v", err)
	}
	if settled.CompletedDate == nil {
		t.Fatalf("Expected parent to be completed after fan-out")
	}

	children, err := fixture.ledger.ListInstructions(ctx, store.InstructionFilter{Type: models.InstructionRewardPayment})
	if err != nil {
		t.Fatalf("ListInstructions failed: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("Expected 2 reward payment children, got %d", len(children))
	}

	byRate := make(map[string]models.Instruction, len(children))
	for _, child := range children {
		if child.ParentInstructionId != parent.Id {
			t.Errorf("Expected child linked to parent %s, got %s", parent.Id, child.ParentInstructionId)
		}
		if !child.FromDate.Equal(from) || !child.ToDate.Equal(to) {
			t.Errorf("Expected child to inherit the parent period")
		}
		byRate[child.ConversionRate.String()] = child
	}

	// 600 EUR at 0.5 BTC per EUR, 400 EUR at 2 ETH per EUR.
	btcChild, ok := byRate["0.5"]
	if !ok {
		t.Fatalf("Expected a child converted at rate 0.5, got rates %v", keys(byRate))
	}
	if !btcChild.Amount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected BTC share 300, got %s", btcChild.Amount.String())
	}

	ethChild, ok := byRate["2"]
	if !ok {
		t.Fatalf("Expected a child converted at rate 2, got rates %v", keys(byRate))
	}
	if !ethChild.Amount.Equal(decimal.NewFromInt(800)) {
		t.Errorf("Expected ETH share 800, got %s", ethChild.Amount.String())
	}
}

func TestFanOut_NoSelectionsPutsParentBack(t *testing.T) {
	fixture := setupRewards(t)
	defer fixture.cleanup()

	ctx := context.Background()
	parent, err := fixture.ledger.CreateInstruction(ctx, store.CreateInstructionParams{
		Type:   models.InstructionMonthlyReward,
		Amount: decimal.NewFromInt(1000),
		UserId: fixture.user.Id,
	})
	if err != nil {
		t.Fatalf("CreateInstruction failed: %v", err)
	}

	if err := fixture.fanOut.ProcessMonthlyRewardInstructions(ctx); err != nil {
		t.Fatalf("ProcessMonthlyRewardInstructions failed: %v", err)
	}

	stored, err := fixture.ledger.GetInstruction(ctx, parent.Id)
	if err != nil {
		t.Fatalf("GetInstruction failed: %v", err)
	}
	if !stored.Eligible() {
		t.Errorf("Expected parent to stay eligible without selections")
	}

	children, err := fixture.ledger.ListInstructions(ctx, store.InstructionFilter{Type: models.InstructionRewardPayment})
	if err != nil {
		t.Fatalf("ListInstructions failed: %v", err)
	}
	if len(children) != 0 {
		t.Errorf("Expected no children without selections, got %d", len(children))
	}
}

func keys(m map[string]models.Instruction) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
