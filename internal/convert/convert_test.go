package convert

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestStatic_ConvertBetweenSymbols(t *testing.T) {
	converter := NewStatic("EUR", map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(2),
		"ETH": decimal.RequireFromString("0.5"),
	})

	ctx := context.Background()

	// 600 EUR buys 300 BTC at 2 EUR per unit.
	result, err := converter.Convert(ctx, decimal.NewFromInt(600), "EUR", "BTC")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !result.Value.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected 300 BTC, got %s", result.Value.String())
	}
	if !result.Rate.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Expected rate 0.5, got %s", result.Rate.String())
	}

	// 3 BTC is 12 ETH: both legs go through the reference currency.
	result, err = converter.Convert(ctx, decimal.NewFromInt(3), "BTC", "ETH")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !result.Value.Equal(decimal.NewFromInt(12)) {
		t.Errorf("Expected 12 ETH, got %s", result.Value.String())
	}
}

func TestStatic_ReferenceCurrencyIsIdentity(t *testing.T) {
	converter := NewStatic("EUR", nil)

	result, err := converter.Convert(context.Background(), decimal.NewFromInt(42), "EUR", "EUR")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !result.Value.Equal(decimal.NewFromInt(42)) {
		t.Errorf("Expected identity conversion, got %s", result.Value.String())
	}
	if !result.Rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected rate 1, got %s", result.Rate.String())
	}
}

func TestStatic_UnsupportedSymbol(t *testing.T) {
	converter := NewStatic("EUR", map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(2),
	})

	_, err := converter.Convert(context.Background(), decimal.NewFromInt(1), "EUR", "DOGE")
	if !errors.Is(err, ErrUnsupportedSymbol) {
		t.Errorf("Expected ErrUnsupportedSymbol, got: %v", err)
	}
	if converter.IsSupported("DOGE") {
		t.Errorf("Expected DOGE to be unsupported")
	}
	if !converter.IsSupported("BTC") {
		t.Errorf("Expected BTC to be supported")
	}
}
