/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package convert exposes the currency conversion collaborator and a
// rate cache in front of it. A stale rate is acceptable within the cache
// TTL; correctness never depends on the cache.
package convert

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrUnsupportedSymbol = errors.New("unsupported conversion symbol")

// Result is one realized conversion: the converted value and the rate that
// produced it.
type Result struct {
	Value decimal.Decimal
	Rate  decimal.Decimal
}

// Provider converts an amount between two currency symbols at the current
// rate.
type Provider interface {
	Convert(ctx context.Context, amount decimal.Decimal, fromSymbol, toSymbol string) (Result, error)
	IsSupported(symbol string) bool
}

// Static converts through a fixed table of reference rates, each expressed
// in units of the reference currency per one unit of the symbol. Used for
// local development and tests.
type Static struct {
	reference string
	rates     map[string]decimal.Decimal
}

func NewStatic(referenceSymbol string, rates map[string]decimal.Decimal) *Static {
	table := make(map[string]decimal.Decimal, len(rates)+1)
	for symbol, rate := range rates {
		table[symbol] = rate
	}
	table[referenceSymbol] = decimal.NewFromInt(1)
	return &Static{reference: referenceSymbol, rates: table}
}

func (s *Static) IsSupported(symbol string) bool {
	_, ok := s.rates[symbol]
	return ok
}

func (s *Static) Convert(_ context.Context, amount decimal.Decimal, fromSymbol, toSymbol string) (Result, error) {
	fromRate, ok := s.rates[fromSymbol]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, fromSymbol)
	}
	toRate, ok := s.rates[toSymbol]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, toSymbol)
	}
	if toRate.IsZero() {
		return Result{}, fmt.Errorf("%w: %s has no rate", ErrUnsupportedSymbol, toSymbol)
	}

	rate := fromRate.Div(toRate)
	return Result{
		Value: amount.Mul(rate),
		Rate:  rate,
	}, nil
}
