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

// Package cards exposes the credit-card spend aggregation collaborator.
package cards

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AggregateSpend is one account's total card spend for a period, in the
// aggregator's own currency.
type AggregateSpend struct {
	Amount   decimal.Decimal
	Currency string
}

// SpendProvider reports aggregate card spend per account and period.
type SpendProvider interface {
	GetAggregateSpend(ctx context.Context, from, to time.Time, accountNumber string) (AggregateSpend, error)
}

// Static serves spend figures from a fixed table keyed by account number.
// Used for local development and tests.
type Static struct {
	currency string
	spend    map[string]decimal.Decimal
}

func NewStatic(currency string, spend map[string]decimal.Decimal) *Static {
	if spend == nil {
		spend = make(map[string]decimal.Decimal)
	}
	return &Static{currency: currency, spend: spend}
}

// SetSpend seeds an account's aggregate spend.
func (s *Static) SetSpend(accountNumber string, amount decimal.Decimal) {
	s.spend[accountNumber] = amount
}

func (s *Static) GetAggregateSpend(_ context.Context, _, _ time.Time, accountNumber string) (AggregateSpend, error) {
	return AggregateSpend{
		Amount:   s.spend[accountNumber],
		Currency: s.currency,
	}, nil
}
