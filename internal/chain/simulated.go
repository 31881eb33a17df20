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

package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Simulated is an in-memory provider used for local development and tests.
// It tracks address balances, assigns deterministic-looking hashes, and
// confirms transfers on the next state poll.
type Simulated struct {
	mu        sync.Mutex
	testNet   bool
	balances  map[string]decimal.Decimal
	states    map[string]TxState
	details   map[string]TxDetails
	feeRate   decimal.Decimal

	// Failure injection for tests.
	RejectNext      bool // next send returns an empty hash
	UnavailableNext bool // next send returns ErrProviderUnavailable
}

func NewSimulated(testNet bool) *Simulated {
	return &Simulated{
		testNet:  testNet,
		balances: make(map[string]decimal.Decimal),
		states:   make(map[string]TxState),
		details:  make(map[string]TxDetails),
		feeRate:  decimal.NewFromFloat(0.0001),
	}
}

// Credit seeds an address balance.
func (s *Simulated) Credit(address string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[address] = s.balances[address].Add(amount)
}

func (s *Simulated) ValidateNetwork(isTest bool) bool { return isTest == s.testNet }

func (s *Simulated) IsAddressValid(address string) bool {
	return len(address) >= 8 && !strings.ContainsAny(address, " \t\n")
}

func (s *Simulated) GetBalance(_ context.Context, address string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[address], nil
}

func (s *Simulated) EstimateFee(_ context.Context, _, _ string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	fee := amount.Abs().Mul(s.feeRate)
	return fee, fee, nil
}

func (s *Simulated) SendTransaction(_ context.Context, params SendParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UnavailableNext {
		s.UnavailableNext = false
		return "", fmt.Errorf("%w: simulated outage", ErrProviderUnavailable)
	}
	if s.RejectNext {
		s.RejectNext = false
		return "", nil
	}

	hash := "0x" + strings.ReplaceAll(uuid.New().String(), "-", "")
	s.balances[params.FromAddress] = s.balances[params.FromAddress].Sub(params.Amount).Sub(params.Fee)
	s.balances[params.ToAddress] = s.balances[params.ToAddress].Add(params.Amount)
	s.states[hash] = TxPending
	s.details[hash] = TxDetails{
		Amount: params.Amount,
		From:   params.FromAddress,
		To:     params.ToAddress,
		Fee:    params.Fee,
	}
	return hash, nil
}

func (s *Simulated) GetTransactionState(_ context.Context, hash string) (TxState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[hash]
	if !ok {
		return TxFailed, nil
	}
	// One poll in flight, then confirmed.
	if state == TxPending {
		s.states[hash] = TxCompleted
	}
	return state, nil
}

func (s *Simulated) GetTransactionDetails(_ context.Context, hash string) (*TxDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	details, ok := s.details[hash]
	if !ok {
		return nil, nil
	}
	return &details, nil
}
