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

// Package processors settles eligible instructions on chain, one processor
// per instruction type. Every processor runs the same protocol: pick the
// instruction up, re-validate preconditions, send the transfer, then
// complete, fail, or put back. Transient errors (provider unreachable,
// inactive currency, balance shortfall) put the instruction back for a later
// run; a transfer the chain rejects outright fails it terminally.
package processors

import (
	"context"
	"errors"
	"fmt"

	"crypto-reward-engine/internal/balance"
	"crypto-reward-engine/internal/chain"
	"crypto-reward-engine/internal/lifecycle"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"go.uber.org/zap"
)

// ErrCurrencyInactive marks settlement attempts against a deactivated
// currency. It is retriable on purpose: the instruction keeps coming back
// until the currency is reactivated, it never fails terminally.
var ErrCurrencyInactive = errors.New("crypto currency is inactive")

// FailedReasonNoHash is the terminal failure reason recorded when the chain
// accepts the call but produces no transaction hash.
const FailedReasonNoHash = "Transaction has not generated"

// Settler holds the collaborators shared by all instruction processors.
type Settler struct {
	engine     *lifecycle.Engine
	store      store.LedgerStore
	registry   *chain.Registry
	aggregator *balance.Aggregator
}

func NewSettler(engine *lifecycle.Engine, ledger store.LedgerStore, registry *chain.Registry,
	aggregator *balance.Aggregator) *Settler {
	return &Settler{
		engine:     engine,
		store:      ledger,
		registry:   registry,
		aggregator: aggregator,
	}
}

// processAll runs the lease protocol over every eligible instruction of one
// type. Instructions another run claims first are skipped silently; other
// errors are already handled (put back and logged) inside Run.
func (s *Settler) processAll(ctx context.Context, instructionType models.InstructionType,
	settle func(ctx context.Context, task *lifecycle.Task) error) error {
	eligible, err := s.engine.ListEligible(ctx, instructionType)
	if err != nil {
		return fmt.Errorf("unable to list eligible instructions: %w", err)
	}

	for _, instr := range eligible {
		if err := s.engine.Run(ctx, instr.Id, settle); err != nil {
			if errors.Is(err, store.ErrNotEligible) {
				continue
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// walletContext resolves the wallet, its currency, and the chain provider
// for one instruction. An inactive currency aborts with ErrCurrencyInactive.
type walletContext struct {
	wallet   *models.WalletAddress
	currency *models.CryptoCurrency
	provider chain.Provider
}

func (s *Settler) resolveWallet(ctx context.Context, walletAddressId string) (*walletContext, error) {
	wallet, err := s.store.GetWalletAddress(ctx, walletAddressId)
	if err != nil {
		return nil, err
	}
	currency, err := s.store.GetCryptoCurrency(ctx, wallet.CryptoCurrencyId)
	if err != nil {
		return nil, err
	}
	if !currency.Active {
		return nil, fmt.Errorf("%w: %s", ErrCurrencyInactive, currency.Symbol)
	}
	provider, err := s.registry.Provider(currency.Infrastructure, currency.Network)
	if err != nil {
		return nil, err
	}
	return &walletContext{wallet: wallet, currency: currency, provider: provider}, nil
}

// send broadcasts a transfer and maps the outcome onto the lifecycle: an
// empty hash is a terminal failure, a provider error bubbles up for put-back.
// The returned hash is non-empty exactly when the caller should complete.
func (s *Settler) send(ctx context.Context, task *lifecycle.Task, provider chain.Provider,
	params chain.SendParams) (string, error) {
	hash, err := provider.SendTransaction(ctx, params)
	if err != nil {
		return "", fmt.Errorf("unable to send transaction: %w", err)
	}
	if hash == "" {
		instr := task.Instruction()
		zap.L().Warn("Transfer rejected by chain, failing instruction",
			zap.String("instruction_id", instr.Id),
			zap.String("type", string(instr.Type)))
		if err := task.Fail(ctx, FailedReasonNoHash); err != nil {
			return "", err
		}
		return "", nil
	}
	return hash, nil
}

// recordTransaction persists a settled transfer. The instruction is already
// complete at this point, so persistence problems are logged, not retried.
func (s *Settler) recordTransaction(ctx context.Context, params store.CreateTransactionParams) {
	if _, err := s.store.CreateTransaction(ctx, params); err != nil {
		zap.L().Error("Failed to record transaction for completed instruction",
			zap.String("instruction_id", params.InstructionId),
			zap.String("hash", params.Hash),
			zap.Error(err))
	}
}
