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

package rewards

import (
	"context"
	"fmt"
	"time"

	"crypto-reward-engine/internal/chain"
	"crypto-reward-engine/internal/convert"
	"crypto-reward-engine/internal/lifecycle"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FanOut runs stage B: each eligible MonthlyReward parent expands into one
// RewardPayment child per currency selection, converted at the realized rate
// and carrying the estimated chain fee. Children are persisted as one batch
// together with the parent's completion; a failed expansion persists
// nothing and puts the parent back.
type FanOut struct {
	engine            *lifecycle.Engine
	store             store.LedgerStore
	converter         convert.Provider
	registry          *chain.Registry
	referenceCurrency string
	now               func() time.Time
}

func NewFanOut(engine *lifecycle.Engine, ledger store.LedgerStore, converter convert.Provider,
	registry *chain.Registry, referenceCurrency string) *FanOut {
	return &FanOut{
		engine:            engine,
		store:             ledger,
		converter:         converter,
		registry:          registry,
		referenceCurrency: referenceCurrency,
		now:               time.Now,
	}
}

// ProcessMonthlyRewardInstructions is the stage B scheduler entry point.
func (f *FanOut) ProcessMonthlyRewardInstructions(ctx context.Context) error {
	eligible, err := f.engine.ListEligible(ctx, models.InstructionMonthlyReward)
	if err != nil {
		return fmt.Errorf("unable to list eligible monthly rewards: %w", err)
	}

	for _, instr := range eligible {
		if err := f.engine.Run(ctx, instr.Id, f.expand); err != nil {
			// Run already put the instruction back and logged; move on to
			// the next parent.
			continue
		}
	}
	return nil
}

func (f *FanOut) expand(ctx context.Context, task *lifecycle.Task) error {
	parent := task.Instruction()

	selections, err := f.store.GetRewardSelections(ctx, parent.UserId)
	if err != nil {
		return err
	}
	if len(selections) == 0 {
		// Nothing to split against yet; leave the parent for a later run.
		zap.L().Info("No reward selections for user, putting parent back",
			zap.String("instruction_id", parent.Id),
			zap.String("user_id", parent.UserId))
		return task.PutBack(ctx)
	}

	children := make([]store.CreateInstructionParams, 0, len(selections))
	for _, selection := range selections {
		if selection.Percentage.LessThanOrEqual(decimal.Zero) {
			continue
		}
		child, err := f.buildChild(ctx, parent, selection)
		if err != nil {
			return fmt.Errorf("unable to build child for currency %s: %w",
				selection.CryptoCurrencyId, err)
		}
		children = append(children, *child)
	}
	if len(children) == 0 {
		return task.PutBack(ctx)
	}

	// The batch insert is the only persistence in this run: either the
	// parent completes with all children, or nothing is written.
	inserted, err := f.store.CompleteInstructionWithChildren(ctx, parent.Id, children, f.now())
	if err != nil {
		return err
	}
	task.MarkSettled()

	zap.L().Info("Monthly reward fanned out",
		zap.String("instruction_id", parent.Id),
		zap.String("user_id", parent.UserId),
		zap.String("parent_amount", parent.Amount.String()),
		zap.Int("children", len(inserted)))
	return nil
}

func (f *FanOut) buildChild(ctx context.Context, parent models.Instruction, selection models.RewardSelection) (*store.CreateInstructionParams, error) {
	currency, err := f.store.GetCryptoCurrency(ctx, selection.CryptoCurrencyId)
	if err != nil {
		return nil, err
	}

	share := parent.Amount.Mul(selection.Percentage).Div(oneHundred)

	converted, err := f.converter.Convert(ctx, share, f.referenceCurrency, currency.Symbol)
	if err != nil {
		return nil, err
	}

	wallet, err := f.store.GetUserWalletForCurrency(ctx, parent.UserId, currency.Id)
	if err != nil {
		return nil, err
	}
	systemWallet, err := f.store.GetSystemWallet(ctx, currency.Id, models.PurposeReward)
	if err != nil {
		return nil, err
	}

	provider, err := f.registry.Provider(currency.Infrastructure, currency.Network)
	if err != nil {
		return nil, err
	}
	monetaryFee, txFee, err := provider.EstimateFee(ctx, systemWallet.Address, systemWallet.KeyRef, converted.Value)
	if err != nil {
		return nil, err
	}

	return &store.CreateInstructionParams{
		Type:               models.InstructionRewardPayment,
		Amount:             converted.Value,
		UserId:             parent.UserId,
		WalletAddressId:    wallet.Id,
		FromDate:           parent.FromDate,
		ToDate:             parent.ToDate,
		ConversionRate:     converted.Rate,
		MonetaryFee:        monetaryFee,
		MakeTransactionFee: txFee,
	}, nil
}

var oneHundred = decimal.NewFromInt(100)
