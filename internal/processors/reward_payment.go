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

package processors

import (
	"context"
	"fmt"

	"crypto-reward-engine/internal/chain"
	"crypto-reward-engine/internal/lifecycle"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"go.uber.org/zap"
)

// ProcessRewardPayments settles eligible reward payments. Each one pays a
// fanned-out monthly reward share from the reward system wallet to the
// user's wallet for the selected currency.
func (s *Settler) ProcessRewardPayments(ctx context.Context) error {
	return s.processAll(ctx, models.InstructionRewardPayment, s.settleRewardPayment)
}

func (s *Settler) settleRewardPayment(ctx context.Context, task *lifecycle.Task) error {
	instr := task.Instruction()

	wc, err := s.resolveWallet(ctx, instr.WalletAddressId)
	if err != nil {
		return err
	}
	rewardWallet, err := s.store.GetSystemWallet(ctx, wc.currency.Id, models.PurposeReward)
	if err != nil {
		return err
	}

	// Rewards are funded from the platform's own pool, so the gate is the
	// reward wallet's on-chain balance, not a user ledger balance.
	available, err := wc.provider.GetBalance(ctx, rewardWallet.Address)
	if err != nil {
		return fmt.Errorf("unable to check reward wallet balance: %w", err)
	}
	required := instr.Amount.Add(instr.MakeTransactionFee)
	if required.GreaterThan(available) {
		return fmt.Errorf("reward wallet %s underfunded: need %s, have %s",
			rewardWallet.Address, required.String(), available.String())
	}

	hash, err := s.send(ctx, task, wc.provider, chain.SendParams{
		FromAddress: rewardWallet.Address,
		FromKeyRef:  rewardWallet.KeyRef,
		ToAddress:   wc.wallet.Address,
		Amount:      instr.Amount,
		Fee:         instr.MakeTransactionFee,
	})
	if err != nil || hash == "" {
		return err
	}

	if err := task.Complete(ctx); err != nil {
		return err
	}

	s.recordTransaction(ctx, store.CreateTransactionParams{
		Type:                  models.TransactionReward,
		State:                 models.TransactionPending,
		Amount:                instr.Amount,
		Hash:                  hash,
		FromAddress:           rewardWallet.Address,
		ToAddress:             wc.wallet.Address,
		WalletAddressId:       wc.wallet.Id,
		SystemWalletAddressId: rewardWallet.Id,
		InstructionId:         instr.Id,
		CryptoCurrencyId:      wc.currency.Id,
		UserId:                instr.UserId,
		PreReviewed:           true,
	})

	zap.L().Info("Reward payment settled",
		zap.String("instruction_id", instr.Id),
		zap.String("hash", hash),
		zap.String("amount", instr.Amount.String()),
		zap.String("currency", wc.currency.Symbol),
		zap.String("conversion_rate", instr.ConversionRate.String()))
	return nil
}
