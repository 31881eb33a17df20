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

	"crypto-reward-engine/internal/balance"
	"crypto-reward-engine/internal/chain"
	"crypto-reward-engine/internal/lifecycle"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"go.uber.org/zap"
)

// ProcessStakingWithdrawals settles eligible unstakes. Each one returns
// staked funds from the staking system wallet to the user's wallet.
func (s *Settler) ProcessStakingWithdrawals(ctx context.Context) error {
	return s.processAll(ctx, models.InstructionStakingWithdrawal, s.settleStakingWithdrawal)
}

func (s *Settler) settleStakingWithdrawal(ctx context.Context, task *lifecycle.Task) error {
	instr := task.Instruction()

	wc, err := s.resolveWallet(ctx, instr.WalletAddressId)
	if err != nil {
		return err
	}
	stakingWallet, err := s.store.GetSystemWallet(ctx, wc.currency.Id, models.PurposeStaking)
	if err != nil {
		return err
	}

	// Unstake amounts are stored negative (value returning toward the user).
	amount := instr.Amount.Abs()

	bal, err := s.aggregator.ComputeExcluding(ctx, wc.wallet, instr.Id)
	if err != nil {
		return err
	}
	if err := balance.AuthorizeStakeWithdrawal(bal, amount); err != nil {
		return err
	}

	hash, err := s.send(ctx, task, wc.provider, chain.SendParams{
		FromAddress: stakingWallet.Address,
		FromKeyRef:  stakingWallet.KeyRef,
		ToAddress:   wc.wallet.Address,
		Amount:      amount,
		Fee:         instr.MakeTransactionFee,
	})
	if err != nil || hash == "" {
		return err
	}

	if err := task.Complete(ctx); err != nil {
		return err
	}

	// Negative staking amount: debits the staked pool and, sign-flipped,
	// credits the spendable balance once confirmed.
	s.recordTransaction(ctx, store.CreateTransactionParams{
		Type:                  models.TransactionStaking,
		State:                 models.TransactionPending,
		Amount:                instr.Amount,
		Hash:                  hash,
		FromAddress:           stakingWallet.Address,
		ToAddress:             wc.wallet.Address,
		WalletAddressId:       wc.wallet.Id,
		SystemWalletAddressId: stakingWallet.Id,
		InstructionId:         instr.Id,
		CryptoCurrencyId:      wc.currency.Id,
		UserId:                instr.UserId,
		PreReviewed:           true,
	})

	zap.L().Info("Staking withdrawal settled",
		zap.String("instruction_id", instr.Id),
		zap.String("hash", hash),
		zap.String("amount", amount.String()),
		zap.String("currency", wc.currency.Symbol))
	return nil
}
