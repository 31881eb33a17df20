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

// ProcessStakingDeposits settles eligible staking deposits. Each one moves
// the user's funds from their wallet into the staking system wallet and
// records two transfers: the staked amount and the fee it cost.
func (s *Settler) ProcessStakingDeposits(ctx context.Context) error {
	return s.processAll(ctx, models.InstructionStakingDeposit, s.settleStakingDeposit)
}

func (s *Settler) settleStakingDeposit(ctx context.Context, task *lifecycle.Task) error {
	instr := task.Instruction()

	wc, err := s.resolveWallet(ctx, instr.WalletAddressId)
	if err != nil {
		return err
	}
	stakingWallet, err := s.store.GetSystemWallet(ctx, wc.currency.Id, models.PurposeStaking)
	if err != nil {
		return err
	}

	bal, err := s.aggregator.ComputeExcluding(ctx, wc.wallet, instr.Id)
	if err != nil {
		return err
	}
	if err := balance.AuthorizeStakeDeposit(bal, instr.Amount, instr.MakeTransactionFee); err != nil {
		return err
	}

	hash, err := s.send(ctx, task, wc.provider, chain.SendParams{
		FromAddress: wc.wallet.Address,
		FromKeyRef:  wc.wallet.KeyRef,
		ToAddress:   stakingWallet.Address,
		Amount:      instr.Amount,
		Fee:         instr.MakeTransactionFee,
	})
	if err != nil || hash == "" {
		return err
	}

	if err := task.Complete(ctx); err != nil {
		return err
	}

	// Positive staking amount: credits the staked pool and, sign-flipped,
	// debits the spendable balance.
	s.recordTransaction(ctx, store.CreateTransactionParams{
		Type:                  models.TransactionStaking,
		State:                 models.TransactionPending,
		Amount:                instr.Amount,
		Hash:                  hash,
		FromAddress:           wc.wallet.Address,
		ToAddress:             stakingWallet.Address,
		WalletAddressId:       wc.wallet.Id,
		SystemWalletAddressId: stakingWallet.Id,
		InstructionId:         instr.Id,
		CryptoCurrencyId:      wc.currency.Id,
		UserId:                instr.UserId,
		PreReviewed:           true,
	})

	// The fee is a deterministic debit with no hash of its own, so it is
	// recorded confirmed immediately rather than polled.
	if instr.MakeTransactionFee.IsPositive() {
		s.recordTransaction(ctx, store.CreateTransactionParams{
			Type:                  models.TransactionFee,
			State:                 models.TransactionCompleted,
			Amount:                instr.MakeTransactionFee.Neg(),
			FromAddress:           wc.wallet.Address,
			ToAddress:             stakingWallet.Address,
			WalletAddressId:       wc.wallet.Id,
			SystemWalletAddressId: stakingWallet.Id,
			InstructionId:         instr.Id,
			CryptoCurrencyId:      wc.currency.Id,
			UserId:                instr.UserId,
			PreReviewed:           true,
			PreConfirmed:          true,
		})
	}

	zap.L().Info("Staking deposit settled",
		zap.String("instruction_id", instr.Id),
		zap.String("hash", hash),
		zap.String("amount", instr.Amount.String()),
		zap.String("currency", wc.currency.Symbol))
	return nil
}
