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

	"crypto-reward-engine/internal/balance"
	"crypto-reward-engine/internal/chain"
	"crypto-reward-engine/internal/lifecycle"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"go.uber.org/zap"
)

// ProcessWithdrawals settles eligible withdrawal instructions. Each one moves
// funds from the user's wallet to a whitelisted external address.
func (s *Settler) ProcessWithdrawals(ctx context.Context) error {
	return s.processAll(ctx, models.InstructionWithdrawal, s.settleWithdrawal)
}

func (s *Settler) settleWithdrawal(ctx context.Context, task *lifecycle.Task) error {
	instr := task.Instruction()

	wc, err := s.resolveWallet(ctx, instr.WalletAddressId)
	if err != nil {
		return err
	}

	whitelist, err := s.store.GetWhitelistAddress(ctx, instr.WhitelistAddressId)
	if err != nil {
		return err
	}
	if !wc.provider.IsAddressValid(whitelist.Address) {
		return task.Fail(ctx, fmt.Sprintf("Destination address %s is not valid", whitelist.Address))
	}

	// Withdrawal amounts are stored negative (value leaving toward the user);
	// the transfer itself is broadcast with the magnitude.
	amount := instr.Amount.Abs()

	bal, err := s.aggregator.ComputeExcluding(ctx, wc.wallet, instr.Id)
	if err != nil {
		return err
	}
	if err := balance.AuthorizeWithdrawal(bal, amount, instr.MakeTransactionFee); err != nil {
		return err
	}

	hash, err := s.send(ctx, task, wc.provider, chain.SendParams{
		FromAddress: wc.wallet.Address,
		FromKeyRef:  wc.wallet.KeyRef,
		ToAddress:   whitelist.Address,
		Amount:      amount,
		Fee:         instr.MakeTransactionFee,
	})
	if err != nil || hash == "" {
		return err
	}

	if err := task.Complete(ctx); err != nil {
		return err
	}

	s.recordTransaction(ctx, store.CreateTransactionParams{
		Type:               models.TransactionWithdrawal,
		State:              models.TransactionPending,
		Amount:             instr.Amount,
		Hash:               hash,
		FromAddress:        wc.wallet.Address,
		ToAddress:          whitelist.Address,
		WalletAddressId:    wc.wallet.Id,
		WhitelistAddressId: whitelist.Id,
		InstructionId:      instr.Id,
		CryptoCurrencyId:   wc.currency.Id,
		UserId:             instr.UserId,
		PreReviewed:        true,
	})

	zap.L().Info("Withdrawal settled",
		zap.String("instruction_id", instr.Id),
		zap.String("hash", hash),
		zap.String("amount", amount.String()),
		zap.String("currency", wc.currency.Symbol))
	return nil
}
