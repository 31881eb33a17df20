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

// Package balance derives a wallet address's balance view from its
// transaction history and its owner's open instructions. The view is the
// precondition gate for new withdrawals and stakes: funds that are staked or
// reserved by an in-flight instruction cannot be spent twice.
package balance

import (
	"context"
	"errors"
	"fmt"

	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/shopspring/decimal"
)

var ErrInsufficientBalance = errors.New("insufficient balance for requested amount and fee")

// Aggregator computes derived wallet balances from one consistent fetch of
// the transaction set and one of the instruction set.
type Aggregator struct {
	store store.LedgerStore
}

func NewAggregator(ledger store.LedgerStore) *Aggregator {
	return &Aggregator{store: ledger}
}

// Compute builds the full derived balance view for a wallet address.
func (a *Aggregator) Compute(ctx context.Context, wallet *models.WalletAddress) (*models.WalletAddressBalance, error) {
	return a.ComputeExcluding(ctx, wallet, "")
}

// ComputeExcluding builds the view while ignoring one instruction. A
// processor gating the instruction it currently holds passes that
// instruction's id, so the held intent does not count against itself.
//
// Both fetches happen before any summation so all derived fields observe the
// same snapshot.
func (a *Aggregator) ComputeExcluding(ctx context.Context, wallet *models.WalletAddress, excludeInstructionId string) (*models.WalletAddressBalance, error) {
	transactions, err := a.store.GetTransactionsForWallet(ctx, wallet.Id)
	if err != nil {
		return nil, fmt.Errorf("unable to load transactions: %w", err)
	}
	instructions, err := a.store.ListOpenInstructionsForUser(ctx, wallet.UserId)
	if err != nil {
		return nil, fmt.Errorf("unable to load open instructions: %w", err)
	}

	bal := &models.WalletAddressBalance{WalletAddressId: wallet.Id}

	for _, tx := range transactions {
		// Staking debits spendable balance, so staking rows flip sign in the
		// general sums. The staked pool itself is tracked unflipped.
		signed := tx.Amount
		if tx.Type == models.TransactionStaking {
			signed = signed.Neg()
		}

		if tx.Confirmed() {
			bal.ConfirmedBalance = bal.ConfirmedBalance.Add(signed)
		} else {
			bal.UnconfirmedBalance = bal.UnconfirmedBalance.Add(signed)
		}

		switch {
		case !tx.Reviewed():
			bal.UnreviewedBalance = bal.UnreviewedBalance.Add(signed)
		case tx.FailedReview:
			bal.UnsuccessfullyReviewedBalance = bal.UnsuccessfullyReviewedBalance.Add(signed)
		default:
			bal.SuccessfullyReviewedBalance = bal.SuccessfullyReviewedBalance.Add(signed)
		}

		if tx.Confirmed() && tx.Reviewed() && !tx.FailedReview {
			bal.SpendableBalance = bal.SpendableBalance.Add(signed)
		}

		if tx.Type == models.TransactionStaking {
			if tx.Confirmed() {
				bal.SpendableStakedBalance = bal.SpendableStakedBalance.Add(tx.Amount)
			} else {
				bal.UnconfirmedStakedBalance = bal.UnconfirmedStakedBalance.Add(tx.Amount)
			}
		}
	}

	for _, instr := range instructions {
		if instr.Id == excludeInstructionId {
			continue
		}
		if instr.WalletAddressId != "" && instr.WalletAddressId != wallet.Id {
			continue
		}

		signed := instr.Amount
		if instr.Type.IsStaking() {
			signed = signed.Neg()
		}
		bal.OutstandingInstructionBalance = bal.OutstandingInstructionBalance.Add(signed)

		if instr.Type.IsStaking() {
			bal.OutstandingInstructionStakedBalance = bal.OutstandingInstructionStakedBalance.Add(instr.Amount)
		}
	}

	return bal, nil
}

// AuthorizeWithdrawal checks that amount plus fee fits in the spendable
// balance after accounting for competing in-flight instructions.
func AuthorizeWithdrawal(bal *models.WalletAddressBalance, amount, fee decimal.Decimal) error {
	available := bal.SpendableBalance.Add(bal.OutstandingInstructionBalance)
	if amount.Add(fee).GreaterThan(available) {
		return fmt.Errorf("%w: requested %s + fee %s, available %s",
			ErrInsufficientBalance, amount.String(), fee.String(), available.String())
	}
	return nil
}

// AuthorizeStakeDeposit gates a new stake against spendable funds; the stake
// debits the spendable balance once settled.
func AuthorizeStakeDeposit(bal *models.WalletAddressBalance, amount, fee decimal.Decimal) error {
	available := bal.SpendableBalance.Add(bal.OutstandingInstructionBalance)
	if amount.Add(fee).GreaterThan(available) {
		return fmt.Errorf("%w: stake %s + fee %s, available %s",
			ErrInsufficientBalance, amount.String(), fee.String(), available.String())
	}
	return nil
}

// AuthorizeStakeWithdrawal gates an unstake against the staked pool,
// including staking instructions still in flight.
func AuthorizeStakeWithdrawal(bal *models.WalletAddressBalance, amount decimal.Decimal) error {
	staked := bal.SpendableStakedBalance.Add(bal.OutstandingInstructionStakedBalance)
	if amount.GreaterThan(staked) {
		return fmt.Errorf("%w: unstake %s, staked %s",
			ErrInsufficientBalance, amount.String(), staked.String())
	}
	return nil
}
