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

// Package rewards builds the monthly reward instructions: stage A issues one
// MonthlyReward parent per user and period, stage B fans each parent out
// into per-currency RewardPayment children.
package rewards

import (
	"context"
	"fmt"
	"time"

	"crypto-reward-engine/internal/balance"
	"crypto-reward-engine/internal/bands"
	"crypto-reward-engine/internal/cards"
	"crypto-reward-engine/internal/convert"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Issuer runs stage A: once per period it resolves every active user's
// aggregate card spend and staking value, looks up the reward percentage,
// and creates the MonthlyReward parent instruction.
type Issuer struct {
	store             store.LedgerStore
	resolver          *bands.Resolver
	aggregator        *balance.Aggregator
	spend             cards.SpendProvider
	converter         convert.Provider
	referenceCurrency string
	now               func() time.Time
}

func NewIssuer(ledger store.LedgerStore, resolver *bands.Resolver, aggregator *balance.Aggregator,
	spend cards.SpendProvider, converter convert.Provider, referenceCurrency string) *Issuer {
	return &Issuer{
		store:             ledger,
		resolver:          resolver,
		aggregator:        aggregator,
		spend:             spend,
		converter:         converter,
		referenceCurrency: referenceCurrency,
		now:               time.Now,
	}
}

// WithClock pins the issuer clock. Tests use this to control the period.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// LastMonth returns the period [first day of last month, first day of this
// month) relative to now, in UTC.
func LastMonth(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return firstOfThisMonth.AddDate(0, -1, 0), firstOfThisMonth
}

// IssueRewardInstructions is the stage A scheduler entry point. It is
// idempotent per user and period: an existing MonthlyReward instruction for
// the computed range blocks re-issue regardless of its state.
func (i *Issuer) IssueRewardInstructions(ctx context.Context) error {
	from, to := LastMonth(i.now())

	users, err := i.store.GetActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("unable to list active users: %w", err)
	}

	issued := 0
	for _, user := range users {
		created, err := i.issueForUser(ctx, user, from, to)
		if err != nil {
			zap.L().Error("Failed to issue monthly reward",
				zap.String("user_id", user.Id),
				zap.Time("from", from),
				zap.Time("to", to),
				zap.Error(err))
			continue
		}
		if created {
			issued++
		}
	}

	zap.L().Info("Monthly reward issue run finished",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("users", len(users)),
		zap.Int("issued", issued))
	return nil
}

func (i *Issuer) issueForUser(ctx context.Context, user models.User, from, to time.Time) (bool, error) {
	exists, err := i.store.HasInstructionForPeriod(ctx, user.Id, models.InstructionMonthlyReward, from, to)
	if err != nil {
		return false, err
	}
	if exists {
		zap.L().Debug("Monthly reward already issued for period",
			zap.String("user_id", user.Id), zap.Time("from", from))
		return false, nil
	}

	aggregateSpend, err := i.aggregateSpend(ctx, user, from, to)
	if err != nil {
		return false, err
	}
	aggregateStake, err := i.aggregateStakeValue(ctx, user)
	if err != nil {
		return false, err
	}

	reward, err := i.resolver.GetRewardTotal(ctx, aggregateSpend, aggregateStake)
	if err != nil {
		return false, err
	}
	if reward.LessThanOrEqual(decimal.Zero) {
		zap.L().Debug("No reward due for period",
			zap.String("user_id", user.Id),
			zap.String("spend", aggregateSpend.String()),
			zap.String("stake", aggregateStake.String()))
		return false, nil
	}

	_, err = i.store.CreateInstruction(ctx, store.CreateInstructionParams{
		Type:     models.InstructionMonthlyReward,
		Amount:   reward,
		UserId:   user.Id,
		FromDate: from,
		ToDate:   to,
	})
	if err != nil {
		return false, err
	}

	zap.L().Info("Monthly reward instruction issued",
		zap.String("user_id", user.Id),
		zap.String("reward", reward.String()),
		zap.String("spend", aggregateSpend.String()),
		zap.String("stake", aggregateStake.String()))
	return true, nil
}

// aggregateSpend normalizes the user's card spend for the period to the
// reference currency.
func (i *Issuer) aggregateSpend(ctx context.Context, user models.User, from, to time.Time) (decimal.Decimal, error) {
	spend, err := i.spend.GetAggregateSpend(ctx, from, to, user.AccountNumber)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to aggregate card spend: %w", err)
	}
	if spend.Currency == i.referenceCurrency || spend.Amount.IsZero() {
		return spend.Amount, nil
	}
	result, err := i.converter.Convert(ctx, spend.Amount, spend.Currency, i.referenceCurrency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to normalize card spend: %w", err)
	}
	return result.Value, nil
}

// aggregateStakeValue sums the user's confirmed staked balances across all
// wallets, normalized to the reference currency.
func (i *Issuer) aggregateStakeValue(ctx context.Context, user models.User) (decimal.Decimal, error) {
	wallets, err := i.store.GetUserWallets(ctx, user.Id)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to list user wallets: %w", err)
	}

	total := decimal.Zero
	for idx := range wallets {
		wallet := wallets[idx]
		bal, err := i.aggregator.Compute(ctx, &wallet)
		if err != nil {
			return decimal.Zero, err
		}
		if bal.SpendableStakedBalance.IsZero() {
			continue
		}
		currency, err := i.store.GetCryptoCurrency(ctx, wallet.CryptoCurrencyId)
		if err != nil {
			return decimal.Zero, err
		}
		result, err := i.converter.Convert(ctx, bal.SpendableStakedBalance, currency.Symbol, i.referenceCurrency)
		if err != nil {
			return decimal.Zero, fmt.Errorf("unable to normalize staked balance: %w", err)
		}
		total = total.Add(result.Value)
	}
	return total, nil
}
