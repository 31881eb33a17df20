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

// Package bands maps aggregate card spend and staking value to a reward
// percentage. Band ranges are inclusive on both ends; amounts above every
// band fall back to the band with the highest upper bound.
package bands

import (
	"context"
	"errors"
	"fmt"

	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/shopspring/decimal"
)

var (
	ErrBandRange   = errors.New("band range is invalid")
	ErrBandPercent = errors.New("percentage reward must be positive")
	ErrBandOverlap = errors.New("band range overlaps an existing active band")
)

var oneHundred = decimal.NewFromInt(100)

// Resolver looks up reward bands and computes reward totals.
type Resolver struct {
	store store.LedgerStore
}

func NewResolver(ledger store.LedgerStore) *Resolver {
	return &Resolver{store: ledger}
}

// GetRewardTotal returns the summed reward for the given aggregate spend and
// stake: for each side, the matching band's percentage applied to
// min(amount, band.upTo).
func (r *Resolver) GetRewardTotal(ctx context.Context, aggregateSpend, aggregateStake decimal.Decimal) (decimal.Decimal, error) {
	bands, err := r.store.ListActiveRewardBands(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to load reward bands: %w", err)
	}

	total := contribution(selectBand(bands, models.BandSpend, aggregateSpend), aggregateSpend)
	total = total.Add(contribution(selectBand(bands, models.BandStake, aggregateStake), aggregateStake))
	return total, nil
}

// selectBand picks the band of the given type containing amount
// (bandFrom <= amount <= bandTo, both ends inclusive). When the amount
// exceeds every band, the band with the highest bandTo applies.
func selectBand(all []models.RewardBand, bandType models.RewardBandType, amount decimal.Decimal) *models.RewardBand {
	var highest *models.RewardBand
	for i := range all {
		band := &all[i]
		if band.Type != bandType {
			continue
		}
		if band.BandFrom.LessThanOrEqual(amount) && amount.LessThanOrEqual(band.BandTo) {
			return band
		}
		if highest == nil || band.BandTo.GreaterThan(highest.BandTo) {
			highest = band
		}
	}
	if highest != nil && amount.GreaterThan(highest.BandTo) {
		return highest
	}
	return nil
}

func contribution(band *models.RewardBand, amount decimal.Decimal) decimal.Decimal {
	if band == nil || amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	capped := decimal.Min(amount, band.UpTo)
	return capped.Div(oneHundred).Mul(band.PercentageReward)
}

// CreateBand validates and inserts a new reward band. The new range must not
// intersect any existing active band of the same type.
func (r *Resolver) CreateBand(ctx context.Context, params store.CreateBandParams) (*models.RewardBand, error) {
	if params.BandFrom.GreaterThan(params.BandTo) {
		return nil, fmt.Errorf("%w: bandFrom %s exceeds bandTo %s",
			ErrBandRange, params.BandFrom.String(), params.BandTo.String())
	}
	if params.BandTo.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: bandTo %s must be positive", ErrBandRange, params.BandTo.String())
	}
	if params.PercentageReward.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: got %s", ErrBandPercent, params.PercentageReward.String())
	}
	if params.UpTo.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: upTo %s must be positive", ErrBandRange, params.UpTo.String())
	}

	existing, err := r.store.ListActiveRewardBands(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load reward bands: %w", err)
	}
	for _, band := range existing {
		if band.Type != params.Type {
			continue
		}
		// Closed-interval intersection in either direction.
		if params.BandFrom.LessThanOrEqual(band.BandTo) && band.BandFrom.LessThanOrEqual(params.BandTo) {
			return nil, fmt.Errorf("%w: [%s, %s] intersects existing band [%s, %s]",
				ErrBandOverlap, params.BandFrom.String(), params.BandTo.String(),
				band.BandFrom.String(), band.BandTo.String())
		}
	}

	return r.store.InsertRewardBand(ctx, params)
}
