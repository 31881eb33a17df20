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

package postgres

import (
	"context"
	"fmt"

	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) InsertRewardBand(ctx context.Context, params store.CreateBandParams) (*models.RewardBand, error) {
	id := uuid.New().String()
	query := `
		INSERT INTO reward_bands (id, type, band_from, band_to, up_to, percentage_reward)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, query,
		id, params.Type, params.BandFrom, params.BandTo, params.UpTo, params.PercentageReward)
	if err != nil {
		return nil, fmt.Errorf("unable to insert reward band: %w", err)
	}

	zap.L().Info("Reward band created",
		zap.String("band_id", id),
		zap.String("type", string(params.Type)),
		zap.String("band_from", params.BandFrom.String()),
		zap.String("band_to", params.BandTo.String()))

	return &models.RewardBand{
		Id:               id,
		Type:             params.Type,
		BandFrom:         params.BandFrom,
		BandTo:           params.BandTo,
		UpTo:             params.UpTo,
		PercentageReward: params.PercentageReward,
		Active:           true,
	}, nil
}

func (s *Service) ListActiveRewardBands(ctx context.Context) ([]models.RewardBand, error) {
	var bands []models.RewardBand
	query := `SELECT id, type, band_from, band_to, up_to, percentage_reward, active, created_at
		FROM reward_bands
		WHERE active
		ORDER BY type, band_from`
	if err := s.db.SelectContext(ctx, &bands, query); err != nil {
		return nil, fmt.Errorf("unable to query reward bands: %w", err)
	}
	return bands, nil
}

func (s *Service) DeactivateRewardBand(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE reward_bands SET active = FALSE WHERE id = $1", id); err != nil {
		return fmt.Errorf("unable to deactivate reward band: %w", err)
	}
	return nil
}

func (s *Service) GetRewardSelections(ctx context.Context, userId string) ([]models.RewardSelection, error) {
	var selections []models.RewardSelection
	query := `SELECT id, user_id, crypto_currency_id, percentage, created_at
		FROM reward_selections
		WHERE user_id = $1
		ORDER BY created_at`
	if err := s.db.SelectContext(ctx, &selections, query, userId); err != nil {
		return nil, fmt.Errorf("unable to query reward selections: %w", err)
	}
	return selections, nil
}

// ReplaceRewardSelections swaps a user's full selection set. Percentages must
// sum to exactly 100 unless the set is being cleared, and a currency may
// appear only once.
func (s *Service) ReplaceRewardSelections(ctx context.Context, userId string, selections []models.RewardSelection) error {
	if len(selections) > 0 {
		total := decimal.Zero
		seen := make(map[string]bool, len(selections))
		for _, sel := range selections {
			if seen[sel.CryptoCurrencyId] {
				return store.ErrDuplicateSelection
			}
			seen[sel.CryptoCurrencyId] = true
			total = total.Add(sel.Percentage)
		}
		if !total.Equal(decimal.NewFromInt(100)) {
			return store.ErrSelectionSum
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM reward_selections WHERE user_id = $1", userId); err != nil {
		return fmt.Errorf("unable to clear reward selections: %w", err)
	}
	for _, sel := range selections {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO reward_selections (id, user_id, crypto_currency_id, percentage) VALUES ($1, $2, $3, $4)",
			uuid.New().String(), userId, sel.CryptoCurrencyId, sel.Percentage)
		if err != nil {
			return fmt.Errorf("unable to insert reward selection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit reward selections: %w", err)
	}
	return nil
}
