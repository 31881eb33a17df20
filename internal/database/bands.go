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

package database

import (
	"context"
	"database/sql"
	"fmt"

	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) InsertRewardBand(ctx context.Context, params store.CreateBandParams) (*models.RewardBand, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, queryInsertRewardBand,
		id, params.Type, params.BandFrom.String(), params.BandTo.String(),
		params.UpTo.String(), params.PercentageReward.String())
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
	rows, err := s.db.QueryContext(ctx, queryListActiveRewardBands)
	if err != nil {
		return nil, fmt.Errorf("unable to query reward bands: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var bands []models.RewardBand
	for rows.Next() {
		var band models.RewardBand
		err := rows.Scan(&band.Id, &band.Type, &band.BandFrom, &band.BandTo,
			&band.UpTo, &band.PercentageReward, &band.Active, &band.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("unable to scan reward band row: %w", err)
		}
		bands = append(bands, band)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reward band rows: %w", err)
	}
	return bands, nil
}

func (s *Service) DeactivateRewardBand(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, queryDeactivateRewardBand, id)
	if err != nil {
		return fmt.Errorf("unable to deactivate reward band: %w", err)
	}
	return nil
}

func (s *Service) GetRewardSelections(ctx context.Context, userId string) ([]models.RewardSelection, error) {
	rows, err := s.db.QueryContext(ctx, queryGetRewardSelections, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query reward selections: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var selections []models.RewardSelection
	for rows.Next() {
		var sel models.RewardSelection
		err := rows.Scan(&sel.Id, &sel.UserId, &sel.CryptoCurrencyId, &sel.Percentage, &sel.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("unable to scan reward selection row: %w", err)
		}
		selections = append(selections, sel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reward selection rows: %w", err)
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, queryDeleteRewardSelections, userId); err != nil {
		return fmt.Errorf("unable to clear reward selections: %w", err)
	}
	for _, sel := range selections {
		_, err := tx.ExecContext(ctx, queryInsertRewardSelection,
			uuid.New().String(), userId, sel.CryptoCurrencyId, sel.Percentage.String())
		if err != nil {
			return fmt.Errorf("unable to insert reward selection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit reward selections: %w", err)
	}
	return nil
}
