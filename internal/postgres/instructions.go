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
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const instructionColumns = `id, type, amount, user_id, wallet_address_id, parent_instruction_id,
	whitelist_address_id, from_date, to_date, conversion_rate, monetary_fee,
	make_transaction_fee, picked_up_date, completed_date, failed_date,
	failed_reason, active, created_at`

const queryInsertInstruction = `
	INSERT INTO instructions (id, type, amount, user_id, wallet_address_id,
		parent_instruction_id, whitelist_address_id, from_date, to_date,
		conversion_rate, monetary_fee, make_transaction_fee, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func (s *Service) CreateInstruction(ctx context.Context, params store.CreateInstructionParams) (*models.Instruction, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, queryInsertInstruction,
		id, params.Type, params.Amount, params.UserId, params.WalletAddressId,
		params.ParentInstructionId, params.WhitelistAddressId, params.FromDate, params.ToDate,
		params.ConversionRate, params.MonetaryFee, params.MakeTransactionFee, now)
	if err != nil {
		return nil, fmt.Errorf("unable to insert instruction: %w", err)
	}

	zap.L().Info("Instruction created",
		zap.String("instruction_id", id),
		zap.String("type", string(params.Type)),
		zap.String("user_id", params.UserId),
		zap.String("amount", params.Amount.String()))

	return s.GetInstruction(ctx, id)
}

func (s *Service) GetInstruction(ctx context.Context, id string) (*models.Instruction, error) {
	var instr models.Instruction
	query := "SELECT " + instructionColumns + " FROM instructions WHERE id = $1"
	err := s.db.GetContext(ctx, &instr, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrInstructionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query instruction: %w", err)
	}
	return &instr, nil
}

func (s *Service) ListEligibleInstructions(ctx context.Context, instructionType models.InstructionType) ([]models.Instruction, error) {
	query := "SELECT " + instructionColumns + ` FROM instructions
		WHERE type = $1 AND active
			AND picked_up_date IS NULL AND completed_date IS NULL AND failed_date IS NULL
		ORDER BY created_at`
	var instructions []models.Instruction
	if err := s.db.SelectContext(ctx, &instructions, query, string(instructionType)); err != nil {
		return nil, fmt.Errorf("unable to query eligible instructions: %w", err)
	}
	return instructions, nil
}

func (s *Service) ListOpenInstructionsForUser(ctx context.Context, userId string) ([]models.Instruction, error) {
	query := "SELECT " + instructionColumns + ` FROM instructions
		WHERE user_id = $1 AND active AND completed_date IS NULL AND failed_date IS NULL
		ORDER BY created_at`
	var instructions []models.Instruction
	if err := s.db.SelectContext(ctx, &instructions, query, userId); err != nil {
		return nil, fmt.Errorf("unable to query open instructions: %w", err)
	}
	return instructions, nil
}

func (s *Service) ListInstructions(ctx context.Context, filter store.InstructionFilter) ([]models.Instruction, error) {
	var conditions []string
	var args []interface{}

	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.UserId != "" {
		args = append(args, filter.UserId)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Failed {
		conditions = append(conditions, "failed_date IS NOT NULL")
	}

	query := "SELECT " + instructionColumns + " FROM instructions"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var instructions []models.Instruction
	if err := s.db.SelectContext(ctx, &instructions, query, args...); err != nil {
		return nil, fmt.Errorf("unable to query instructions: %w", err)
	}
	return instructions, nil
}

func (s *Service) HasInstructionForPeriod(ctx context.Context, userId string, instructionType models.InstructionType, from, to time.Time) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM instructions
		WHERE user_id = $1 AND type = $2 AND from_date = $3 AND to_date = $4`
	err := s.db.GetContext(ctx, &count, query, userId, string(instructionType), from, to)
	if err != nil {
		return false, fmt.Errorf("unable to count instructions for period: %w", err)
	}
	return count > 0, nil
}

// The lease. Same conditional update as the SQLite backend: only an active,
// unclaimed, non-terminal row matches, so concurrent pickups lose cleanly.
const queryPickupInstruction = `
	UPDATE instructions
	SET picked_up_date = $1
	WHERE id = $2 AND active
		AND picked_up_date IS NULL AND completed_date IS NULL AND failed_date IS NULL`

const queryCompleteInstruction = `
	UPDATE instructions
	SET completed_date = $1
	WHERE id = $2 AND picked_up_date IS NOT NULL
		AND completed_date IS NULL AND failed_date IS NULL`

func (s *Service) PickupInstruction(ctx context.Context, id string, now time.Time) (*models.Instruction, error) {
	result, err := s.db.ExecContext(ctx, queryPickupInstruction, now.UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("unable to pick up instruction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to read pickup result: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetInstruction(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.ErrNotEligible
	}
	return s.GetInstruction(ctx, id)
}

func (s *Service) CompleteInstruction(ctx context.Context, id string, now time.Time) (*models.Instruction, error) {
	result, err := s.db.ExecContext(ctx, queryCompleteInstruction, now.UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("unable to complete instruction: %w", err)
	}
	if err := s.checkTransition(ctx, result, id, true); err != nil {
		return nil, err
	}
	return s.GetInstruction(ctx, id)
}

func (s *Service) FailInstruction(ctx context.Context, id, reason string, now time.Time) (*models.Instruction, error) {
	query := `UPDATE instructions SET failed_date = $1, failed_reason = $2
		WHERE id = $3 AND completed_date IS NULL AND failed_date IS NULL`
	result, err := s.db.ExecContext(ctx, query, now.UTC(), reason, id)
	if err != nil {
		return nil, fmt.Errorf("unable to fail instruction: %w", err)
	}
	if err := s.checkTransition(ctx, result, id, false); err != nil {
		return nil, err
	}
	return s.GetInstruction(ctx, id)
}

func (s *Service) PutBackInstruction(ctx context.Context, id string) (*models.Instruction, error) {
	query := `UPDATE instructions SET picked_up_date = NULL
		WHERE id = $1 AND completed_date IS NULL AND failed_date IS NULL`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("unable to put back instruction: %w", err)
	}
	if err := s.checkTransition(ctx, result, id, false); err != nil {
		return nil, err
	}
	return s.GetInstruction(ctx, id)
}

func (s *Service) checkTransition(ctx context.Context, result sql.Result, id string, needsPickup bool) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to read transition result: %w", err)
	}
	if affected > 0 {
		return nil
	}
	instr, err := s.GetInstruction(ctx, id)
	if err != nil {
		return err
	}
	if instr.Terminal() {
		return store.ErrInstructionTerminal
	}
	if needsPickup && instr.PickedUpDate == nil {
		return store.ErrNotPickedUp
	}
	return fmt.Errorf("instruction %s transition rejected", id)
}

func (s *Service) SetInstructionActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.ExecContext(ctx, "UPDATE instructions SET active = $1 WHERE id = $2", active, id)
	if err != nil {
		return fmt.Errorf("unable to update instruction active flag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrInstructionNotFound
	}
	return nil
}

// CompleteInstructionWithChildren completes the parent and inserts the full
// child batch in one transaction; any error rolls everything back.
func (s *Service) CompleteInstructionWithChildren(ctx context.Context, parentId string, children []store.CreateInstructionParams, now time.Time) ([]models.Instruction, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zap.L().Warn("Failed to roll back transaction", zap.Error(err))
		}
	}()

	result, err := tx.ExecContext(ctx, queryCompleteInstruction, now.UTC(), parentId)
	if err != nil {
		return nil, fmt.Errorf("unable to complete parent instruction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotPickedUp
	}

	childIds := make([]string, 0, len(children))
	for _, child := range children {
		id := uuid.New().String()
		_, err := tx.ExecContext(ctx, queryInsertInstruction,
			id, child.Type, child.Amount, child.UserId, child.WalletAddressId,
			parentId, child.WhitelistAddressId, child.FromDate, child.ToDate,
			child.ConversionRate, child.MonetaryFee, child.MakeTransactionFee, now.UTC())
		if err != nil {
			return nil, fmt.Errorf("unable to insert child instruction: %w", err)
		}
		childIds = append(childIds, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("unable to commit child batch: %w", err)
	}

	zap.L().Info("Parent instruction completed with children",
		zap.String("parent_instruction_id", parentId),
		zap.Int("children", len(childIds)))

	inserted := make([]models.Instruction, 0, len(childIds))
	for _, id := range childIds {
		instr, err := s.GetInstruction(ctx, id)
		if err != nil {
			return nil, err
		}
		inserted = append(inserted, *instr)
	}
	return inserted, nil
}
