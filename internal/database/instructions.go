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
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstruction(row rowScanner) (*models.Instruction, error) {
	var instr models.Instruction
	var pickedUp, completed, failed sql.NullTime
	err := row.Scan(&instr.Id, &instr.Type, &instr.Amount, &instr.UserId,
		&instr.WalletAddressId, &instr.ParentInstructionId, &instr.WhitelistAddressId,
		&instr.FromDate, &instr.ToDate, &instr.ConversionRate, &instr.MonetaryFee,
		&instr.MakeTransactionFee, &pickedUp, &completed, &failed,
		&instr.FailedReason, &instr.Active, &instr.CreatedAt)
	if err != nil {
		return nil, err
	}
	if pickedUp.Valid {
		instr.PickedUpDate = &pickedUp.Time
	}
	if completed.Valid {
		instr.CompletedDate = &completed.Time
	}
	if failed.Valid {
		instr.FailedDate = &failed.Time
	}
	return &instr, nil
}

func (s *Service) CreateInstruction(ctx context.Context, params store.CreateInstructionParams) (*models.Instruction, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, queryInsertInstruction,
		id, params.Type, params.Amount.String(), params.UserId, params.WalletAddressId,
		params.ParentInstructionId, params.WhitelistAddressId, params.FromDate, params.ToDate,
		params.ConversionRate.String(), params.MonetaryFee.String(),
		params.MakeTransactionFee.String(), now)
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
	instr, err := scanInstruction(s.db.QueryRowContext(ctx, queryGetInstruction, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrInstructionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query instruction: %w", err)
	}
	return instr, nil
}

func (s *Service) ListEligibleInstructions(ctx context.Context, instructionType models.InstructionType) ([]models.Instruction, error) {
	return s.queryInstructions(ctx, queryListEligibleInstructions, string(instructionType))
}

func (s *Service) ListOpenInstructionsForUser(ctx context.Context, userId string) ([]models.Instruction, error) {
	return s.queryInstructions(ctx, queryListOpenInstructionsForUser, userId)
}

func (s *Service) ListInstructions(ctx context.Context, filter store.InstructionFilter) ([]models.Instruction, error) {
	var conditions []string
	var args []interface{}

	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.UserId != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserId)
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

	return s.queryInstructions(ctx, query, args...)
}

func (s *Service) queryInstructions(ctx context.Context, query string, args ...interface{}) ([]models.Instruction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query instructions: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var instructions []models.Instruction
	for rows.Next() {
		instr, err := scanInstruction(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan instruction row: %w", err)
		}
		instructions = append(instructions, *instr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instruction rows: %w", err)
	}
	return instructions, nil
}

func (s *Service) HasInstructionForPeriod(ctx context.Context, userId string, instructionType models.InstructionType, from, to time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, queryCountInstructionsForPeriod,
		userId, string(instructionType), from, to).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("unable to count instructions for period: %w", err)
	}
	return count > 0, nil
}

// PickupInstruction claims the instruction for one processor run. The update
// only matches an unclaimed, active, non-terminal row, so under concurrent
// pickups exactly one caller wins; the rest get ErrNotEligible.
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
	result, err := s.db.ExecContext(ctx, queryFailInstruction, now.UTC(), reason, id)
	if err != nil {
		return nil, fmt.Errorf("unable to fail instruction: %w", err)
	}
	if err := s.checkTransition(ctx, result, id, false); err != nil {
		return nil, err
	}
	return s.GetInstruction(ctx, id)
}

func (s *Service) PutBackInstruction(ctx context.Context, id string) (*models.Instruction, error) {
	result, err := s.db.ExecContext(ctx, queryPutBackInstruction, id)
	if err != nil {
		return nil, fmt.Errorf("unable to put back instruction: %w", err)
	}
	if err := s.checkTransition(ctx, result, id, false); err != nil {
		return nil, err
	}
	return s.GetInstruction(ctx, id)
}

// checkTransition maps a zero-row conditional update to the sentinel the
// caller should see.
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
	result, err := s.db.ExecContext(ctx, querySetInstructionActive, active, id)
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
// child batch in one transaction. A failed run must not leave partially
// constructed children behind, so any error rolls everything back.
func (s *Service) CompleteInstructionWithChildren(ctx context.Context, parentId string, children []store.CreateInstructionParams, now time.Time) ([]models.Instruction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
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
			id, child.Type, child.Amount.String(), child.UserId, child.WalletAddressId,
			parentId, child.WhitelistAddressId, child.FromDate, child.ToDate,
			child.ConversionRate.String(), child.MonetaryFee.String(),
			child.MakeTransactionFee.String(), now.UTC())
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
