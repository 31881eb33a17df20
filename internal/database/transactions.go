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
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var confirmed, reviewed sql.NullTime
	err := row.Scan(&tx.Id, &tx.Type, &tx.State, &tx.Amount, &tx.Hash,
		&tx.FromAddress, &tx.ToAddress, &confirmed, &reviewed, &tx.FailedReview,
		&tx.WalletAddressId, &tx.SystemWalletAddressId, &tx.WhitelistAddressId,
		&tx.InstructionId, &tx.CryptoCurrencyId, &tx.UserId, &tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	if confirmed.Valid {
		tx.ConfirmedDate = &confirmed.Time
	}
	if reviewed.Valid {
		tx.ReviewedDate = &reviewed.Time
	}
	return &tx, nil
}

func (s *Service) CreateTransaction(ctx context.Context, params store.CreateTransactionParams) (*models.Transaction, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	var reviewedDate interface{}
	if params.PreReviewed {
		reviewedDate = now
	}
	var confirmedDate interface{}
	if params.PreConfirmed {
		confirmedDate = now
	}

	_, err := s.db.ExecContext(ctx, queryInsertTransaction,
		id, params.Type, params.State, params.Amount.String(), params.Hash,
		params.FromAddress, params.ToAddress, confirmedDate, reviewedDate, false,
		params.WalletAddressId, params.SystemWalletAddressId, params.WhitelistAddressId,
		params.InstructionId, params.CryptoCurrencyId, params.UserId, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateHash
		}
		return nil, fmt.Errorf("unable to insert transaction: %w", err)
	}

	zap.L().Info("Transaction recorded",
		zap.String("transaction_id", id),
		zap.String("type", string(params.Type)),
		zap.String("state", string(params.State)),
		zap.String("hash", params.Hash),
		zap.String("amount", params.Amount.String()))

	return s.getTransaction(ctx, id)
}

func (s *Service) getTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE id = ?"
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("unable to query transaction: %w", err)
	}
	return tx, nil
}

func (s *Service) GetTransactionByHash(ctx context.Context, hash string) (*models.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, queryGetTransactionByHash, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query transaction by hash: %w", err)
	}
	return tx, nil
}

func (s *Service) GetTransactionsForWallet(ctx context.Context, walletAddressId string) ([]models.Transaction, error) {
	return s.queryTransactions(ctx, queryGetTransactionsForWallet, walletAddressId, walletAddressId)
}

func (s *Service) ListPendingTransactions(ctx context.Context) ([]models.Transaction, error) {
	return s.queryTransactions(ctx, queryListPendingTransactions)
}

func (s *Service) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query transactions: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var transactions []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan transaction row: %w", err)
		}
		transactions = append(transactions, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}

// ConfirmTransaction records the chain provider's verdict. ConfirmedDate is
// written once; re-confirming an already-confirmed transfer is a no-op.
func (s *Service) ConfirmTransaction(ctx context.Context, id string, state models.TransactionState, now time.Time) error {
	result, err := s.db.ExecContext(ctx, queryConfirmTransaction, state, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("unable to confirm transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		zap.L().Debug("Transaction already confirmed", zap.String("transaction_id", id))
	}
	return nil
}

func (s *Service) ReviewTransaction(ctx context.Context, id string, passed bool, now time.Time) error {
	_, err := s.db.ExecContext(ctx, queryReviewTransaction, now.UTC(), !passed, id)
	if err != nil {
		return fmt.Errorf("unable to review transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
