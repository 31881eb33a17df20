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
	"time"

	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const transactionColumns = `id, type, state, amount, hash, from_address, to_address,
	confirmed_date, reviewed_date, failed_review, wallet_address_id,
	system_wallet_address_id, whitelist_address_id, instruction_id,
	crypto_currency_id, user_id, created_at`

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

	query := `
		INSERT INTO transactions (id, type, state, amount, hash, from_address, to_address,
			confirmed_date, reviewed_date, failed_review, wallet_address_id,
			system_wallet_address_id, whitelist_address_id, instruction_id,
			crypto_currency_id, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := s.db.ExecContext(ctx, query,
		id, params.Type, params.State, params.Amount, params.Hash,
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

	var tx models.Transaction
	get := "SELECT " + transactionColumns + " FROM transactions WHERE id = $1"
	if err := s.db.GetContext(ctx, &tx, get, id); err != nil {
		return nil, fmt.Errorf("unable to query transaction: %w", err)
	}
	return &tx, nil
}

func (s *Service) GetTransactionByHash(ctx context.Context, hash string) (*models.Transaction, error) {
	var tx models.Transaction
	query := "SELECT " + transactionColumns + " FROM transactions WHERE hash = $1"
	err := s.db.GetContext(ctx, &tx, query, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query transaction by hash: %w", err)
	}
	return &tx, nil
}

func (s *Service) GetTransactionsForWallet(ctx context.Context, walletAddressId string) ([]models.Transaction, error) {
	query := "SELECT " + transactionColumns + ` FROM transactions
		WHERE wallet_address_id = $1 OR system_wallet_address_id = $1
		ORDER BY created_at`
	var transactions []models.Transaction
	if err := s.db.SelectContext(ctx, &transactions, query, walletAddressId); err != nil {
		return nil, fmt.Errorf("unable to query transactions: %w", err)
	}
	return transactions, nil
}

func (s *Service) ListPendingTransactions(ctx context.Context) ([]models.Transaction, error) {
	query := "SELECT " + transactionColumns + ` FROM transactions
		WHERE state = 'PENDING' AND hash != ''
		ORDER BY created_at`
	var transactions []models.Transaction
	if err := s.db.SelectContext(ctx, &transactions, query); err != nil {
		return nil, fmt.Errorf("unable to query pending transactions: %w", err)
	}
	return transactions, nil
}

// ConfirmTransaction records the chain provider's verdict. ConfirmedDate is
// written once; re-confirming an already-confirmed transfer is a no-op.
func (s *Service) ConfirmTransaction(ctx context.Context, id string, state models.TransactionState, now time.Time) error {
	query := `UPDATE transactions SET state = $1, confirmed_date = $2
		WHERE id = $3 AND confirmed_date IS NULL`
	result, err := s.db.ExecContext(ctx, query, state, now.UTC(), id)
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
	query := `UPDATE transactions SET reviewed_date = $1, failed_review = $2 WHERE id = $3`
	if _, err := s.db.ExecContext(ctx, query, now.UTC(), !passed, id); err != nil {
		return fmt.Errorf("unable to review transaction: %w", err)
	}
	return nil
}
