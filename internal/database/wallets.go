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

	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanWallet(row rowScanner) (*models.WalletAddress, error) {
	var w models.WalletAddress
	err := row.Scan(&w.Id, &w.UserId, &w.CryptoCurrencyId, &w.Address,
		&w.KeyRef, &w.CustodyWalletId, &w.Purpose, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Service) CreateWalletAddress(ctx context.Context, params store.CreateWalletParams) (*models.WalletAddress, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, queryInsertWallet,
		id, params.UserId, params.CryptoCurrencyId, params.Address,
		params.KeyRef, params.CustodyWalletId, params.Purpose)
	if err != nil {
		return nil, fmt.Errorf("unable to insert wallet address: %w", err)
	}

	zap.L().Info("Wallet address created",
		zap.String("wallet_address_id", id),
		zap.String("user_id", params.UserId),
		zap.String("crypto_currency_id", params.CryptoCurrencyId),
		zap.String("purpose", string(params.Purpose)))

	return s.GetWalletAddress(ctx, id)
}

func (s *Service) GetWalletAddress(ctx context.Context, id string) (*models.WalletAddress, error) {
	wallet, err := scanWallet(s.db.QueryRowContext(ctx, queryGetWallet, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query wallet address: %w", err)
	}
	return wallet, nil
}

func (s *Service) GetUserWalletForCurrency(ctx context.Context, userId, currencyId string) (*models.WalletAddress, error) {
	wallet, err := scanWallet(s.db.QueryRowContext(ctx, queryGetUserWalletForCurrency, userId, currencyId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query user wallet: %w", err)
	}
	return wallet, nil
}

func (s *Service) GetUserWallets(ctx context.Context, userId string) ([]models.WalletAddress, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUserWallets, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query user wallets: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var wallets []models.WalletAddress
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan wallet row: %w", err)
		}
		wallets = append(wallets, *wallet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}
	return wallets, nil
}

func (s *Service) GetSystemWallet(ctx context.Context, currencyId string, purpose models.WalletPurpose) (*models.WalletAddress, error) {
	wallet, err := scanWallet(s.db.QueryRowContext(ctx, queryGetSystemWallet, currencyId, purpose))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query system wallet: %w", err)
	}
	return wallet, nil
}

func (s *Service) CreateWhitelistAddress(ctx context.Context, userId, currencyId, address, label string) (*models.WhitelistAddress, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, queryInsertWhitelist, id, userId, currencyId, address, label)
	if err != nil {
		return nil, fmt.Errorf("unable to insert whitelist address: %w", err)
	}
	return s.GetWhitelistAddress(ctx, id)
}

func (s *Service) GetWhitelistAddress(ctx context.Context, id string) (*models.WhitelistAddress, error) {
	var w models.WhitelistAddress
	err := s.db.QueryRowContext(ctx, queryGetWhitelist, id).Scan(
		&w.Id, &w.UserId, &w.CryptoCurrencyId, &w.Address, &w.Label, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query whitelist address: %w", err)
	}
	return &w, nil
}
