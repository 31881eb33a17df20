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

	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const userColumns = `id, name, email, account_number, active, created_at, updated_at`

func (s *Service) GetActiveUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	query := "SELECT " + userColumns + " FROM users WHERE active ORDER BY created_at"
	if err := s.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("unable to query users: %w", err)
	}
	return users, nil
}

func (s *Service) GetUserById(ctx context.Context, userId string) (*models.User, error) {
	var user models.User
	query := "SELECT " + userColumns + " FROM users WHERE id = $1"
	err := s.db.GetContext(ctx, &user, query, userId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query user: %w", err)
	}
	return &user, nil
}

func (s *Service) CreateUser(ctx context.Context, name, email, accountNumber string) (*models.User, error) {
	id := uuid.New().String()
	query := `INSERT INTO users (id, name, email, account_number) VALUES ($1, $2, $3, $4)`
	if _, err := s.db.ExecContext(ctx, query, id, name, email, accountNumber); err != nil {
		return nil, fmt.Errorf("unable to insert user: %w", err)
	}
	zap.L().Info("User created", zap.String("user_id", id), zap.String("email", email))
	return s.GetUserById(ctx, id)
}

const currencyColumns = `id, symbol, name, infrastructure, network, test_net, reference_rate, active`

func (s *Service) GetCryptoCurrency(ctx context.Context, id string) (*models.CryptoCurrency, error) {
	var currency models.CryptoCurrency
	query := "SELECT " + currencyColumns + " FROM crypto_currencies WHERE id = $1"
	err := s.db.GetContext(ctx, &currency, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrCurrencyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query crypto currency: %w", err)
	}
	return &currency, nil
}

func (s *Service) GetCryptoCurrencyBySymbol(ctx context.Context, symbol string) (*models.CryptoCurrency, error) {
	var currency models.CryptoCurrency
	query := "SELECT " + currencyColumns + " FROM crypto_currencies WHERE symbol = $1"
	err := s.db.GetContext(ctx, &currency, query, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrCurrencyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query crypto currency: %w", err)
	}
	return &currency, nil
}

func (s *Service) ListCryptoCurrencies(ctx context.Context) ([]models.CryptoCurrency, error) {
	var currencies []models.CryptoCurrency
	query := "SELECT " + currencyColumns + " FROM crypto_currencies ORDER BY symbol"
	if err := s.db.SelectContext(ctx, &currencies, query); err != nil {
		return nil, fmt.Errorf("unable to query crypto currencies: %w", err)
	}
	return currencies, nil
}

func (s *Service) UpsertCryptoCurrency(ctx context.Context, currency models.CryptoCurrency) error {
	query := `
		INSERT INTO crypto_currencies (id, symbol, name, infrastructure, network, test_net, reference_rate, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			infrastructure = EXCLUDED.infrastructure,
			network = EXCLUDED.network,
			test_net = EXCLUDED.test_net,
			reference_rate = EXCLUDED.reference_rate,
			active = EXCLUDED.active`
	_, err := s.db.ExecContext(ctx, query,
		currency.Id, currency.Symbol, currency.Name, currency.Infrastructure,
		currency.Network, currency.TestNet, currency.ReferenceRate, currency.Active)
	if err != nil {
		return fmt.Errorf("unable to upsert crypto currency: %w", err)
	}
	return nil
}

const walletColumns = `id, user_id, crypto_currency_id, address, key_ref, custody_wallet_id, purpose, created_at`

func (s *Service) CreateWalletAddress(ctx context.Context, params store.CreateWalletParams) (*models.WalletAddress, error) {
	id := uuid.New().String()
	query := `
		INSERT INTO wallet_addresses (id, user_id, crypto_currency_id, address, key_ref, custody_wallet_id, purpose)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.ExecContext(ctx, query,
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
	var wallet models.WalletAddress
	query := "SELECT " + walletColumns + " FROM wallet_addresses WHERE id = $1"
	err := s.db.GetContext(ctx, &wallet, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query wallet address: %w", err)
	}
	return &wallet, nil
}

func (s *Service) GetUserWalletForCurrency(ctx context.Context, userId, currencyId string) (*models.WalletAddress, error) {
	var wallet models.WalletAddress
	query := "SELECT " + walletColumns + ` FROM wallet_addresses
		WHERE user_id = $1 AND crypto_currency_id = $2 AND purpose = 'USER'
		ORDER BY created_at
		LIMIT 1`
	err := s.db.GetContext(ctx, &wallet, query, userId, currencyId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query user wallet: %w", err)
	}
	return &wallet, nil
}

func (s *Service) GetUserWallets(ctx context.Context, userId string) ([]models.WalletAddress, error) {
	var wallets []models.WalletAddress
	query := "SELECT " + walletColumns + ` FROM wallet_addresses
		WHERE user_id = $1 AND purpose = 'USER'
		ORDER BY created_at`
	if err := s.db.SelectContext(ctx, &wallets, query, userId); err != nil {
		return nil, fmt.Errorf("unable to query user wallets: %w", err)
	}
	return wallets, nil
}

func (s *Service) GetSystemWallet(ctx context.Context, currencyId string, purpose models.WalletPurpose) (*models.WalletAddress, error) {
	var wallet models.WalletAddress
	query := "SELECT " + walletColumns + ` FROM wallet_addresses
		WHERE crypto_currency_id = $1 AND purpose = $2
		ORDER BY created_at
		LIMIT 1`
	err := s.db.GetContext(ctx, &wallet, query, currencyId, purpose)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query system wallet: %w", err)
	}
	return &wallet, nil
}

func (s *Service) CreateWhitelistAddress(ctx context.Context, userId, currencyId, address, label string) (*models.WhitelistAddress, error) {
	id := uuid.New().String()
	query := `
		INSERT INTO whitelist_addresses (id, user_id, crypto_currency_id, address, label)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, query, id, userId, currencyId, address, label); err != nil {
		return nil, fmt.Errorf("unable to insert whitelist address: %w", err)
	}
	return s.GetWhitelistAddress(ctx, id)
}

func (s *Service) GetWhitelistAddress(ctx context.Context, id string) (*models.WhitelistAddress, error) {
	var w models.WhitelistAddress
	query := `SELECT id, user_id, crypto_currency_id, address, label, created_at
		FROM whitelist_addresses WHERE id = $1`
	err := s.db.GetContext(ctx, &w, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query whitelist address: %w", err)
	}
	return &w, nil
}
