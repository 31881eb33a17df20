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

// Package postgres is the production ledger backend. It satisfies the same
// store contract as the SQLite backend, so the engine, processors, and tests
// run unchanged against either.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

type Service struct {
	db *sqlx.DB
}

func NewService(ctx context.Context, cfg models.PostgresConfig) (*Service, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN cannot be empty")
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Connecting to Postgres")
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.InitSchema(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Postgres service initialized successfully")
	return service, nil
}

// NewServiceWithDB wraps an already-open handle. Used by tests that run
// against a disposable database.
func NewServiceWithDB(db *sqlx.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		account_number TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_users_active ON users(active);

	CREATE TABLE IF NOT EXISTS crypto_currencies (
		id UUID PRIMARY KEY,
		symbol TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		infrastructure TEXT NOT NULL,
		network TEXT NOT NULL,
		test_net BOOLEAN NOT NULL DEFAULT FALSE,
		reference_rate NUMERIC NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS wallet_addresses (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		crypto_currency_id UUID NOT NULL REFERENCES crypto_currencies(id),
		address TEXT NOT NULL,
		key_ref TEXT NOT NULL DEFAULT '',
		custody_wallet_id TEXT NOT NULL DEFAULT '',
		purpose TEXT NOT NULL DEFAULT 'USER',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_addresses_user_currency
		ON wallet_addresses(user_id, crypto_currency_id);
	CREATE INDEX IF NOT EXISTS idx_wallet_addresses_purpose
		ON wallet_addresses(crypto_currency_id, purpose);

	CREATE TABLE IF NOT EXISTS whitelist_addresses (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		crypto_currency_id UUID NOT NULL REFERENCES crypto_currencies(id),
		address TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS instructions (
		id UUID PRIMARY KEY,
		type TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		user_id TEXT NOT NULL,
		wallet_address_id TEXT NOT NULL DEFAULT '',
		parent_instruction_id TEXT NOT NULL DEFAULT '',
		whitelist_address_id TEXT NOT NULL DEFAULT '',
		from_date TIMESTAMPTZ NOT NULL,
		to_date TIMESTAMPTZ NOT NULL,
		conversion_rate NUMERIC NOT NULL DEFAULT 0,
		monetary_fee NUMERIC NOT NULL DEFAULT 0,
		make_transaction_fee NUMERIC NOT NULL DEFAULT 0,
		picked_up_date TIMESTAMPTZ,
		completed_date TIMESTAMPTZ,
		failed_date TIMESTAMPTZ,
		failed_reason TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_instructions_eligible
		ON instructions(type, active, picked_up_date);
	CREATE INDEX IF NOT EXISTS idx_instructions_user ON instructions(user_id);
	CREATE INDEX IF NOT EXISTS idx_instructions_period
		ON instructions(user_id, type, from_date, to_date);
	CREATE INDEX IF NOT EXISTS idx_instructions_parent
		ON instructions(parent_instruction_id);

	CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY,
		type TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'PENDING',
		amount NUMERIC NOT NULL,
		hash TEXT NOT NULL DEFAULT '',
		from_address TEXT NOT NULL DEFAULT '',
		to_address TEXT NOT NULL DEFAULT '',
		confirmed_date TIMESTAMPTZ,
		reviewed_date TIMESTAMPTZ,
		failed_review BOOLEAN NOT NULL DEFAULT FALSE,
		wallet_address_id TEXT NOT NULL DEFAULT '',
		system_wallet_address_id TEXT NOT NULL DEFAULT '',
		whitelist_address_id TEXT NOT NULL DEFAULT '',
		instruction_id TEXT NOT NULL DEFAULT '',
		crypto_currency_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_hash
		ON transactions(hash) WHERE hash != '';
	CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions(wallet_address_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_state ON transactions(state);
	CREATE INDEX IF NOT EXISTS idx_transactions_instruction ON transactions(instruction_id);

	CREATE TABLE IF NOT EXISTS reward_bands (
		id UUID PRIMARY KEY,
		type TEXT NOT NULL,
		band_from NUMERIC NOT NULL,
		band_to NUMERIC NOT NULL,
		up_to NUMERIC NOT NULL,
		percentage_reward NUMERIC NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_reward_bands_active ON reward_bands(active, type);

	CREATE TABLE IF NOT EXISTS reward_selections (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		crypto_currency_id UUID NOT NULL REFERENCES crypto_currencies(id),
		percentage NUMERIC NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(user_id, crypto_currency_id)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
