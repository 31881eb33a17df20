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

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.InitSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

// NewServiceWithDB wraps an already-open handle. Used by tests that run
// against an in-memory database.
func NewServiceWithDB(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		account_number TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_active ON users(active);

	CREATE TABLE IF NOT EXISTS crypto_currencies (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		infrastructure TEXT NOT NULL,
		network TEXT NOT NULL,
		test_net INTEGER NOT NULL DEFAULT 0,
		reference_rate TEXT NOT NULL DEFAULT '0',
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS wallet_addresses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		crypto_currency_id TEXT NOT NULL REFERENCES crypto_currencies(id),
		address TEXT NOT NULL,
		key_ref TEXT NOT NULL DEFAULT '',
		custody_wallet_id TEXT NOT NULL DEFAULT '',
		purpose TEXT NOT NULL DEFAULT 'USER',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_addresses_user_currency
		ON wallet_addresses(user_id, crypto_currency_id);
	CREATE INDEX IF NOT EXISTS idx_wallet_addresses_purpose
		ON wallet_addresses(crypto_currency_id, purpose);

	CREATE TABLE IF NOT EXISTS whitelist_addresses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		crypto_currency_id TEXT NOT NULL REFERENCES crypto_currencies(id),
		address TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS instructions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		user_id TEXT NOT NULL,
		wallet_address_id TEXT NOT NULL DEFAULT '',
		parent_instruction_id TEXT NOT NULL DEFAULT '',
		whitelist_address_id TEXT NOT NULL DEFAULT '',
		from_date TIMESTAMP NOT NULL,
		to_date TIMESTAMP NOT NULL,
		conversion_rate TEXT NOT NULL DEFAULT '0',
		monetary_fee TEXT NOT NULL DEFAULT '0',
		make_transaction_fee TEXT NOT NULL DEFAULT '0',
		picked_up_date TIMESTAMP,
		completed_date TIMESTAMP,
		failed_date TIMESTAMP,
		failed_reason TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Eligibility scans run every scheduler tick
	CREATE INDEX IF NOT EXISTS idx_instructions_eligible
		ON instructions(type, active, picked_up_date);
	CREATE INDEX IF NOT EXISTS idx_instructions_user ON instructions(user_id);
	CREATE INDEX IF NOT EXISTS idx_instructions_period
		ON instructions(user_id, type, from_date, to_date);
	CREATE INDEX IF NOT EXISTS idx_instructions_parent
		ON instructions(parent_instruction_id);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'PENDING',
		amount TEXT NOT NULL,
		hash TEXT NOT NULL DEFAULT '',
		from_address TEXT NOT NULL DEFAULT '',
		to_address TEXT NOT NULL DEFAULT '',
		confirmed_date TIMESTAMP,
		reviewed_date TIMESTAMP,
		failed_review INTEGER NOT NULL DEFAULT 0,
		wallet_address_id TEXT NOT NULL DEFAULT '',
		system_wallet_address_id TEXT NOT NULL DEFAULT '',
		whitelist_address_id TEXT NOT NULL DEFAULT '',
		instruction_id TEXT NOT NULL DEFAULT '',
		crypto_currency_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Hash is unique when present
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_hash
		ON transactions(hash) WHERE hash != '';
	CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions(wallet_address_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_state ON transactions(state);
	CREATE INDEX IF NOT EXISTS idx_transactions_instruction ON transactions(instruction_id);

	CREATE TABLE IF NOT EXISTS reward_bands (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		band_from TEXT NOT NULL,
		band_to TEXT NOT NULL,
		up_to TEXT NOT NULL,
		percentage_reward TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_reward_bands_active ON reward_bands(active, type);

	CREATE TABLE IF NOT EXISTS reward_selections (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		crypto_currency_id TEXT NOT NULL REFERENCES crypto_currencies(id),
		percentage TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, crypto_currency_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}
