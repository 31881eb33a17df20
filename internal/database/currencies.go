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

	"go.uber.org/zap"
)

func scanCurrency(row rowScanner) (*models.CryptoCurrency, error) {
	var c models.CryptoCurrency
	err := row.Scan(&c.Id, &c.Symbol, &c.Name, &c.Infrastructure, &c.Network,
		&c.TestNet, &c.ReferenceRate, &c.Active)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) GetCryptoCurrency(ctx context.Context, id string) (*models.CryptoCurrency, error) {
	currency, err := scanCurrency(s.db.QueryRowContext(ctx, queryGetCurrency, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrCurrencyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query crypto currency: %w", err)
	}
	return currency, nil
}

func (s *Service) GetCryptoCurrencyBySymbol(ctx context.Context, symbol string) (*models.CryptoCurrency, error) {
	currency, err := scanCurrency(s.db.QueryRowContext(ctx, queryGetCurrencyBySymbol, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrCurrencyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query crypto currency: %w", err)
	}
	return currency, nil
}

func (s *Service) ListCryptoCurrencies(ctx context.Context) ([]models.CryptoCurrency, error) {
	rows, err := s.db.QueryContext(ctx, queryListCurrencies)
	if err != nil {
		return nil, fmt.Errorf("unable to query crypto currencies: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var currencies []models.CryptoCurrency
	for rows.Next() {
		currency, err := scanCurrency(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan currency row: %w", err)
		}
		currencies = append(currencies, *currency)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating currency rows: %w", err)
	}
	return currencies, nil
}

func (s *Service) UpsertCryptoCurrency(ctx context.Context, currency models.CryptoCurrency) error {
	_, err := s.db.ExecContext(ctx, queryUpsertCurrency,
		currency.Id, currency.Symbol, currency.Name, currency.Infrastructure,
		currency.Network, currency.TestNet, currency.ReferenceRate.String(), currency.Active)
	if err != nil {
		return fmt.Errorf("unable to upsert crypto currency: %w", err)
	}
	return nil
}
