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

package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// CurrencyConfig is one catalog entry: a supported asset and the chain it
// settles on. ReferenceRate is expressed in reference-currency units per one
// unit of the symbol.
type CurrencyConfig struct {
	Symbol          string `yaml:"symbol"`
	Name            string `yaml:"name"`
	Infrastructure  string `yaml:"infrastructure"`
	Network         string `yaml:"network"`
	TestNet         bool   `yaml:"test_net"`
	ReferenceRate   string `yaml:"reference_rate"`
	Active          bool   `yaml:"active"`
	CustodyWalletId string `yaml:"custody_wallet_id"`
}

type currencyCatalog struct {
	Currencies []CurrencyConfig `yaml:"currencies"`
}

func LoadCurrencyCatalog(currenciesFile string) ([]CurrencyConfig, error) {
	var catalogPath string
	if filepath.IsAbs(currenciesFile) {
		catalogPath = currenciesFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		catalogPath = filepath.Join(wd, currenciesFile)
	}

	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", currenciesFile, err)
	}

	var catalog currencyCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", currenciesFile, err)
	}

	for i, currency := range catalog.Currencies {
		if currency.Symbol == "" {
			return nil, fmt.Errorf("currency at index %d missing symbol", i)
		}
		if currency.Infrastructure == "" {
			return nil, fmt.Errorf("currency at index %d missing infrastructure", i)
		}
		if currency.Network == "" {
			return nil, fmt.Errorf("currency at index %d missing network", i)
		}
	}

	return catalog.Currencies, nil
}

// SyncCurrencies upserts the catalog into the ledger store. Existing rows
// keep their id so instructions and wallets stay linked; a currency removed
// from the catalog is deactivated, never deleted.
func SyncCurrencies(ctx context.Context, ledger store.LedgerStore, catalog []CurrencyConfig) error {
	inCatalog := make(map[string]bool, len(catalog))

	for _, entry := range catalog {
		inCatalog[entry.Symbol] = true

		rate := decimal.Zero
		if entry.ReferenceRate != "" {
			parsed, err := decimal.NewFromString(entry.ReferenceRate)
			if err != nil {
				return fmt.Errorf("invalid reference rate for %s: %w", entry.Symbol, err)
			}
			rate = parsed
		}

		id := uuid.New().String()
		if existing, err := ledger.GetCryptoCurrencyBySymbol(ctx, entry.Symbol); err == nil {
			id = existing.Id
		}

		err := ledger.UpsertCryptoCurrency(ctx, models.CryptoCurrency{
			Id:             id,
			Symbol:         entry.Symbol,
			Name:           entry.Name,
			Infrastructure: entry.Infrastructure,
			Network:        entry.Network,
			TestNet:        entry.TestNet,
			ReferenceRate:  rate,
			Active:         entry.Active,
		})
		if err != nil {
			return err
		}
	}

	currencies, err := ledger.ListCryptoCurrencies(ctx)
	if err != nil {
		return err
	}
	for _, currency := range currencies {
		if inCatalog[currency.Symbol] || !currency.Active {
			continue
		}
		currency.Active = false
		if err := ledger.UpsertCryptoCurrency(ctx, currency); err != nil {
			return err
		}
		zap.L().Info("Currency deactivated, no longer in catalog",
			zap.String("symbol", currency.Symbol))
	}

	zap.L().Info("Currency catalog synced", zap.Int("currencies", len(catalog)))
	return nil
}
