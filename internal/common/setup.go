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
	"log"
	"os"
	"strings"

	"crypto-reward-engine/internal/chain"
	"crypto-reward-engine/internal/convert"
	"crypto-reward-engine/internal/database"
	"crypto-reward-engine/internal/events"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/postgres"
	"crypto-reward-engine/internal/store"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services bundles the collaborators the engine and the operator tools share.
type Services struct {
	Store     store.LedgerStore
	Registry  *chain.Registry
	Converter convert.Provider
	Events    events.Publisher
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeStore opens the configured ledger backend.
func InitializeStore(ctx context.Context, cfg *models.Config) (store.LedgerStore, error) {
	switch cfg.Backend {
	case "postgres":
		return postgres.NewService(ctx, cfg.Postgres)
	case "sqlite", "":
		return database.NewService(ctx, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// InitializeServices wires the full collaborator set: ledger store, currency
// catalog, chain providers, conversion (optionally Redis-cached), and the
// lifecycle event publisher.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	ledger, err := InitializeStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	catalog, err := LoadCurrencyCatalog(cfg.Chain.CurrenciesFile)
	if err != nil {
		ledger.Close()
		return nil, err
	}
	if err := SyncCurrencies(ctx, ledger, catalog); err != nil {
		ledger.Close()
		return nil, err
	}

	registry, err := buildRegistry(cfg, catalog)
	if err != nil {
		ledger.Close()
		return nil, err
	}

	converter, err := buildConverter(ctx, cfg, ledger)
	if err != nil {
		ledger.Close()
		return nil, err
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka)
		zap.L().Info("Lifecycle events publishing to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	return &Services{
		Store:     ledger,
		Registry:  registry,
		Converter: converter,
		Events:    publisher,
	}, nil
}

func (cs *Services) Close() {
	if cs.Events != nil {
		if err := cs.Events.Close(); err != nil {
			zap.L().Warn("Failed to close event publisher", zap.Error(err))
		}
	}
	if cs.Store != nil {
		cs.Store.Close()
	}
}

// buildRegistry installs one chain provider per catalog entry. In simulated
// mode every chain is an in-memory provider; in prime mode each currency
// settles through its custody wallet.
func buildRegistry(cfg *models.Config, catalog []CurrencyConfig) (*chain.Registry, error) {
	registry := chain.NewRegistry()

	switch cfg.Chain.Mode {
	case "simulated", "":
		for _, currency := range catalog {
			registry.Register(currency.Infrastructure, currency.Network,
				chain.NewSimulated(currency.TestNet))
		}
	case "prime":
		creds, err := loadPrimeCredentials()
		if err != nil {
			return nil, err
		}
		portfolioId := os.Getenv("PRIME_PORTFOLIO_ID")
		if portfolioId == "" {
			return nil, fmt.Errorf("missing required PRIME_PORTFOLIO_ID")
		}
		for _, currency := range catalog {
			if currency.CustodyWalletId == "" {
				return nil, fmt.Errorf("currency %s has no custody wallet id", currency.Symbol)
			}
			provider, err := chain.NewPrime(creds, chain.PrimeParams{
				PortfolioId: portfolioId,
				WalletId:    currency.CustodyWalletId,
				Symbol:      currency.Symbol,
				NetworkId:   currency.Network,
				NetworkType: currency.Infrastructure,
				TestNet:     currency.TestNet,
			})
			if err != nil {
				return nil, fmt.Errorf("unable to build provider for %s: %w", currency.Symbol, err)
			}
			registry.Register(currency.Infrastructure, currency.Network, provider)
		}
	default:
		return nil, fmt.Errorf("unknown chain mode %q", cfg.Chain.Mode)
	}

	return registry, nil
}

// buildConverter seeds the static rate table from the synced currency rows
// and layers the Redis cache on top when configured.
func buildConverter(ctx context.Context, cfg *models.Config, ledger store.LedgerStore) (convert.Provider, error) {
	currencies, err := ledger.ListCryptoCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load currencies for conversion: %w", err)
	}

	rates := make(map[string]decimal.Decimal, len(currencies))
	for _, currency := range currencies {
		rates[currency.Symbol] = currency.ReferenceRate
	}

	var converter convert.Provider = convert.NewStatic(cfg.Rewards.ReferenceCurrency, rates)

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		converter = convert.NewCached(converter, client, cfg.Redis.RateTTL)
		zap.L().Info("Conversion rate cache enabled",
			zap.String("redis_addr", cfg.Redis.Addr),
			zap.Duration("ttl", cfg.Redis.RateTTL))
	}

	return converter, nil
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	if accessKey == "" || passphrase == "" || signingKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
