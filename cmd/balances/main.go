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

// Operator tool that prints the derived balance view for every user wallet.
package main

import (
	"context"
	"flag"
	"fmt"

	"crypto-reward-engine/internal/balance"
	"crypto-reward-engine/internal/common"
	"crypto-reward-engine/internal/config"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalUsers       int
	totalWallets     int
	usersWithWallets int
}

func printWalletBalance(symbol string, bal *models.WalletAddressBalance, isLast bool) {
	prefix := common.BoxPrefix(isLast)
	detail := common.BoxDetailPrefix(isLast)

	fmt.Printf("%s %-8s spendable: %20s  staked: %20s\n",
		prefix, symbol, bal.SpendableBalance.String(), bal.SpendableStakedBalance.String())
	fmt.Printf("%s         confirmed: %20s  unconfirmed: %15s\n",
		detail, bal.ConfirmedBalance.String(), bal.UnconfirmedBalance.String())
	fmt.Printf("%s         outstanding: %18s  outstanding staked: %8s\n",
		detail, bal.OutstandingInstructionBalance.String(),
		bal.OutstandingInstructionStakedBalance.String())
}

func printUserHeader(user models.User, walletCount int) {
	fmt.Printf("\n┌─ User: %s (%s)\n", user.Name, user.Email)
	fmt.Printf("│  ID: %s\n", user.Id)
	fmt.Printf("│  Wallets: %d\n", walletCount)
	common.PrintBoxSeparator(78)
}

func processUser(ctx context.Context, ledger store.LedgerStore, aggregator *balance.Aggregator, user models.User) (int, error) {
	wallets, err := ledger.GetUserWallets(ctx, user.Id)
	if err != nil {
		return 0, fmt.Errorf("failed to get wallets: %w", err)
	}
	if len(wallets) == 0 {
		return 0, nil
	}

	printUserHeader(user, len(wallets))
	for i := range wallets {
		wallet := wallets[i]
		bal, err := aggregator.Compute(ctx, &wallet)
		if err != nil {
			return 0, fmt.Errorf("failed to compute balance for wallet %s: %w", wallet.Id, err)
		}
		currency, err := ledger.GetCryptoCurrency(ctx, wallet.CryptoCurrencyId)
		if err != nil {
			return 0, err
		}
		printWalletBalance(currency.Symbol, bal, i == len(wallets)-1)
	}
	return len(wallets), nil
}

func main() {
	emailFlag := flag.String("email", "", "Limit the report to one user email")
	flag.Parse()

	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ledger, err := common.InitializeStore(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize store", zap.Error(err))
	}
	defer ledger.Close()

	users, err := ledger.GetActiveUsers(ctx)
	if err != nil {
		zap.L().Fatal("Failed to list users", zap.Error(err))
	}

	aggregator := balance.NewAggregator(ledger)
	common.PrintHeader("Wallet balances", common.DefaultWidth)

	stats := balanceStats{}
	for _, user := range users {
		if *emailFlag != "" && user.Email != *emailFlag {
			continue
		}
		stats.totalUsers++

		walletCount, err := processUser(ctx, ledger, aggregator, user)
		if err != nil {
			zap.L().Error("Failed to process user",
				zap.String("user_id", user.Id),
				zap.String("user_name", user.Name),
				zap.Error(err))
			continue
		}
		if walletCount > 0 {
			stats.usersWithWallets++
			stats.totalWallets += walletCount
		}
	}

	common.PrintFooter(fmt.Sprintf("Users: %d  With wallets: %d  Wallets: %d",
		stats.totalUsers, stats.usersWithWallets, stats.totalWallets), common.DefaultWidth)
}
