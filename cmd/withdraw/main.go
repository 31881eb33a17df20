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

// Operator tool that files withdrawal, stake, and unstake instructions. The
// instruction is validated and persisted here; the engine settles it on its
// next processing run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"crypto-reward-engine/internal/balance"
	"crypto-reward-engine/internal/common"
	"crypto-reward-engine/internal/config"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type request struct {
	action      string
	email       string
	symbol      string
	amount      decimal.Decimal
	destination string
	label       string
}

func parseAndValidateFlags() (*request, error) {
	actionFlag := flag.String("action", "withdraw", "One of: withdraw, stake, unstake")
	emailFlag := flag.String("email", "", "User email (required)")
	symbolFlag := flag.String("symbol", "", "Currency symbol, e.g. BTC (required)")
	amountFlag := flag.String("amount", "", "Amount (required)")
	destinationFlag := flag.String("destination", "", "Destination address (required for withdraw)")
	labelFlag := flag.String("label", "", "Label for a new whitelist address")
	flag.Parse()

	if *emailFlag == "" || *symbolFlag == "" || *amountFlag == "" {
		return nil, fmt.Errorf("required flags: --email, --symbol, --amount")
	}
	switch *actionFlag {
	case "withdraw":
		if *destinationFlag == "" {
			return nil, fmt.Errorf("--destination is required for withdraw")
		}
	case "stake", "unstake":
	default:
		return nil, fmt.Errorf("unknown action %q", *actionFlag)
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be greater than zero")
	}

	return &request{
		action:      *actionFlag,
		email:       *emailFlag,
		symbol:      *symbolFlag,
		amount:      amount,
		destination: *destinationFlag,
		label:       *labelFlag,
	}, nil
}

func main() {
	req, err := parseAndValidateFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	instr, err := createInstruction(ctx, services, req)
	if err != nil {
		zap.L().Fatal("Failed to create instruction", zap.Error(err))
	}

	common.PrintHeader("Instruction filed", common.DefaultWidth)
	fmt.Printf("Id:       %s\n", instr.Id)
	fmt.Printf("Type:     %s\n", instr.Type)
	fmt.Printf("Amount:   %s %s\n", instr.Amount.String(), req.symbol)
	fmt.Printf("Fee:      %s\n", instr.MakeTransactionFee.String())
	common.PrintFooter("The engine settles it on its next processing run.", common.DefaultWidth)
}

func createInstruction(ctx context.Context, services *common.Services, req *request) (*models.Instruction, error) {
	user, err := findUserByEmail(ctx, services.Store, req.email)
	if err != nil {
		return nil, err
	}
	currency, err := services.Store.GetCryptoCurrencyBySymbol(ctx, req.symbol)
	if err != nil {
		return nil, err
	}
	if !currency.Active {
		return nil, fmt.Errorf("currency %s is not active", currency.Symbol)
	}
	wallet, err := services.Store.GetUserWalletForCurrency(ctx, user.Id, currency.Id)
	if err != nil {
		return nil, err
	}
	provider, err := services.Registry.Provider(currency.Infrastructure, currency.Network)
	if err != nil {
		return nil, err
	}

	aggregator := balance.NewAggregator(services.Store)
	bal, err := aggregator.Compute(ctx, wallet)
	if err != nil {
		return nil, err
	}

	monetaryFee, txFee, err := provider.EstimateFee(ctx, wallet.Address, wallet.KeyRef, req.amount)
	if err != nil {
		return nil, fmt.Errorf("unable to estimate fee: %w", err)
	}

	params := store.CreateInstructionParams{
		UserId:             user.Id,
		WalletAddressId:    wallet.Id,
		MonetaryFee:        monetaryFee,
		MakeTransactionFee: txFee,
	}

	switch req.action {
	case "withdraw":
		if !provider.IsAddressValid(req.destination) {
			return nil, fmt.Errorf("destination address %s is not valid", req.destination)
		}
		if err := balance.AuthorizeWithdrawal(bal, req.amount, txFee); err != nil {
			return nil, err
		}
		whitelist, err := services.Store.CreateWhitelistAddress(ctx,
			user.Id, currency.Id, req.destination, req.label)
		if err != nil {
			return nil, err
		}
		params.Type = models.InstructionWithdrawal
		params.Amount = req.amount.Neg()
		params.WhitelistAddressId = whitelist.Id
	case "stake":
		if err := balance.AuthorizeStakeDeposit(bal, req.amount, txFee); err != nil {
			return nil, err
		}
		params.Type = models.InstructionStakingDeposit
		params.Amount = req.amount
	case "unstake":
		if err := balance.AuthorizeStakeWithdrawal(bal, req.amount); err != nil {
			return nil, err
		}
		params.Type = models.InstructionStakingWithdrawal
		params.Amount = req.amount.Neg()
	}

	return services.Store.CreateInstruction(ctx, params)
}

func findUserByEmail(ctx context.Context, ledger store.LedgerStore, email string) (*models.User, error) {
	users, err := ledger.GetActiveUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Email == email {
			return &users[i], nil
		}
	}
	return nil, fmt.Errorf("no active user with email %s", email)
}
