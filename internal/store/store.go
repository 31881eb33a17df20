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

package store

import (
	"context"
	"errors"
	"time"

	"crypto-reward-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotEligible         = errors.New("instruction is not eligible for pickup")
	ErrInstructionTerminal = errors.New("instruction already completed or failed")
	ErrNotPickedUp         = errors.New("instruction is not picked up")
	ErrInstructionNotFound = errors.New("instruction not found")
	ErrDuplicateHash       = errors.New("duplicate transaction hash")
	ErrWalletNotFound      = errors.New("wallet address not found")
	ErrCurrencyNotFound    = errors.New("crypto currency not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrSelectionSum        = errors.New("reward selections must sum to 100 percent")
	ErrDuplicateSelection  = errors.New("duplicate reward selection for currency")
)

// CreateInstructionParams contains the caller-supplied fields of a new
// instruction. Lifecycle fields (picked up, completed, failed) always start
// empty.
type CreateInstructionParams struct {
	Type                models.InstructionType
	Amount              decimal.Decimal
	UserId              string
	WalletAddressId     string
	ParentInstructionId string
	WhitelistAddressId  string
	FromDate            time.Time
	ToDate              time.Time
	ConversionRate      decimal.Decimal
	MonetaryFee         decimal.Decimal
	MakeTransactionFee  decimal.Decimal
}

// CreateTransactionParams contains the fields of a new transfer record.
type CreateTransactionParams struct {
	Type                  models.TransactionType
	State                 models.TransactionState
	Amount                decimal.Decimal
	Hash                  string
	FromAddress           string
	ToAddress             string
	WalletAddressId       string
	SystemWalletAddressId string
	WhitelistAddressId    string
	InstructionId         string
	CryptoCurrencyId      string
	UserId                string
	PreReviewed           bool
	// PreConfirmed records the transfer as already confirmed at creation.
	// Used for deterministic debits such as fee rows that never appear on
	// chain under their own hash.
	PreConfirmed bool
}

// CreateWalletParams contains the fields of a new wallet address row.
type CreateWalletParams struct {
	UserId           string
	CryptoCurrencyId string
	Address          string
	KeyRef           string
	CustodyWalletId  string
	Purpose          models.WalletPurpose
}

// CreateBandParams contains the fields of a new reward band. Validation
// happens in the bands package before insertion.
type CreateBandParams struct {
	Type             models.RewardBandType
	BandFrom         decimal.Decimal
	BandTo           decimal.Decimal
	UpTo             decimal.Decimal
	PercentageReward decimal.Decimal
}

// InstructionFilter narrows operator listings. Zero values mean "any".
type InstructionFilter struct {
	Type   models.InstructionType
	UserId string
	Failed bool
	Limit  int
}

// LedgerStore defines the contract that every backend (SQLite, Postgres, ...)
// must satisfy.
type LedgerStore interface {
	// --- Users ---
	GetActiveUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	CreateUser(ctx context.Context, name, email, accountNumber string) (*models.User, error)

	// --- Currencies ---
	GetCryptoCurrency(ctx context.Context, id string) (*models.CryptoCurrency, error)
	GetCryptoCurrencyBySymbol(ctx context.Context, symbol string) (*models.CryptoCurrency, error)
	ListCryptoCurrencies(ctx context.Context) ([]models.CryptoCurrency, error)
	UpsertCryptoCurrency(ctx context.Context, currency models.CryptoCurrency) error

	// --- Wallets ---
	CreateWalletAddress(ctx context.Context, params CreateWalletParams) (*models.WalletAddress, error)
	GetWalletAddress(ctx context.Context, id string) (*models.WalletAddress, error)
	GetUserWalletForCurrency(ctx context.Context, userId, currencyId string) (*models.WalletAddress, error)
	GetUserWallets(ctx context.Context, userId string) ([]models.WalletAddress, error)
	GetSystemWallet(ctx context.Context, currencyId string, purpose models.WalletPurpose) (*models.WalletAddress, error)
	CreateWhitelistAddress(ctx context.Context, userId, currencyId, address, label string) (*models.WhitelistAddress, error)
	GetWhitelistAddress(ctx context.Context, id string) (*models.WhitelistAddress, error)

	// --- Instructions ---
	CreateInstruction(ctx context.Context, params CreateInstructionParams) (*models.Instruction, error)
	GetInstruction(ctx context.Context, id string) (*models.Instruction, error)
	ListEligibleInstructions(ctx context.Context, instructionType models.InstructionType) ([]models.Instruction, error)
	ListOpenInstructionsForUser(ctx context.Context, userId string) ([]models.Instruction, error)
	ListInstructions(ctx context.Context, filter InstructionFilter) ([]models.Instruction, error)
	HasInstructionForPeriod(ctx context.Context, userId string, instructionType models.InstructionType, from, to time.Time) (bool, error)

	// PickupInstruction is the cooperative lease: it sets pickedUpDate only
	// when the instruction is active, unclaimed and non-terminal, atomically.
	// Losing a concurrent race returns ErrNotEligible.
	PickupInstruction(ctx context.Context, id string, now time.Time) (*models.Instruction, error)
	CompleteInstruction(ctx context.Context, id string, now time.Time) (*models.Instruction, error)
	FailInstruction(ctx context.Context, id, reason string, now time.Time) (*models.Instruction, error)
	PutBackInstruction(ctx context.Context, id string) (*models.Instruction, error)
	SetInstructionActive(ctx context.Context, id string, active bool) error

	// CompleteInstructionWithChildren completes the parent and inserts all
	// children in one transaction; on any error nothing is persisted.
	CompleteInstructionWithChildren(ctx context.Context, parentId string, children []CreateInstructionParams, now time.Time) ([]models.Instruction, error)

	// --- Transactions ---
	CreateTransaction(ctx context.Context, params CreateTransactionParams) (*models.Transaction, error)
	GetTransactionByHash(ctx context.Context, hash string) (*models.Transaction, error)
	GetTransactionsForWallet(ctx context.Context, walletAddressId string) ([]models.Transaction, error)
	ListPendingTransactions(ctx context.Context) ([]models.Transaction, error)
	ConfirmTransaction(ctx context.Context, id string, state models.TransactionState, now time.Time) error
	ReviewTransaction(ctx context.Context, id string, passed bool, now time.Time) error

	// --- Reward bands ---
	InsertRewardBand(ctx context.Context, params CreateBandParams) (*models.RewardBand, error)
	ListActiveRewardBands(ctx context.Context) ([]models.RewardBand, error)
	DeactivateRewardBand(ctx context.Context, id string) error

	// --- Reward selections ---
	GetRewardSelections(ctx context.Context, userId string) ([]models.RewardSelection, error)
	ReplaceRewardSelections(ctx context.Context, userId string, selections []models.RewardSelection) error

	// --- Lifecycle ---
	Close()
}
