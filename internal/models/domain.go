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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstructionType identifies what kind of settlement an instruction requests.
type InstructionType string

const (
	InstructionMonthlyReward     InstructionType = "MONTHLY_REWARD"
	InstructionRewardPayment     InstructionType = "REWARD_PAYMENT"
	InstructionStakingDeposit    InstructionType = "STAKING_DEPOSIT"
	InstructionStakingWithdrawal InstructionType = "STAKING_WITHDRAWAL"
	InstructionWithdrawal        InstructionType = "WITHDRAWAL"
)

// IsStaking reports whether the type moves funds in or out of the staking pool.
func (t InstructionType) IsStaking() bool {
	return t == InstructionStakingDeposit || t == InstructionStakingWithdrawal
}

// Instruction is a financial intent awaiting settlement. Amounts are signed:
// negative means value leaving the system wallet toward the user, positive the
// reverse. Instructions are never deleted; inactive ones are excluded from
// processing but retained for audit.
type Instruction struct {
	Id                  string          `db:"id"`
	Type                InstructionType `db:"type"`
	Amount              decimal.Decimal `db:"amount"`
	UserId              string          `db:"user_id"`
	WalletAddressId     string          `db:"wallet_address_id"`
	ParentInstructionId string          `db:"parent_instruction_id"`
	WhitelistAddressId  string          `db:"whitelist_address_id"`
	FromDate            time.Time       `db:"from_date"`
	ToDate              time.Time       `db:"to_date"`
	ConversionRate      decimal.Decimal `db:"conversion_rate"`
	MonetaryFee         decimal.Decimal `db:"monetary_fee"`
	MakeTransactionFee  decimal.Decimal `db:"make_transaction_fee"`
	PickedUpDate        *time.Time      `db:"picked_up_date"`
	CompletedDate       *time.Time      `db:"completed_date"`
	FailedDate          *time.Time      `db:"failed_date"`
	FailedReason        string          `db:"failed_reason"`
	Active              bool            `db:"active"`
	CreatedAt           time.Time       `db:"created_at"`
}

// Eligible reports whether the instruction can be picked up by a processor run.
func (i Instruction) Eligible() bool {
	return i.Active && i.PickedUpDate == nil && i.CompletedDate == nil && i.FailedDate == nil
}

// InFlight reports whether the instruction is held by a processor run.
func (i Instruction) InFlight() bool {
	return i.PickedUpDate != nil && i.CompletedDate == nil && i.FailedDate == nil
}

// Terminal reports whether the instruction reached a final state.
func (i Instruction) Terminal() bool {
	return i.CompletedDate != nil || i.FailedDate != nil
}

// TransactionType identifies the kind of on-chain transfer a record represents.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
	TransactionStaking    TransactionType = "STAKING"
	TransactionReward     TransactionType = "REWARD"
	TransactionFee        TransactionType = "FEE"
)

// TransactionState tracks confirmation progress of an on-chain transfer.
type TransactionState string

const (
	TransactionPending   TransactionState = "PENDING"
	TransactionCompleted TransactionState = "COMPLETED"
	TransactionFailed    TransactionState = "FAILED"
)

// Transaction is a record of an attempted or confirmed on-chain transfer.
// ConfirmedDate is set only after the chain provider reports a terminal state.
// Review (fraud/compliance) is independent of confirmation.
type Transaction struct {
	Id                    string           `db:"id"`
	Type                  TransactionType  `db:"type"`
	State                 TransactionState `db:"state"`
	Amount                decimal.Decimal  `db:"amount"`
	Hash                  string           `db:"hash"`
	FromAddress           string           `db:"from_address"`
	ToAddress             string           `db:"to_address"`
	ConfirmedDate         *time.Time       `db:"confirmed_date"`
	ReviewedDate          *time.Time       `db:"reviewed_date"`
	FailedReview          bool             `db:"failed_review"`
	WalletAddressId       string           `db:"wallet_address_id"`
	SystemWalletAddressId string           `db:"system_wallet_address_id"`
	WhitelistAddressId    string           `db:"whitelist_address_id"`
	InstructionId         string           `db:"instruction_id"`
	CryptoCurrencyId      string           `db:"crypto_currency_id"`
	UserId                string           `db:"user_id"`
	CreatedAt             time.Time        `db:"created_at"`
}

// Confirmed reports whether the chain provider reached a verdict on the transfer.
func (t Transaction) Confirmed() bool { return t.ConfirmedDate != nil }

// Reviewed reports whether a compliance review happened, regardless of outcome.
func (t Transaction) Reviewed() bool { return t.ReviewedDate != nil }

// WalletPurpose distinguishes system wallets by the flow they serve.
type WalletPurpose string

const (
	PurposeUser    WalletPurpose = "USER"
	PurposeStaking WalletPurpose = "STAKING"
	PurposeReward  WalletPurpose = "REWARD"
)

// WalletAddress is a chain address known to the platform: either a user's
// deposit/spend address or a platform-controlled system wallet.
type WalletAddress struct {
	Id               string        `db:"id"`
	UserId           string        `db:"user_id"`
	CryptoCurrencyId string        `db:"crypto_currency_id"`
	Address          string        `db:"address"`
	KeyRef           string        `db:"key_ref"`
	CustodyWalletId  string        `db:"custody_wallet_id"`
	Purpose          WalletPurpose `db:"purpose"`
	CreatedAt        time.Time     `db:"created_at"`
}

// System reports whether the wallet is platform-controlled.
func (w WalletAddress) System() bool { return w.Purpose != PurposeUser }

// WhitelistAddress is a user-nominated external address pre-validated as a
// withdrawal destination.
type WhitelistAddress struct {
	Id               string    `db:"id"`
	UserId           string    `db:"user_id"`
	CryptoCurrencyId string    `db:"crypto_currency_id"`
	Address          string    `db:"address"`
	Label            string    `db:"label"`
	CreatedAt        time.Time `db:"created_at"`
}

// CryptoCurrency describes a supported asset and the chain it settles on.
// Inactive currencies suspend processing of their instructions.
type CryptoCurrency struct {
	Id             string          `db:"id"`
	Symbol         string          `db:"symbol"`
	Name           string          `db:"name"`
	Infrastructure string          `db:"infrastructure"`
	Network        string          `db:"network"`
	TestNet        bool            `db:"test_net"`
	ReferenceRate  decimal.Decimal `db:"reference_rate"`
	Active         bool            `db:"active"`
}

// User owns wallets, reward selections and instructions. AccountNumber links
// the user to the card-spend aggregator.
type User struct {
	Id            string    `db:"id"`
	Name          string    `db:"name"`
	Email         string    `db:"email"`
	AccountNumber string    `db:"account_number"`
	Active        bool      `db:"active"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// RewardSelection is one slice of a user's monthly reward split. A user's
// active selections must sum to exactly 100 percent.
type RewardSelection struct {
	Id               string          `db:"id"`
	UserId           string          `db:"user_id"`
	CryptoCurrencyId string          `db:"crypto_currency_id"`
	Percentage       decimal.Decimal `db:"percentage"`
	CreatedAt        time.Time       `db:"created_at"`
}

// RewardBandType selects which aggregate a band applies to.
type RewardBandType string

const (
	BandSpend RewardBandType = "SPEND"
	BandStake RewardBandType = "STAKE"
)

// RewardBand is a percentage-reward rule over a numeric range. UpTo caps the
// amount the percentage is applied to.
type RewardBand struct {
	Id               string          `db:"id"`
	Type             RewardBandType  `db:"type"`
	BandFrom         decimal.Decimal `db:"band_from"`
	BandTo           decimal.Decimal `db:"band_to"`
	UpTo             decimal.Decimal `db:"up_to"`
	PercentageReward decimal.Decimal `db:"percentage_reward"`
	Active           bool            `db:"active"`
	CreatedAt        time.Time       `db:"created_at"`
}

// WalletAddressBalance is the derived balance view for one wallet address,
// computed from one consistent fetch of its transactions and one of its
// owner's open instructions. It is never persisted.
type WalletAddressBalance struct {
	WalletAddressId string

	SpendableBalance              decimal.Decimal
	ConfirmedBalance              decimal.Decimal
	UnconfirmedBalance            decimal.Decimal
	SuccessfullyReviewedBalance   decimal.Decimal
	UnsuccessfullyReviewedBalance decimal.Decimal
	UnreviewedBalance             decimal.Decimal

	SpendableStakedBalance   decimal.Decimal
	UnconfirmedStakedBalance decimal.Decimal

	OutstandingInstructionBalance       decimal.Decimal
	OutstandingInstructionStakedBalance decimal.Decimal
}
