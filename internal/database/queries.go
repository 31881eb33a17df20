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

const (
	// User queries
	queryGetActiveUsers = `
		SELECT id, name, email, account_number, active, created_at, updated_at
		FROM users
		WHERE active = 1
		ORDER BY created_at`

	queryInsertUser = `
		INSERT INTO users (id, name, email, account_number) VALUES (?, ?, ?, ?)`

	queryGetUserById = `
		SELECT id, name, email, account_number, active, created_at, updated_at
		FROM users
		WHERE id = ?`

	// Currency queries
	queryGetCurrency = `
		SELECT id, symbol, name, infrastructure, network, test_net, reference_rate, active
		FROM crypto_currencies
		WHERE id = ?`

	queryGetCurrencyBySymbol = `
		SELECT id, symbol, name, infrastructure, network, test_net, reference_rate, active
		FROM crypto_currencies
		WHERE symbol = ?`

	queryListCurrencies = `
		SELECT id, symbol, name, infrastructure, network, test_net, reference_rate, active
		FROM crypto_currencies
		ORDER BY symbol`

	queryUpsertCurrency = `
		INSERT INTO crypto_currencies (id, symbol, name, infrastructure, network, test_net, reference_rate, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			infrastructure = excluded.infrastructure,
			network = excluded.network,
			test_net = excluded.test_net,
			reference_rate = excluded.reference_rate,
			active = excluded.active`

	// Wallet queries
	queryInsertWallet = `
		INSERT INTO wallet_addresses (id, user_id, crypto_currency_id, address, key_ref, custody_wallet_id, purpose)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetWallet = `
		SELECT id, user_id, crypto_currency_id, address, key_ref, custody_wallet_id, purpose, created_at
		FROM wallet_addresses
		WHERE id = ?`

	queryGetUserWalletForCurrency = `
		SELECT id, user_id, crypto_currency_id, address, key_ref, custody_wallet_id, purpose, created_at
		FROM wallet_addresses
		WHERE user_id = ? AND crypto_currency_id = ? AND purpose = 'USER'
		ORDER BY created_at
		LIMIT 1`

	queryGetUserWallets = `
		SELECT id, user_id, crypto_currency_id, address, key_ref, custody_wallet_id, purpose, created_at
		FROM wallet_addresses
		WHERE user_id = ? AND purpose = 'USER'
		ORDER BY created_at`

	queryGetSystemWallet = `
		SELECT id, user_id, crypto_currency_id, address, key_ref, custody_wallet_id, purpose, created_at
		FROM wallet_addresses
		WHERE crypto_currency_id = ? AND purpose = ?
		ORDER BY created_at
		LIMIT 1`

	queryInsertWhitelist = `
		INSERT INTO whitelist_addresses (id, user_id, crypto_currency_id, address, label)
		VALUES (?, ?, ?, ?, ?)`

	queryGetWhitelist = `
		SELECT id, user_id, crypto_currency_id, address, label, created_at
		FROM whitelist_addresses
		WHERE id = ?`

	// Instruction queries
	instructionColumns = `id, type, amount, user_id, wallet_address_id, parent_instruction_id,
		whitelist_address_id, from_date, to_date, conversion_rate, monetary_fee,
		make_transaction_fee, picked_up_date, completed_date, failed_date,
		failed_reason, active, created_at`

	queryInsertInstruction = `
		INSERT INTO instructions (id, type, amount, user_id, wallet_address_id,
			parent_instruction_id, whitelist_address_id, from_date, to_date,
			conversion_rate, monetary_fee, make_transaction_fee, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetInstruction = `
		SELECT ` + instructionColumns + `
		FROM instructions
		WHERE id = ?`

	queryListEligibleInstructions = `
		SELECT ` + instructionColumns + `
		FROM instructions
		WHERE type = ? AND active = 1
			AND picked_up_date IS NULL AND completed_date IS NULL AND failed_date IS NULL
		ORDER BY created_at`

	queryListOpenInstructionsForUser = `
		SELECT ` + instructionColumns + `
		FROM instructions
		WHERE user_id = ? AND active = 1 AND completed_date IS NULL AND failed_date IS NULL
		ORDER BY created_at`

	queryCountInstructionsForPeriod = `
		SELECT COUNT(1)
		FROM instructions
		WHERE user_id = ? AND type = ? AND from_date = ? AND to_date = ?`

	// The lease. The WHERE clause is the whole point: only an active,
	// unclaimed, non-terminal instruction can be picked up, and the
	// conditional update makes concurrent pickups lose cleanly.
	queryPickupInstruction = `
		UPDATE instructions
		SET picked_up_date = ?
		WHERE id = ? AND active = 1
			AND picked_up_date IS NULL AND completed_date IS NULL AND failed_date IS NULL`

	queryCompleteInstruction = `
		UPDATE instructions
		SET completed_date = ?
		WHERE id = ? AND picked_up_date IS NOT NULL
			AND completed_date IS NULL AND failed_date IS NULL`

	queryFailInstruction = `
		UPDATE instructions
		SET failed_date = ?, failed_reason = ?
		WHERE id = ? AND completed_date IS NULL AND failed_date IS NULL`

	queryPutBackInstruction = `
		UPDATE instructions
		SET picked_up_date = NULL
		WHERE id = ? AND completed_date IS NULL AND failed_date IS NULL`

	querySetInstructionActive = `
		UPDATE instructions SET active = ? WHERE id = ?`

	// Transaction queries
	transactionColumns = `id, type, state, amount, hash, from_address, to_address,
		confirmed_date, reviewed_date, failed_review, wallet_address_id,
		system_wallet_address_id, whitelist_address_id, instruction_id,
		crypto_currency_id, user_id, created_at`

	queryInsertTransaction = `
		INSERT INTO transactions (id, type, state, amount, hash, from_address, to_address,
			confirmed_date, reviewed_date, failed_review, wallet_address_id,
			system_wallet_address_id, whitelist_address_id, instruction_id,
			crypto_currency_id, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransactionByHash = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE hash = ?`

	queryGetTransactionsForWallet = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE wallet_address_id = ? OR system_wallet_address_id = ?
		ORDER BY created_at`

	queryListPendingTransactions = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE state = 'PENDING' AND hash != ''
		ORDER BY created_at`

	queryConfirmTransaction = `
		UPDATE transactions
		SET state = ?, confirmed_date = ?
		WHERE id = ? AND confirmed_date IS NULL`

	queryReviewTransaction = `
		UPDATE transactions
		SET reviewed_date = ?, failed_review = ?
		WHERE id = ?`

	// Reward band queries
	queryInsertRewardBand = `
		INSERT INTO reward_bands (id, type, band_from, band_to, up_to, percentage_reward)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryListActiveRewardBands = `
		SELECT id, type, band_from, band_to, up_to, percentage_reward, active, created_at
		FROM reward_bands
		WHERE active = 1
		ORDER BY type, band_from`

	queryDeactivateRewardBand = `
		UPDATE reward_bands SET active = 0 WHERE id = ?`

	// Reward selection queries
	queryGetRewardSelections = `
		SELECT id, user_id, crypto_currency_id, percentage, created_at
		FROM reward_selections
		WHERE user_id = ?
		ORDER BY created_at`

	queryDeleteRewardSelections = `
		DELETE FROM reward_selections WHERE user_id = ?`

	queryInsertRewardSelection = `
		INSERT INTO reward_selections (id, user_id, crypto_currency_id, percentage)
		VALUES (?, ?, ?, ?)`
)
