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

// Package chain defines the narrow interface the settlement engine uses to
// talk to a blockchain, plus a registry that resolves the provider for a
// currency's (infrastructure, network) pair once at construction time.
package chain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// TxState is the provider's verdict on a broadcast transaction.
type TxState string

const (
	TxPending   TxState = "PENDING"
	TxCompleted TxState = "COMPLETED"
	TxFailed    TxState = "FAILED"
)

// ErrProviderUnavailable marks transport-level failures (provider
// unreachable, timeout). Processors translate it into a put-back so the
// instruction retries on a later run, never into a terminal failure.
var ErrProviderUnavailable = errors.New("blockchain provider unavailable")

// ErrNoProvider is returned when no provider is registered for a currency's
// infrastructure and network.
var ErrNoProvider = errors.New("no blockchain provider registered")

// SendParams describes one transfer to broadcast.
type SendParams struct {
	FromAddress string
	FromKeyRef  string
	ToAddress   string
	Amount      decimal.Decimal
	Fee         decimal.Decimal
}

// TxDetails describes a transaction already on chain.
type TxDetails struct {
	Amount decimal.Decimal
	From   string
	To     string
	Fee    decimal.Decimal
}

// Provider is the per-chain client. An empty hash from SendTransaction with
// a nil error means the chain accepted the call but rejected the transfer,
// a terminal business failure, distinct from ErrProviderUnavailable.
type Provider interface {
	ValidateNetwork(isTest bool) bool
	IsAddressValid(address string) bool
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	EstimateFee(ctx context.Context, address, keyRef string, amount decimal.Decimal) (monetaryFee, txFee decimal.Decimal, err error)
	SendTransaction(ctx context.Context, params SendParams) (hash string, err error)
	GetTransactionState(ctx context.Context, hash string) (TxState, error)
	GetTransactionDetails(ctx context.Context, hash string) (*TxDetails, error)
}

type registryKey struct {
	infrastructure string
	network        string
}

// Registry holds the provider table, keyed by (infrastructure, network).
// Built once during wiring; lookups never dispatch on enums per call.
type Registry struct {
	providers map[registryKey]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[registryKey]Provider)}
}

// Register installs a provider for the given infrastructure and network,
// replacing any previous registration.
func (r *Registry) Register(infrastructure, network string, provider Provider) {
	r.providers[registryKey{infrastructure, network}] = provider
}

// Provider resolves the client for a currency's chain.
func (r *Registry) Provider(infrastructure, network string) (Provider, error) {
	provider, ok := r.providers[registryKey{infrastructure, network}]
	if !ok {
		return nil, ErrNoProvider
	}
	return provider, nil
}
