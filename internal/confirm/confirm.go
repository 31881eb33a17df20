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

// Package confirm polls broadcast transfers until the chain reaches a
// verdict. Confirmation is what promotes a transfer into the spendable
// balance, so the poller is the only writer of confirmedDate.
package confirm

import (
	"context"
	"fmt"
	"time"

	"crypto-reward-engine/internal/chain"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"go.uber.org/zap"
)

// Poller drives pending transactions to their terminal state.
type Poller struct {
	store           store.LedgerStore
	registry        *chain.Registry
	pollingInterval time.Duration
	now             func() time.Time

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewPoller(ledger store.LedgerStore, registry *chain.Registry, pollingInterval time.Duration) *Poller {
	return &Poller{
		store:           ledger,
		registry:        registry,
		pollingInterval: pollingInterval,
		now:             time.Now,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// WithClock pins the poller clock. Tests use this to control confirmation
// timestamps.
func (p *Poller) WithClock(now func() time.Time) *Poller {
	p.now = now
	return p
}

// Start begins the confirmation polling loop.
func (p *Poller) Start(ctx context.Context) {
	zap.L().Info("Starting confirmation poller",
		zap.Duration("polling_interval", p.pollingInterval))
	go p.pollLoop(ctx)
}

// Stop gracefully stops the poller.
func (p *Poller) Stop() {
	zap.L().Info("Stopping confirmation poller")
	close(p.stopChan)
	<-p.doneChan
	zap.L().Info("Confirmation poller stopped")
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	if err := p.RunOnce(ctx); err != nil {
		zap.L().Error("Confirmation run failed", zap.Error(err))
	}

	for {
		select {
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				zap.L().Error("Confirmation run failed", zap.Error(err))
			}
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce checks every pending transfer that carries a hash. Transfers whose
// provider cannot be reached stay pending and are retried next run.
func (p *Poller) RunOnce(ctx context.Context) error {
	pending, err := p.store.ListPendingTransactions(ctx)
	if err != nil {
		return fmt.Errorf("unable to list pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	confirmed := 0
	for _, tx := range pending {
		if err := p.confirmOne(ctx, tx); err != nil {
			zap.L().Warn("Unable to confirm transaction",
				zap.String("transaction_id", tx.Id),
				zap.String("hash", tx.Hash),
				zap.Error(err))
			continue
		}
		confirmed++
	}

	zap.L().Debug("Confirmation run finished",
		zap.Int("pending", len(pending)),
		zap.Int("checked", confirmed))
	return nil
}

func (p *Poller) confirmOne(ctx context.Context, tx models.Transaction) error {
	currency, err := p.store.GetCryptoCurrency(ctx, tx.CryptoCurrencyId)
	if err != nil {
		return err
	}
	provider, err := p.registry.Provider(currency.Infrastructure, currency.Network)
	if err != nil {
		return err
	}

	state, err := provider.GetTransactionState(ctx, tx.Hash)
	if err != nil {
		return err
	}

	switch state {
	case chain.TxCompleted:
		if err := p.store.ConfirmTransaction(ctx, tx.Id, models.TransactionCompleted, p.now()); err != nil {
			return err
		}
		zap.L().Info("Transaction confirmed",
			zap.String("transaction_id", tx.Id),
			zap.String("hash", tx.Hash),
			zap.String("currency", currency.Symbol))
	case chain.TxFailed:
		if err := p.store.ConfirmTransaction(ctx, tx.Id, models.TransactionFailed, p.now()); err != nil {
			return err
		}
		zap.L().Warn("Transaction failed on chain",
			zap.String("transaction_id", tx.Id),
			zap.String("hash", tx.Hash),
			zap.String("currency", currency.Symbol))
	default:
		// Still pending; checked again next run.
	}
	return nil
}
