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

package chain

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Prime settles transfers through a Coinbase Prime custody wallet instead of
// signing raw chain transactions. One Prime provider serves one custody
// wallet on one network; the registry maps each currency's chain to its
// provider.
type Prime struct {
	portfolioId     string
	walletId        string
	symbol          string
	networkId       string
	networkType     string
	testNet         bool
	walletsSvc      wallets.WalletsService
	transactionsSvc transactions.TransactionsService
}

// PrimeParams configures one custody-backed provider.
type PrimeParams struct {
	PortfolioId string
	WalletId    string
	Symbol      string
	NetworkId   string
	NetworkType string
	TestNet     bool
}

func NewPrime(creds *credentials.Credentials, params PrimeParams) (*Prime, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(creds, httpClient)

	return &Prime{
		portfolioId:     params.PortfolioId,
		walletId:        params.WalletId,
		symbol:          params.Symbol,
		networkId:       params.NetworkId,
		networkType:     params.NetworkType,
		testNet:         params.TestNet,
		walletsSvc:      wallets.NewWalletsService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			DualStack: true,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func (p *Prime) ValidateNetwork(isTest bool) bool { return isTest == p.testNet }

// IsAddressValid does a shape check only; the custody API validates the
// destination on broadcast.
func (p *Prime) IsAddressValid(address string) bool {
	return len(address) >= 8 && !strings.ContainsAny(address, " \t\n")
}

// GetBalance reconstructs the custody wallet balance from its completed
// transaction feed. The address argument is ignored: a Prime provider serves
// exactly one custody wallet.
func (p *Prime) GetBalance(ctx context.Context, _ string) (decimal.Decimal, error) {
	response, err := p.listWalletTransactions(ctx, time.Time{})
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, tx := range response.Transactions {
		if tx.Status != "TRANSACTION_DONE" {
			continue
		}
		amount, err := decimal.NewFromString(tx.Amount)
		if err != nil {
			continue
		}
		total = total.Add(amount)
	}
	return total, nil
}

// EstimateFee returns zero: Prime nets network fees inside the custody
// wallet, so nothing extra is reserved for the transfer.
func (p *Prime) EstimateFee(_ context.Context, _, _ string, _ decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}

func (p *Prime) SendTransaction(ctx context.Context, params SendParams) (string, error) {
	idempotencyKey := uuid.New().String()

	zap.L().Info("Creating custody withdrawal via Prime API",
		zap.String("portfolio_id", p.portfolioId),
		zap.String("wallet_id", p.walletId),
		zap.String("symbol", p.symbol),
		zap.String("amount", params.Amount.String()),
		zap.String("destination", params.ToAddress))

	blockchainAddr := &model.BlockchainAddress{
		Address: params.ToAddress,
	}
	if p.networkId != "" {
		blockchainAddr.Network = &model.NetworkDetails{
			Id:   p.networkId,
			Type: p.networkType,
		}
	}

	request := &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:       p.portfolioId,
		SourceWalletId:    p.walletId,
		Amount:            params.Amount.Abs().String(),
		IdempotencyKey:    idempotencyKey,
		Symbol:            p.symbol,
		DestinationType:   "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: blockchainAddr,
	}

	response, err := p.transactionsSvc.CreateWalletWithdrawal(ctx, request)
	if err != nil {
		return "", fmt.Errorf("%w: unable to create withdrawal: %v", ErrProviderUnavailable, err)
	}

	zap.L().Info("Custody withdrawal created",
		zap.String("activity_id", response.ActivityId),
		zap.String("wallet_id", p.walletId),
		zap.String("amount", params.Amount.String()))

	return response.ActivityId, nil
}

// GetTransactionState resolves the custody activity's status from the wallet
// transaction feed.
func (p *Prime) GetTransactionState(ctx context.Context, hash string) (TxState, error) {
	response, err := p.listWalletTransactions(ctx, time.Now().UTC().Add(-31*24*time.Hour))
	if err != nil {
		return TxPending, err
	}

	for _, tx := range response.Transactions {
		if tx.Id != hash && tx.TransactionId != hash {
			continue
		}
		return mapPrimeStatus(tx.Status), nil
	}
	return TxPending, nil
}

func (p *Prime) GetTransactionDetails(ctx context.Context, hash string) (*TxDetails, error) {
	response, err := p.listWalletTransactions(ctx, time.Time{})
	if err != nil {
		return nil, err
	}

	for _, tx := range response.Transactions {
		if tx.Id != hash && tx.TransactionId != hash {
			continue
		}
		amount, err := decimal.NewFromString(tx.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount on custody transaction %s: %w", tx.Id, err)
		}
		details := &TxDetails{Amount: amount}
		if tx.TransferTo != nil {
			details.To = tx.TransferTo.Address
		}
		if tx.TransferFrom != nil {
			details.From = tx.TransferFrom.Address
		}
		return details, nil
	}
	return nil, nil
}

func (p *Prime) listWalletTransactions(ctx context.Context, start time.Time) (*transactions.ListWalletTransactionsResponse, error) {
	request := &transactions.ListWalletTransactionsRequest{
		PortfolioId: p.portfolioId,
		WalletId:    p.walletId,
		Start:       start,
		Types:       []string{"DEPOSIT", "WITHDRAWAL"},
		Pagination: &model.PaginationParams{
			Limit: 500,
		},
	}

	response, err := p.transactionsSvc.ListWalletTransactions(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to list wallet transactions: %v", ErrProviderUnavailable, err)
	}
	return response, nil
}

func mapPrimeStatus(status string) TxState {
	switch status {
	case "TRANSACTION_DONE":
		return TxCompleted
	case "TRANSACTION_CANCELLED", "TRANSACTION_REJECTED", "TRANSACTION_FAILED", "TRANSACTION_EXPIRED":
		return TxFailed
	default:
		return TxPending
	}
}
