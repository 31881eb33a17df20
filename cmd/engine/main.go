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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-reward-engine/internal/balance"
	"crypto-reward-engine/internal/bands"
	"crypto-reward-engine/internal/cards"
	"crypto-reward-engine/internal/common"
	"crypto-reward-engine/internal/config"
	"crypto-reward-engine/internal/confirm"
	"crypto-reward-engine/internal/lifecycle"
	"crypto-reward-engine/internal/processors"
	"crypto-reward-engine/internal/rewards"
	"crypto-reward-engine/internal/scheduler"

	"go.uber.org/zap"
)

func main() {
	noIssue := flag.Bool("no-issue", false, "Disable the monthly reward issue job (process and confirm only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting reward engine")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	engine := lifecycle.NewEngine(services.Store, services.Events)
	aggregator := balance.NewAggregator(services.Store)
	resolver := bands.NewResolver(services.Store)
	settler := processors.NewSettler(engine, services.Store, services.Registry, aggregator)
	spend := cards.NewStatic(cfg.Rewards.ReferenceCurrency, nil)
	issuer := rewards.NewIssuer(services.Store, resolver, aggregator, spend,
		services.Converter, cfg.Rewards.ReferenceCurrency)
	fanOut := rewards.NewFanOut(engine, services.Store, services.Converter,
		services.Registry, cfg.Rewards.ReferenceCurrency)
	poller := confirm.NewPoller(services.Store, services.Registry, cfg.Scheduler.ConfirmInterval)

	jobs := scheduler.New(
		scheduler.Job{
			Name:     "process-withdrawals",
			Interval: cfg.Scheduler.ProcessInterval,
			Run:      settler.ProcessWithdrawals,
		},
		scheduler.Job{
			Name:     "process-staking-deposits",
			Interval: cfg.Scheduler.ProcessInterval,
			Run:      settler.ProcessStakingDeposits,
		},
		scheduler.Job{
			Name:     "process-staking-withdrawals",
			Interval: cfg.Scheduler.ProcessInterval,
			Run:      settler.ProcessStakingWithdrawals,
		},
		scheduler.Job{
			Name:     "process-reward-payments",
			Interval: cfg.Scheduler.ProcessInterval,
			Run:      settler.ProcessRewardPayments,
		},
		scheduler.Job{
			Name:     "fan-out-monthly-rewards",
			Interval: cfg.Scheduler.ProcessInterval,
			Run:      fanOut.ProcessMonthlyRewardInstructions,
		},
	)
	if !*noIssue {
		jobs.Add(scheduler.Job{
			Name:     "issue-monthly-rewards",
			Interval: cfg.Scheduler.IssueInterval,
			Run:      issuer.IssueRewardInstructions,
		})
	}

	jobs.Start(ctx)
	poller.Start(ctx)

	zap.L().Info("Reward engine running")
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		jobs.Stop()
		poller.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Reward engine stopped gracefully")
	case <-time.After(cfg.Scheduler.ShutdownGrace):
		zap.L().Warn("Forced shutdown after timeout")
	}
}
