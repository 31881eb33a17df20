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

// Operator tool that manages reward bands and per-user reward selections.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"crypto-reward-engine/internal/bands"
	"crypto-reward-engine/internal/common"
	"crypto-reward-engine/internal/config"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	listFlag := flag.Bool("list", false, "List active reward bands")
	addFlag := flag.Bool("add", false, "Add a reward band")
	deactivateFlag := flag.String("deactivate", "", "Deactivate a band by id")
	typeFlag := flag.String("type", "SPEND", "Band type: SPEND or STAKE")
	fromFlag := flag.String("from", "", "Band lower bound")
	toFlag := flag.String("to", "", "Band upper bound")
	upToFlag := flag.String("upto", "", "Cap on the amount the percentage applies to")
	pctFlag := flag.String("pct", "", "Percentage reward")
	selectEmail := flag.String("select-user", "", "User email to replace reward selections for")
	selections := flag.String("selections", "", "Selections as SYMBOL:PCT pairs, e.g. BTC:60,ETH:40")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

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

	switch {
	case *listFlag:
		err = listBands(ctx, ledger)
	case *addFlag:
		err = addBand(ctx, ledger, *typeFlag, *fromFlag, *toFlag, *upToFlag, *pctFlag)
	case *deactivateFlag != "":
		err = ledger.DeactivateRewardBand(ctx, *deactivateFlag)
	case *selectEmail != "":
		err = replaceSelections(ctx, ledger, *selectEmail, *selections)
	default:
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		zap.L().Fatal("Command failed", zap.Error(err))
	}
}

func listBands(ctx context.Context, ledger store.LedgerStore) error {
	all, err := ledger.ListActiveRewardBands(ctx)
	if err != nil {
		return err
	}

	common.PrintHeader("Active reward bands", common.DefaultWidth)
	for i, band := range all {
		prefix := common.BoxPrefix(i == len(all)-1)
		fmt.Printf("%s %-6s [%s, %s]  up to %s  %s%%  (%s)\n",
			prefix, band.Type, band.BandFrom.String(), band.BandTo.String(),
			band.UpTo.String(), band.PercentageReward.String(), band.Id)
	}
	common.PrintFooter(fmt.Sprintf("Bands: %d", len(all)), common.DefaultWidth)
	return nil
}

func addBand(ctx context.Context, ledger store.LedgerStore, bandType, from, to, upTo, pct string) error {
	if from == "" || to == "" || upTo == "" || pct == "" {
		return fmt.Errorf("required flags for --add: --from, --to, --upto, --pct")
	}

	parse := func(name, value string) (decimal.Decimal, error) {
		parsed, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid %s: %w", name, err)
		}
		return parsed, nil
	}

	bandFrom, err := parse("from", from)
	if err != nil {
		return err
	}
	bandTo, err := parse("to", to)
	if err != nil {
		return err
	}
	capAmount, err := parse("upto", upTo)
	if err != nil {
		return err
	}
	percentage, err := parse("pct", pct)
	if err != nil {
		return err
	}

	resolver := bands.NewResolver(ledger)
	band, err := resolver.CreateBand(ctx, store.CreateBandParams{
		Type:             models.RewardBandType(bandType),
		BandFrom:         bandFrom,
		BandTo:           bandTo,
		UpTo:             capAmount,
		PercentageReward: percentage,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created %s band %s: [%s, %s] up to %s at %s%%\n",
		band.Type, band.Id, band.BandFrom.String(), band.BandTo.String(),
		band.UpTo.String(), band.PercentageReward.String())
	return nil
}

func replaceSelections(ctx context.Context, ledger store.LedgerStore, email, raw string) error {
	users, err := ledger.GetActiveUsers(ctx)
	if err != nil {
		return err
	}
	var user *models.User
	for i := range users {
		if users[i].Email == email {
			user = &users[i]
			break
		}
	}
	if user == nil {
		return fmt.Errorf("no active user with email %s", email)
	}

	var parsed []models.RewardSelection
	if raw != "" {
		for _, pair := range strings.Split(raw, ",") {
			parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
			if len(parts) != 2 {
				return fmt.Errorf("invalid selection %q, expected SYMBOL:PCT", pair)
			}
			currency, err := ledger.GetCryptoCurrencyBySymbol(ctx, parts[0])
			if err != nil {
				return fmt.Errorf("unknown currency %s: %w", parts[0], err)
			}
			percentage, err := decimal.NewFromString(parts[1])
			if err != nil {
				return fmt.Errorf("invalid percentage in %q: %w", pair, err)
			}
			parsed = append(parsed, models.RewardSelection{
				UserId:           user.Id,
				CryptoCurrencyId: currency.Id,
				Percentage:       percentage,
			})
		}
	}

	if err := ledger.ReplaceRewardSelections(ctx, user.Id, parsed); err != nil {
		return err
	}
	fmt.Printf("Replaced reward selections for %s (%d entries)\n", email, len(parsed))
	return nil
}
