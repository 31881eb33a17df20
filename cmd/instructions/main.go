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

// Operator tool that lists instructions and toggles the active flag. Failed
// instructions are never retried automatically; re-activating after fixing
// the cause requires the failed row to be replaced, not revived, so the tool
// only activates or deactivates.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"crypto-reward-engine/internal/common"
	"crypto-reward-engine/internal/config"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"go.uber.org/zap"
)

func main() {
	typeFlag := flag.String("type", "", "Filter by instruction type")
	userFlag := flag.String("user", "", "Filter by user id")
	failedFlag := flag.Bool("failed", false, "Only failed instructions")
	limitFlag := flag.Int("limit", 50, "Maximum rows")
	activateFlag := flag.String("activate", "", "Set an instruction active by id")
	deactivateFlag := flag.String("deactivate", "", "Set an instruction inactive by id")
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
	case *activateFlag != "":
		err = ledger.SetInstructionActive(ctx, *activateFlag, true)
	case *deactivateFlag != "":
		err = ledger.SetInstructionActive(ctx, *deactivateFlag, false)
	default:
		err = listInstructions(ctx, ledger, store.InstructionFilter{
			Type:   models.InstructionType(*typeFlag),
			UserId: *userFlag,
			Failed: *failedFlag,
			Limit:  *limitFlag,
		})
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func stateOf(instr models.Instruction) string {
	switch {
	case instr.CompletedDate != nil:
		return "COMPLETED"
	case instr.FailedDate != nil:
		return "FAILED"
	case instr.PickedUpDate != nil:
		return "IN-FLIGHT"
	case !instr.Active:
		return "INACTIVE"
	default:
		return "ELIGIBLE"
	}
}

func listInstructions(ctx context.Context, ledger store.LedgerStore, filter store.InstructionFilter) error {
	instructions, err := ledger.ListInstructions(ctx, filter)
	if err != nil {
		return err
	}

	common.PrintHeader("Instructions", common.WideWidth)
	for i, instr := range instructions {
		prefix := common.BoxPrefix(i == len(instructions)-1)
		line := fmt.Sprintf("%s %-20s %-9s %18s  %s", prefix, instr.Type, stateOf(instr),
			instr.Amount.String(), instr.Id)
		if instr.FailedReason != "" {
			line += "  (" + instr.FailedReason + ")"
		}
		fmt.Println(line)
	}
	common.PrintFooter(fmt.Sprintf("Instructions: %d", len(instructions)), common.WideWidth)
	return nil
}
