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

// Package lifecycle implements the instruction lease protocol every
// processor runs: pickup, attempt settlement, then exactly one of
// complete, fail, or put back. The pickup is an atomic conditional update
// in the store, so two concurrent runs can never hold the same
// instruction.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-reward-engine/internal/events"
	"crypto-reward-engine/internal/models"
	"crypto-reward-engine/internal/store"

	"go.uber.org/zap"
)

// Engine drives instruction state transitions against the ledger store and
// publishes a lifecycle event after each one.
type Engine struct {
	store  store.LedgerStore
	events events.Publisher
	now    func() time.Time
}

func NewEngine(ledger store.LedgerStore, publisher events.Publisher) *Engine {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Engine{
		store:  ledger,
		events: publisher,
		now:    time.Now,
	}
}

// WithClock replaces the engine clock. Tests use this to pin transition
// timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// ListEligible returns active instructions of the given type that no run has
// claimed yet.
func (e *Engine) ListEligible(ctx context.Context, instructionType models.InstructionType) ([]models.Instruction, error) {
	return e.store.ListEligibleInstructions(ctx, instructionType)
}

// Pickup claims an instruction for the calling run. Exactly one of several
// concurrent callers succeeds; the others receive store.ErrNotEligible.
func (e *Engine) Pickup(ctx context.Context, id string) (*models.Instruction, error) {
	return e.store.PickupInstruction(ctx, id, e.now())
}

// Complete marks terminal success.
func (e *Engine) Complete(ctx context.Context, id string) (*models.Instruction, error) {
	instr, err := e.store.CompleteInstruction(ctx, id, e.now())
	if err != nil {
		return nil, err
	}
	e.publish(ctx, instr, events.OutcomeCompleted, "")
	return instr, nil
}

// Fail marks terminal failure. Failed instructions are never auto-retried;
// operators re-activate or replace them.
func (e *Engine) Fail(ctx context.Context, id, reason string) (*models.Instruction, error) {
	instr, err := e.store.FailInstruction(ctx, id, reason, e.now())
	if err != nil {
		return nil, err
	}
	e.publish(ctx, instr, events.OutcomeFailed, reason)
	return instr, nil
}

// PutBack releases a claimed instruction to the eligible pool for a later
// scheduler run.
func (e *Engine) PutBack(ctx context.Context, id string) (*models.Instruction, error) {
	instr, err := e.store.PutBackInstruction(ctx, id)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, instr, events.OutcomePutBack, "")
	return instr, nil
}

func (e *Engine) publish(ctx context.Context, instr *models.Instruction, outcome events.Outcome, reason string) {
	err := e.events.Publish(ctx, events.InstructionEvent{
		InstructionId: instr.Id,
		Type:          instr.Type,
		UserId:        instr.UserId,
		Outcome:       outcome,
		Reason:        reason,
		Amount:        instr.Amount.String(),
		OccurredAt:    e.now().UTC(),
	})
	if err != nil {
		zap.L().Warn("Failed to publish lifecycle event",
			zap.String("instruction_id", instr.Id),
			zap.String("outcome", string(outcome)),
			zap.Error(err))
	}
}

// Task is the handle a settlement function receives for one claimed
// instruction. The function must settle through it (or return an error /
// panic, in which case Run puts the instruction back).
type Task struct {
	engine      *Engine
	instruction models.Instruction
	settled     bool
}

// Instruction returns the snapshot taken at pickup.
func (t *Task) Instruction() models.Instruction { return t.instruction }

// Complete marks terminal success for the held instruction.
func (t *Task) Complete(ctx context.Context) error {
	if _, err := t.engine.Complete(ctx, t.instruction.Id); err != nil {
		return err
	}
	t.settled = true
	return nil
}

// Fail marks terminal failure for the held instruction.
func (t *Task) Fail(ctx context.Context, reason string) error {
	if _, err := t.engine.Fail(ctx, t.instruction.Id, reason); err != nil {
		return err
	}
	t.settled = true
	return nil
}

// PutBack releases the held instruction for a later run.
func (t *Task) PutBack(ctx context.Context) error {
	if _, err := t.engine.PutBack(ctx, t.instruction.Id); err != nil {
		return err
	}
	t.settled = true
	return nil
}

// MarkSettled records that the instruction reached a terminal state through
// the store directly (e.g. an atomic complete-with-children), so Run's
// watchdog must not put it back.
func (t *Task) MarkSettled() { t.settled = true }

// Run executes one settlement attempt under the lease protocol. It picks the
// instruction up, invokes fn, and guarantees the instruction does not stay
// claimed: if fn returns an error, panics, or forgets to settle, the
// instruction is put back and becomes eligible on the next scheduler run.
// A pickup lost to a concurrent run returns store.ErrNotEligible.
func (e *Engine) Run(ctx context.Context, id string, fn func(ctx context.Context, task *Task) error) (err error) {
	instr, err := e.Pickup(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotEligible) {
			zap.L().Debug("Instruction claimed by another run", zap.String("instruction_id", id))
		}
		return err
	}

	task := &Task{engine: e, instruction: *instr}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("settlement panicked: %v", r)
			zap.L().Error("Settlement panicked",
				zap.String("instruction_id", id),
				zap.Any("panic", r))
		}
		if task.settled {
			return
		}
		if _, putBackErr := e.PutBack(ctx, id); putBackErr != nil {
			zap.L().Error("Failed to put back instruction after unsettled run",
				zap.String("instruction_id", id),
				zap.Error(putBackErr))
		}
	}()

	if err := fn(ctx, task); err != nil {
		zap.L().Error("Settlement attempt failed, putting instruction back",
			zap.String("instruction_id", id),
			zap.String("type", string(instr.Type)),
			zap.Error(err))
		return err
	}
	return nil
}
