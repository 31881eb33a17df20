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

package events

import (
	"context"
	"time"

	"crypto-reward-engine/internal/models"
)

// Outcome names the lifecycle transition an event describes.
type Outcome string

const (
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeFailed    Outcome = "FAILED"
	OutcomePutBack   Outcome = "PUT_BACK"
)

// InstructionEvent is published after every lifecycle transition so
// downstream consumers (notifications, reporting) can react without polling
// the ledger.
type InstructionEvent struct {
	InstructionId string                 `json:"instruction_id"`
	Type          models.InstructionType `json:"type"`
	UserId        string                 `json:"user_id"`
	Outcome       Outcome                `json:"outcome"`
	Reason        string                 `json:"reason,omitempty"`
	Amount        string                 `json:"amount"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// Publisher emits instruction lifecycle events. Publishing is best-effort:
// the lifecycle engine logs failures and moves on, it never blocks settlement
// on the event stream.
type Publisher interface {
	Publish(ctx context.Context, event InstructionEvent) error
	Close() error
}

// Noop discards all events. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, InstructionEvent) error { return nil }
func (Noop) Close() error                                    { return nil }
