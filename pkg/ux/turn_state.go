// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"fmt"
)

// TurnPhase is the phase of one send/receive turn.
type TurnPhase int

const (
	// TurnIdle accepts new input.
	TurnIdle TurnPhase = iota

	// TurnSending has a request in flight and no reply bytes yet.
	TurnSending

	// TurnStreaming is receiving reply fragments.
	TurnStreaming

	// TurnSettled is terminal for the turn. See TurnState.Outcome.
	TurnSettled
)

// String returns the lowercase phase name.
func (p TurnPhase) String() string {
	switch p {
	case TurnIdle:
		return "idle"
	case TurnSending:
		return "sending"
	case TurnStreaming:
		return "streaming"
	case TurnSettled:
		return "settled"
	default:
		return fmt.Sprintf("TurnPhase(%d)", int(p))
	}
}

// TurnOutcome records how a settled turn ended.
type TurnOutcome int

const (
	// OutcomeNone is the outcome of any unsettled turn.
	OutcomeNone TurnOutcome = iota

	// OutcomeSuccess means the assistant message holds a complete reply.
	OutcomeSuccess

	// OutcomeError means the assistant message holds ClientErrorMessage.
	OutcomeError
)

// String returns the lowercase outcome name.
func (o TurnOutcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("TurnOutcome(%d)", int(o))
	}
}

// ErrInvalidTransition is returned for a transition the turn machine does
// not allow.
var ErrInvalidTransition = errors.New("invalid turn transition")

// TurnState is the per-turn state machine:
//
//	Idle → Sending → Streaming → Settled(Success|Error)
//	            └───────────────→ Settled(Success|Error)
//
// Sending settles directly for canned answers and for failures before the
// first byte. Settled resets to Idle for the next turn. Input is locked in
// every phase except Idle.
//
// The zero value is Idle. Not safe for concurrent use; a ChatSession owns
// its TurnState.
type TurnState struct {
	phase   TurnPhase
	outcome TurnOutcome
}

// Phase returns the current phase.
func (s TurnState) Phase() TurnPhase { return s.phase }

// Outcome returns how the turn settled, or OutcomeNone.
func (s TurnState) Outcome() TurnOutcome { return s.outcome }

// InputLocked reports whether new user input must be refused.
func (s TurnState) InputLocked() bool { return s.phase != TurnIdle }

// Begin moves Idle to Sending.
func (s *TurnState) Begin() error {
	return s.transition(TurnSending, OutcomeNone)
}

// Stream moves Sending to Streaming. Repeated calls while Streaming are
// no-ops.
func (s *TurnState) Stream() error {
	if s.phase == TurnStreaming {
		return nil
	}
	return s.transition(TurnStreaming, OutcomeNone)
}

// Settle moves Sending or Streaming to Settled with outcome.
func (s *TurnState) Settle(outcome TurnOutcome) error {
	if outcome != OutcomeSuccess && outcome != OutcomeError {
		return fmt.Errorf("%w: settle with outcome %s", ErrInvalidTransition, outcome)
	}
	return s.transition(TurnSettled, outcome)
}

// Reset moves Settled back to Idle.
func (s *TurnState) Reset() error {
	return s.transition(TurnIdle, OutcomeNone)
}

func (s *TurnState) transition(to TurnPhase, outcome TurnOutcome) error {
	if !allowedTransition(s.phase, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.phase, to)
	}
	s.phase = to
	s.outcome = outcome
	return nil
}

func allowedTransition(from, to TurnPhase) bool {
	switch from {
	case TurnIdle:
		return to == TurnSending
	case TurnSending:
		return to == TurnStreaming || to == TurnSettled
	case TurnStreaming:
		return to == TurnSettled
	case TurnSettled:
		return to == TurnIdle
	default:
		return false
	}
}
