// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
)

// RenderMode selects how a TurnRenderer writes.
type RenderMode int

const (
	// RenderInteractive prints styled text as it streams in.
	RenderInteractive RenderMode = iota

	// RenderMachine prints one "ANSWER: ..." or "ERROR: ..." line per
	// settled turn, for scripts.
	RenderMachine
)

// TurnRenderer draws conversation updates on a terminal.
//
// # Description
//
// OnUpdate is an UpdateFunc. In interactive mode it prints only the part of
// the trailing assistant message not yet shown, so a streamed reply appears
// token by token. When a turn settles with an error, the partial reply is
// followed by the styled ClientErrorMessage on its own line.
//
// # Thread Safety
//
// Safe for concurrent use.
type TurnRenderer struct {
	w    io.Writer
	mode RenderMode

	mu         sync.Mutex
	msgIndex   int
	printedLen int
	finished   bool
}

// NewTurnRenderer creates a renderer writing to w.
func NewTurnRenderer(w io.Writer, mode RenderMode) *TurnRenderer {
	return &TurnRenderer{w: w, mode: mode, msgIndex: -1}
}

// RenderHistory prints complete messages, e.g. the greeting. Machine mode
// prints nothing.
func (r *TurnRenderer) RenderHistory(messages []datatypes.Message) {
	if r.mode == RenderMachine {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range messages {
		switch m.Role {
		case datatypes.RoleAssistant:
			fmt.Fprintf(r.w, "%s %s\n\n", Styles.Assistant.Render("FinHelp:"), m.Content)
		case datatypes.RoleUser:
			fmt.Fprintf(r.w, "%s %s\n\n", Styles.User.Render("You:"), m.Content)
		}
	}
}

// OnUpdate renders the latest state of a turn.
func (r *TurnRenderer) OnUpdate(messages []datatypes.Message, state TurnState) {
	if len(messages) == 0 {
		return
	}
	idx := len(messages) - 1
	last := messages[idx]
	if last.Role != datatypes.RoleAssistant {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if idx != r.msgIndex {
		r.msgIndex = idx
		r.printedLen = 0
		r.finished = false
		if r.mode == RenderInteractive {
			fmt.Fprintf(r.w, "%s ", Styles.Assistant.Render("FinHelp:"))
		}
	}
	if r.finished {
		return
	}

	settled := state.Phase() == TurnSettled
	failed := settled && state.Outcome() == OutcomeError

	if r.mode == RenderMachine {
		if !settled {
			return
		}
		if failed {
			fmt.Fprintf(r.w, "ERROR: %s\n", singleLine(last.Content))
		} else {
			fmt.Fprintf(r.w, "ANSWER: %s\n", singleLine(last.Content))
		}
		r.finished = true
		return
	}

	if failed {
		if r.printedLen > 0 {
			fmt.Fprintln(r.w)
		}
		fmt.Fprintf(r.w, "%s %s\n\n", IconError.Render(), Styles.Error.Render(last.Content))
		r.finished = true
		return
	}

	if len(last.Content) > r.printedLen {
		io.WriteString(r.w, last.Content[r.printedLen:])
		r.printedLen = len(last.Content)
	}
	if settled {
		fmt.Fprint(r.w, "\n\n")
		r.finished = true
	}
}

// singleLine keeps machine output one record per line.
func singleLine(s string) string {
	return strings.ReplaceAll(s, "\n", `\n`)
}
