// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/AleutianAI/finhelp/pkg/ux"
)

// ChatRunner drives the interactive read/send/render loop.
//
// # Description
//
// Each submitted line becomes one turn on the session. Turn failures are
// already rendered in the transcript, so the loop logs them and keeps
// going; only input errors and cancellation end the loop.
type ChatRunner struct {
	session  *ux.ChatSession
	input    InputReader
	renderer *ux.TurnRenderer
	out      io.Writer
	logger   *slog.Logger
}

// ChatRunnerConfig wires a ChatRunner.
type ChatRunnerConfig struct {
	Session  *ux.ChatSession
	Input    InputReader
	Renderer *ux.TurnRenderer
	Out      io.Writer
	Logger   *slog.Logger
}

// NewChatRunner panics when Session, Input or Renderer is nil.
func NewChatRunner(cfg ChatRunnerConfig) *ChatRunner {
	if cfg.Session == nil || cfg.Input == nil || cfg.Renderer == nil {
		panic("NewChatRunner: session, input and renderer are required")
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ChatRunner{
		session:  cfg.Session,
		input:    cfg.Input,
		renderer: cfg.Renderer,
		out:      cfg.Out,
		logger:   cfg.Logger,
	}
}

// Run prints the transcript so far and loops until EOF, "exit"/"quit",
// or ctx is cancelled. It returns the number of turns that ended in error.
func (r *ChatRunner) Run(ctx context.Context) (int, error) {
	r.renderer.RenderHistory(r.session.Conversation().Snapshot())

	failed := 0
	for {
		if err := ctx.Err(); err != nil {
			return failed, nil
		}

		line, err := r.input.ReadLine()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out, ux.Styles.Muted.Render("Goodbye."))
			return failed, nil
		}
		if err != nil {
			return failed, fmt.Errorf("read input: %w", err)
		}

		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(r.out, ux.Styles.Muted.Render("Goodbye."))
			return failed, nil
		}

		outcome, err := r.session.Send(ctx, line, r.renderer.OnUpdate)
		if outcome == ux.OutcomeError {
			failed++
			r.logger.Warn("Turn failed", "error", err)
			continue
		}
		if err != nil {
			// Rejected before the turn began.
			r.logger.Debug("Utterance rejected", "error", err)
		}
	}
}

// askOnce sends a single utterance and returns the session error, if any.
func askOnce(ctx context.Context, session *ux.ChatSession, renderer *ux.TurnRenderer, question string) error {
	outcome, err := session.Send(ctx, question, renderer.OnUpdate)
	if err != nil {
		return err
	}
	if outcome != ux.OutcomeSuccess {
		return fmt.Errorf("turn ended with outcome %s", outcome)
	}
	return nil
}
