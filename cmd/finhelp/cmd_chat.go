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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AleutianAI/finhelp/pkg/logging"
	"github.com/AleutianAI/finhelp/pkg/ux"
	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
	"github.com/AleutianAI/finhelp/services/orchestrator/handlers"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const cannedRequestTimeout = 10 * time.Second

// resolveConfig loads the config file and applies flag overrides.
func resolveConfig() (ClientConfig, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return ClientConfig{}, err
	}
	return applyFlagOverrides(cfg, relayURL, eventStream, logLevel), nil
}

func applyFlagOverrides(cfg ClientConfig, relay string, sse bool, level string) ClientConfig {
	if relay != "" {
		cfg.RelayURL = relay
	}
	if sse {
		cfg.EventStream = true
	}
	if level != "" {
		cfg.LogLevel = level
	}
	return cfg
}

// newClientLogger keeps stderr quiet below the configured level; the
// transcript owns the terminal.
func newClientLogger(cfg ClientConfig) *logging.Logger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logging.LevelWarn
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.LogDir,
		Service: "finhelp",
	})
}

// newSession builds a ChatSession for cfg using the local canned table.
func newSession(cfg ClientConfig, client *http.Client) (*ux.ChatSession, error) {
	canned := datatypes.DefaultCannedTable()
	if cfg.CannedTablePath != "" {
		table, err := datatypes.LoadCannedTable(cfg.CannedTablePath)
		if err != nil {
			return nil, err
		}
		canned = table
	}
	return ux.NewChatSession(ux.SessionConfig{
		Endpoint:    cfg.ChatURL(),
		HTTPClient:  client,
		Canned:      canned,
		EventStream: cfg.EventStream,
	})
}

// renderModeFor returns RenderMachine when forced or when out is not a
// terminal.
func renderModeFor(forceMachine bool, out io.Writer) ux.RenderMode {
	if forceMachine {
		return ux.RenderMachine
	}
	if f, ok := out.(*os.File); ok {
		fd := f.Fd()
		if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			return ux.RenderInteractive
		}
	}
	return ux.RenderMachine
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runChatCommand(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	logger := newClientLogger(cfg)
	defer logger.Close()

	session, err := newSession(cfg, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	mode := renderModeFor(machineMode, out)
	if mode == ux.RenderInteractive {
		fmt.Fprintln(out, ux.Styles.Banner.Render("Quantum Bank · FinHelp"))
		fmt.Fprintln(out, ux.Styles.Muted.Render("Type exit or press Ctrl+D to leave."))
	}

	runner := NewChatRunner(ChatRunnerConfig{
		Session:  session,
		Input:    NewInteractiveInputReader(ux.Styles.User.Render("You: "), 100),
		Renderer: ux.NewTurnRenderer(out, mode),
		Out:      out,
		Logger:   logger.Slog(),
	})

	ctx, stop := signalContext()
	defer stop()

	failed, err := runner.Run(ctx)
	logger.Info("Chat finished", "failed_turns", failed)
	return err
}

func runAskCommand(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	logger := newClientLogger(cfg)
	defer logger.Close()

	session, err := newSession(cfg, nil)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	renderer := ux.NewTurnRenderer(cmd.OutOrStdout(), renderModeFor(machineMode, cmd.OutOrStdout()))
	if err := askOnce(ctx, session, renderer, strings.Join(args, " ")); err != nil {
		logger.Error("Ask failed", "error", err)
		return err
	}
	return nil
}

func runCannedCommand(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cannedRequestTimeout)
	defer cancel()

	questions, err := fetchCannedQuestions(ctx, http.DefaultClient, cfg.CannedURL())
	if err != nil {
		return err
	}
	printCannedQuestions(cmd.OutOrStdout(), questions)
	return nil
}

// fetchCannedQuestions reads the relay's canned question list.
func fetchCannedQuestions(ctx context.Context, client *http.Client, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, datatypes.NewTransportError("failed to reach the relay", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, datatypes.NewTransportError(
			fmt.Sprintf("relay returned status %d", resp.StatusCode), nil)
	}

	var body handlers.CannedQuestionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, datatypes.NewTransportError("invalid canned question list", err)
	}
	return body.Questions, nil
}

func printCannedQuestions(w io.Writer, questions []string) {
	if len(questions) == 0 {
		fmt.Fprintln(w, ux.Styles.Muted.Render("No canned questions are configured."))
		return
	}
	for _, q := range questions {
		fmt.Fprintf(w, "%s %s\n", ux.IconBullet.Render(), q)
	}
}
