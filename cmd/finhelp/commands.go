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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath  string
	relayURL    string
	eventStream bool
	machineMode bool
	logLevel    string

	rootCmd = &cobra.Command{
		Use:   "finhelp",
		Short: "Chat with the Quantum Bank FinHelp assistant",
		Long: `finhelp talks to a FinHelp relay and prints the assistant's reply
as it streams in. Settings come from ~/.finhelp/finhelp.yaml and can be
overridden with flags.`,
		SilenceUsage: true,
	}

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Args:  cobra.NoArgs,
		RunE:  runChatCommand, // Defined in cmd_chat.go
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAskCommand, // Defined in cmd_chat.go
	}

	cannedCmd = &cobra.Command{
		Use:   "canned",
		Short: "List the questions the relay answers without the model",
		Args:  cobra.NoArgs,
		RunE:  runCannedCommand, // Defined in cmd_chat.go
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.finhelp/finhelp.yaml)")
	flags.StringVar(&relayURL, "relay", "", "relay base URL, overrides relay_url")
	flags.BoolVar(&eventStream, "sse", false, "request Server-Sent Events framing")
	flags.BoolVar(&machineMode, "machine", false, "print one ANSWER:/ERROR: line per turn")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error, overrides log_level")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(cannedCmd)
}
