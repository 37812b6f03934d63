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
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// =============================================================================
// Input Readers
// =============================================================================

// InputReader abstracts reading one utterance from the user.
//
// # Description
//
// ReadLine blocks until the user submits a line. io.EOF means the user
// is done (Ctrl+D or a closed stdin). An empty string is a valid line
// and is skipped by the chat loop.
//
// # Thread Safety
//
// Implementations are not required to be safe for concurrent use.
type InputReader interface {
	ReadLine() (string, error)
}

// StdinReader reads lines from a buffered reader.
type StdinReader struct {
	reader *bufio.Reader
}

// NewStdinReader wraps r, typically os.Stdin.
func NewStdinReader(r io.Reader) *StdinReader {
	return &StdinReader{reader: bufio.NewReader(r)}
}

// ReadLine returns the next line without its terminator. A final line
// with no newline is returned before io.EOF.
func (s *StdinReader) ReadLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// InteractiveInputReader reads lines through a bubbletea text input with
// Up/Down history.
//
// # Limitations
//
// Runs one tea.Program per line, so terminal state is restored between
// turns and streamed output prints normally.
type InteractiveInputReader struct {
	prompt     string
	history    []string
	maxHistory int
}

// NewInteractiveInputReader returns an InteractiveInputReader when stdin
// is a terminal, and a StdinReader otherwise.
func NewInteractiveInputReader(prompt string, maxHistory int) InputReader {
	fd := os.Stdin.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return NewStdinReader(os.Stdin)
	}
	return &InteractiveInputReader{prompt: prompt, maxHistory: maxHistory}
}

// ReadLine runs the text input until Enter, Ctrl+C or Ctrl+D.
func (r *InteractiveInputReader) ReadLine() (string, error) {
	m := newInputModel(r.prompt, r.history)
	result, err := tea.NewProgram(m, tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		return "", err
	}
	final := result.(inputModel)
	if final.eof {
		return "", io.EOF
	}
	if final.value != "" {
		r.remember(final.value)
	}
	return final.value, nil
}

func (r *InteractiveInputReader) remember(line string) {
	if n := len(r.history); n > 0 && r.history[n-1] == line {
		return
	}
	r.history = append(r.history, line)
	if r.maxHistory > 0 && len(r.history) > r.maxHistory {
		r.history = r.history[len(r.history)-r.maxHistory:]
	}
}

// =============================================================================
// Bubbletea Model
// =============================================================================

type inputModel struct {
	input     textinput.Model
	history   []string
	histIndex int
	value     string
	eof       bool
	done      bool
}

func newInputModel(prompt string, history []string) inputModel {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.Placeholder = "Ask about your account, cards, or transfers"
	ti.Focus()
	return inputModel{input: ti, history: history, histIndex: len(history)}
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.value = strings.TrimSpace(m.input.Value())
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC:
			m.value = ""
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlD:
			if m.input.Value() == "" {
				m.eof = true
				m.done = true
				return m, tea.Quit
			}
		case tea.KeyUp:
			if m.histIndex > 0 {
				m.histIndex--
				m.input.SetValue(m.history[m.histIndex])
				m.input.CursorEnd()
			}
			return m, nil
		case tea.KeyDown:
			if m.histIndex < len(m.history)-1 {
				m.histIndex++
				m.input.SetValue(m.history[m.histIndex])
				m.input.CursorEnd()
			} else {
				m.histIndex = len(m.history)
				m.input.SetValue("")
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done {
		if m.eof {
			return ""
		}
		return m.input.Prompt + m.value + "\n"
	}
	return m.input.View()
}
