// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Fixed Assistant Text
// =============================================================================

const (
	// Greeting is the assistant message every new conversation starts with.
	Greeting = "Welcome to FinHelp, your personal AI customer service assistant at Quantum Bank. " +
		"Available 24/7, FinHelp is here to enhance your banking experience with swift, accurate, " +
		"and friendly support for all your needs."

	// DefaultSystemPreamble is prepended to every conversation sent to the
	// completion provider.
	DefaultSystemPreamble = "You are a helpful assistant. Please provide accurate and concise information."
)

// defaultCannedAnswers is the built-in FAQ table. Keys are already normalized.
var defaultCannedAnswers = map[string]string{
	"hello":                                   "Hello! How can I assist you today?",
	"i need help":                             "I'm here to help! What do you need assistance with?",
	"what is my bank account number":          "For security reasons, I cannot provide your bank account number.",
	"what is my routing number":               "Please check your bank statement or contact your bank to retrieve your routing number.",
	"how can i reset my password":             "You can reset your password by clicking on 'Forgot Password' on the login page or contacting our support team.",
	"how do i check my account balance":       "You can check your account balance by logging into your account on our website or using our mobile app.",
	"how can i transfer money":                "To transfer money, log into your account and navigate to the 'Transfer' section. Follow the prompts to complete your transfer.",
	"what are your customer support hours":    "Our customer support is available 24/7 to assist you with any issues or inquiries.",
	"how do i update my personal information": "You can update your personal information by logging into your account and visiting the 'Profile' or 'Account Settings' section.",
	"how do i report a lost or stolen card":   "To report a lost or stolen card, please contact our support team immediately at 1-800-QUANTUM.",
}

// =============================================================================
// Normalization
// =============================================================================

// NormalizeUtterance case-folds and trims s so that "Hello", "hello" and
// " hello " all produce the same lookup key.
//
// A fresh Caser is built per call; cases.Caser is not safe for concurrent use.
func NormalizeUtterance(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// =============================================================================
// CannedTable
// =============================================================================

// CannedTable maps normalized questions to fixed answers.
//
// # Description
//
// CannedTable short-circuits the completion provider for a small set of
// frequently asked or privacy-sensitive questions. Matching is exact after
// normalization; near misses (extra punctuation, typos) fall through to the
// provider.
//
// # Thread Safety
//
// Immutable after construction. Safe for concurrent use.
type CannedTable struct {
	answers map[string]string
}

// NewCannedTable builds a table from question/answer pairs. Questions are
// normalized; entries with an empty question or answer are rejected.
func NewCannedTable(entries map[string]string) (*CannedTable, error) {
	answers := make(map[string]string, len(entries))
	for question, answer := range entries {
		key := NormalizeUtterance(question)
		if key == "" {
			return nil, fmt.Errorf("canned table: empty question")
		}
		if strings.TrimSpace(answer) == "" {
			return nil, fmt.Errorf("canned table: empty answer for %q", question)
		}
		if _, dup := answers[key]; dup {
			return nil, fmt.Errorf("canned table: duplicate question %q", key)
		}
		answers[key] = answer
	}
	return &CannedTable{answers: answers}, nil
}

// DefaultCannedTable returns the built-in Quantum Bank FAQ table.
func DefaultCannedTable() *CannedTable {
	answers := make(map[string]string, len(defaultCannedAnswers))
	for k, v := range defaultCannedAnswers {
		answers[k] = v
	}
	return &CannedTable{answers: answers}
}

// Lookup returns the canned answer for utterance, if any.
//
// # Examples
//
//	answer, ok := table.Lookup("  Hello ")
//	// answer == "Hello! How can I assist you today?", ok == true
func (t *CannedTable) Lookup(utterance string) (string, bool) {
	if t == nil {
		return "", false
	}
	answer, ok := t.answers[NormalizeUtterance(utterance)]
	return answer, ok
}

// Questions returns the normalized questions in sorted order.
func (t *CannedTable) Questions() []string {
	if t == nil {
		return nil
	}
	questions := make([]string, 0, len(t.answers))
	for q := range t.answers {
		questions = append(questions, q)
	}
	sort.Strings(questions)
	return questions
}

// Len returns the number of entries.
func (t *CannedTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.answers)
}

// =============================================================================
// File Loading
// =============================================================================

// cannedFile is the YAML layout of a canned table override:
//
//	answers:
//	  - question: hello
//	    answer: Hello! How can I assist you today?
type cannedFile struct {
	Answers []struct {
		Question string `yaml:"question"`
		Answer   string `yaml:"answer"`
	} `yaml:"answers"`
}

// LoadCannedTable reads a YAML canned table from path. The file replaces the
// built-in table entirely.
func LoadCannedTable(path string) (*CannedTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read canned table %s: %w", path, err)
	}

	var file cannedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse canned table %s: %w", path, err)
	}
	if len(file.Answers) == 0 {
		return nil, fmt.Errorf("canned table %s has no answers", path)
	}

	entries := make(map[string]string, len(file.Answers))
	for _, entry := range file.Answers {
		if _, dup := entries[entry.Question]; dup {
			return nil, fmt.Errorf("canned table %s: duplicate question %q", path, entry.Question)
		}
		entries[entry.Question] = entry.Answer
	}
	return NewCannedTable(entries)
}
