// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"sync"

	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
)

// ErrNoAssistantPlaceholder is returned when the last message of a
// conversation is not an assistant message that may still be mutated.
var ErrNoAssistantPlaceholder = errors.New("last message is not an assistant message")

// Conversation is the client-side ordered message log.
//
// # Description
//
// Messages are immutable once appended, except the last assistant message,
// which AppendToLast and ReplaceLast mutate while a reply is streaming.
// Snapshot returns copies so callers never share the backing array.
//
// # Thread Safety
//
// Safe for concurrent use.
type Conversation struct {
	mu       sync.RWMutex
	messages []datatypes.Message
}

// NewConversation returns a log seeded with messages, usually the greeting.
func NewConversation(seed ...datatypes.Message) *Conversation {
	return &Conversation{messages: append([]datatypes.Message(nil), seed...)}
}

// NewGreetingConversation returns a log holding only the FinHelp greeting.
func NewGreetingConversation() *Conversation {
	return NewConversation(datatypes.NewAssistantMessage(datatypes.Greeting))
}

// Append adds messages to the end of the log.
func (c *Conversation) Append(messages ...datatypes.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, messages...)
}

// AppendToLast appends text to the trailing assistant message.
func (c *Conversation) AppendToLast(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, err := c.lastAssistant()
	if err != nil {
		return err
	}
	last.Content += text
	return nil
}

// ReplaceLast overwrites the content of the trailing assistant message.
func (c *Conversation) ReplaceLast(content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, err := c.lastAssistant()
	if err != nil {
		return err
	}
	last.Content = content
	return nil
}

// Last returns a copy of the final message, if any.
func (c *Conversation) Last() (datatypes.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return datatypes.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Snapshot returns a copy of the log.
func (c *Conversation) Snapshot() []datatypes.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]datatypes.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// lastAssistant must be called with mu held.
func (c *Conversation) lastAssistant() (*datatypes.Message, error) {
	if len(c.messages) == 0 {
		return nil, ErrNoAssistantPlaceholder
	}
	last := &c.messages[len(c.messages)-1]
	if last.Role != datatypes.RoleAssistant {
		return nil, ErrNoAssistantPlaceholder
	}
	return last, nil
}
