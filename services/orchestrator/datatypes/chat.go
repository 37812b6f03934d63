// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures shared by the FinHelp relay
// and its clients.
//
// This file contains the conversation message model and the validation
// applied to an inbound conversation before it is relayed. For the canned
// answer table, see canned.go. For the error taxonomy, see errors.go.
package datatypes

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of messages in a request.
	MaxMessagesPerRequest = 100

	// MaxConversationBytes bounds the raw request body. It leaves room for
	// JSON framing around MaxMessagesPerRequest full-size messages.
	MaxConversationBytes = MaxMessagesPerRequest*MaxMessageContentBytes + 64*1024
)

// =============================================================================
// Roles
// =============================================================================

// Role identifies the author of a Message.
type Role string

const (
	// RoleUser marks messages typed by the person using the assistant.
	RoleUser Role = "user"

	// RoleAssistant marks messages produced by FinHelp (model or canned).
	RoleAssistant Role = "assistant"

	// RoleSystem marks the instruction preamble sent to the model.
	RoleSystem Role = "system"
)

// =============================================================================
// Message Model
// =============================================================================

// Message is a single conversation entry.
//
// # Description
//
// Message is the unit of the conversation log exchanged between the client,
// the relay, and the completion provider. Once appended to a log a message is
// treated as immutable, except for the trailing assistant message while its
// reply is still streaming in.
//
// # Validation
//
//   - Role: required, one of user, assistant, system
//   - Content: required, at most MaxMessageContentBytes bytes
type Message struct {
	Role    Role   `json:"role" yaml:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" yaml:"content" validate:"required,maxbytes"`
}

// NewUserMessage builds a user-authored message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage builds an assistant-authored message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxMessageContentBytes. Byte length is checked rather than rune count.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// conversationEnvelope lets the validator apply slice-level rules to the
// bare JSON array the relay accepts.
type conversationEnvelope struct {
	Messages []Message `validate:"required,min=1,max=100,dive"`
}

// =============================================================================
// Conversation Parsing
// =============================================================================

// ParseConversation decodes and validates a submitted conversation.
//
// # Description
//
// The relay accepts a bare JSON array of {role, content} objects. Anything
// else (an object, a string, null, a truncated document) is rejected. Every
// element must carry a known role and non-empty content.
//
// # Inputs
//
//   - body: Raw request body.
//
// # Outputs
//
//   - []Message: The validated conversation in submission order.
//   - error: A *RelayError of kind KindValidation on any failure.
//
// # Examples
//
//	msgs, err := datatypes.ParseConversation([]byte(`[{"role":"user","content":"hello"}]`))
//
// # Limitations
//
//   - Empty arrays are rejected
//   - Unknown fields on elements are ignored
func ParseConversation(body []byte) ([]Message, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, NewValidationError("conversation must be a JSON array", nil)
	}

	var messages []Message
	if err := json.Unmarshal(trimmed, &messages); err != nil {
		return nil, NewValidationError("conversation is not a valid message array", err)
	}

	if err := ValidateConversation(messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// ValidateConversation applies the message rules to an already decoded
// conversation.
func ValidateConversation(messages []Message) error {
	if err := chatValidate.Struct(conversationEnvelope{Messages: messages}); err != nil {
		return NewValidationError(fmt.Sprintf("conversation failed validation (%d messages)", len(messages)), err)
	}
	return nil
}

// WithSystemPreamble returns a new slice with the system preamble in front of
// the caller's conversation. The input slice is not modified.
func WithSystemPreamble(preamble string, messages []Message) []Message {
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: preamble})
	return append(out, messages...)
}

// LatestUserUtterance returns the content of the final message when it was
// authored by the user.
func LatestUserUtterance(messages []Message) (string, bool) {
	if len(messages) == 0 {
		return "", false
	}
	last := messages[len(messages)-1]
	if last.Role != RoleUser {
		return "", false
	}
	return last.Content, true
}
