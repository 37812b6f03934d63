// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux is the FinHelp client stream consumer.
//
// It reads a relayed reply incrementally, decodes it, and folds it into the
// trailing assistant message of a Conversation. The pieces are layered:
//
//   - FragmentDecoder and SSEParser only decode. They do no I/O of their own.
//   - StreamReader drives a decoder or parser over an io.Reader.
//   - ChatSession runs one turn against the relay and owns the TurnState.
//   - TurnRenderer draws conversation updates on a terminal.
package ux

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
)

// SSEParser assembles Server-Sent Events from individual lines.
//
// # Description
//
// The relay writes one event per block:
//
//	event: token
//	data: {"type":"token","content":"Hi","id":"...","hash":"..."}
//
// A blank line dispatches the block. Lines starting with ":" are comments;
// the relay uses them as keep-alives. Multiple data lines are joined with
// "\n" as the SSE format requires.
//
// # Thread Safety
//
// Not safe for concurrent use. Use one parser per stream.
type SSEParser struct {
	eventName  string
	data       strings.Builder
	hasData    bool
	keepAlives int
}

// NewSSEParser creates a parser for one stream.
func NewSSEParser() *SSEParser {
	return &SSEParser{}
}

// ParseLine consumes one line without its trailing newline.
//
// # Outputs
//
//   - *datatypes.StreamEvent: The completed event when line ends a block,
//     otherwise nil.
//   - error: Non-nil if a completed block holds invalid JSON or its event
//     name disagrees with the payload type.
func (p *SSEParser) ParseLine(line string) (*datatypes.StreamEvent, error) {
	line = strings.TrimSuffix(line, "\r")

	if line == "" {
		return p.dispatch()
	}
	if strings.HasPrefix(line, ":") {
		p.keepAlives++
		return nil, nil
	}

	field, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "event":
		p.eventName = value
	case "data":
		if p.hasData {
			p.data.WriteByte('\n')
		}
		p.data.WriteString(value)
		p.hasData = true
	}
	// id, retry and unknown fields are ignored.
	return nil, nil
}

// KeepAlives returns the number of comment lines seen so far.
func (p *SSEParser) KeepAlives() int {
	return p.keepAlives
}

func (p *SSEParser) dispatch() (*datatypes.StreamEvent, error) {
	eventName := p.eventName
	payload := p.data.String()
	hasData := p.hasData

	p.eventName = ""
	p.data.Reset()
	p.hasData = false

	if !hasData {
		return nil, nil
	}

	var event datatypes.StreamEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}
	if event.Type == "" {
		event.Type = datatypes.StreamEventType(eventName)
	}
	if eventName != "" && datatypes.StreamEventType(eventName) != event.Type {
		return nil, fmt.Errorf("event name %q does not match payload type %q", eventName, event.Type)
	}
	return &event, nil
}
