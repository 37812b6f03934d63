// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"strings"
	"testing"

	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
)

func parseLines(t *testing.T, p *SSEParser, input string) []*datatypes.StreamEvent {
	t.Helper()
	var events []*datatypes.StreamEvent
	for _, line := range strings.Split(input, "\n") {
		event, err := p.ParseLine(line)
		if err != nil {
			t.Fatalf("ParseLine(%q) error: %v", line, err)
		}
		if event != nil {
			events = append(events, event)
		}
	}
	return events
}

func TestSSEParser_EventBlocks(t *testing.T) {
	p := NewSSEParser()
	input := "event: token\n" +
		`data: {"type":"token","content":"Hi"}` + "\n\n" +
		": ping\n\n" +
		"event: done\n" +
		`data: {"type":"done","request_id":"r-1"}` + "\n\n"

	events := parseLines(t, p, input)

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != datatypes.StreamEventToken || events[0].Content != "Hi" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Type != datatypes.StreamEventDone || events[1].RequestID != "r-1" {
		t.Errorf("unexpected second event: %+v", events[1])
	}
	if p.KeepAlives() != 1 {
		t.Errorf("expected 1 keep-alive, got %d", p.KeepAlives())
	}
}

func TestSSEParser_NoEventUntilBlankLine(t *testing.T) {
	p := NewSSEParser()

	event, err := p.ParseLine(`data: {"type":"token","content":"x"}`)
	if err != nil || event != nil {
		t.Fatalf("data line alone must not dispatch: %v %v", event, err)
	}
	event, err = p.ParseLine("")
	if err != nil || event == nil {
		t.Fatalf("blank line should dispatch: %v %v", event, err)
	}
}

func TestSSEParser_TypeFromEventName(t *testing.T) {
	p := NewSSEParser()
	events := parseLines(t, p, "event: token\ndata: {\"content\":\"x\"}\n\n")

	if len(events) != 1 || events[0].Type != datatypes.StreamEventToken {
		t.Fatalf("expected token event, got %+v", events)
	}
}

func TestSSEParser_CRLFAndNoSpace(t *testing.T) {
	p := NewSSEParser()
	events := parseLines(t, p, "event:token\r\ndata:{\"type\":\"token\",\"content\":\"y\"}\r\n\r\n")

	if len(events) != 1 || events[0].Content != "y" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestSSEParser_Errors(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{"invalid json", []string{"data: {not json", ""}},
		{"name mismatch", []string{"event: done", `data: {"type":"token"}`, ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewSSEParser()
			var err error
			for _, line := range tt.lines {
				if _, err = p.ParseLine(line); err != nil {
					break
				}
			}
			if err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestSSEParser_StrayBlankLines(t *testing.T) {
	p := NewSSEParser()
	if events := parseLines(t, p, "\n\n\n"); len(events) != 0 {
		t.Errorf("blank lines alone must not produce events, got %d", len(events))
	}
}
