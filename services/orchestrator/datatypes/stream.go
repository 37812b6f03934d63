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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// StreamEventType names an event in the SSE framing of a relayed reply.
type StreamEventType string

const (
	// StreamEventToken carries one reply fragment in Content.
	StreamEventToken StreamEventType = "token"

	// StreamEventError reports a mid-stream failure. No done event follows.
	StreamEventError StreamEventType = "error"

	// StreamEventDone marks a complete reply.
	StreamEventDone StreamEventType = "done"
)

// StreamEvent is the JSON payload of one SSE event.
//
// # Description
//
// Id, CreatedAt, Hash and PrevHash are filled in by the writer. Hash is the
// SHA-256 of the event content and PrevHash links to the previous event, so a
// client can detect dropped or reordered events.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Content   string          `json:"content,omitempty"`
	Error     string          `json:"error,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Id        string          `json:"id"`
	CreatedAt int64           `json:"created_at"`
	Hash      string          `json:"hash"`
	PrevHash  string          `json:"prev_hash,omitempty"`
}

// ComputeHash returns the hex SHA-256 over the event's identity, content
// and PrevHash. Hash itself is not part of the input.
func (e StreamEvent) ComputeHash() string {
	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s",
		e.Id,
		e.Type,
		e.CreatedAt,
		e.PrevHash,
		e.Content,
		e.Error,
		e.RequestID,
	)
	sum := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(sum[:])
}

// VerifyChain reports whether e carries a correct Hash and links to prevHash.
func (e StreamEvent) VerifyChain(prevHash string) bool {
	return e.PrevHash == prevHash && e.Hash == e.ComputeHash()
}
