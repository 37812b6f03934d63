// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeBufferSize is the read size for raw reply bodies.
const decodeBufferSize = 4096

// FragmentDecoder turns a raw UTF-8 byte stream into text increments.
//
// # Description
//
// Reads may end in the middle of a multi-byte sequence. The UTF-8 transform
// underneath holds such trailing bytes back until the rest of the sequence
// arrives, so every returned string is valid UTF-8. Invalid bytes decode to
// U+FFFD, as does an incomplete sequence cut off by the end of the stream.
//
// # Thread Safety
//
// Not safe for concurrent use.
type FragmentDecoder struct {
	r   io.Reader
	buf []byte
	err error
}

// NewFragmentDecoder wraps r in a stateful UTF-8 decoder.
func NewFragmentDecoder(r io.Reader) *FragmentDecoder {
	return &FragmentDecoder{
		r:   transform.NewReader(r, unicode.UTF8.NewDecoder()),
		buf: make([]byte, decodeBufferSize),
	}
}

// Next returns the next non-empty piece of decoded text. It returns io.EOF
// after the last piece, or the underlying read error.
func (d *FragmentDecoder) Next() (string, error) {
	for d.err == nil {
		n, err := d.r.Read(d.buf)
		if err != nil {
			d.err = err
		}
		if n > 0 {
			return string(d.buf[:n]), nil
		}
	}
	return "", d.err
}
