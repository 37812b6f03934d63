// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the relay service.
//
// The relay chain is:
//
//	Request
//	   │
//	   ▼
//	Recovery ──► RequestID ──► RequestLogger ──► otelgin ──► Handler
//
// RequestID stores the request id in the Gin context for handlers
// (retrieved via GetRequestID) and echoes it in the X-Request-ID header.
package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// =============================================================================
// Context Keys
// =============================================================================

// requestIDKey is the context key for storing the request id.
const requestIDKey = "requestId"

// RequestIDHeader carries the request id on requests and responses.
const RequestIDHeader = "X-Request-ID"

// maxInboundRequestIDLen bounds caller-supplied request ids.
const maxInboundRequestIDLen = 128

// =============================================================================
// Request ID
// =============================================================================

// RequestID assigns every request an id.
//
// # Description
//
// Reuses a caller-supplied X-Request-ID when present and reasonably sized,
// otherwise generates a UUID v4. The id is stored in the Gin context and
// set on the response header before the handler runs, so it is present
// even on streamed replies.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxInboundRequestIDLen {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the request id stored by RequestID, or "" if the
// middleware did not run.
func GetRequestID(c *gin.Context) string {
	if v, exists := c.Get(requestIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// =============================================================================
// Request Logger
// =============================================================================

// RequestLogger logs one line per completed request through logger.
//
// # Inputs
//
//   - logger: Destination. Nil uses slog.Default().
//
// # Limitations
//
//   - For streamed replies, latency covers the whole stream, not time to
//     first byte.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"bytes", c.Writer.Size(),
			"client_ip", c.ClientIP(),
			"requestId", GetRequestID(c),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.Error("Request completed", attrs...)
		case status >= 400:
			logger.Warn("Request completed", attrs...)
		default:
			logger.Info("Request completed", attrs...)
		}
	}
}
