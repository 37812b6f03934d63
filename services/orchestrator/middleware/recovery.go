// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
	"github.com/gin-gonic/gin"
)

// Recovery converts handler panics into a generic 500 response.
//
// # Description
//
// A panic with http.ErrAbortHandler is re-raised untouched: net/http then
// drops the connection without completing the chunked body, which is how
// a failed raw-framed reply is signalled to the client. Any other panic is
// logged with its stack and, if no response bytes were written yet,
// answered with the standard error body.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			requestID := GetRequestID(c)
			slog.Error("Recovered from handler panic",
				"panic", fmt.Sprint(rec),
				"path", c.Request.URL.Path,
				"requestId", requestID,
				"stack", string(debug.Stack()),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			err := fmt.Errorf("panic: %v", rec)
			c.AbortWithStatusJSON(http.StatusInternalServerError, datatypes.NewErrorResponse(err, requestID))
		}()
		c.Next()
	}
}
