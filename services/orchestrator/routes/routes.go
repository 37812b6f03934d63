// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
	"github.com/AleutianAI/finhelp/services/orchestrator/handlers"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers the relay endpoints on router.
//
// # Routes
//
//   - GET  /health
//   - GET  /metrics (only when enableMetrics)
//   - POST /api/chat (relay, primary path used by the web client)
//   - POST /v1/chat/stream (same handler, versioned path)
//   - GET  /v1/canned
func SetupRoutes(router *gin.Engine, chatHandler handlers.StreamingChatHandler,
	canned *datatypes.CannedTable, enableMetrics bool) {

	router.GET("/health", handlers.HealthCheck)
	if enableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	router.POST("/api/chat", chatHandler.HandleChatStream)

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/chat/stream", chatHandler.HandleChatStream)
		v1.GET("/canned", handlers.HandleListCanned(canned))
	}
}
