// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
	"github.com/gin-gonic/gin"
)

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CannedQuestionsResponse lists the questions the relay answers without
// contacting the provider.
type CannedQuestionsResponse struct {
	Questions []string `json:"questions"`
	Count     int      `json:"count"`
}

// HandleListCanned returns the canned questions, sorted. Answers
// are not included.
func HandleListCanned(table *datatypes.CannedTable) gin.HandlerFunc {
	return func(c *gin.Context) {
		questions := table.Questions()
		if questions == nil {
			questions = []string{}
		}
		c.JSON(http.StatusOK, CannedQuestionsResponse{
			Questions: questions,
			Count:     len(questions),
		})
	}
}
