// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"

	// ServiceName is reported on server spans.
	ServiceName = "alchemist"
)

// RegisterRoutes registers all Alchemist routes with the router.
//
// Description:
//
//	Registers all /v1/alchemist/* endpoints with the given Gin router group.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	h - The handlers instance
//
// Pipeline Endpoints:
//
//	GET  /v1/alchemist/health - Health check
//	GET  /v1/alchemist/flags - Grammar registry
//	GET  /v1/alchemist/presets - Preset catalogue
//	POST /v1/alchemist/validate - Strip a command to the allow-list
//	POST /v1/alchemist/split - Segment a command into entries
//	POST /v1/alchemist/effects/parse - Parse structured effects
//	POST /v1/alchemist/effects/reconstruct - Render effects back to text
//	POST /v1/alchemist/sanitize - Build the engine argv
//	POST /v1/alchemist/vibe - Turn a vibe into stack entries
//
// Stack Endpoints:
//
//	GET    /v1/alchemist/stack - Snapshot and built command
//	POST   /v1/alchemist/stack - Push an entry
//	DELETE /v1/alchemist/stack - Clear
//	GET    /v1/alchemist/stack/command - Built command only
//	POST   /v1/alchemist/stack/pop - Remove the last entry
//	DELETE /v1/alchemist/stack/:id - Remove an entry
//	POST   /v1/alchemist/stack/:id/toggle - Enable or disable an entry
//	POST   /v1/alchemist/stack/:id/move - Move an entry by one slot
//	PUT    /v1/alchemist/stack/:id/effects - Replace structured effects
//
// Render Endpoints:
//
//	POST /v1/alchemist/render - Render once, latest wins
//	GET  /v1/alchemist/ws/render - Websocket render stream
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	alchemist := rg.Group("/alchemist")
	{
		alchemist.GET("/health", h.HandleHealth)
		alchemist.GET("/flags", h.HandleFlags)
		alchemist.GET("/presets", h.HandlePresets)

		alchemist.POST("/validate", h.HandleValidate)
		alchemist.POST("/split", h.HandleSplit)
		alchemist.POST("/effects/parse", h.HandleParseEffects)
		alchemist.POST("/effects/reconstruct", h.HandleReconstruct)
		alchemist.POST("/sanitize", h.HandleSanitize)

		alchemist.POST("/vibe", h.HandleVibe)

		st := alchemist.Group("/stack")
		{
			st.GET("", h.HandleGetStack)
			st.POST("", h.HandlePush)
			st.DELETE("", h.HandleClear)
			st.GET("/command", h.HandleStackCommand)
			st.POST("/pop", h.HandlePop)
			st.DELETE("/:id", h.HandleRemove)
			st.POST("/:id/toggle", h.HandleToggle)
			st.POST("/:id/move", h.HandleMove)
			st.PUT("/:id/effects", h.HandleUpdateEffects)
		}

		alchemist.POST("/render", h.HandleRender)
		alchemist.GET("/ws/render", h.HandleRenderStream)
	}
}

// NewRouter builds the service router: recovery, tracing, request ids,
// optional request logging, /metrics and the /v1 routes.
func NewRouter(h *Handlers, debug bool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))
	router.Use(RequestIDMiddleware())
	if debug {
		router.Use(gin.Logger())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	RegisterRoutes(v1, h)
	return router
}

// RequestIDMiddleware propagates X-Request-ID, generating one when absent.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
