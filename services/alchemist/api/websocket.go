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
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/executor"
)

// wsWriteTimeout bounds a single event write.
const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	// The UI is served from a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleRenderStream handles GET /v1/alchemist/ws/render.
//
// Description:
//
//	Upgrades to a websocket. Every text message is a RenderRequest and is
//	submitted to the latest-wins executor as soon as it arrives, so a
//	client dragging a slider only pays for the newest frame. Each request
//	gets exactly one RenderEvent back, tagged with its ID: "ok" with the
//	result, "superseded" when a newer request displaced it, or "error".
//	Events may arrive out of request order.
//
//	The handler returns once the client disconnects and every outstanding
//	request has been answered or dropped.
//
// Thread Safety: One goroutine per outstanding request; writes are
// serialized.
func (h *Handlers) HandleRenderStream(c *gin.Context) {
	logger := h.requestLogger(c, "HandleRenderStream")

	if h.renderer == nil {
		respondError(c, http.StatusServiceUnavailable, CodeUnavailable, "rendering is not configured")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRenderBody(h.maxPixels))

	wsSessions.Inc()
	defer wsSessions.Dec()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	s := &renderSession{conn: conn, logger: logger}
	defer s.wg.Wait()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read ended", slog.String("error", err.Error()))
			}
			return
		}

		var req RenderRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.send(RenderEvent{Status: StatusError, Error: &ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest}})
			continue
		}
		if err := binding.Validator.ValidateStruct(&req); err != nil {
			s.send(RenderEvent{ID: req.ID, Status: StatusError, Error: &ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest}})
			continue
		}
		job, checked := h.jobFor(ctx, req)
		if job.Command == "" && len(checked.Stripped) > 0 {
			s.send(RenderEvent{ID: req.ID, Status: StatusError, Error: &ErrorResponse{
				Error: "command has no allowed operations: " + strings.Join(checked.Stripped, "; "),
				Code:  CodeInvalidCommand,
			}})
			continue
		}
		if err := job.Validate(h.maxPixels); err != nil {
			s.send(RenderEvent{ID: req.ID, Status: StatusError, Error: &ErrorResponse{Error: err.Error(), Code: CodeInvalidJob}})
			continue
		}

		wsRendersTotal.Inc()
		out := h.renderer.Submit(ctx, job)
		s.wg.Add(1)
		go s.await(req.ID, out)
	}
}

// renderSession serializes writes on one websocket.
type renderSession struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu sync.Mutex
	wg sync.WaitGroup
}

// await forwards one outcome to the client.
func (s *renderSession) await(id string, out <-chan executor.Outcome) {
	defer s.wg.Done()

	o := <-out
	ev := RenderEvent{ID: id, Seq: o.Seq}
	switch {
	case o.Err == nil:
		res := renderResponse(o.Result)
		ev.Status = StatusOK
		ev.Result = &res
	case errors.Is(o.Err, executor.ErrSuperseded):
		ev.Status = StatusSuperseded
	default:
		_, code := classify(o.Err)
		ev.Status = StatusError
		ev.Error = &ErrorResponse{Error: o.Err.Error(), Code: code}
	}
	s.send(ev)
}

func (s *renderSession) send(ev RenderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.conn.WriteJSON(ev); err != nil {
		s.logger.Debug("websocket write failed",
			slog.String("id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
}
