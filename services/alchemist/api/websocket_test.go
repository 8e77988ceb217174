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
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTestEngine = errors.New("engine exploded")

func dialStream(t *testing.T, s *testServer) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/alchemist/ws/render"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) RenderEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev RenderEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestRenderStream_OK(t *testing.T) {
	s := newTestServer(t, nil)
	conn := dialStream(t, s)

	require.NoError(t, conn.WriteJSON(RenderRequest{ID: "a", Command: "-negate", Width: 2, Height: 2, Pixels: pixels(2, 2)}))

	ev := readEvent(t, conn)
	assert.Equal(t, "a", ev.ID)
	assert.Equal(t, StatusOK, ev.Status)
	assert.EqualValues(t, 1, ev.Seq)
	require.NotNil(t, ev.Result)
	assert.Equal(t, pixels(2, 2), ev.Result.Data)
	assert.Nil(t, ev.Error)
}

func TestRenderStream_InvalidRequests(t *testing.T) {
	s := newTestServer(t, nil)
	conn := dialStream(t, s)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	ev := readEvent(t, conn)
	assert.Equal(t, StatusError, ev.Status)
	require.NotNil(t, ev.Error)
	assert.Equal(t, CodeInvalidRequest, ev.Error.Code)

	require.NoError(t, conn.WriteJSON(RenderRequest{ID: "b", Width: 2, Height: 2}))
	ev = readEvent(t, conn)
	assert.Equal(t, "b", ev.ID)
	assert.Equal(t, CodeInvalidRequest, ev.Error.Code)

	require.NoError(t, conn.WriteJSON(RenderRequest{ID: "c", Width: 2, Height: 2, Pixels: pixels(1, 1)}))
	ev = readEvent(t, conn)
	assert.Equal(t, "c", ev.ID)
	assert.Equal(t, CodeInvalidJob, ev.Error.Code)

	// The stream stays usable after errors.
	require.NoError(t, conn.WriteJSON(RenderRequest{ID: "d", Width: 1, Height: 1, Pixels: pixels(1, 1)}))
	ev = readEvent(t, conn)
	assert.Equal(t, "d", ev.ID)
	assert.Equal(t, StatusOK, ev.Status)
	assert.EqualValues(t, 1, s.engine.calls.Load())
}

func TestRenderStream_LatestWins(t *testing.T) {
	s := newTestServer(t, nil)
	s.engine.gate = make(chan struct{})
	conn := dialStream(t, s)

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, conn.WriteJSON(RenderRequest{ID: id, Command: "-blur 2", Width: 1, Height: 1, Pixels: pixels(1, 1)}))
	}

	// r1 is running and r3 displaced r2 from the pending slot.
	ev := readEvent(t, conn)
	assert.Equal(t, "r2", ev.ID)
	assert.Equal(t, StatusSuperseded, ev.Status)
	assert.EqualValues(t, 2, ev.Seq)

	close(s.engine.gate)

	got := map[string]RenderEvent{}
	for range 2 {
		ev := readEvent(t, conn)
		got[ev.ID] = ev
	}
	require.Contains(t, got, "r1")
	require.Contains(t, got, "r3")
	assert.Equal(t, StatusOK, got["r1"].Status)
	assert.Equal(t, StatusOK, got["r3"].Status)
	assert.EqualValues(t, 2, s.engine.calls.Load())
}

func TestRenderStream_EngineError(t *testing.T) {
	s := newTestServer(t, nil)
	s.engine.err = errTestEngine
	conn := dialStream(t, s)

	require.NoError(t, conn.WriteJSON(RenderRequest{ID: "x", Width: 1, Height: 1, Pixels: pixels(1, 1)}))
	ev := readEvent(t, conn)
	assert.Equal(t, StatusError, ev.Status)
	require.NotNil(t, ev.Error)
	assert.Equal(t, CodeInternal, ev.Error.Code)
}

func TestRenderStream_NoRenderer(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.Renderer = nil })
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/alchemist/ws/render"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRenderStream_ValidatesCommands(t *testing.T) {
	s := newTestServer(t, nil)
	conn := dialStream(t, s)

	require.NoError(t, conn.WriteJSON(RenderRequest{ID: "w", Command: "-write /tmp/pwned.png", Width: 1, Height: 1, Pixels: pixels(1, 1)}))
	ev := readEvent(t, conn)
	assert.Equal(t, "w", ev.ID)
	assert.Equal(t, StatusError, ev.Status)
	require.NotNil(t, ev.Error)
	assert.Equal(t, CodeInvalidCommand, ev.Error.Code)
	assert.Zero(t, s.engine.calls.Load())

	require.NoError(t, conn.WriteJSON(RenderRequest{ID: "v", Command: "-negate -write /tmp/pwned.png", Width: 1, Height: 1, Pixels: pixels(1, 1)}))
	ev = readEvent(t, conn)
	assert.Equal(t, "v", ev.ID)
	require.Equal(t, StatusOK, ev.Status)
	require.NotNil(t, ev.Result)
	assert.Contains(t, ev.Result.Invocation, "-negate")
	assert.NotContains(t, ev.Result.Invocation, "-write")
}
