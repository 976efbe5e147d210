// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/middleware"
	"github.com/AleutianAI/AleutianInterview/services/interview/ratelimit"
	"github.com/AleutianAI/AleutianInterview/services/interview/speech"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// Audio chunks are small; 64KB is generous.
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// wsPolicyViolation is the close code sent when the governor rejects the
// stream (RFC 6455 reserved code 1008).
const wsPolicyViolation = websocket.ClosePolicyViolation

// SpeechToTextStream handles the /api/speech-to-text/stream websocket.
//
// Server→client traffic is JSON frames ({type, text?, is_final?, error?,
// timestamp}); client→server traffic is raw binary audio chunks. The
// governor slot taken at open is released on every exit path through the
// handle's close.
func SpeechToTextStream(tracker *speech.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("Websocket upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		sendFrame(ws, datatypes.StreamFrame{
			Type:      datatypes.FrameConnecting,
			Timestamp: nowStamp(),
		})

		sessionID := c.GetHeader(middleware.SessionHeader)
		if sessionID == "" {
			sessionID = c.Query("session_id")
		}

		handle, err := tracker.OpenStream(c.Request.Context(), sessionID)
		if err != nil {
			closeStreamWithError(ws, err)
			return
		}
		defer handle.Close(nil)

		sendFrame(ws, datatypes.StreamFrame{
			Type:      datatypes.FrameConnected,
			Text:      handle.TaskID(),
			Timestamp: nowStamp(),
		})
		slog.Info("Streaming transcription client connected",
			"task_id", handle.TaskID(), "session_id", sessionID)

		// Reader pump: client audio in, provider out. Exits on client
		// disconnect, which also ends the relay below via handle.Close.
		readerDone := make(chan struct{})
		go func() {
			defer close(readerDone)
			for {
				msgType, data, err := ws.ReadMessage()
				if err != nil {
					return
				}
				if msgType != websocket.BinaryMessage {
					continue
				}
				if err := handle.SendAudio(data); err != nil {
					slog.Debug("Audio forward failed, stream closing",
						"task_id", handle.TaskID(), "error", err)
					return
				}
			}
		}()

		// Writer pump: provider frames out to the client.
		for {
			select {
			case frame, open := <-handle.Frames():
				if !open {
					sendFrame(ws, datatypes.StreamFrame{
						Type:      datatypes.FrameDisconnected,
						Timestamp: nowStamp(),
					})
					return
				}
				if err := sendFrame(ws, frame); err != nil {
					return
				}
			case <-readerDone:
				handle.Close(nil)
				// Drain the relay so the task record finalizes before the
				// disconnected frame.
				for range handle.Frames() {
				}
				sendFrame(ws, datatypes.StreamFrame{
					Type:      datatypes.FrameDisconnected,
					Timestamp: nowStamp(),
				})
				return
			}
		}
	}
}

// closeStreamWithError reports an open failure to the client: capacity
// exhaustion closes with 1008 per the streaming contract, anything else
// sends an error frame first.
func closeStreamWithError(ws *websocket.Conn, cause error) {
	if errors.Is(cause, ratelimit.ErrCapacityExhausted) {
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(wsPolicyViolation, "rate limit exceeded"), deadline)
		return
	}
	sendFrame(ws, datatypes.StreamFrame{
		Type:      datatypes.FrameError,
		Error:     cause.Error(),
		Timestamp: nowStamp(),
	})
}

func sendFrame(ws *websocket.Conn, frame datatypes.StreamFrame) error {
	if err := ws.WriteJSON(frame); err != nil {
		slog.Debug("Failed to write stream frame", "type", frame.Type, "error", err)
		return err
	}
	return nil
}

func nowStamp() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
