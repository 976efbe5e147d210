// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

const deepgramListenURL = "wss://api.deepgram.com/v1/listen"

// Streaming session defaults. nova-3 is Deepgram's current general model;
// 16 kHz linear16 matches what browsers produce after downsampling.
const (
	defaultStreamModel      = "nova-3"
	defaultStreamLanguage   = "en-US"
	defaultStreamSampleRate = 16000

	// streamAudioBuffer bounds the audio send queue. At 16 kHz/16-bit a
	// full queue holds roughly two seconds of speech.
	streamAudioBuffer = 64

	streamHandshakeTimeout = 10 * time.Second
)

// StreamConfig tunes one live transcription session.
type StreamConfig struct {
	Model          string
	Language       string
	SampleRate     int
	InterimResults bool
}

// DefaultStreamConfig returns the stock live-transcription settings.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Model:          defaultStreamModel,
		Language:       defaultStreamLanguage,
		SampleRate:     defaultStreamSampleRate,
		InterimResults: true,
	}
}

// DeepgramClient opens live transcription sessions against the Deepgram
// streaming API.
type DeepgramClient struct {
	apiKey  string
	baseURL string
	dialer  *websocket.Dialer
}

// NewDeepgramClient reads DEEPGRAM_API_KEY (or the container secret).
func NewDeepgramClient() (*DeepgramClient, error) {
	apiKey := os.Getenv("DEEPGRAM_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/deepgram_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read the Deepgram API Key from container secrets")
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is missing")
	}
	return &DeepgramClient{
		apiKey:  apiKey,
		baseURL: deepgramListenURL,
		dialer:  &websocket.Dialer{HandshakeTimeout: streamHandshakeTimeout},
	}, nil
}

// Connect dials the streaming endpoint and starts the read/write pumps.
// The returned session delivers provider events on Frames until the provider
// closes the stream or Close is called.
func (c *DeepgramClient) Connect(ctx context.Context, cfg StreamConfig) (*LiveSession, error) {
	if cfg.Model == "" {
		cfg.Model = defaultStreamModel
	}
	if cfg.Language == "" {
		cfg.Language = defaultStreamLanguage
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultStreamSampleRate
	}

	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	q := endpoint.Query()
	q.Set("model", cfg.Model)
	q.Set("language", cfg.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("punctuate", "true")
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	q.Set("vad_events", "true")
	q.Set("utterance_end_ms", "1000")
	endpoint.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Token "+c.apiKey)

	conn, resp, err := c.dialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram handshake failed with status %d: %w",
				resp.StatusCode, err)
		}
		return nil, fmt.Errorf("deepgram handshake failed: %w", err)
	}

	s := &LiveSession{
		conn:   conn,
		audio:  make(chan []byte, streamAudioBuffer),
		frames: make(chan datatypes.StreamFrame, streamAudioBuffer),
		done:   make(chan struct{}),
	}
	s.wg.Add(2)
	go s.writeLoop()
	go s.readLoop()

	slog.Info("Deepgram live session opened",
		"model", cfg.Model, "language", cfg.Language, "sample_rate", cfg.SampleRate)
	return s, nil
}

// LiveSession is one open streaming transcription. Audio goes in through
// SendAudio; provider events come out of Frames. Close ends the stream
// gracefully and is safe to call more than once.
type LiveSession struct {
	conn      *websocket.Conn
	audio     chan []byte
	frames    chan datatypes.StreamFrame
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// SendAudio queues one audio chunk for the provider. It returns an error once
// the session is closed.
func (s *LiveSession) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("stream session closed")
	case s.audio <- chunk:
		return nil
	}
}

// Frames returns the provider event channel. It is closed when the provider
// ends the stream or Close is called.
func (s *LiveSession) Frames() <-chan datatypes.StreamFrame {
	return s.frames
}

// Close tells the provider the stream is finished, then tears the
// connection down and waits for both pumps to exit.
func (s *LiveSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		// Best effort: the provider flushes pending results on CloseStream.
		_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		_ = s.conn.Close()
	})
	s.wg.Wait()
	return nil
}

func (s *LiveSession) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			// Drain so queued SendAudio callers are not stranded.
			for {
				select {
				case <-s.audio:
				default:
					return
				}
			}
		case chunk := <-s.audio:
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				select {
				case <-s.done:
				default:
					slog.Warn("Deepgram audio write failed", "error", err)
				}
				return
			}
		}
	}
}

// deepgramMessage is the subset of the provider's response envelope the
// relay cares about.
type deepgramMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *LiveSession) readLoop() {
	defer s.wg.Done()
	defer close(s.frames)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				slog.Warn("Deepgram read ended", "error", err)
				s.emit(datatypes.StreamFrame{
					Type:      datatypes.FrameError,
					Error:     "provider stream ended unexpectedly",
					Timestamp: nowStamp(),
				})
			}
			return
		}

		var msg deepgramMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			slog.Warn("Unparseable Deepgram message", "error", err)
			continue
		}

		switch msg.Type {
		case "Results":
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			text := msg.Channel.Alternatives[0].Transcript
			if text == "" {
				continue
			}
			isFinal := msg.IsFinal
			s.emit(datatypes.StreamFrame{
				Type:      datatypes.FrameTranscript,
				Text:      text,
				IsFinal:   &isFinal,
				Timestamp: nowStamp(),
			})
		case "SpeechStarted":
			s.emit(datatypes.StreamFrame{
				Type:      datatypes.FrameSpeechStarted,
				Timestamp: nowStamp(),
			})
		case "UtteranceEnd":
			s.emit(datatypes.StreamFrame{
				Type:      datatypes.FrameUtteranceEnd,
				Timestamp: nowStamp(),
			})
		case "Metadata":
			s.emit(datatypes.StreamFrame{
				Type:      datatypes.FrameMetadata,
				Timestamp: nowStamp(),
			})
		}
	}
}

// emit delivers a frame unless the consumer has stopped reading; dropping is
// preferable to stalling the read pump.
func (s *LiveSession) emit(frame datatypes.StreamFrame) {
	select {
	case s.frames <- frame:
	case <-s.done:
	default:
		slog.Debug("Dropped stream frame: consumer not keeping up", "frame_type", frame.Type)
	}
}

func nowStamp() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
