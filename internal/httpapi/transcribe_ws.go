package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lukasbauer/transcribe-relay/internal/audio"
	"github.com/lukasbauer/transcribe-relay/internal/eventlog"
	"github.com/lukasbauer/transcribe-relay/internal/metrics"
	"github.com/lukasbauer/transcribe-relay/internal/relay"
	"github.com/lukasbauer/transcribe-relay/internal/stt"
	"github.com/lukasbauer/transcribe-relay/internal/transcript"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// closeGrace bounds the wait for a result loop after its stream was closed.
const closeGrace = 500 * time.Millisecond

// Client control messages
const (
	startStream = "START_STREAM"
	stopStream  = "STOP_STREAM"
)

// SessionState is the lifecycle of one transcription stream on a socket.
type SessionState int

const (
	NotStarted SessionState = iota
	Starting
	Streaming
	Stopped
)

func (s SessionState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Starting:
		return "starting"
	case Streaming:
		return "streaming"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Outbound frames
type transcriptionMessage struct {
	Type      string `json:"type"` // always "transcription"
	Text      string `json:"text"`
	IsPartial bool   `json:"isPartial"`
}

type errorMessage struct {
	Type    string `json:"type"` // always "error"
	Message string `json:"message"`
}

// transcribeSession relays one client socket to the streaming service.
// The read loop owns start, stop and audio hand-off; the result loop runs in
// its own goroutine per stream.
type transcribeSession struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	cfg         RouterConfig
	logger      *log.Logger
	streamer    stt.Streamer
	transcripts *transcript.Writer
	eventLog    *eventlog.Logger
	metrics     *metrics.Metrics
	hub         *sentry.Hub
	subject     string

	mu        sync.Mutex
	state     SessionState
	closed    bool
	relay     *relay.Relay
	stream    stt.Stream
	sessionID string
	done      chan struct{} // closed when the result loop exits

	ctx    context.Context
	cancel context.CancelFunc
}

func (r *Router) handleTranscribeWS(w http.ResponseWriter, req *http.Request) {
	if !r.sessions.Add() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer r.sessions.Done()

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("transcribe_ws: upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(req.Context())

	hub := sentry.CurrentHub().Clone()
	hub.Scope().SetRequest(req)

	session := &transcribeSession{
		conn:        conn,
		cfg:         r.cfg,
		logger:      r.logger,
		streamer:    r.streamer,
		transcripts: r.transcripts,
		eventLog:    r.eventLog,
		metrics:     r.metrics,
		hub:         hub,
		subject:     authSubject(req.Context()),
		ctx:         ctx,
		cancel:      cancel,
	}

	unregister := r.sessions.Register(session.shutdown)
	defer unregister()

	r.metrics.ActiveSessions.Inc()
	defer r.metrics.ActiveSessions.Dec()

	r.logger.Printf("transcribe_ws: client connected from %s", req.RemoteAddr)
	session.run()
}

func (s *transcribeSession) run() {
	defer s.teardown()

	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("transcribe_ws: client disconnected")
			} else {
				s.logger.Printf("transcribe_ws: read error: %v", err)
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			switch cmd := strings.TrimSpace(string(msg)); cmd {
			case startStream:
				s.start()
			case stopStream:
				s.stop()
			default:
				s.logger.Printf("transcribe_ws: ignoring unknown command %q", cmd)
			}
		case websocket.BinaryMessage:
			s.handleAudio(msg)
		}
	}
}

// setState records a lifecycle transition. Callers hold s.mu.
func (s *transcribeSession) setState(next SessionState) {
	if s.state == next {
		return
	}
	s.logger.Printf("transcribe_ws: stream %s %s -> %s", s.sessionID, s.state, next)
	s.state = next
}

// start tears down any previous stream and opens a new one fed by a fresh relay.
func (s *transcribeSession) start() {
	s.stop()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	rl := relay.New(s.logger)
	sessionID := uuid.NewString()
	s.relay = rl
	s.sessionID = sessionID
	s.setState(Starting)
	s.mu.Unlock()

	s.hub.Scope().SetTag("session_id", sessionID)

	sc := stt.StreamConfig{
		LanguageCode:   s.cfg.LanguageCode,
		SampleRateHz:   s.cfg.SampleRateHz,
		Encoding:       "pcm",
		SessionID:      sessionID,
		VocabularyName: s.cfg.VocabularyName,
		Specialty:      s.cfg.Specialty,
		Type:           s.cfg.Type,
	}

	stream, err := s.streamer.StartStream(s.ctx, sc, rl.Chunks(s.ctx))
	if err != nil {
		rl.Stop()
		s.mu.Lock()
		if s.relay == rl {
			s.relay = nil
			s.setState(Stopped)
		}
		s.mu.Unlock()

		s.logger.Printf("transcribe_ws: failed to start stream %s: %v", sessionID, err)
		s.metrics.StreamStartFailure.Inc()
		s.hub.CaptureException(fmt.Errorf("start stream: %w", err))
		s.eventLog.LogAsync(sessionID, eventlog.EventStreamStartFailed, map[string]any{"error": err.Error()})
		s.sendError("Failed to start transcription: " + err.Error())
		return
	}

	done := make(chan struct{})
	s.mu.Lock()
	if s.closed || s.relay != rl {
		s.mu.Unlock()
		rl.Stop()
		_ = stream.Close()
		return
	}
	s.stream = stream
	s.done = done
	s.setState(Streaming)
	s.mu.Unlock()

	s.metrics.SessionsStarted.Inc()
	s.eventLog.LogAsync(sessionID, eventlog.EventSessionStarted, map[string]any{
		"language":    sc.LanguageCode,
		"sample_rate": sc.SampleRateHz,
		"subject":     s.subject,
	})
	s.logger.Printf("transcribe_ws: stream %s started", sessionID)

	go s.consumeResults(rl, sessionID, stream, done)
}

// stop ends the current stream, if any. The relay is stopped so the audio
// sequence ends and the provider can finish; a provider that does not finish
// within StopTimeout is closed. Safe to call repeatedly.
func (s *transcribeSession) stop() {
	s.mu.Lock()
	rl, stream, done, sessionID := s.relay, s.stream, s.done, s.sessionID
	s.relay, s.stream, s.done = nil, nil, nil
	if rl != nil {
		s.setState(Stopped)
	}
	s.mu.Unlock()

	if rl == nil {
		return
	}
	rl.Stop()

	if done != nil {
		timer := time.NewTimer(s.cfg.StopTimeout)
		select {
		case <-done:
		case <-timer.C:
			s.logger.Printf("transcribe_ws: stream %s did not finish in %s, closing", sessionID, s.cfg.StopTimeout)
			_ = stream.Close()
			select {
			case <-done:
			case <-time.After(closeGrace):
				s.logger.Printf("transcribe_ws: result loop of stream %s still running after close", sessionID)
			}
		}
		timer.Stop()
	}

	s.transcripts.Forget(sessionID)
	s.eventLog.LogAsync(sessionID, eventlog.EventSessionStopped, nil)
	s.logger.Printf("transcribe_ws: stream %s stopped", sessionID)
}

// shutdown tells the client the server is going away and closes the socket,
// which ends the read loop and runs the normal teardown.
func (s *transcribeSession) shutdown() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	s.connMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.connMu.Unlock()
	s.cancel()
	_ = s.conn.Close()
}

func (s *transcribeSession) teardown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.stop()
	s.conn.Close()
}

// current reports whether rl still feeds the live stream of an open socket.
func (s *transcribeSession) current(rl *relay.Relay) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.relay == rl
}

// appendIfCurrent persists tr unless the generation was stopped. The check
// and the enqueue share s.mu with stop, so nothing is appended after Forget.
func (s *transcribeSession) appendIfCurrent(rl *relay.Relay, sessionID string, tr stt.TranscriptResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.relay != rl {
		return false
	}
	s.transcripts.Append(sessionID, tr)
	return true
}

func (s *transcribeSession) currentRelay() *relay.Relay {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.relay
}

// consumeResults forwards provider results to the client and the transcript
// log until the stream ends or its generation is stopped.
func (s *transcribeSession) consumeResults(rl *relay.Relay, sessionID string, stream stt.Stream, done chan struct{}) {
	defer close(done)
	defer stream.Close()
	defer func() {
		if v := recover(); v != nil {
			err := fmt.Errorf("panic in result loop: %v", v)
			s.logger.Printf("transcribe_ws: %v", err)
			rl.Stop()
			s.hub.Recover(v)
			s.hub.Flush(2 * time.Second)
			if s.current(rl) {
				s.sendError("Transcription error: " + err.Error())
			}
		}
	}()

	for event := range stream.Events() {
		if !s.current(rl) {
			return
		}
		for _, tr := range event.Transcripts(time.Now()) {
			if !s.current(rl) {
				return
			}
			s.sendJSON(transcriptionMessage{Type: "transcription", Text: tr.Text, IsPartial: tr.IsPartial})
			if !s.appendIfCurrent(rl, sessionID, tr) {
				return
			}
			s.metrics.ObserveTranscript(tr.IsPartial)
			s.eventLog.LogAsync(sessionID, eventlog.EventTranscriptResult, map[string]any{
				"text":       tr.Text,
				"is_partial": tr.IsPartial,
			})
		}
	}

	if !s.current(rl) {
		return
	}
	// The provider is gone; release the audio side so late chunks are dropped.
	rl.Stop()

	if err := stream.Err(); err != nil {
		s.logger.Printf("transcribe_ws: stream %s failed: %v", sessionID, err)
		s.metrics.StreamErrors.Inc()
		s.hub.CaptureException(fmt.Errorf("stream %s: %w", sessionID, err))
		s.eventLog.LogAsync(sessionID, eventlog.EventStreamError, map[string]any{"error": err.Error()})
		s.sendError("Transcription error: " + err.Error())
	}
}

// handleAudio paces, normalizes and hands one binary frame to the relay. The
// consumer must be waiting both when the frame arrives and after the pace.
func (s *transcribeSession) handleAudio(chunk []byte) {
	s.metrics.ChunksReceived.Inc()
	s.metrics.ChunkBytes.Observe(float64(len(chunk)))

	rl := s.currentRelay()
	if rl == nil || !rl.Active() {
		s.metrics.ChunksDropped.WithLabelValues(metrics.DropInactive).Inc()
		return
	}
	// Audio that arrives while nobody is pulling is stale by the time anyone does.
	if !rl.Waiting() {
		s.metrics.ChunksDropped.WithLabelValues(metrics.DropNoConsumer).Inc()
		return
	}

	if s.cfg.ChunkPace > 0 {
		timer := time.NewTimer(s.cfg.ChunkPace)
		select {
		case <-timer.C:
		case <-s.ctx.Done():
			timer.Stop()
			return
		}
	}

	out, c := audio.NormalizeToInt16(chunk)
	if c.Float32Encoded {
		s.metrics.Float32Conversions.Inc()
	}
	if s.cfg.Debug {
		s.logger.Printf("transcribe_ws: chunk %d bytes int16 rms=%.5f (%.1f dB) float32 rms=%.5f (%.1f dB) float32=%t",
			len(chunk), c.Int16.RMS, c.Int16.DB, c.Float32.RMS, c.Float32.DB, c.Float32Encoded)
	}

	if rl.Deliver(out) {
		s.metrics.ChunksDelivered.Inc()
		return
	}
	s.metrics.ChunksDropped.WithLabelValues(metrics.DropNoConsumer).Inc()
}

func (s *transcribeSession) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Printf("transcribe_ws: failed to marshal message: %v", err)
		return
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Printf("transcribe_ws: write error: %v", err)
	}
}

func (s *transcribeSession) sendError(msg string) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.sendJSON(errorMessage{Type: "error", Message: msg})
}
