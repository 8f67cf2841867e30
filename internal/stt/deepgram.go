package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

const deepgramWSURL = "wss://api.deepgram.com/v1/listen"

// DeepgramConfig holds configuration for the Deepgram streamer.
type DeepgramConfig struct {
	APIKey      string
	Model       string // e.g., "nova-3-medical"
	Punctuate   bool
	Endpointing int    // milliseconds of silence for endpointing, 0 for default
	URL         string // listen endpoint, defaults to Deepgram's
}

// DeepgramStreamer implements Streamer using Deepgram's streaming API.
type DeepgramStreamer struct {
	cfg    DeepgramConfig
	dialer *websocket.Dialer
	logger *log.Logger
}

var _ Streamer = (*DeepgramStreamer)(nil)

// deepgramResponse represents a Deepgram WebSocket response.
type deepgramResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal bool `json:"is_final"`
}

// NewDeepgramStreamer creates a Deepgram streamer.
func NewDeepgramStreamer(cfg DeepgramConfig, logger *log.Logger) *DeepgramStreamer {
	if cfg.URL == "" {
		cfg.URL = deepgramWSURL
	}
	return &DeepgramStreamer{cfg: cfg, dialer: websocket.DefaultDialer, logger: logger}
}

// listenURL builds the streaming query. VocabularyName names an AWS custom
// vocabulary and has no Deepgram counterpart, so it is not sent.
func (d *DeepgramStreamer) listenURL(sc StreamConfig) string {
	q := url.Values{}
	if d.cfg.Model != "" {
		q.Set("model", d.cfg.Model)
	}
	q.Set("language", sc.LanguageCode)
	q.Set("encoding", deepgramEncoding(sc.Encoding))
	q.Set("sample_rate", strconv.Itoa(sc.SampleRateHz))
	q.Set("channels", "1")
	q.Set("punctuate", strconv.FormatBool(d.cfg.Punctuate))
	q.Set("interim_results", "true")
	if d.cfg.Endpointing > 0 {
		q.Set("endpointing", strconv.Itoa(d.cfg.Endpointing))
	}
	return d.cfg.URL + "?" + q.Encode()
}

func deepgramEncoding(enc string) string {
	if enc == "" || enc == "pcm" {
		return "linear16"
	}
	return enc
}

// StartStream dials Deepgram and starts pumping audio from the sequence.
func (d *DeepgramStreamer) StartStream(ctx context.Context, sc StreamConfig, audio iter.Seq[[]byte]) (Stream, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, _, err := d.dialer.DialContext(ctx, d.listenURL(sc), headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	s := &deepgramStream{
		conn:   conn,
		events: make(chan Event, 100),
		done:   make(chan struct{}),
		logger: d.logger,
	}

	goSafe(d.logger, "deepgram read loop", s.readLoop, s.fail)
	goSafe(d.logger, "deepgram write loop", func() { s.writeLoop(audio) }, s.fail)

	return s, nil
}

type deepgramStream struct {
	conn      *websocket.Conn
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex // guards conn writes and err
	err       error
	logger    *log.Logger
}

func (s *deepgramStream) Events() <-chan Event { return s.events }

func (s *deepgramStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *deepgramStream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	_ = s.Close()
}

// Close closes the Deepgram connection.
func (s *deepgramStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// writeLoop forwards audio until the sequence ends, then asks Deepgram to
// flush and close.
func (s *deepgramStream) writeLoop(audio iter.Seq[[]byte]) {
	for chunk := range audio {
		select {
		case <-s.done:
			return
		default:
		}

		s.mu.Lock()
		err := s.conn.WriteMessage(websocket.BinaryMessage, chunk)
		s.mu.Unlock()
		if err != nil {
			s.fail(fmt.Errorf("write audio: %w", err))
			return
		}
	}

	s.mu.Lock()
	err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "CloseStream"}`))
	s.mu.Unlock()
	if err != nil {
		s.logger.Printf("deepgram: failed to send CloseStream: %v", err)
	}
}

// readLoop reads responses from Deepgram and publishes them as events.
func (s *deepgramStream) readLoop() {
	defer close(s.events)

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					s.mu.Lock()
					if s.err == nil {
						s.err = fmt.Errorf("read error: %w", err)
					}
					s.mu.Unlock()
				}
			}
			return
		}

		var resp deepgramResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			s.logger.Printf("deepgram: failed to parse response: %v", err)
			continue
		}

		// Skip metadata and other non-results messages
		if resp.Type != "Results" {
			continue
		}

		result := Result{IsPartial: !resp.IsFinal}
		for _, alt := range resp.Channel.Alternatives {
			result.Alternatives = append(result.Alternatives, Alternative{Transcript: alt.Transcript})
		}

		select {
		case <-s.done:
			return
		case s.events <- Event{Results: []Result{result}}:
		}
	}
}
