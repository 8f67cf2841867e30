package stt

import (
	"context"
	"iter"
	"time"
)

// TranscriptResult is one transcript update forwarded to the client.
type TranscriptResult struct {
	Text      string
	IsPartial bool
	Timestamp time.Time
}

// StreamConfig configures one streaming transcription session.
type StreamConfig struct {
	LanguageCode   string // e.g. "en-US"
	SampleRateHz   int    // 16000 for browser capture
	Encoding       string // "pcm"
	SessionID      string
	VocabularyName string // optional custom vocabulary
	Specialty      string // medical specialty, e.g. "PRIMARYCARE"
	Type           string // "DICTATION" or "CONVERSATION"
}

// Alternative is one hypothesis for a result.
type Alternative struct {
	Transcript string
}

// Result is a provider result; only the first alternative is used.
type Result struct {
	Alternatives []Alternative
	IsPartial    bool
}

// Event is one message from the provider's result stream.
type Event struct {
	Results []Result
}

// Transcripts maps the event to transcript results. Results without
// alternatives carry nothing to forward and are dropped.
func (e Event) Transcripts(now time.Time) []TranscriptResult {
	var out []TranscriptResult
	for _, r := range e.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		out = append(out, TranscriptResult{
			Text:      r.Alternatives[0].Transcript,
			IsPartial: r.IsPartial,
			Timestamp: now,
		})
	}
	return out
}

// Stream is an open streaming transcription.
type Stream interface {
	// Events returns the result stream. It is closed when the provider
	// finishes, after which Err reports why.
	Events() <-chan Event

	// Err returns the error that ended the stream, if any.
	Err() error

	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// Streamer starts streaming transcriptions. The provider pulls audio from
// the sequence until it ends, then finishes the stream.
type Streamer interface {
	StartStream(ctx context.Context, cfg StreamConfig, audio iter.Seq[[]byte]) (Stream, error)
}
