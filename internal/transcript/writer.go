// Package transcript persists transcript results as append-only text files,
// one raw audit log and one deduplicated final transcript per session.
package transcript

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lukasbauer/transcribe-relay/internal/stt"
)

const (
	queueSize       = 1024
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ")

type op struct {
	sessionID string
	result    stt.TranscriptResult
	forget    bool
}

// Writer appends transcript results from a single background worker, so the
// files see results in the order they were appended and callers never wait
// on disk.
type Writer struct {
	dir     string
	logger  *log.Logger
	onError func(error)

	ops chan op
	wg  sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// lastFinal is owned by the worker goroutine.
	lastFinal map[string]string
}

// NewWriter starts a writer rooted at dir. onError, if set, is called from
// the worker for every failed write.
func NewWriter(dir string, logger *log.Logger, onError func(error)) *Writer {
	w := &Writer{
		dir:       dir,
		logger:    logger,
		onError:   onError,
		ops:       make(chan op, queueSize),
		lastFinal: make(map[string]string),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// RawPath is the audit log holding every partial and final result.
func (w *Writer) RawPath(sessionID string) string {
	return filepath.Join(w.dir, sessionID+".txt")
}

// FinalPath is the consolidated transcript holding deduplicated finals.
func (w *Writer) FinalPath(sessionID string) string {
	return filepath.Join(w.dir, sessionID+".final.txt")
}

// Append queues r for sessionID. It never blocks and never fails; problems
// are logged.
func (w *Writer) Append(sessionID string, r stt.TranscriptResult) {
	w.enqueue(op{sessionID: sessionID, result: r})
}

// Forget drops the deduplication state for sessionID once every result
// appended before it has been written.
func (w *Writer) Forget(sessionID string) {
	w.enqueue(op{sessionID: sessionID, forget: true})
}

func (w *Writer) enqueue(o op) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.logger.Printf("transcript: writer closed, dropping write for session %s", o.sessionID)
		return
	}
	select {
	case w.ops <- o:
	default:
		w.fail(fmt.Errorf("queue full, dropping write for session %s", o.sessionID))
	}
}

// Close flushes queued writes and stops the worker.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ops)
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Writer) run() {
	defer w.wg.Done()
	for o := range w.ops {
		if o.forget {
			delete(w.lastFinal, o.sessionID)
			continue
		}
		w.write(o.sessionID, o.result)
	}
}

func (w *Writer) write(sessionID string, r stt.TranscriptResult) {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	stamp := ts.UTC().Format(timestampLayout)

	kind := "final"
	if r.IsPartial {
		kind = "partial"
	}
	text := newlines.Replace(r.Text)

	if err := w.appendLine(w.RawPath(sessionID), fmt.Sprintf("%s\t%s\t%s\n", stamp, kind, text)); err != nil {
		w.fail(fmt.Errorf("append transcript: %w", err))
	}

	if r.IsPartial {
		return
	}
	cleaned := strings.TrimSpace(text)
	if last, ok := w.lastFinal[sessionID]; cleaned == "" || (ok && last == cleaned) {
		return
	}
	if err := w.appendLine(w.FinalPath(sessionID), fmt.Sprintf("%s %s\n", stamp, cleaned)); err != nil {
		w.fail(fmt.Errorf("append final transcript: %w", err))
	}
	w.lastFinal[sessionID] = cleaned
}

func (w *Writer) appendLine(path, line string) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", w.dir, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func (w *Writer) fail(err error) {
	w.logger.Printf("transcript: %v", err)
	if w.onError != nil {
		w.onError(err)
	}
}
