package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lukasbauer/transcribe-relay/internal/eventlog"
	"github.com/lukasbauer/transcribe-relay/internal/metrics"
	"github.com/lukasbauer/transcribe-relay/internal/stt"
	"github.com/lukasbauer/transcribe-relay/internal/transcript"
)

type RouterConfig struct {
	// Streaming transcription settings
	LanguageCode   string
	SampleRateHz   int
	VocabularyName string
	Specialty      string // medical specialty, e.g. PRIMARYCARE
	Type           string // DICTATION or CONVERSATION

	// Relay settings
	ChunkPace   time.Duration // fixed delay before each chunk hand-off
	StopTimeout time.Duration // how long a stop waits for the result loop
	Debug       bool          // per-chunk level diagnostics

	// JWT Authentication (disabled when empty)
	JWTSecret string
}

type Router struct {
	cfg         RouterConfig
	logger      *log.Logger
	streamer    stt.Streamer
	transcripts *transcript.Writer
	eventLog    *eventlog.Logger
	metrics     *metrics.Metrics
	sessions    *SessionRegistry
	mux         *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, streamer stt.Streamer, transcripts *transcript.Writer,
	eventLog *eventlog.Logger, m *metrics.Metrics, sessions *SessionRegistry) http.Handler {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 2 * time.Second
	}

	r := &Router{
		cfg:         cfg,
		logger:      logger,
		streamer:    streamer,
		transcripts: transcripts,
		eventLog:    eventLog,
		metrics:     m,
		sessions:    sessions,
		mux:         http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health checks
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)
	r.mux.Handle("GET /metrics", r.metrics.Handler())

	// Transcription socket. The root path is kept for clients that connect
	// to the bare host.
	r.mux.HandleFunc("GET /transcribe", r.withAuth(r.handleTranscribeWS))
	r.mux.HandleFunc("GET /{$}", r.withAuth(r.handleTranscribeWS))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.sessions.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}
