package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lukasbauer/transcribe-relay/internal/eventlog"
	"github.com/lukasbauer/transcribe-relay/internal/httpapi"
	"github.com/lukasbauer/transcribe-relay/internal/metrics"
	"github.com/lukasbauer/transcribe-relay/internal/stt"
	"github.com/lukasbauer/transcribe-relay/internal/transcript"
)

type App struct {
	cfg         Config
	logger      *log.Logger
	db          *pgxpool.Pool // nil when DATABASE_URL is unset
	eventLog    *eventlog.Logger
	streamer    stt.Streamer
	transcripts *transcript.Writer
	metrics     *metrics.Metrics
	sessions    *httpapi.SessionRegistry
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		db, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
	} else {
		logger.Printf("app: DATABASE_URL not set, session event log disabled")
	}

	el := eventlog.New(db)
	if err := el.EnsureSchema(ctx); err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("ensure event log schema: %w", err)
	}

	streamer, err := newStreamer(ctx, cfg, logger)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	m := metrics.NewMetrics()
	transcripts := transcript.NewWriter(cfg.TranscriptsDir, logger, func(error) {
		m.PersistenceFailures.Inc()
	})

	return &App{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		eventLog:    el,
		streamer:    streamer,
		transcripts: transcripts,
		metrics:     m,
		sessions:    httpapi.NewSessionRegistry(),
	}, nil
}

func newStreamer(ctx context.Context, cfg Config, logger *log.Logger) (stt.Streamer, error) {
	switch cfg.STTProvider {
	case ProviderDeepgram:
		logger.Printf("app: using Deepgram streaming transcription")
		return stt.NewDeepgramStreamer(deepgramConfig(cfg), logger), nil
	case ProviderAWSMedical:
		logger.Printf("app: using AWS Transcribe Medical in %s", cfg.AWSRegion)
		s, err := stt.NewAWSMedicalStreamer(ctx, cfg.AWSRegion, logger)
		if err != nil {
			return nil, fmt.Errorf("init aws transcribe: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.STTProvider)
	}
}

func deepgramConfig(cfg Config) stt.DeepgramConfig {
	return stt.DeepgramConfig{
		APIKey:      cfg.DeepgramAPIKey,
		Model:       cfg.DeepgramModel,
		Punctuate:   true,
		Endpointing: cfg.DeepgramEndpointing,
	}
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		LanguageCode:   a.cfg.LanguageCode,
		SampleRateHz:   a.cfg.SampleRateHz,
		VocabularyName: a.cfg.VocabularyName,
		Specialty:      a.cfg.MedicalSpecialty,
		Type:           a.cfg.MedicalType,
		ChunkPace:      a.cfg.ChunkPace,
		StopTimeout:    a.cfg.StopTimeout,
		Debug:          a.cfg.Debug(),
		JWTSecret:      a.cfg.JWTSecret,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.streamer, a.transcripts, a.eventLog, a.metrics, a.sessions)
}

// Sessions exposes the socket registry so shutdown can drain it.
func (a *App) Sessions() *httpapi.SessionRegistry {
	return a.sessions
}

// Close flushes pending transcript writes and releases the database pool.
// Call it after the HTTP server has shut down.
func (a *App) Close() error {
	a.transcripts.Close()
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
