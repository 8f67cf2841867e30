package app

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNew_WithoutDatabase(t *testing.T) {
	cfg := defaultConfig()
	cfg.STTProvider = ProviderDeepgram
	cfg.DeepgramAPIKey = "test-key"
	cfg.TranscriptsDir = t.TempDir()

	a, err := New(cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer a.Close()

	if a.eventLog.Enabled() {
		t.Error("event log should be disabled without DATABASE_URL")
	}
	if a.Sessions() == nil {
		t.Fatal("Sessions() returned nil")
	}

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}

func TestNewStreamer_UnknownProvider(t *testing.T) {
	cfg := defaultConfig()
	cfg.STTProvider = "whisper"
	cfg.TranscriptsDir = t.TempDir()

	if _, err := New(cfg, log.New(io.Discard, "", 0)); err == nil {
		t.Error("New() should fail for an unknown provider")
	}
}

func TestDeepgramConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.DeepgramAPIKey = "key"
	cfg.DeepgramModel = "nova-3-medical"
	cfg.DeepgramEndpointing = 300

	dc := deepgramConfig(cfg)
	if dc.APIKey != "key" || dc.Model != "nova-3-medical" || !dc.Punctuate {
		t.Errorf("deepgramConfig() = %+v", dc)
	}
	if dc.Endpointing != 300 {
		t.Errorf("Endpointing = %d, want 300", dc.Endpointing)
	}
}
