package httpapi

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, secret string, method jwt.SigningMethod, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "clinician-1",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func TestWithAuth_RejectsBadTokens(t *testing.T) {
	env := newTestEnv(t, RouterConfig{JWTSecret: testSecret}, &stubStreamer{})
	hour := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		header string
		query  string
	}{
		{name: "missing token"},
		{name: "malformed header", header: "Token abc"},
		{name: "empty bearer", header: "Bearer "},
		{name: "garbage token", header: "Bearer not-a-jwt"},
		{name: "wrong secret", header: "Bearer " + mintToken(t, "other-secret", jwt.SigningMethodHS256, hour)},
		{name: "expired", query: mintToken(t, testSecret, jwt.SigningMethodHS256, time.Now().Add(-time.Hour))},
		{name: "wrong algorithm", query: mintToken(t, testSecret, jwt.SigningMethodHS384, hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := env.srv.URL + "/transcribe"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req, err := http.NewRequest(http.MethodGet, url, nil)
			if err != nil {
				t.Fatal(err)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
			}
		})
	}
}

func TestWithAuth_AcceptsQueryToken(t *testing.T) {
	streamer := &stubStreamer{events: helloEvents()}
	env := newTestEnv(t, RouterConfig{JWTSecret: testSecret}, streamer)

	token := mintToken(t, testSecret, jwt.SigningMethodHS256, time.Now().Add(time.Hour))
	conn := env.dial(t, "/transcribe?token="+token)

	sendText(t, conn, startStream)
	stop := pumpAudio(conn, int16Chunk)
	defer stop()
	if f := readFrame(t, conn); f.Type != "transcription" {
		t.Errorf("frame = %+v, want transcription", f)
	}
}

func TestWithAuth_AcceptsBearerHeader(t *testing.T) {
	env := newTestEnv(t, RouterConfig{JWTSecret: testSecret}, &stubStreamer{})

	header := http.Header{}
	header.Set("Authorization", "Bearer "+mintToken(t, testSecret, jwt.SigningMethodHS256, time.Now().Add(time.Hour)))
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/transcribe"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial with bearer header: %v", err)
	}
	conn.Close()
}

func TestWithAuth_DisabledWithoutSecret(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, &stubStreamer{})
	env.dial(t, "/transcribe")
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		url    string
		want   string
		ok     bool
	}{
		{name: "header", header: "Bearer abc", url: "/transcribe", want: "abc", ok: true},
		{name: "lowercase scheme", header: "bearer abc", url: "/transcribe", want: "abc", ok: true},
		{name: "query", url: "/transcribe?token=xyz", want: "xyz", ok: true},
		{name: "header wins", header: "Bearer abc", url: "/transcribe?token=xyz", want: "abc", ok: true},
		{name: "bad header ignores query", header: "Basic abc", url: "/transcribe?token=xyz"},
		{name: "none", url: "/transcribe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "http://example.com"+tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, ok := bearerToken(req)
			if got != tt.want || ok != tt.ok {
				t.Errorf("bearerToken() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}
