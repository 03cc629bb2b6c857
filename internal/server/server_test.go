package server_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dantte-lp/gotpd/internal/server"
	"github.com/dantte-lp/gotpd/internal/tp"
)

// setupTestServer creates a *tp.Engine wired to an in-memory CAN sink and
// wraps it in a test HTTP server. The server is cleaned up when the test
// finishes.
func setupTestServer(t *testing.T) (*httptest.Server, *tp.Engine) {
	t.Helper()

	var mu sync.Mutex
	var now uint32

	engine := tp.NewEngine(tp.Collaborators{
		CanTx:     func(uint32, [8]byte) error { return nil },
		NowMs:     func() uint32 { mu.Lock(); defer mu.Unlock(); return now },
		MyAddress: func() tp.Address { return 10 },
		Deliver:   func(tp.PGN, tp.Address, []byte) {},
	}, tp.Options{Logger: slog.New(slog.DiscardHandler)})

	srv := httptest.NewServer(server.New(engine, slog.New(slog.DiscardHandler)))
	t.Cleanup(srv.Close)

	return srv, engine
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestSendAndListSessions(t *testing.T) {
	t.Parallel()

	srv, _ := setupTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/sessions", "application/json", bytes.NewReader(mustJSON(t, map[string]any{
		"dest":    20,
		"pgn":     0xFEF8,
		"payload": base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xAB}, 20)),
	})))
	if err != nil {
		t.Fatalf("POST /v1/sessions: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	listResp, err := http.Get(srv.URL + "/v1/sessions")
	if err != nil {
		t.Fatalf("GET /v1/sessions: %v", err)
	}
	defer listResp.Body.Close()

	var sessions []map[string]any
	if err := json.NewDecoder(listResp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}

	if len(sessions) != 1 {
		t.Fatalf("len(sessions) = %d, want 1", len(sessions))
	}
	if sessions[0]["role"] != "CM-sender" {
		t.Errorf("role = %v, want CM-sender", sessions[0]["role"])
	}
}

func TestSendInvalidPayload(t *testing.T) {
	t.Parallel()

	srv, _ := setupTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/sessions", "application/json", bytes.NewReader(mustJSON(t, map[string]any{
		"dest":    20,
		"pgn":     0xFEF8,
		"payload": "not-valid-base64!!!",
	})))
	if err != nil {
		t.Fatalf("POST /v1/sessions: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestSendTooLarge(t *testing.T) {
	t.Parallel()

	srv, _ := setupTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/sessions", "application/json", bytes.NewReader(mustJSON(t, map[string]any{
		"dest":    20,
		"pgn":     0xFEF8,
		"payload": base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xAB}, 2000)),
	})))
	if err != nil {
		t.Fatalf("POST /v1/sessions: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestSendDuplicatePeerConflicts(t *testing.T) {
	t.Parallel()

	srv, _ := setupTestServer(t)

	payload := mustJSON(t, map[string]any{
		"dest":    20,
		"pgn":     0xFEF8,
		"payload": base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xAB}, 20)),
	})

	resp1, err := http.Post(srv.URL+"/v1/sessions", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("first POST /v1/sessions: %v", err)
	}
	resp1.Body.Close()

	resp2, err := http.Post(srv.URL+"/v1/sessions", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("second POST /v1/sessions: %v", err)
	}
	defer resp2.Body.Close()

	if resp2.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp2.StatusCode, http.StatusConflict)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()

	srv, _ := setupTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/sessions", "application/json", bytes.NewReader(mustJSON(t, map[string]any{
		"dest":    30,
		"pgn":     0xFEF8,
		"payload": base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xCD}, 20)),
	})))
	if err != nil {
		t.Fatalf("POST /v1/sessions: %v", err)
	}
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/sessions/30", nil)
	if err != nil {
		t.Fatalf("build DELETE request: %v", err)
	}

	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /v1/sessions/30: %v", err)
	}
	defer delResp.Body.Close()

	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", delResp.StatusCode, http.StatusNoContent)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
