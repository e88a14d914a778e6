package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chattalk/backend/internal/config"
	"github.com/chattalk/backend/internal/repo"
)

func testConfig() config.Config {
	return config.Config{
		Port:              "8080",
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
		GinMode:           "test",
		LogLevel:          "info",
		APIBasePath:       "/api/v1",
		DBPath:            "unused",
		AdminPIN:          "1234",
		Billing:           config.BillingConfig{UnitCost: 10, Period: time.Hour},
		TopUp:             config.TopUpConfig{MinimumRecharge: 50, MinReferenceLen: 4, RejectReasonMaxLen: 200},
		Chat:              config.ChatConfig{MaxMessageRunes: 500, EventBuffer: 64},
		RateRPS:           1000,
		RateBurst:         1000,
		OTEL:              config.OTELConfig{ServiceName: "chattalk-backend"},
	}
}

// newTestAPI stands up the full router over a throwaway database.
func newTestAPI(t *testing.T) (*gin.Engine, *App) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := testConfig()
	app := NewApp(db, cfg)
	t.Cleanup(func() {
		app.Sessions.Shutdown(context.Background())
		app.Hub.Close()
	})

	r := gin.New()
	RegisterRoutes(r, app, cfg)
	return r, app
}

func request(t *testing.T, r *gin.Engine, method, path string, headers map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthAndFallbacks(t *testing.T) {
	r, _ := newTestAPI(t)

	if w := request(t, r, http.MethodGet, "/health", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", w.Code)
	}

	w := request(t, r, http.MethodGet, "/nope", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown route = %d, want 404", w.Code)
	}
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Code != "not_found" {
		t.Fatalf("404 envelope = %s (%v)", w.Body.String(), err)
	}

	// Wrong verb on a registered route.
	if w := request(t, r, http.MethodDelete, "/api/v1/session/start", nil, nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong verb = %d, want 405", w.Code)
	}
}

func TestRouter_AdminPINGate(t *testing.T) {
	r, _ := newTestAPI(t)

	if w := request(t, r, http.MethodGet, "/api/v1/admin/topups", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing PIN = %d, want 401", w.Code)
	}
	if w := request(t, r, http.MethodGet, "/api/v1/admin/topups", map[string]string{"X-Admin-Pin": "9999"}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong PIN = %d, want 401", w.Code)
	}
	if w := request(t, r, http.MethodGet, "/api/v1/admin/topups", map[string]string{"X-Admin-Pin": "1234"}, nil); w.Code != http.StatusOK {
		t.Fatalf("correct PIN = %d, want 200", w.Code)
	}
}

// TestRouter_FullFlow walks the whole funding-and-chat lifecycle through the
// real service graph: submit a top-up, approve it as the operator, start a
// session, exchange messages, and stop.
func TestRouter_FullFlow(t *testing.T) {
	r, _ := newTestAPI(t)
	user := map[string]string{"X-User-ID": "u1"}
	admin := map[string]string{"X-Admin-Pin": "1234"}

	// Starting without funds is refused up front.
	if w := request(t, r, http.MethodPost, "/api/v1/session/start", user, nil); w.Code != http.StatusPaymentRequired {
		t.Fatalf("start without funds = %d, want 402", w.Code)
	}

	// Submit a top-up and read its id back.
	w := request(t, r, http.MethodPost, "/api/v1/topups", user, map[string]any{
		"amount": 500, "reference": "UTR12345",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("submit = %d (body %s)", w.Code, w.Body.String())
	}
	var created struct {
		TopUp struct {
			ID string `json:"id"`
		} `json:"topup"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil || created.TopUp.ID == "" {
		t.Fatalf("submit response = %s (%v)", w.Body.String(), err)
	}

	// Operator approves; money lands.
	if w := request(t, r, http.MethodPost, "/api/v1/admin/topups/"+created.TopUp.ID+"/approve", admin, nil); w.Code != http.StatusOK {
		t.Fatalf("approve = %d (body %s)", w.Code, w.Body.String())
	}
	w = request(t, r, http.MethodGet, "/api/v1/status", user, nil)
	var status struct {
		Balance int64 `json:"balance"`
		Active  bool  `json:"active"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("status decode: %v", err)
	}
	if status.Balance != 500 || status.Active {
		t.Fatalf("status = %+v, want balance 500, idle", status)
	}

	// Double approval is a conflict.
	if w := request(t, r, http.MethodPost, "/api/v1/admin/topups/"+created.TopUp.ID+"/approve", admin, nil); w.Code != http.StatusConflict {
		t.Fatalf("re-approve = %d, want 409", w.Code)
	}

	// Start, talk, get answered, read the transcript.
	if w := request(t, r, http.MethodPost, "/api/v1/session/start", user, nil); w.Code != http.StatusOK {
		t.Fatalf("start = %d (body %s)", w.Code, w.Body.String())
	}
	if w := request(t, r, http.MethodPost, "/api/v1/messages", user, map[string]any{"content": "hello"}); w.Code != http.StatusCreated {
		t.Fatalf("client message = %d (body %s)", w.Code, w.Body.String())
	}
	if w := request(t, r, http.MethodPost, "/api/v1/admin/users/u1/messages", admin, map[string]any{"content": "hi!"}); w.Code != http.StatusCreated {
		t.Fatalf("admin message = %d (body %s)", w.Code, w.Body.String())
	}

	w = request(t, r, http.MethodGet, "/api/v1/messages", user, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("transcript = %d", w.Code)
	}
	var transcript struct {
		Messages []struct {
			Sender  string `json:"sender"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &transcript); err != nil {
		t.Fatalf("transcript decode: %v", err)
	}
	if len(transcript.Messages) != 2 || transcript.Messages[0].Content != "hello" || transcript.Messages[1].Sender != "admin" {
		t.Fatalf("transcript = %+v", transcript.Messages)
	}

	// Stop, then verify messaging is gated again.
	if w := request(t, r, http.MethodPost, "/api/v1/session/stop", user, nil); w.Code != http.StatusNoContent {
		t.Fatalf("stop = %d", w.Code)
	}
	if w := request(t, r, http.MethodPost, "/api/v1/messages", user, map[string]any{"content": "anyone?"}); w.Code != http.StatusConflict {
		t.Fatalf("message after stop = %d, want 409", w.Code)
	}
}
