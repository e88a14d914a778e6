package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/chattalk/backend/internal/events"
)

func newTestServer(t *testing.T, hub *events.Hub, origins []string) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := NewGateway(hub, origins)
	r := gin.New()
	r.GET("/ws", g.ServeUser)
	r.GET("/admin/ws", g.ServeOperator)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return ev
}

func TestGateway_UserStream(t *testing.T) {
	hub := events.NewHub(8)
	defer hub.Close()
	srv := newTestServer(t, hub, nil)

	header := http.Header{"X-User-ID": []string{"u1"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hub.PublishToUser("u1", events.Event{
		Kind:   events.KindBalanceUpdated,
		UserID: "u1",
		Balance: &events.BalancePayload{
			Balance: 100,
			Delta:   100,
		},
	})

	ev := readEvent(t, conn)
	if ev.Kind != events.KindBalanceUpdated || ev.Balance == nil || ev.Balance.Balance != 100 {
		t.Fatalf("received event: %+v", ev)
	}
}

func TestGateway_QueryFallbackIdentity(t *testing.T) {
	hub := events.NewHub(8)
	defer hub.Close()
	srv := newTestServer(t, hub, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws?user_id=u1"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hub.PublishToUser("u1", events.Event{Kind: events.KindChatMessage, UserID: "u1"})
	if ev := readEvent(t, conn); ev.Kind != events.KindChatMessage {
		t.Fatalf("received event: %+v", ev)
	}
}

func TestGateway_AnonymousRejected(t *testing.T) {
	hub := events.NewHub(8)
	defer hub.Close()
	srv := newTestServer(t, hub, nil)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	if err == nil {
		t.Fatalf("expected dial to fail without identity")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %+v, want 401", resp)
	}
}

func TestGateway_OperatorStream(t *testing.T) {
	hub := events.NewHub(8)
	defer hub.Close()
	srv := newTestServer(t, hub, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/admin/ws"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hub.PublishToOperators(events.Event{Kind: events.KindTopUpCreated, UserID: "u1"})
	if ev := readEvent(t, conn); ev.Kind != events.KindTopUpCreated {
		t.Fatalf("received event: %+v", ev)
	}
}

func TestGateway_OriginAllowlist(t *testing.T) {
	hub := events.NewHub(8)
	defer hub.Close()
	srv := newTestServer(t, hub, []string{"https://app.example.com"})

	// Disallowed origin is refused during the handshake.
	header := http.Header{
		"X-User-ID": []string{"u1"},
		"Origin":    []string{"https://evil.example.com"},
	}
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), header); err == nil {
		t.Fatalf("expected handshake failure for disallowed origin")
	} else if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}

	// Allowlisted origin connects fine.
	header.Set("Origin", "https://app.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), header)
	if err != nil {
		t.Fatalf("dial with allowed origin: %v", err)
	}
	conn.Close()
}

func TestGateway_HubCloseEndsConnection(t *testing.T) {
	hub := events.NewHub(8)
	srv := newTestServer(t, hub, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws?user_id=u1"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hub.Close()

	// The write pump sends a going-away close frame and the connection ends.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway) {
				return
			}
			t.Fatalf("connection ended with %v, want going-away close", err)
		}
	}
}
