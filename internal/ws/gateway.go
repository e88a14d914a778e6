// Package ws bridges the in-process event hub to WebSocket clients.
//
// Each connection owns exactly one hub subscription. A write pump drains the
// subscription channel onto the socket and keeps the connection alive with
// pings; a read pump watches for client close and pong replies. When either
// side ends, the subscription is closed so the hub stops routing events to a
// dead peer.
//
// Delivery here is transient by design: a client that connects late replays
// nothing and recovers current state from the REST endpoints.
package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/chattalk/backend/internal/events"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is dropped.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxInboundBytes caps client frames; the socket is outbound-only, clients
	// have no reason to send anything large.
	maxInboundBytes = 512
)

var wsConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "chattalk_ws_connections",
	Help: "Open WebSocket connections by audience.",
}, []string{"audience"})

func init() {
	prometheus.MustRegister(wsConnections)
}

// Gateway upgrades HTTP requests into event-streaming WebSocket connections.
type Gateway struct {
	hub      *events.Hub
	upgrader websocket.Upgrader
}

// NewGateway constructs a Gateway for hub. When allowedOrigins is empty every
// origin is accepted (matching the CORS posture of the REST surface);
// otherwise the Origin header must match the allowlist.
func NewGateway(hub *events.Hub, allowedOrigins []string) *Gateway {
	checkOrigin := func(*http.Request) bool { return true }
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]struct{}, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = struct{}{}
		}
		checkOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
	return &Gateway{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// ServeUser streams the calling user's events. Identity comes from the
// "userID" context key or the X-User-ID header, with a user_id query
// parameter fallback for browser WebSocket clients that cannot set headers.
func (g *Gateway) ServeUser(c *gin.Context) {
	uid := userFrom(c)
	if uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":    "unauthorized",
			"message": "user identity required",
		})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Warn().Err(err).Str("user_id", uid).Msg("websocket upgrade failed")
		return
	}
	g.serve(conn, g.hub.SubscribeUser(uid), "user")
}

// ServeOperator streams events from every user to an operator console. The
// route is mounted behind the admin PIN middleware.
func (g *Gateway) ServeOperator(c *gin.Context) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	g.serve(conn, g.hub.SubscribeOperator(), "operator")
}

// serve runs the pumps for one connection and tears everything down when
// either pump exits.
func (g *Gateway) serve(conn *websocket.Conn, sub *events.Subscription, audience string) {
	wsConnections.WithLabelValues(audience).Inc()
	go g.writePump(conn, sub)
	g.readPump(conn)
	sub.Close()
	_ = conn.Close()
	wsConnections.WithLabelValues(audience).Dec()
}

// writePump serializes hub events onto the socket and pings on an interval.
// It exits when the subscription channel closes or a write fails.
func (g *Gateway) writePump(conn *websocket.Conn, sub *events.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case ev, open := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes and discards inbound frames until the peer goes away,
// refreshing the read deadline on every pong.
func (g *Gateway) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxInboundBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// userFrom resolves the caller identity for the user stream.
func userFrom(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
		return h
	}
	return strings.TrimSpace(c.Query("user_id"))
}
