package realtime

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/pkg/response"
)

// TokenValidator resolves an access token to the user id it was issued for.
type TokenValidator func(token string) (userID string, err error)

// Client is one WebSocket watching a user's studio.
type Client struct {
	ID          string
	UserID      uuid.UUID
	ConnectedAt time.Time
	hub         *Hub
	conn        *websocket.Conn
	send        chan Message
	logger      *zap.Logger
}

func (c *Client) enqueue(m Message) bool {
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and browser requests from the allowed list. "*" allows any.
func originChecker(allowed string) func(*http.Request) bool {
	origins := map[string]bool{}
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins[o] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(origins) == 0 || origins["*"] {
			return true
		}
		if origins[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// ServeWs upgrades the request and streams the user's studio events. The
// token travels in the query string since browsers cannot set headers on
// WebSocket requests.
func ServeWs(hub *Hub, logger *zap.Logger, allowedOrigins string, validate TokenValidator) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			response.BadRequest(c, "token required")
			return
		}
		raw, err := validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.String("user_id", userID.String()), zap.Error(err))
			return
		}
		client := &Client{
			ID:          uuid.NewString(),
			UserID:      userID,
			ConnectedAt: time.Now(),
			hub:         hub,
			conn:        conn,
			send:        make(chan Message, sendBuffer),
			logger:      logger,
		}
		hub.Register(client)
		go client.writeLoop()
		client.readLoop()
	}
}

// readLoop only answers keepalives; the studio is driven over HTTP.
func (c *Client) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		close(c.send)
	}()

	c.conn.SetReadLimit(4096)
	extend := func() { _ = c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	extend()
	c.conn.SetPongHandler(func(string) error { extend(); return nil })

	for {
		var m Message
		if err := c.conn.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("socket read", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		extend()
		if m.Event == "ping" {
			c.enqueue(Message{Event: "pong"})
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case m, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(m); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
