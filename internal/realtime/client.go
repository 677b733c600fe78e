package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/auth"
	"github.com/blok13/clanportal/internal/models"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SnapshotLoader builds the current feed for an event.
type SnapshotLoader interface {
	Load(ctx context.Context, eventID uuid.UUID) (*models.EventFeed, error)
}

// TokenValidator validates the token passed on the upgrade request.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// RoleStore returns the viewer's stored profile, creating it from the token claims on first contact.
type RoleStore interface {
	Ensure(ctx context.Context, uid uuid.UUID, displayName string, role models.Role) (*models.Profile, error)
}

// Client is one WebSocket connection watching an event feed.
type Client struct {
	sub    *Subscription
	hub    *Hub
	loader SnapshotLoader
	conn   *websocket.Conn
	logger *zap.Logger
}

// ServeWs handles GET /ws?event_id=&token=. Only clan members and admins may watch a feed; the
// stored role wins over the token's when roles is set. checkOrigin may be nil to accept any origin.
func ServeWs(hub *Hub, loader SnapshotLoader, tokens TokenValidator, roles RoleStore, checkOrigin func(origin string) bool, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return checkOrigin == nil || origin == "" || checkOrigin(origin)
		},
	}
	return func(c *gin.Context) {
		eventIDStr := c.Query("event_id")
		token := c.Query("token")
		if eventIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_id and token required"})
			return
		}
		eventID, err := uuid.Parse(eventIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event_id"})
			return
		}
		claims, err := tokens.Validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		role := models.Role(claims.Role)
		if roles != nil {
			p, err := roles.Ensure(c.Request.Context(), claims.UserID, claims.DisplayName, role)
			if err != nil {
				logger.Error("resolve role", zap.Error(err), zap.String("user_id", claims.UserID.String()))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve role"})
				return
			}
			role = p.Role
		}
		if role != models.RoleMember && role != models.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "clan members only"})
			return
		}
		feed, err := loader.Load(c.Request.Context(), eventID)
		if err != nil {
			if models.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
				return
			}
			logger.Error("load feed", zap.Error(err), zap.String("event_id", eventID.String()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load feed"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			sub:    hub.Subscribe(eventID, Viewer{UserID: claims.UserID, Admin: role == models.RoleAdmin}),
			hub:    hub,
			loader: loader,
			conn:   conn,
			logger: logger,
		}
		hub.sendTo(client.sub, feed)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.sub.Release()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "refresh":
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			feed, err := c.loader.Load(ctx, c.sub.EventID())
			cancel()
			if err != nil {
				c.logger.Warn("reload feed", zap.Error(err), zap.String("event_id", c.sub.EventID().String()))
				continue
			}
			c.hub.sendTo(c.sub, feed)
		default:
			// ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sub.C:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
