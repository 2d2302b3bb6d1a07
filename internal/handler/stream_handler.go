package handler

import (
	"os"

	"ai-slidegen-be/internal/pkg/logger"
	internalWS "ai-slidegen-be/internal/websocket"
	"ai-slidegen-be/pkg/events"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StreamHandler upgrades observers onto a session's progress stream.
type StreamHandler struct {
	hub    *internalWS.Hub
	pub    *events.Publisher
	logger logger.ILogger
}

func NewStreamHandler(hub *internalWS.Hub, pub *events.Publisher, log logger.ILogger) *StreamHandler {
	return &StreamHandler{hub: hub, pub: pub, logger: log}
}

func (h *StreamHandler) RegisterRoutes(router fiber.Router) {
	g := router.Group("/generation/v1")
	g.Get(":id/stream", h.ServeWs)
}

// ServeWs authenticates the handshake and hands the connection to the hub.
// Browsers cannot set headers on websocket handshakes, so the token is also
// accepted as a query parameter.
func (h *StreamHandler) ServeWs(c *fiber.Ctx) error {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token (Query 'token' or Header 'Authorization')"})
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.ErrUnauthorized
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil || !token.Valid {
		h.logger.Warn("StreamHandler", "Invalid Token in WS Handshake", map[string]interface{}{"error": err})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}
	fromSeq := internalWS.ParseFromSeq(c.Query("from_seq"))

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("StreamHandler", "Starting progress stream", map[string]interface{}{
				"session_id": sessionID, "from_seq": fromSeq,
			})
			internalWS.ServeWs(h.hub, h.pub, conn, sessionID, fromSeq)
			h.logger.Info("StreamHandler", "Progress stream ended", map[string]interface{}{"session_id": sessionID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}
