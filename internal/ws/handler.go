package ws

import (
	"context"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/opsdeck/opsdeck/internal/dto"
	"github.com/opsdeck/opsdeck/internal/services"
)

const wsClaimsLocal = "ws_claims"

// UpgradeGuard authenticates the websocket handshake before the
// protocol upgrade. The session token travels either in the auth/token
// query parameter (browser WebSocket cannot set headers) or in the
// Authorization header.
func UpgradeGuard(sessions *services.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("auth")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			token = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Kind: "unauthenticated", Message: "Missing session token in handshake",
			})
		}

		claims, err := sessions.Verify(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Kind: "unauthenticated", Message: "Invalid session token",
			})
		}

		c.Locals(wsClaimsLocal, claims)
		return c.Next()
	}
}

// Serve returns the post-upgrade connection handler. It registers the
// subscriber, runs the write pump in its own goroutine, and blocks on
// the read pump until disconnect.
func (h *Hub) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		claims, ok := conn.Locals(wsClaimsLocal).(*services.SessionClaims)
		if !ok {
			_ = conn.Close()
			return
		}

		sub := NewSubscriber(conn, claims.Email)
		h.Register(context.Background(), sub)

		go sub.writePump()
		sub.readPump(h)
	})
}
