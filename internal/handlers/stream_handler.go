package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/formadex/crm-backend/internal/models"
	"github.com/formadex/crm-backend/internal/realtime"
	"github.com/labstack/echo/v4"
)

// StreamHandler serves the long-lived event stream clients subscribe to.
type StreamHandler struct {
	hub *realtime.Hub
}

// NewStreamHandler creates a new StreamHandler
func NewStreamHandler(hub *realtime.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// RegisterStreamRoutes registers the streaming route
func (h *StreamHandler) RegisterStreamRoutes(g *echo.Group) {
	g.GET("/notifications/stream", h.Stream)
}

// Stream opens a server-sent-event subscription for the signed-in staff
// member. The role comes from the verified JWT claim only; a missing or
// unknown role rejects the subscription rather than defaulting broad.
func (h *StreamHandler) Stream(c echo.Context) error {
	claims := getClaimsFromContext(c)
	if claims == nil || claims.UserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	if !models.ValidRole(claims.Role) {
		return echo.NewHTTPError(http.StatusForbidden, "A verified role is required to subscribe")
	}

	conn := h.hub.Subscribe(claims.UserID, claims.Role)
	defer h.hub.Unsubscribe(conn.ID)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			// Peer went away; Unsubscribe converges with the other removal paths.
			return nil
		case frame, ok := <-conn.Frames():
			if !ok {
				// Hub removed us (dead-connection prune or shutdown).
				return nil
			}
			if err := writeFrame(res, frame); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

// writeFrame renders one SSE frame. Comment frames are heartbeats.
func writeFrame(w io.Writer, f realtime.Frame) error {
	if f.Event == "" {
		_, err := fmt.Fprint(w, ": ping\n\n")
		return err
	}
	data, err := json.Marshal(f.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Event, data)
	return err
}
