package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.llib.dev/frameless/pkg/httpkit"
	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"

	"plangrid/domain/notification"
)

const streamWriteTimeout = 5 * time.Second

func (h handlers) notificationRoutes(r *httpkit.Router) {
	r.Get("/notifications", h.authenticated(h.listNotifications))
	r.Put("/notifications/:id/read", h.authenticated(h.markNotificationRead))
}

func (h handlers) listNotifications(w http.ResponseWriter, r *http.Request) error {
	ns, err := h.Notifications.List(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	if ns == nil {
		ns = []notification.Notification{}
	}
	return writeJSON(w, http.StatusOK, ns)
}

func (h handlers) markNotificationRead(w http.ResponseWriter, r *http.Request) error {
	if err := h.Notifications.MarkRead(r.Context(), Username(r.Context()), pathParam(r, "id")); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, Message{Message: "Notification marked as read"})
}

func (h handlers) updateRoutes(r *httpkit.Router) {
	r.Post("/updates/subscribe/:team", h.authenticated(h.subscribe))
	r.Post("/updates/unsubscribe/:team", h.authenticated(h.unsubscribe))
	r.Get("/updates/poll", h.authenticated(h.poll))
	r.Get("/updates/stream", h.authenticated(h.stream))
}

func (h handlers) subscribe(w http.ResponseWriter, r *http.Request) error {
	teamID := pathParam(r, "team")
	h.Hub.Subscribe(r.Context(), Username(r.Context()), teamID)
	return writeJSON(w, http.StatusOK, Message{Message: fmt.Sprintf("Subscribed to updates for team %s", teamID)})
}

func (h handlers) unsubscribe(w http.ResponseWriter, r *http.Request) error {
	teamID := pathParam(r, "team")
	h.Hub.Unsubscribe(r.Context(), Username(r.Context()), teamID)
	return writeJSON(w, http.StatusOK, Message{Message: fmt.Sprintf("Unsubscribed from updates for team %s", teamID)})
}

type Updates struct {
	Updates []notification.Update `json:"updates"`
}

func (h handlers) poll(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, http.StatusOK, Updates{Updates: h.Hub.Poll(Username(r.Context()))})
}

// stream pushes the user's team updates over a websocket as they are published.
// Each frame carries the same body as a poll response.
func (h handlers) stream(w http.ResponseWriter, r *http.Request) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.allowedOrigins()),
	})
	if err != nil {
		// Accept has already answered the handshake.
		logger.Debug(r.Context(), "websocket handshake failed", logging.ErrField(err))
		return nil
	}
	defer conn.CloseNow()

	username := Username(r.Context())
	ctx := conn.CloseRead(r.Context())
	logger.Debug(ctx, "update stream opened", logging.Field("username", username))
	err = h.Hub.Stream(ctx, username, func(updates []notification.Update) error {
		wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
		defer cancel()
		return wsjson.Write(wctx, conn, Updates{Updates: updates})
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn(ctx, "update stream closed", logging.ErrField(err), logging.Field("username", username))
		_ = conn.Close(websocket.StatusInternalError, "write failed")
		return nil
	}
	_ = conn.Close(websocket.StatusNormalClosure, "closed")
	return nil
}

// originPatterns strips the scheme, websocket.AcceptOptions matches on host only.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		out = append(out, o)
	}
	return out
}
