package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/cocagne-tracker/internal/db"
	"github.com/ukydev/cocagne-tracker/internal/models"
	"github.com/ukydev/cocagne-tracker/internal/notify"
)

// Maximum wait for a message or ping from a feed client.
const pongWait = 60 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NotificationHandler serves the client notification feed.
type NotificationHandler struct {
	store  db.NotificationCollection
	tokens db.PushTokenCollection
	hub    *notify.Hub
}

func NewNotificationHandler(store db.NotificationCollection, tokens db.PushTokenCollection, hub *notify.Hub) *NotificationHandler {
	return &NotificationHandler{store: store, tokens: tokens, hub: hub}
}

// List handles GET /api/notifications?limit=N.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	var limit int64 = 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	out, err := h.store.FindNotifications(r.Context(), limit)
	if err != nil {
		log.WithError(err).Error("Failed to list notifications")
		writeError(w, http.StatusInternalServerError, "Failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Delete handles DELETE /api/notifications/{id}.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteNotification(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, db.ErrNotificationNotFound) {
		writeError(w, http.StatusNotFound, "Notification not found")
		return
	}
	if err != nil {
		log.WithError(err).Error("Failed to delete notification")
		writeError(w, http.StatusInternalServerError, "Failed to delete notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAll handles DELETE /api/notifications.
func (h *NotificationHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.DeleteAllNotifications(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to clear notifications")
		writeError(w, http.StatusInternalServerError, "Failed to clear notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

type pushTokenRequest struct {
	Token    string `json:"token"`
	DeviceID string `json:"device_id"`
}

// RegisterPushToken handles POST /api/push-tokens.
func (h *NotificationHandler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if !strings.HasPrefix(req.Token, "ExponentPushToken[") && !strings.HasPrefix(req.Token, "ExpoPushToken[") {
		writeError(w, http.StatusBadRequest, "token must be an Expo push token")
		return
	}
	token := models.PushToken{Token: req.Token, DeviceID: req.DeviceID, RegisteredAt: time.Now().UTC()}
	if err := h.tokens.UpsertPushToken(r.Context(), token); err != nil {
		log.WithError(err).Error("Failed to register push token")
		writeError(w, http.StatusInternalServerError, "Failed to register push token")
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

// ServeWs handles GET /ws/notifications and streams new notifications.
func (h *NotificationHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade connection")
		return
	}
	h.hub.Register(conn)
	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Debug("Unexpected websocket close")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
