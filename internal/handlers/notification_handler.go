package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"handshake-backend/internal/models"
	"handshake-backend/pkg/utils"
)

type NotificationLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Notification, error)
}

// NotificationStream pushes live notifications over an upgraded connection
type NotificationStream interface {
	Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error
}

type NotificationHandler struct {
	repo   NotificationLister
	stream NotificationStream
	log    *logrus.Entry
}

func NewNotificationHandler(repo NotificationLister, stream NotificationStream, logger *logrus.Logger) *NotificationHandler {
	return &NotificationHandler{
		repo:   repo,
		stream: stream,
		log:    logger.WithField("component", "notification_handler"),
	}
}

// ListNotifications returns the caller's notifications, newest first
// GET /api/notifications?limit=50&offset=0
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(r)
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}
	offset := 0
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o > 0 {
		offset = o
	}

	items, err := h.repo.ListByUser(r.Context(), caller, limit, offset)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if items == nil {
		items = []*models.Notification{}
	}
	utils.JSON(w, http.StatusOK, items)
}

// StreamNotifications upgrades to a websocket and pushes each new notification as JSON
// GET /api/notifications/ws
func (h *NotificationHandler) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(r)
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := h.stream.Serve(w, r, caller); err != nil {
		h.log.WithError(err).WithField("user_id", caller).Debug("Notification stream upgrade failed")
	}
}
