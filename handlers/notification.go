package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"wayfinder/models"
	"wayfinder/services/delivery"
	"wayfinder/services/notification"
	"wayfinder/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	Store       notification.NotificationStore
	Coordinator delivery.Coordinator
}

func NewNotificationHandler(store notification.NotificationStore, coordinator delivery.Coordinator) *NotificationHandler {
	return &NotificationHandler{Store: store, Coordinator: coordinator}
}

// ListNotificationsHandler serves GET /api/notifications.
func (h *NotificationHandler) ListNotificationsHandler(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}
	q, err := parseNotificationQuery(c)
	if err != nil {
		utils.RespondError(c, "Invalid query", err)
		return
	}

	page, err := h.Store.ListSince(c.Request.Context(), userID, q)
	if err != nil {
		getLogger(c).Error("failed to list notifications", zap.String("userId", userID), zap.Error(err))
		utils.RespondError(c, "Failed to list notifications", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// MarkReadHandler serves POST /api/notifications/:id/read.
func (h *NotificationHandler) MarkReadHandler(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}
	unread, err := h.Coordinator.MarkRead(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		utils.RespondError(c, "Failed to mark notification read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true, "unreadCount": unread})
}

// MarkAllReadHandler serves POST /api/notifications/read-all.
func (h *NotificationHandler) MarkAllReadHandler(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}
	updated, unread, err := h.Coordinator.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		utils.RespondError(c, "Failed to mark notifications read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated, "unreadCount": unread})
}

// UnreadCountHandler serves GET /api/notifications/unread-count.
func (h *NotificationHandler) UnreadCountHandler(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}
	count, err := h.Store.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		utils.RespondError(c, "Failed to count unread notifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": count})
}

func parseNotificationQuery(c *gin.Context) (models.NotificationQuery, error) {
	var q models.NotificationQuery

	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, err := parseSince(raw)
		if err != nil {
			return q, err
		}
		q.Since = &since
	}
	if raw := strings.TrimSpace(c.Query("before")); raw != "" {
		cursor, err := notification.ParseCursor(raw)
		if err != nil {
			return q, err
		}
		q.Before = cursor
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return q, models.NewValidationError("limit", "must be a non-negative integer")
		}
		q.Limit = limit
	}
	return q, nil
}

// parseSince accepts RFC 3339 or unix milliseconds.
func parseSince(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, models.NewValidationError("since", "must be RFC 3339 or unix milliseconds")
	}
	return t.UTC(), nil
}
