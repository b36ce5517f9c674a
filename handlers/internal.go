package handlers

import (
	"errors"
	"net/http"

	"wayfinder/models"
	"wayfinder/services/delivery"
	"wayfinder/utils"

	"github.com/gin-gonic/gin"
)

// InternalHandler exposes the coordinator to the services that decide when
// someone should be notified.
type InternalHandler struct {
	Coordinator delivery.Coordinator
}

func NewInternalHandler(coordinator delivery.Coordinator) *InternalHandler {
	return &InternalHandler{Coordinator: coordinator}
}

// NotifyHandler serves POST /internal/notifications.
func (h *InternalHandler) NotifyHandler(c *gin.Context) {
	var input models.CreateNotificationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	result, err := h.Coordinator.Notify(c.Request.Context(), input)
	if err != nil {
		utils.RespondError(c, "Failed to create notification", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ScheduleReminderHandler serves POST /internal/reminders.
func (h *InternalHandler) ScheduleReminderHandler(c *gin.Context) {
	var req models.ScheduleReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	id, err := h.Coordinator.ScheduleReminder(c.Request.Context(), req)
	if errors.Is(err, delivery.ErrSchedulerUnavailable) {
		utils.JSONError(c, http.StatusServiceUnavailable, "Reminders are not available", err.Error())
		return
	}
	if err != nil {
		utils.RespondError(c, "Failed to schedule reminder", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"reminderId": id, "fireAt": req.FireAt.UTC()})
}
