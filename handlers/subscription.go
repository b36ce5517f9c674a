package handlers

import (
	"net/http"

	"wayfinder/models"
	"wayfinder/services/subscription"
	"wayfinder/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SubscriptionHandler struct {
	Registry       subscription.Registry
	VAPIDPublicKey string
}

func NewSubscriptionHandler(registry subscription.Registry, vapidPublicKey string) *SubscriptionHandler {
	return &SubscriptionHandler{Registry: registry, VAPIDPublicKey: vapidPublicKey}
}

// RegisterEndpointHandler serves POST /api/push-subscriptions.
func (h *SubscriptionHandler) RegisterEndpointHandler(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}
	var req models.RegisterEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	ep, err := h.Registry.Register(c.Request.Context(), userID, req.Channel, req.Credential, req.Metadata)
	if err != nil {
		utils.RespondError(c, "Failed to register push subscription", err)
		return
	}
	getLogger(c).Info("push subscription registered",
		zap.String("userId", userID),
		zap.String("endpointId", ep.ID),
		zap.String("channel", string(ep.Channel)),
	)
	c.JSON(http.StatusCreated, ep)
}

// ListEndpointsHandler serves GET /api/push-subscriptions.
func (h *SubscriptionHandler) ListEndpointsHandler(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}
	endpoints, err := h.Registry.ListActive(c.Request.Context(), userID)
	if err != nil {
		utils.RespondError(c, "Failed to list push subscriptions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": endpoints})
}

// UnregisterEndpointHandler serves DELETE /api/push-subscriptions.
func (h *SubscriptionHandler) UnregisterEndpointHandler(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}
	var req models.UnregisterEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if err := h.Registry.Unregister(c.Request.Context(), userID, req.Credential.Key()); err != nil {
		utils.RespondError(c, "Failed to remove push subscription", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Push subscription removed"})
}

// PublicKeyHandler serves GET /api/push-public-key.
func (h *SubscriptionHandler) PublicKeyHandler(c *gin.Context) {
	if h.VAPIDPublicKey == "" {
		utils.JSONError(c, http.StatusNotFound, "Web push is not configured", "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": h.VAPIDPublicKey})
}
