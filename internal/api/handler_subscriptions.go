package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/errdef"
	"attendance-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription creates or replaces the push subscription used for warning
// notifications.
func (h *Handler) PutSubscription(c *gin.Context) {
	participantID, err := paramID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errdef.NewBadRequest("invalid subscription: %s", err))
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetParticipant(ctx, participantID); err != nil {
		_ = c.Error(err)
		return
	}

	subscription := model.PushSubscription{
		Endpoint:      req.Endpoint,
		ParticipantID: participantID,
		P256DH:        req.P256DH,
		Auth:          req.Auth,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.store.SaveSubscription(ctx, &subscription); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes one of the participant's subscriptions.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	participantID, err := paramID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errdef.NewBadRequest("invalid request: %s", err))
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetSubscription(ctx, participantID, req.Endpoint); err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.store.DeleteSubscription(ctx, req.Endpoint); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam returns a query value without URL decoding. Push endpoints are
// URLs themselves and clients send them verbatim.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription reports whether the endpoint is subscribed for the participant.
func (h *Handler) GetSubscription(c *gin.Context) {
	participantID, err := paramID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		_ = c.Error(errdef.NewBadRequest("endpoint is required"))
		return
	}

	sub, err := h.store.GetSubscription(c.Request.Context(), participantID, raw)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"participant_id": sub.ParticipantID,
		"endpoint":       sub.Endpoint,
		"created_at":     sub.CreatedAt,
	})
}

// GetVAPIDPublicKey hands browsers the application server key needed before
// they can create a subscription. Without push configuration there is nothing
// to subscribe to.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "warning notifications are not enabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
