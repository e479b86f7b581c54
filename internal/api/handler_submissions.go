package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/anticheat"
	"attendance-backend/internal/engine"
	"attendance-backend/internal/errdef"
	"attendance-backend/internal/geofence"
)

type submissionRequest struct {
	ParticipantID int64     `json:"participant_id" binding:"required,gt=0"`
	GatheringID   int64     `json:"gathering_id" binding:"required,gt=0"`
	Latitude      *float64  `json:"latitude" binding:"required"`
	Longitude     *float64  `json:"longitude" binding:"required"`
	SentAt        time.Time `json:"sent_at" binding:"required"`
	Forwarded     bool      `json:"forwarded"`
	Live          bool      `json:"live"`
	Action        string    `json:"action" binding:"omitempty,oneof=check_in check_out"`
}

// SubmitLocation handles POST /api/submissions. Business rejections are reported
// with 200 and accepted=false; only malformed input and persistence failures
// produce an error status.
func (h *Handler) SubmitLocation(c *gin.Context) {
	var req submissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errdef.NewBadRequest("invalid submission: %s", err))
		return
	}

	out, err := h.engine.SubmitLocation(c.Request.Context(), engine.Submission{
		Submission: anticheat.Submission{
			ParticipantID: req.ParticipantID,
			Coordinate:    geofence.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude},
			SentAt:        req.SentAt,
			Forwarded:     req.Forwarded,
			Live:          req.Live,
		},
		GatheringID: req.GatheringID,
		Action:      engine.Action(req.Action),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	if out.PointsAwarded != nil {
		h.invalidate()
	}

	c.JSON(http.StatusOK, out)
}
