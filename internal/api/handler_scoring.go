package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/errdef"
	"attendance-backend/internal/model"
	"attendance-backend/internal/parse"
	"attendance-backend/internal/scoring"
)

type rankingResponse struct {
	Month     int                `json:"month"`
	Year      int                `json:"year"`
	Standings []scoring.Standing `json:"standings"`
}

// GetRanking handles GET /api/ranking?period=YYYY-MM.
func (h *Handler) GetRanking(c *gin.Context) {
	p, err := h.period(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	standings, err := h.engine.GetRanking(c.Request.Context(), p.Month, p.Year)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if standings == nil {
		standings = []scoring.Standing{}
	}

	c.JSON(http.StatusOK, rankingResponse{Month: p.Month, Year: p.Year, Standings: standings})
}

// GetParticipantPoints handles GET /api/participants/:id/points.
func (h *Handler) GetParticipantPoints(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	p, err := h.period(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	view, err := h.engine.GetParticipantPoints(c.Request.Context(), id, p.Month, p.Year)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if view.Recent == nil {
		view.Recent = []model.PointEntry{}
	}

	c.JSON(http.StatusOK, view)
}

type registrationRequest struct {
	ParticipantID int64 `json:"participant_id" binding:"required,gt=0"`
}

// Register handles POST /api/gatherings/:id/registrations.
func (h *Handler) Register(c *gin.Context) {
	gatheringID, err := paramID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req registrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errdef.NewBadRequest("invalid registration: %s", err))
		return
	}

	created, err := h.engine.Register(c.Request.Context(), req.ParticipantID, gatheringID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"participant_id": req.ParticipantID, "gathering_id": gatheringID, "created": created})
}

type manualPointsRequest struct {
	ParticipantID int64  `json:"participant_id" binding:"required,gt=0"`
	Delta         int    `json:"delta" binding:"required"`
	Reason        string `json:"reason" binding:"required,max=255"`
	Source        string `json:"source" binding:"required,pointsource"`
}

// AddPoints handles POST /api/admin/points.
func (h *Handler) AddPoints(c *gin.Context) {
	var req manualPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errdef.NewBadRequest("invalid point entry: %s", err))
		return
	}

	entry, err := h.engine.AddManualPoints(c.Request.Context(), req.ParticipantID, req.Delta, req.Reason, model.SourceCategory(req.Source))
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.invalidate()

	c.JSON(http.StatusCreated, entry)
}

type escalationRequest struct {
	Period string `json:"period" binding:"required"`
}

type escalationResponse struct {
	Month   int                     `json:"month"`
	Year    int                     `json:"year"`
	Changes []scoring.WarningChange `json:"changes"`
}

// RunEscalation handles POST /api/admin/escalations. A month that was already
// escalated yields 409.
func (h *Handler) RunEscalation(c *gin.Context) {
	var req escalationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errdef.NewBadRequest("invalid escalation request: %s", err))
		return
	}
	p, err := parse.ParsePeriod(req.Period)
	if err != nil {
		_ = c.Error(errdef.NewBadRequest("%s", err))
		return
	}

	changes, err := h.engine.RunMonthlyEscalation(c.Request.Context(), p.Month, p.Year)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.invalidate()
	if changes == nil {
		changes = []scoring.WarningChange{}
	}

	c.JSON(http.StatusOK, escalationResponse{Month: p.Month, Year: p.Year, Changes: changes})
}

// PenalizeNoShows handles POST /api/admin/gatherings/:id/no-shows.
func (h *Handler) PenalizeNoShows(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	penalized, err := h.engine.PenalizeNoShows(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if len(penalized) > 0 {
		h.invalidate()
	}
	if penalized == nil {
		penalized = []int64{}
	}

	c.JSON(http.StatusOK, gin.H{"gathering_id": id, "penalized": penalized})
}
