package api

import (
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"attendance-backend/internal/engine"
	"attendance-backend/internal/errdef"
	"attendance-backend/internal/mw"
	"attendance-backend/internal/parse"
	"attendance-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine  *engine.Engine
	store   store.Store
	webpush *webpush.Options
	cache   *mw.ResponseCache
}

// NewHandler creates a new API handler. cache may be nil.
func NewHandler(e *engine.Engine, s store.Store, webpushOptions *webpush.Options, cache *mw.ResponseCache) *Handler {
	return &Handler{
		engine:  e,
		store:   s,
		webpush: webpushOptions,
		cache:   cache,
	}
}

// invalidate drops cached reads after a write that changes points or levels.
func (h *Handler) invalidate() {
	if h.cache != nil {
		h.cache.Flush()
	}
}

func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errdef.NewBadRequest("invalid %s %q", name, c.Param(name))
	}
	return id, nil
}

// period reads the optional "period" query parameter, falling back to the
// current month.
func (h *Handler) period(c *gin.Context) (parse.Period, error) {
	raw := c.Query("period")
	if raw == "" {
		month, year := h.engine.CurrentPeriod()
		return parse.Period{Month: month, Year: year}, nil
	}
	p, err := parse.ParsePeriod(raw)
	if err != nil {
		return parse.Period{}, errdef.NewBadRequest("%s", err)
	}
	return p, nil
}
