package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"attendance-backend/config"
	"attendance-backend/internal/engine"
	"attendance-backend/internal/mw"
	"attendance-backend/internal/store"
)

// NewRouter creates and configures a new Gin router. cache serves the ranking
// and is shared with background writers; nil creates a private one.
func NewRouter(e *engine.Engine, s store.Store, cfg config.ServerConfig, webpushOptions *webpush.Options, cache *mw.ResponseCache, logger *slog.Logger) *gin.Engine {
	registerValidators()

	r := gin.New()

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	corsConfig.AddAllowHeaders("authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("x-correlation-id")

	r.Use(gin.Recovery(), cors.New(corsConfig), mw.CorrelationID(), mw.RequestLogger(logger), mw.ErrorHandler())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up"})
	})

	if cache == nil {
		cache = mw.NewResponseCache(time.Duration(cfg.CacheTTLSeconds) * time.Second)
	}
	handler := NewHandler(e, s, webpushOptions, cache)

	api := r.Group("/api")
	api.Use(mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst))
	{
		api.POST("/submissions", handler.SubmitLocation)
		api.GET("/ranking", cache.Middleware(), handler.GetRanking)
		api.GET("/participants/:id/points", handler.GetParticipantPoints)
		api.POST("/gatherings/:id/registrations", handler.Register)

		api.GET("/participants/:id/subscription", handler.GetSubscription)
		api.PUT("/participants/:id/subscription", handler.PutSubscription)
		api.DELETE("/participants/:id/subscription", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	admin := api.Group("/admin")
	admin.Use(mw.AdminToken(cfg.AdminToken))
	{
		admin.POST("/points", handler.AddPoints)
		admin.POST("/escalations", handler.RunEscalation)
		admin.POST("/gatherings/:id/no-shows", handler.PenalizeNoShows)
	}

	return r
}
