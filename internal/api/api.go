package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/api/handlers"
	"github.com/andresuchdata/autopo-py/forecast/internal/api/middleware"
	"github.com/andresuchdata/autopo-py/forecast/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Services struct {
	ForecastService       *service.ForecastService
	RecommendationService *service.RecommendationService
}

type Options struct {
	AllowedOrigins []string
	UploadDir      string
	MaxUploadBytes int64
}

func NewRouter(services *Services, opts Options) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(opts.AllowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(opts.AllowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil {
		if services.ForecastService != nil {
			forecastHandler := handlers.NewForecastHandler(services.ForecastService, opts.UploadDir)
			apiGroup.POST("/forecast", middleware.BodyLimit(opts.MaxUploadBytes), forecastHandler.Forecast)
		}

		if services.RecommendationService != nil {
			recommendationHandler := handlers.NewRecommendationHandler(services.RecommendationService)
			recGroup := apiGroup.Group("/recommendations")
			{
				recGroup.GET("", recommendationHandler.List)
				recGroup.GET("/export", recommendationHandler.Export)
			}
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
