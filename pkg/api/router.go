package api

import (
	"fmt"
	"net/http"
	"time"

	"social-brand-analyzer/pkg/api/analysis"
	"social-brand-analyzer/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func() error

// WorkerMonitor exposes worker pool counters for the health endpoint
type WorkerMonitor interface {
	GetStats() (processed int64, errors int64)
	GetErrors() []error
	Pending() int
}

func InitRouter(config *utils.Config, handler *analysis.Handler, dbHealth HealthCheck, workers WorkerMonitor) *gin.Engine {
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware(config))
	r.MaxMultipartMemory = 32 << 20

	r.GET("/health", func(c *gin.Context) {
		resp := analysis.HealthResponse{
			Status:    "ok",
			Service:   "social-brand-analyzer",
			Timestamp: time.Now().UTC(),
			Workers:   workerHealth(workers),
		}

		if dbHealth != nil {
			resp.Database = "ok"
			if err := dbHealth(); err != nil {
				log.Warn().Err(err).Msg("database health check failed")
				resp.Status = "degraded"
				resp.Database = "unavailable"
				c.JSON(http.StatusServiceUnavailable, resp)
				return
			}
		}

		c.JSON(http.StatusOK, resp)
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/recent-analyses", handler.RecentAnalysesHandler)
		apiGroup.POST("/analyze", handler.StartAnalysisHandler)
		apiGroup.GET("/analysis/:id", handler.GetAnalysisHandler)
		apiGroup.DELETE("/analysis/:id", handler.DeleteAnalysisHandler)
		apiGroup.POST("/analysis/:id/rerun", handler.RerunAnalysisHandler)
		apiGroup.POST("/filter-results/:id", handler.FilterResultsHandler)
		apiGroup.GET("/download/:id", handler.DownloadHandler)
		apiGroup.POST("/upload-reference-images", handler.UploadReferenceImagesHandler)
		apiGroup.GET("/image-proxy", handler.ImageProxyHandler)
	}

	// 404 handler
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	return r
}

func workerHealth(workers WorkerMonitor) *analysis.WorkerHealth {
	if workers == nil {
		return nil
	}

	processed, failed := workers.GetStats()
	health := &analysis.WorkerHealth{
		Pending:   workers.Pending(),
		Processed: processed,
		Failed:    failed,
	}
	if errs := workers.GetErrors(); len(errs) > 0 {
		health.LastError = errs[len(errs)-1].Error()
	}
	return health
}

// LoggingMiddleware provides request logging
func LoggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s \"%s\" \"%s\" %s\n",
			param.TimeStamp.Format("2006-01-02 15:04:05"),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
			param.ClientIP,
		)
	})
}

// CORSMiddleware allows the local frontend and FRONTEND_URL. Development
// mode allows every origin.
func CORSMiddleware(config *utils.Config) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}

	if config.IsDevelopment() {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = []string{"http://localhost:3000"}
		if config.FrontendURL != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, config.FrontendURL)
		}
	}

	log.Info().Strs("origins", cfg.AllowOrigins).Bool("all_origins", cfg.AllowAllOrigins).Msg("CORS configured")
	return cors.New(cfg)
}
