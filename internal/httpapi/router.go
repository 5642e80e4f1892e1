// Package httpapi exposes the service over HTTP with gin.
//
// User-scoped routes expect an x-user-id header forwarded by the Gateway.
//
// Routes:
//
//	GET  /health                      → liveness + dependency checks
//	GET  /metrics                     → Prometheus scrape endpoint
//	POST /users                       → create a user profile
//	GET  /me                          → caller's profile
//	POST /cvs, GET /cvs               → upload / list CVs
//	POST /cvs/{id}/default            → make a CV the default one
//	POST /filters, GET /filters       → create / list search filters
//	POST /search/start|stop           → trigger a pass / deactivate all filters
//	GET  /jobs, GET /jobs/{id}        → browse scraped postings
//	GET  /jobs/{id}/analysis          → compatibility of a CV with a posting
//	POST /jobs/{id}/apply             → create and enqueue an application
//	GET  /applications[/{id}]         → list / fetch applications
//	POST /applications/{id}/move      → advance along the status graph
//	POST /applications/{id}/note      → add/update free-text note
//	GET  /stats                       → activity summary
//	PUT  /ai-config, GET /ai-config   → AI personalization settings
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobmate/autoapply-service/internal/application"
	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/profile"
	"jobmate/autoapply-service/internal/store"
)

// UserHeader carries the authenticated user id.
const UserHeader = "x-user-id"

const userKey = "userID"

// Searcher starts and stops a user's periodic search.
type Searcher interface {
	StartSearch(ctx context.Context, userID string) error
	StopSearch(ctx context.Context, userID string) (int, error)
}

// Check probes one dependency for the health endpoint.
type Check func(ctx context.Context) error

// Options configures the router.
type Options struct {
	Service     string
	Version     string
	MetricsPath string // empty disables /metrics
	Checks      map[string]Check
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	profiles *profile.Service
	apps     *application.Service
	search   Searcher
	opts     Options
	log      logger.Logger
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(profiles *profile.Service, apps *application.Service, search Searcher, opts Options, log logger.Logger) *gin.Engine {
	if log == nil {
		log = logger.NewNoOp()
	}
	h := &Handler{profiles: profiles, apps: apps, search: search, opts: opts, log: log.With(logger.Fields{"component": "http"})}

	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())

	r.GET("/health", h.health)
	if opts.MetricsPath != "" {
		r.GET(opts.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
	r.POST("/users", h.createUser)

	u := r.Group("/", requireUser())
	u.GET("/me", h.me)

	u.POST("/cvs", h.createCV)
	u.GET("/cvs", h.listCVs)
	u.POST("/cvs/:id/default", h.setDefaultCV)

	u.POST("/filters", h.createFilter)
	u.GET("/filters", h.listFilters)
	u.POST("/search/start", h.startSearch)
	u.POST("/search/stop", h.stopSearch)

	u.GET("/jobs", h.listJobs)
	u.GET("/jobs/:id", h.getJob)
	u.GET("/jobs/:id/analysis", h.analyzeJob)
	u.POST("/jobs/:id/apply", h.applyToJob)

	u.GET("/applications", h.listApplications)
	u.GET("/applications/:id", h.getApplication)
	u.POST("/applications/:id/move", h.moveApplication)
	u.POST("/applications/:id/note", h.addNote)
	u.GET("/stats", h.stats)

	u.PUT("/ai-config", h.saveAIConfig)
	u.GET("/ai-config", h.getAIConfig)
	return r
}

// ─── Middleware ──────────────────────────────────────────────────────────────

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing x-user-id header"})
			return
		}
		c.Set(userKey, userID)
		c.Next()
	}
}

func userID(c *gin.Context) string { return c.GetString(userKey) }

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := logger.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			h.log.Warn("request failed", fields)
			return
		}
		h.log.Debug("request", fields)
	}
}

// ─── Health ──────────────────────────────────────────────────────────────────

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(h.opts.Checks))
	for name, check := range h.opts.Checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	c.JSON(code, gin.H{
		"status":       status,
		"service":      h.opts.Service,
		"version":      h.opts.Version,
		"dependencies": deps,
	})
}

// ─── Error mapping ───────────────────────────────────────────────────────────

// writeError maps domain errors to HTTP status codes. Anything unrecognised
// is logged and reported as a 500 without its details.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		ve  *application.ValidationError
		pre *application.PreconditionError
		dup *application.DuplicateError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Msg})
	case errors.As(err, &dup):
		c.JSON(http.StatusConflict, gin.H{"error": dup.Error(), "application_id": dup.ApplicationID})
	case errors.As(err, &pre):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": pre.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrStaleStatus), errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error("request error", logger.Fields{"path": c.FullPath(), "error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
