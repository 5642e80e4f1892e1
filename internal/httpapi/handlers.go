package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jobmate/autoapply-service/internal/application"
	"jobmate/autoapply-service/internal/profile"
)

func badJSON(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
}

// intQuery reads an optional integer query parameter.
func intQuery(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be an integer"})
		return 0, false
	}
	return n, true
}

func page(c *gin.Context) (limit, offset int, ok bool) {
	if limit, ok = intQuery(c, "limit"); !ok {
		return 0, 0, false
	}
	offset, ok = intQuery(c, "offset")
	return limit, offset, ok
}

// ─── Users & CVs ─────────────────────────────────────────────────────────────

func (h *Handler) createUser(c *gin.Context) {
	var req profile.UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}
	u, err := h.profiles.CreateUser(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) me(c *gin.Context) {
	u, err := h.profiles.GetUser(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) createCV(c *gin.Context) {
	var req profile.CVRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}
	cv, err := h.profiles.CreateCV(c.Request.Context(), userID(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cv)
}

func (h *Handler) listCVs(c *gin.Context) {
	cvs, err := h.profiles.ListCVs(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cvs)
}

func (h *Handler) setDefaultCV(c *gin.Context) {
	if err := h.profiles.SetDefaultCV(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"default_cv_id": c.Param("id")})
}

// ─── Filters & search ────────────────────────────────────────────────────────

func (h *Handler) createFilter(c *gin.Context) {
	var req profile.FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}
	f, err := h.profiles.CreateFilter(c.Request.Context(), userID(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (h *Handler) listFilters(c *gin.Context) {
	filters, err := h.profiles.ListFilters(c.Request.Context(), userID(c), c.Query("active") == "true")
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, filters)
}

func (h *Handler) startSearch(c *gin.Context) {
	if err := h.search.StartSearch(c.Request.Context(), userID(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "search started"})
}

func (h *Handler) stopSearch(c *gin.Context) {
	n, err := h.search.StopSearch(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "search stopped", "filters_deactivated": n})
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

func (h *Handler) listJobs(c *gin.Context) {
	limit, offset, ok := page(c)
	if !ok {
		return
	}
	jobs, err := h.profiles.ListPostings(c.Request.Context(), c.Query("portal"), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) getJob(c *gin.Context) {
	p, err := h.profiles.GetPosting(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) analyzeJob(c *gin.Context) {
	a, err := h.apps.Analyze(c.Request.Context(), userID(c), c.Param("id"), c.Query("cv_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) applyToJob(c *gin.Context) {
	var body struct {
		CVID          string `json:"cv_id"`
		CustomMessage string `json:"custom_message"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badJSON(c, err)
			return
		}
	}
	app, err := h.apps.ApplyToJob(c.Request.Context(), application.ApplyRequest{
		UserID:        userID(c),
		JobID:         c.Param("id"),
		CVID:          body.CVID,
		CustomMessage: body.CustomMessage,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, app)
}

// ─── Applications ────────────────────────────────────────────────────────────

func (h *Handler) listApplications(c *gin.Context) {
	limit, offset, ok := page(c)
	if !ok {
		return
	}
	apps, err := h.apps.List(c.Request.Context(), userID(c), c.Query("status"), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, apps)
}

func (h *Handler) getApplication(c *gin.Context) {
	app, err := h.apps.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *Handler) moveApplication(c *gin.Context) {
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must contain status"})
		return
	}
	app, err := h.apps.Advance(c.Request.Context(), userID(c), c.Param("id"), body.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *Handler) addNote(c *gin.Context) {
	var body struct {
		Note string `json:"note"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badJSON(c, err)
		return
	}
	app, err := h.apps.AddNote(c.Request.Context(), userID(c), c.Param("id"), body.Note)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *Handler) stats(c *gin.Context) {
	days, ok := intQuery(c, "days")
	if !ok {
		return
	}
	s, err := h.apps.Stats(c.Request.Context(), userID(c), days)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ─── AI configuration ────────────────────────────────────────────────────────

func (h *Handler) saveAIConfig(c *gin.Context) {
	var req profile.AIConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}
	cfg, err := h.profiles.SaveAIConfig(c.Request.Context(), userID(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	cfg.APIKey = ""
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) getAIConfig(c *gin.Context) {
	cfg, err := h.profiles.GetAIConfig(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
