package dashboard

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zulandar/meetbot/internal/store"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/healthz", handleHealth(opts))
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	api.GET("/sessions", handleSessionList(opts))
	api.GET("/sessions/:id", handleSessionDetail(opts))
	api.GET("/sessions/:id/transcript", handleTranscript(opts))
	api.GET("/events", handleSSE(opts.Live, defaultSSEInterval))
}

func handleHealth(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		live := 0
		if opts.Live != nil {
			live = len(opts.Live.Active())
		}
		counts, err := opts.Records.CountByStatus(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "live_sessions": live, "records": counts})
	}
}

func handleSessionList(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 || limit > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		rows, err := SessionList(c.Request.Context(), opts.Records, opts.Live, store.ListOptions{
			Status: c.Query("status"),
			Limit:  limit,
		})
		if err != nil {
			opts.Log.Error().Err(err).Msg("list sessions")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list sessions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": rows})
	}
}

func handleSessionDetail(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		row, err := SessionDetail(c.Request.Context(), opts.Records, opts.Live, c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		if err != nil {
			opts.Log.Error().Err(err).Str("meeting_id", c.Param("id")).Msg("get session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load session"})
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

// handleTranscript returns the last persisted transcript as plain text.
func handleTranscript(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := opts.Records.Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.String(http.StatusNotFound, "meeting not found\n")
			return
		}
		if err != nil {
			opts.Log.Error().Err(err).Str("meeting_id", c.Param("id")).Msg("get transcript")
			c.String(http.StatusInternalServerError, "could not load transcript\n")
			return
		}
		c.Header("X-Meeting-Status", m.Status)
		c.String(http.StatusOK, m.Transcript)
	}
}
