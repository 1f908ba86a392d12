package api

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"marktwatch/server/internal/database"
	"marktwatch/server/internal/reconciler"
	"marktwatch/server/internal/valuation"
)

type Handler struct {
	store      *database.Store
	engine     *valuation.Engine
	cache      *valuation.Cache
	reconciler *reconciler.Reconciler
	window     time.Duration
	logger     *logrus.Logger
}

type ReconcileRequest struct {
	Query string `json:"query" binding:"required"`
}

func NewHandler(store *database.Store, engine *valuation.Engine, cache *valuation.Cache, rec *reconciler.Reconciler, window time.Duration, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		store:      store,
		engine:     engine,
		cache:      cache,
		reconciler: rec,
		window:     window,
		logger:     logger,
	}
}

// GetListings returns every listing last seen within the valuation window,
// or since the given RFC3339 timestamp.
func (h *Handler) GetListings(c *gin.Context) {
	since := time.Now().UTC().Add(-h.window)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = parsed
	}

	listings, err := h.store.QueryWindow(since)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get listings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get listings"})
		return
	}

	c.JSON(http.StatusOK, listings)
}

// GetValuations returns the cached per-product valuation report, computing
// it on the spot when nothing has been cached yet.
func (h *Handler) GetValuations(c *gin.Context) {
	if h.cache.IsEmpty() {
		now := time.Now().UTC()
		records, err := h.store.QueryWindow(now.Add(-h.window))
		if err != nil {
			h.logger.WithError(err).Error("Failed to load listings for valuation")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute valuations"})
			return
		}
		h.cache.Set(h.engine.Analyze(records, now), now)
	}

	results, updatedAt := h.cache.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"updated_at": updatedAt,
		"products":   results,
	})
}

// GetRecentSales returns the most recently disappeared listings.
func (h *Handler) GetRecentSales(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	sales, err := h.store.GetRecentSales(limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get recent sales")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get recent sales"})
		return
	}

	c.JSON(http.StatusOK, sales)
}

// TriggerReconcile runs one reconciliation for the requested search query
// and reports the newly-sold ids.
func (h *Handler) TriggerReconcile(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	result, err := h.reconciler.Run(c.Request.Context(), req.Query)
	if err != nil {
		h.logger.WithError(err).WithField("query", req.Query).Error("Manual reconciliation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Reconciliation failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}
