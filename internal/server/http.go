// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tejzpr/clipgraph/internal/database"
	"github.com/tejzpr/clipgraph/internal/graph"
	"github.com/tejzpr/clipgraph/internal/importer"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// defaultGraphAlias may stand in for the caller's default graph id in paths
const defaultGraphAlias = "default"

// HTTPServer exposes the graph engine as a REST API
type HTTPServer struct {
	svc    *graph.Service
	db     *gorm.DB
	logger *zap.Logger
	router *gin.Engine
}

// NewHTTPServer builds the router. Requests act for the X-Owner-ID header, or defaultOwner.
func NewHTTPServer(svc *graph.Service, db *gorm.DB, defaultOwner string, log *zap.Logger) *HTTPServer {
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	h := &HTTPServer{
		svc:    svc,
		db:     db,
		logger: log,
		router: router,
	}
	h.registerRoutes(defaultOwner)
	return h
}

// Handler returns the HTTP handler
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

func (h *HTTPServer) registerRoutes(defaultOwner string) {
	h.router.GET("/health", h.health)

	api := h.router.Group("/api/v1", ownerMiddleware(defaultOwner))
	{
		api.GET("/graphs", h.listGraphs)
		api.POST("/graphs", h.createGraph)
		api.PATCH("/graphs/:id", h.renameGraph)
		api.DELETE("/graphs/:id", h.deleteGraph)
		api.GET("/graphs/:id/data", h.graphData)
		api.GET("/graphs/:id/stats", h.graphStats)

		api.POST("/items", h.addItem)
		api.DELETE("/items/:id", h.deleteItem)
		api.GET("/items/:id/related", h.relatedItems)

		api.POST("/recalculate", h.recalculate)
		api.GET("/analyze", h.analyze)
		api.POST("/import", h.importItems)
	}
}

// writeError maps service errors to status codes
func (h *HTTPServer) writeError(c *gin.Context, err error) {
	switch {
	case graph.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, graph.ErrGraphNotFound), errors.Is(err, graph.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, graph.ErrCannotDeleteDefault):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *HTTPServer) health(c *gin.Context) {
	if err := database.Ping(h.db); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPServer) listGraphs(c *gin.Context) {
	graphs, err := h.svc.ListGraphs(c.Request.Context(), ownerFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"graphs": graphs})
}

func (h *HTTPServer) createGraph(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	g, err := h.svc.CreateGraph(c.Request.Context(), ownerFrom(c), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *HTTPServer) renameGraph(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.svc.GetGraph(ctx, ownerFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	g, err := h.svc.RenameGraph(ctx, c.Param("id"), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *HTTPServer) deleteGraph(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := h.svc.GetGraph(ctx, ownerFrom(c), id); errors.Is(err, graph.ErrGraphNotFound) {
		c.JSON(http.StatusOK, gin.H{"deleted": false})
		return
	} else if err != nil {
		h.writeError(c, err)
		return
	}

	deleted, err := h.svc.DeleteGraph(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *HTTPServer) graphData(c *gin.Context) {
	id := c.Param("id")
	if id == defaultGraphAlias {
		id = ""
	}

	data, err := h.svc.ListGraphData(c.Request.Context(), ownerFrom(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (h *HTTPServer) graphStats(c *gin.Context) {
	id := c.Param("id")
	if id == defaultGraphAlias {
		id = ""
	}

	stats, err := h.svc.Stats(c.Request.Context(), ownerFrom(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *HTTPServer) addItem(c *gin.Context) {
	var req struct {
		Text        string   `json:"text"`
		SourceDocID string   `json:"sourceDocId"`
		SourceLabel string   `json:"sourceLabel"`
		GraphID     string   `json:"graphId"`
		Threshold   *float64 `json:"threshold"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.AddItem(c.Request.Context(), graph.AddItemRequest{
		OwnerID:     ownerFrom(c),
		SourceDocID: req.SourceDocID,
		Text:        req.Text,
		SourceLabel: req.SourceLabel,
		GraphID:     req.GraphID,
		Threshold:   req.Threshold,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (h *HTTPServer) deleteItem(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.svc.GetItem(ctx, ownerFrom(c), c.Param("id")); err != nil {
		if errors.Is(err, graph.ErrItemNotFound) {
			c.JSON(http.StatusOK, gin.H{"deleted": false})
			return
		}
		h.writeError(c, err)
		return
	}

	deleted, err := h.svc.DeleteItem(ctx, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *HTTPServer) relatedItems(c *gin.Context) {
	depth, err := strconv.Atoi(c.DefaultQuery("depth", "2"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "depth must be an integer"})
		return
	}
	minWeight, err := strconv.ParseFloat(c.DefaultQuery("minWeight", "0"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minWeight must be a number"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.svc.GetItem(ctx, ownerFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}

	n, err := h.svc.Related(ctx, c.Param("id"), depth, minWeight)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *HTTPServer) recalculate(c *gin.Context) {
	var req struct {
		GraphID   string   `json:"graphId"`
		Threshold *float64 `json:"threshold"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.GraphID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "graphId is required"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.svc.GetGraph(ctx, ownerFrom(c), req.GraphID); err != nil {
		h.writeError(c, err)
		return
	}
	result, err := h.svc.Recalculate(ctx, req.GraphID, req.Threshold)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *HTTPServer) analyze(c *gin.Context) {
	var threshold *float64
	if raw := c.Query("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be a number"})
			return
		}
		threshold = &v
	}

	report, err := h.svc.Analyze(c.Request.Context(), ownerFrom(c), c.Query("graphId"), threshold)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *HTTPServer) importItems(c *gin.Context) {
	var req struct {
		GraphID     string   `json:"graphId"`
		SourceDocID string   `json:"sourceDocId"`
		SourceLabel string   `json:"sourceLabel"`
		Texts       []string `json:"texts"`
		Threshold   *float64 `json:"threshold"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.ImportGenerated(c.Request.Context(), graph.ImportRequest{
		OwnerID:     ownerFrom(c),
		GraphID:     req.GraphID,
		SourceDocID: req.SourceDocID,
		SourceLabel: importer.SanitizeLabel(req.SourceLabel),
		Texts:       req.Texts,
		Threshold:   req.Threshold,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
