package portal

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/internal/analysis"
	"carbon-scribe/restoration-portal/internal/notifications/websocket"
	"carbon-scribe/restoration-portal/internal/projects"
	"carbon-scribe/restoration-portal/internal/tokenization"
	"carbon-scribe/restoration-portal/pkg/workflows"
)

// Handler serves the project lifecycle endpoints.
type Handler struct {
	service *Service
	ws      *websocket.Manager
	logger  *zap.Logger
}

// NewHandler creates a handler. ws may be nil, in which case /ws is not
// registered.
func NewHandler(service *Service, ws *websocket.Manager, logger *zap.Logger) *Handler {
	return &Handler{service: service, ws: ws, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	p := rg.Group("/projects")
	{
		p.POST("", h.Create)
		p.GET("", h.List)
		p.GET("/:id", h.Get)
		p.POST("/:id/analysis", h.Analyze)
		p.POST("/:id/finalize", h.Finalize)
	}
	if h.ws != nil {
		rg.GET("/ws", h.Stream)
	}
}

// RegisterHealth mounts the health check on the root router.
func (h *Handler) RegisterHealth(router gin.IRoutes) {
	router.GET("/health", h.Health)
}

func (h *Handler) Create(c *gin.Context) {
	var req projects.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) List(c *gin.Context) {
	list := h.service.List()
	if status := c.Query("status"); status != "" {
		filtered := list[:0]
		for _, p := range list {
			if p.Status == status {
				filtered = append(filtered, p)
			}
		}
		list = filtered
	}
	c.JSON(http.StatusOK, gin.H{"projects": list, "total": len(list)})
}

func (h *Handler) Get(c *gin.Context) {
	project, err := h.service.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) Analyze(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Analyze(id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": workflows.StatusAnalyzing})
}

func (h *Handler) Finalize(c *gin.Context) {
	res, err := h.service.Finalize(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Stream(c *gin.Context) {
	if _, err := h.ws.HandleConnection(c.Writer, c.Request); err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
	}
}

func (h *Handler) Health(c *gin.Context) {
	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"projects":  h.service.Count(),
	}
	if h.ws != nil {
		body["connections"] = h.ws.GetConnectionCount()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, projects.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, projects.ErrInvalidSubmission):
		status = http.StatusBadRequest
	case errors.Is(err, analysis.ErrAnalysisNotAllowed),
		errors.Is(err, tokenization.ErrAlreadyFinalized):
		status = http.StatusConflict
	case errors.Is(err, tokenization.ErrNotAnalyzed):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("project_id", c.Param("id")),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
