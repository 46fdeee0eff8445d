package reports

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/internal/reports/export"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)

// Handler handles HTTP requests for reporting operations
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new reports handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers reporting routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/dashboard", h.getDashboard)
	router.GET("/wallet", h.getWallet)
	router.GET("/wallet/transactions", h.getTransactions)
	router.GET("/projects/:id/certificate.pdf", h.getCertificate)

	reports := router.Group("/reports")
	{
		reports.GET("/projects.csv", h.exportCSV)
		reports.GET("/projects.xlsx", h.exportExcel)
	}
}

// getDashboard handles GET /api/v1/dashboard
func (h *Handler) getDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Dashboard())
}

// getWallet handles GET /api/v1/wallet
func (h *Handler) getWallet(c *gin.Context) {
	view, err := h.service.Wallet(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to build wallet view", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

// getTransactions handles GET /api/v1/wallet/transactions
func (h *Handler) getTransactions(c *gin.Context) {
	limit := h.getIntParam(c, "limit", RecentTransactionsLimit)
	if limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be positive"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": h.service.wallet.RecentCredits(limit)})
}

// getCertificate handles GET /api/v1/projects/:id/certificate.pdf
func (h *Handler) getCertificate(c *gin.Context) {
	id := c.Param("id")
	project, ok := h.service.projects.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if project.Analysis == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "project has not been analyzed"})
		return
	}

	opts := export.DefaultCertificateOptions()
	if w, err := h.service.wallet.Wallet(c.Request.Context()); err == nil {
		opts.WalletAddress = w.Address
	}

	var buf bytes.Buffer
	if err := export.WriteCertificate(&buf, project, opts); err != nil {
		h.logger.Error("Failed to render certificate", zap.String("project_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.attachment(c, fmt.Sprintf("certificate-%s.pdf", id), contentTypePDF, buf.Bytes())
}

// exportCSV handles GET /api/v1/reports/projects.csv
func (h *Handler) exportCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := export.WriteProjectsCSV(&buf, h.service.projects.List()); err != nil {
		h.logger.Error("Failed to export CSV", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.attachment(c, h.exportName("csv"), contentTypeCSV, buf.Bytes())
}

// exportExcel handles GET /api/v1/reports/projects.xlsx
func (h *Handler) exportExcel(c *gin.Context) {
	var buf bytes.Buffer
	if err := export.WriteProjectsExcel(&buf, h.service.projects.List()); err != nil {
		h.logger.Error("Failed to export workbook", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.attachment(c, h.exportName("xlsx"), contentTypeXLSX, buf.Bytes())
}

func (h *Handler) exportName(ext string) string {
	return fmt.Sprintf("projects-%s.%s", time.Now().UTC().Format("20060102"), ext)
}

func (h *Handler) attachment(c *gin.Context, filename, contentType string, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, body)
}

func (h *Handler) getIntParam(c *gin.Context, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
		return -1
	}
	return defaultVal
}
