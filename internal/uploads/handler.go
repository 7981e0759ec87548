package uploads

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"spinevision-backend/internal/shared/server/middleware"
	"spinevision-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the uploads service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches upload routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads", h.submit)
	rg.GET("/uploads/:id", h.get)
	rg.GET("/uploads/:id/heatmap", h.heatmap)
	rg.GET("/uploads/:id/report", h.report)
	rg.DELETE("/uploads/:id", h.delete)
	rg.GET("/history", h.history)
	rg.GET("/history/statistics", h.statistics)
}

func (h *Handler) submit(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if h.Svc.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Svc.MaxUploadBytes)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "unable to read file", nil)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "unable to read file", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	upload, result, err := h.Svc.Submit(ctx, SubmitInput{
		UserID:      userID,
		DoctorName:  c.PostForm("doctorName"),
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	})
	if upload.ID != "" {
		c.Set("uploadId", upload.ID)
	}
	if err != nil {
		h.respondError(c, err, "failed to process upload")
		return
	}
	c.Set("statusTransition", "processing->done")

	respond.JSON(c, http.StatusCreated, h.view(upload, &result))
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))

	upload, result, err := h.Svc.Get(ctx, userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to fetch upload")
		return
	}
	respond.JSON(c, http.StatusOK, h.view(upload, result))
}

func (h *Handler) heatmap(c *gin.Context) {
	h.serveArtifact(c, "image/png", h.Svc.OpenHeatmap)
}

func (h *Handler) report(c *gin.Context) {
	h.serveArtifact(c, "application/pdf", h.Svc.OpenReport)
}

func (h *Handler) serveArtifact(c *gin.Context, contentType string, open func(ctx context.Context, userID, uploadID string) (io.ReadCloser, error)) {
	userID := middleware.UserIDFromContext(c)
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))

	body, err := open(ctx, userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to fetch artifact")
		return
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, ErrorCodeStorage, "failed to read artifact", nil)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

func (h *Handler) delete(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))

	if err := h.Svc.Delete(ctx, userID, c.Param("id")); err != nil {
		h.respondError(c, err, "failed to delete upload")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) history(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))

	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(c, "pageSize", 20)
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	status := c.Query("status")

	items, total, err := h.Svc.List(ctx, userID, status, pageSize, (page-1)*pageSize)
	if err != nil {
		h.respondError(c, err, "failed to list uploads")
		return
	}

	resp := make([]gin.H, 0, len(items))
	for _, item := range items {
		entry := gin.H{
			"uploadId":  item.Upload.ID,
			"fileName":  item.Upload.FileName,
			"fileType":  item.Upload.FileType,
			"sizeBytes": item.Upload.SizeBytes,
			"status":    item.Upload.Status,
			"createdAt": item.Upload.CreatedAt,
		}
		if item.Result != nil {
			entry["classification"] = item.Result.Classification
			entry["confidenceScore"] = item.Result.ConfidenceScore
		}
		resp = append(resp, entry)
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"items":    resp,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

func (h *Handler) statistics(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))

	stats, err := h.Svc.Statistics(ctx, userID)
	if err != nil {
		h.respondError(c, err, "failed to compute statistics")
		return
	}
	respond.JSON(c, http.StatusOK, stats)
}

func (h *Handler) view(upload Upload, result *Result) gin.H {
	resp := gin.H{
		"uploadId":  upload.ID,
		"fileName":  upload.FileName,
		"fileType":  upload.FileType,
		"sizeBytes": upload.SizeBytes,
		"status":    upload.Status,
		"createdAt": upload.CreatedAt,
	}
	if result != nil {
		r := gin.H{
			"id":              result.ID,
			"classification":  result.Classification,
			"confidenceScore": result.ConfidenceScore,
			"findings":        result.Findings,
			"modelVersion":    result.ModelVersion,
			"processedAt":     result.ProcessedAt,
		}
		if result.HeatmapKey != "" {
			r["heatmapUrl"] = h.Svc.Store.PublicURL(result.HeatmapKey)
		}
		if result.ReportKey != "" {
			r["reportUrl"] = h.Svc.Store.PublicURL(result.ReportKey)
		}
		resp["result"] = r
	}
	return resp
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrValidation):
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "upload not found", nil)
	case errors.Is(err, ErrAnalysis):
		respond.Error(c, http.StatusInternalServerError, ErrorCodeAnalysis, "image could not be analyzed", nil)
	case errors.Is(err, ErrRender):
		respond.Error(c, http.StatusInternalServerError, ErrorCodeRender, "report generation failed", nil)
	case errors.Is(err, ErrStorage):
		respond.Error(c, http.StatusInternalServerError, ErrorCodeStorage, "storage failure", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}

func queryInt(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}
