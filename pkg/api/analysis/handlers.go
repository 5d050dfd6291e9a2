package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"social-brand-analyzer/pkg/external"
	"social-brand-analyzer/pkg/imaging"
	"social-brand-analyzer/pkg/models"
	"social-brand-analyzer/pkg/queue"
	"social-brand-analyzer/pkg/report"
	"social-brand-analyzer/pkg/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// AnalysisService is the part of service.Service the handlers use
type AnalysisService interface {
	StartAnalysis(ctx context.Context, req service.AnalysisRequest) (string, error)
	RerunAnalysis(ctx context.Context, analysisID string) (string, error)
	GetAnalysis(ctx context.Context, analysisID string) (*models.AnalysisResult, error)
	RecentAnalyses(ctx context.Context) ([]models.AnalysisSummary, error)
	FilterResults(ctx context.Context, analysisID string, filter models.TimeFilter) (*models.FilteredResults, error)
	ExportCSV(ctx context.Context, analysisID string, filter *models.TimeFilter, w io.Writer) (int, error)
	UploadReferenceImages(ctx context.Context, analysisID, brand, model string, files []external.ReferenceUpload) ([]string, error)
	DeleteAnalysis(ctx context.Context, analysisID string) error
}

// ImageFetcher fetches remote images for the proxy endpoint
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Handler serves the analysis API
type Handler struct {
	svc    AnalysisService
	images ImageFetcher
}

// NewHandler creates the analysis handlers
func NewHandler(svc AnalysisService, images ImageFetcher) *Handler {
	return &Handler{svc: svc, images: images}
}

// StartAnalysisHandler queues a new analysis
// POST /api/analyze
func (h *Handler) StartAnalysisHandler(c *gin.Context) {
	var req service.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request format",
			"details": err.Error(),
		})
		return
	}

	analysisID, err := h.svc.StartAnalysis(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, queue.ErrQueueFull):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many analyses in progress, try again later"})
		default:
			log.Error().Err(err).Msg("failed to start analysis")
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Analysis failed: %v", err)})
		}
		return
	}

	c.JSON(http.StatusOK, StartResponse{AnalysisID: analysisID, Status: "started"})
}

// RerunAnalysisHandler starts a new analysis from a stored one's brands
// POST /api/analysis/:id/rerun
func (h *Handler) RerunAnalysisHandler(c *gin.Context) {
	analysisID, err := h.svc.RerunAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoData):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, queue.ErrQueueFull):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many analyses in progress, try again later"})
		default:
			h.writeLookupError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, StartResponse{AnalysisID: analysisID, Status: "started"})
}

// GetAnalysisHandler returns the status document of an analysis
// GET /api/analysis/:id
func (h *Handler) GetAnalysisHandler(c *gin.Context) {
	result, err := h.svc.GetAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RecentAnalysesHandler lists the newest analyses
// GET /api/recent-analyses
func (h *Handler) RecentAnalysesHandler(c *gin.Context) {
	recent, err := h.svc.RecentAnalyses(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list recent analyses")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list analyses"})
		return
	}

	c.JSON(http.StatusOK, recent)
}

// FilterResultsHandler re-slices an analysis to a time window
// POST /api/filter-results/:id
func (h *Handler) FilterResultsHandler(c *gin.Context) {
	var filter models.TimeFilter
	if err := c.ShouldBindJSON(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid time filter",
			"details": err.Error(),
		})
		return
	}

	filtered, err := h.svc.FilterResults(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.writeLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, filtered)
}

// DownloadHandler exports an analysis as CSV. An optional time_filter query
// parameter holds a JSON time filter; an unparseable one is ignored.
// GET /api/download/:id
func (h *Handler) DownloadHandler(c *gin.Context) {
	analysisID := c.Param("id")

	var filter *models.TimeFilter
	if raw := c.Query("time_filter"); raw != "" {
		var parsed models.TimeFilter
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			log.Warn().Err(err).Str("analysis_id", analysisID).Msg("error parsing time filter, proceeding without it")
		} else {
			filter = &parsed
		}
	}

	var buf bytes.Buffer
	if _, err := h.svc.ExportCSV(c.Request.Context(), analysisID, filter, &buf); err != nil {
		if errors.Is(err, service.ErrNoData) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No analysis data available"})
			return
		}
		h.writeLookupError(c, err)
		return
	}

	filename := report.Filename(analysisID)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Cache-Control", "no-cache")
	c.Header("Access-Control-Expose-Headers", "Content-Disposition")
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

// UploadReferenceImagesHandler stores up to three reference images of a model
// POST /api/upload-reference-images
func (h *Handler) UploadReferenceImagesHandler(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid multipart form",
			"details": err.Error(),
		})
		return
	}

	brand := c.PostForm("brand")
	model := c.PostForm("model")
	analysisID := c.PostForm("analysis_id")

	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one file is required"})
		return
	}
	if len(headers) > models.MaxReferenceImagesPerModel {
		headers = headers[:models.MaxReferenceImagesPerModel]
	}

	uploads, closeAll, err := openUploads(headers)
	defer closeAll()
	if err != nil {
		log.Error().Err(err).Msg("failed to open uploaded file")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded files"})
		return
	}

	paths, err := h.svc.UploadReferenceImages(c.Request.Context(), analysisID, brand, model, uploads)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidAnalysisID):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Error().Err(err).Str("brand", brand).Str("model", model).Msg("error uploading reference images")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, UploadResponse{
		Message: fmt.Sprintf("Uploaded %d reference images for %s - %s", len(paths), brand, model),
		Paths:   paths,
	})
}

func openUploads(headers []*multipart.FileHeader) ([]external.ReferenceUpload, func(), error) {
	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	uploads := make([]external.ReferenceUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
		}
		files = append(files, f)
		uploads = append(uploads, external.ReferenceUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        f,
		})
	}
	return uploads, closeAll, nil
}

// DeleteAnalysisHandler removes an analysis and its files
// DELETE /api/analysis/:id
func (h *Handler) DeleteAnalysisHandler(c *gin.Context) {
	if err := h.svc.DeleteAnalysis(c.Request.Context(), c.Param("id")); err != nil {
		h.writeLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Analysis deleted successfully"})
}

// ImageProxyHandler serves a remote image, or a placeholder when it cannot
// be fetched
// GET /api/image-proxy?url=
func (h *Handler) ImageProxyHandler(c *gin.Context) {
	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	data, contentType, err := h.images.Fetch(c.Request.Context(), url)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("image proxy error")
		c.Data(http.StatusOK, "image/svg+xml", imaging.PlaceholderSVG)
		return
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, contentType, data)
}

func (h *Handler) writeLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAnalysisID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid analysis ID"})
	case errors.Is(err, service.ErrAnalysisNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Analysis not found"})
	case errors.Is(err, service.ErrAnalysisRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "Analysis is still running"})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("analysis request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
