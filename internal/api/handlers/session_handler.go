package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/planora/forecast-recon/internal/domain"
	"github.com/planora/forecast-recon/internal/service"
	"github.com/planora/forecast-recon/internal/session"
	"github.com/planora/forecast-recon/internal/tabular"
)

type SessionHandler struct {
	reconService *service.ReconService
	uploadDir    string
}

func NewSessionHandler(reconService *service.ReconService, uploadDir string) *SessionHandler {
	return &SessionHandler{reconService: reconService, uploadDir: uploadDir}
}

// Upload accepts one or more granular record files and opens a session.
func (h *SessionHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form data"})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	uploadedFiles := make([]*domain.UploadedFile, 0, len(files))
	for _, file := range files {
		filePath := filepath.Join(h.uploadDir, filepath.Base(file.Filename))
		if err := c.SaveUploadedFile(file, filePath); err != nil {
			log.Error().Err(err).Str("filename", file.Filename).Msg("failed to save uploaded file")
			continue
		}

		uploadedFiles = append(uploadedFiles, &domain.UploadedFile{
			Filename: file.Filename,
			Path:     filePath,
			Size:     file.Size,
		})
	}

	if len(uploadedFiles) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no valid files to process"})
		return
	}

	sess, err := h.reconService.CreateSession(c.Request.Context(), uploadedFiles)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id":  sess.ID,
		"rows":        len(sess.Records),
		"diagnostics": sess.Diagnostics,
	})
}

type pivotRequest struct {
	Granularity string `json:"granularity" form:"granularity"`
	GroupBySite *bool  `json:"group_by_site" form:"group_by_site"`
}

// GeneratePivot builds the editable aggregate table for a session.
func (h *SessionHandler) GeneratePivot(c *gin.Context) {
	var req pivotRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	granularity, ok := domain.ParseGranularity(req.Granularity)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "granularity must be one of day, week, month"})
		return
	}

	groupBySite := true
	if req.GroupBySite != nil {
		groupBySite = *req.GroupBySite
	}

	table, err := h.reconService.GeneratePivot(c.Request.Context(), c.Param("id"), granularity, groupBySite)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"granularity":   string(table.Granularity),
		"group_by_site": table.GroupBySite,
		"rows":          len(table.Keys),
		"buckets":       len(table.Buckets),
	})
}

// DownloadPivot streams the aggregate grid for editing, as XLSX (default) or
// CSV.
func (h *SessionHandler) DownloadPivot(c *gin.Context) {
	table, err := h.reconService.PivotTable(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	switch strings.ToLower(c.DefaultQuery("format", "xlsx")) {
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="pivot_table.csv"`)
		if err := tabular.WriteAggregate(c.Writer, table); err != nil {
			log.Error().Err(err).Msg("failed to write pivot csv")
		}
	default:
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", `attachment; filename="pivot_table.xlsx"`)
		if err := tabular.WriteAggregateXLSX(c.Writer, table); err != nil {
			log.Error().Err(err).Msg("failed to write pivot xlsx")
		}
	}
}

// UploadEditedPivot accepts the edited aggregate table and runs the reverse
// pass. New-combination warnings are part of the response so the caller sees
// them before downloading the output.
func (h *SessionHandler) UploadEditedPivot(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open uploaded file"})
		return
	}
	defer src.Close()

	result, err := h.reconService.ApplyEditedPivot(c.Request.Context(), c.Param("id"), src, file.Filename)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"unchanged":        result.Unchanged,
		"changed":          result.Changed,
		"new":              result.New,
		"rows":             len(result.Records),
		"new_combinations": newCombinationPayload(result.NewCombinations),
		"diagnostics":      result.Diagnostics,
	})
}

// DownloadOutput streams the reconciled records as headerless CSV in the
// fixed external column order.
func (h *SessionHandler) DownloadOutput(c *gin.Context) {
	records, err := h.reconService.Output(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="final_output.csv"`)
	if err := tabular.WriteGranular(c.Writer, records); err != nil {
		log.Error().Err(err).Msg("failed to write final output csv")
	}
}

// GetDiagnostics returns the accumulated row-level issues for a session.
func (h *SessionHandler) GetDiagnostics(c *gin.Context) {
	sess, err := h.reconService.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"diagnostics": sess.Diagnostics,
		"total":       sess.Diagnostics.Total(),
	})
}

func newCombinationPayload(combos []domain.NewCombination) []gin.H {
	payload := make([]gin.H, 0, len(combos))
	for _, nc := range combos {
		item := gin.H{
			"product": nc.Key.Product,
			"bucket":  nc.Bucket.Label,
			"qty":     nc.Qty,
		}
		if !nc.Key.Site.IsZero() {
			item["site"] = nc.Key.Site.String()
		}
		payload = append(payload, item)
	}
	return payload
}

func respondError(c *gin.Context, err error) {
	var (
		schemaErr *domain.SchemaError
		bucketErr *domain.AmbiguousBucketFormatError
	)

	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, service.ErrPivotMissing), errors.Is(err, service.ErrNoResult):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &schemaErr), errors.As(err, &bucketErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
