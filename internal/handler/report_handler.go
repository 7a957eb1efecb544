package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vial-compliance-api/internal/dto"
	"github.com/noah-isme/vial-compliance-api/internal/middleware"
	"github.com/noah-isme/vial-compliance-api/internal/service"
	appErrors "github.com/noah-isme/vial-compliance-api/pkg/errors"
	"github.com/noah-isme/vial-compliance-api/pkg/response"
)

type complianceReporter interface {
	Report(ctx context.Context, horizonDays int, asOf time.Time) (*dto.ComplianceReport, bool, error)
	DefaultHorizon() int
}

type reportExporter interface {
	Export(ctx context.Context, req dto.ReportExportRequest, actor service.Actor) (*dto.ReportExportResponse, error)
	ResolveDownload(token string) (*service.ExportDownload, error)
}

// ReportHandler exposes the compliance report and its exports.
type ReportHandler struct {
	reports complianceReporter
	exports reportExporter
}

// NewReportHandler constructs handler.
func NewReportHandler(reports complianceReporter, exports reportExporter) *ReportHandler {
	return &ReportHandler{reports: reports, exports: exports}
}

// Compliance godoc
// @Summary Expiring or expired certifications
// @Tags Reports
// @Produce json
// @Param horizonDays query int false "Days ahead of asOf to include"
// @Param asOf query string false "Reference date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /reports/compliance [get]
func (h *ReportHandler) Compliance(c *gin.Context) {
	horizon := h.reports.DefaultHorizon()
	if raw := strings.TrimSpace(c.Query("horizonDays")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "horizonDays must be an integer"))
			return
		}
		horizon = value
	}
	var asOf time.Time
	if raw := strings.TrimSpace(c.Query("asOf")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "asOf must be formatted as YYYY-MM-DD"))
			return
		}
		asOf = parsed
	}

	report, hit, err := h.reports.Report(c.Request.Context(), horizon, asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, report, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export the compliance report
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.ReportExportRequest true "Export payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /reports/compliance/export [post]
func (h *ReportHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReportExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	res, err := h.exports.Export(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Download godoc
// @Summary Download an exported report via signed token
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /export/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.exports.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck

	info, err := result.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), result.ContentType, result.File, nil)
}
