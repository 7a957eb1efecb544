package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/vial-compliance-api/internal/dto"
	"github.com/noah-isme/vial-compliance-api/internal/models"
	appErrors "github.com/noah-isme/vial-compliance-api/pkg/errors"
	"github.com/noah-isme/vial-compliance-api/pkg/export"
	"github.com/noah-isme/vial-compliance-api/pkg/storage"
)

type reportBuilder interface {
	Report(ctx context.Context, horizonDays int, asOf time.Time) (*dto.ComplianceReport, bool, error)
	DefaultHorizon() int
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type urlSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (id, relPath string, expiresAt time.Time, err error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportDownload is a resolved, opened export file.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders the compliance report to files behind signed URLs.
type ExportService struct {
	reports   reportBuilder
	storage   fileStorage
	signer    urlSigner
	renderers map[string]export.Renderer
	cfg       ExportConfig
	audit     auditTrail
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService with CSV and PDF renderers.
func NewExportService(reports reportBuilder, files fileStorage, signer urlSigner, cfg ExportConfig, audit AuditWriter, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	csv := export.NewCSVExporter()
	pdf := export.NewPDFExporter()
	return &ExportService{
		reports: reports,
		storage: files,
		signer:  signer,
		renderers: map[string]export.Renderer{
			csv.Extension(): csv,
			pdf.Extension(): pdf,
		},
		cfg:       cfg,
		audit:     auditTrail{writer: audit, logger: logger},
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Export renders the compliance report and returns a signed download URL.
func (s *ExportService) Export(ctx context.Context, req dto.ReportExportRequest, actor Actor) (*dto.ReportExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	renderer, ok := s.renderers[strings.ToLower(req.Format)]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", req.Format))
	}
	horizon := s.reports.DefaultHorizon()
	if req.HorizonDays != nil {
		horizon = *req.HorizonDays
	}

	report, _, err := s.reports.Report(ctx, horizon, time.Time{})
	if err != nil {
		return nil, err
	}

	payload, err := renderer.Render(ComplianceDataset(report))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	exportID := uuid.NewString()
	filename := fmt.Sprintf("compliance_%s_%dd_%s.%s", report.AsOf.String(), horizon, exportID[:8], renderer.Extension())
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export url")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	resp := &dto.ReportExportResponse{
		URL:       fmt.Sprintf("%s/export/%s", prefix, token),
		Format:    renderer.Extension(),
		Rows:      len(report.Items),
		ExpiresAt: expiresAt,
	}
	s.audit.record(ctx, actor, models.AuditActionReportExport, "reports", exportID, nil, map[string]interface{}{
		"format":       resp.Format,
		"horizon_days": horizon,
		"rows":         resp.Rows,
	})
	return resp, nil
}

// ResolveDownload validates token and opens the referenced file.
func (s *ExportService) ResolveDownload(token string) (*ExportDownload, error) {
	_, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	filename := filepath.Base(relPath)
	contentType := "application/octet-stream"
	if renderer, ok := s.renderers[strings.TrimPrefix(filepath.Ext(filename), ".")]; ok {
		contentType = renderer.ContentType()
	}
	return &ExportDownload{File: file, Filename: filename, ContentType: contentType, ExpiresAt: expiresAt}, nil
}

// Cleanup removes files older than ttl, or the configured result TTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	removed, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		return removed, err
	}
	if len(removed) > 0 {
		s.logger.Info("purged expired exports", zap.Int("count", len(removed)))
	}
	return removed, nil
}

// StartCleanup purges expired exports every CleanupInterval until ctx is done.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Cleanup(0); err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
				}
			}
		}
	}()
}

// ComplianceDataset converts a report into a renderable table.
func ComplianceDataset(report *dto.ComplianceReport) export.Dataset {
	data := export.Dataset{
		Title: fmt.Sprintf("Compliance report as of %s (horizon %d days)", report.AsOf, report.HorizonDays),
		Headers: []string{"Enrollment", "Person", "DNI", "Course", "Status", "Deadline",
			"Expiration", "Days left", "Expired"},
		Rows: make([][]string, 0, len(report.Items)),
	}
	for _, item := range report.Items {
		expired := "no"
		if item.IsExpired {
			expired = "yes"
		}
		data.Rows = append(data.Rows, []string{
			item.EnrollmentID,
			item.PersonName,
			item.PersonDNI,
			item.CourseName,
			item.Status,
			item.DeadlineDate.String(),
			item.ExpirationDate.String(),
			strconv.Itoa(item.DaysUntilExpiration),
			expired,
		})
	}
	return data
}
