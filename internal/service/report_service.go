package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/vial-compliance-api/internal/dto"
	"github.com/noah-isme/vial-compliance-api/internal/models"
	appErrors "github.com/noah-isme/vial-compliance-api/pkg/errors"
)

const (
	reportCachePrefix  = "reports:compliance:"
	reportCachePattern = reportCachePrefix + "*"
)

type complianceSource interface {
	ListExpiring(ctx context.Context, filter models.ComplianceFilter) ([]models.EnrollmentDetail, error)
}

// ReportConfig tunes the compliance report.
type ReportConfig struct {
	DefaultHorizonDays int
	ExcludedStatuses   []models.EnrollmentStatus
	CacheTTL           time.Duration
	Location           *time.Location
	Now                func() time.Time
}

// ParseExcludedStatuses keeps the recognised statuses of raw.
func ParseExcludedStatuses(raw []string) []models.EnrollmentStatus {
	out := make([]models.EnrollmentStatus, 0, len(raw))
	for _, item := range raw {
		status := models.EnrollmentStatus(strings.ToUpper(strings.TrimSpace(item)))
		if status.Valid() {
			out = append(out, status)
		}
	}
	return out
}

// ComplianceReportService lists enrollments whose certification expires within a horizon.
type ComplianceReportService struct {
	repo    complianceSource
	cfg     ReportConfig
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	group   singleflight.Group
}

// NewComplianceReportService constructs ComplianceReportService.
func NewComplianceReportService(repo complianceSource, cfg ReportConfig, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *ComplianceReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultHorizonDays <= 0 {
		cfg.DefaultHorizonDays = 30
	}
	if cfg.ExcludedStatuses == nil {
		cfg.ExcludedStatuses = []models.EnrollmentStatus{models.EnrollmentStatusUsed}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	excluded := append([]models.EnrollmentStatus(nil), cfg.ExcludedStatuses...)
	sort.Slice(excluded, func(i, j int) bool { return excluded[i] < excluded[j] })
	cfg.ExcludedStatuses = excluded
	return &ComplianceReportService{repo: repo, cfg: cfg, cache: cache, metrics: metrics, logger: logger}
}

// DefaultHorizon returns the horizon used when callers omit one.
func (s *ComplianceReportService) DefaultHorizon() int {
	return s.cfg.DefaultHorizonDays
}

// Today returns the current civil date in the configured timezone.
func (s *ComplianceReportService) Today() time.Time {
	return CivilDate(s.cfg.Now(), s.cfg.Location)
}

// Generate returns the report rows for horizonDays counted from asOf.
func (s *ComplianceReportService) Generate(ctx context.Context, horizonDays int, asOf time.Time) ([]dto.ComplianceReportItem, error) {
	report, _, err := s.Report(ctx, horizonDays, asOf)
	if err != nil {
		return nil, err
	}
	return report.Items, nil
}

// Report builds the full report and reports whether it came from cache. A zero
// asOf means today. Concurrent identical requests share one database query.
func (s *ComplianceReportService) Report(ctx context.Context, horizonDays int, asOf time.Time) (*dto.ComplianceReport, bool, error) {
	if horizonDays < 0 {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "horizon days must not be negative")
	}
	if asOf.IsZero() {
		asOf = s.Today()
	} else {
		asOf = CivilDate(asOf, time.UTC)
	}

	key := s.cacheKey(horizonDays, asOf)
	var cached dto.ComplianceReport
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	// A build that started before an invalidation must not be shared with
	// callers arriving after it, nor written back to the cache.
	generation := s.cache.Generation()
	flightKey := fmt.Sprintf("%s@%d", key, generation)
	result, err, _ := s.group.Do(flightKey, func() (interface{}, error) {
		buildCtx := context.WithoutCancel(ctx)
		report, err := s.build(buildCtx, horizonDays, asOf)
		if err != nil {
			return nil, err
		}
		if !s.cache.SetIfCurrent(buildCtx, key, report, s.cfg.CacheTTL, generation) && s.cache.Enabled() {
			s.logger.Debug("compliance report not cached, invalidated during build", zap.String("key", key))
		}
		return report, nil
	})
	if err != nil {
		return nil, false, err
	}
	report := *result.(*dto.ComplianceReport)
	report.Items = append([]dto.ComplianceReportItem(nil), report.Items...)
	return &report, false, nil
}

func (s *ComplianceReportService) build(ctx context.Context, horizonDays int, asOf time.Time) (*dto.ComplianceReport, error) {
	cutoff := asOf.AddDate(0, 0, horizonDays)
	rows, err := s.repo.ListExpiring(ctx, models.ComplianceFilter{Cutoff: cutoff, ExcludedStatuses: s.cfg.ExcludedStatuses})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build compliance report")
	}

	items := make([]dto.ComplianceReportItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, reportItem(row, asOf))
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := time.Time(items[i].ExpirationDate), time.Time(items[j].ExpirationDate)
		if a.Equal(b) {
			return items[i].EnrollmentID < items[j].EnrollmentID
		}
		return a.Before(b)
	})

	s.metrics.ObserveReportRows(len(items))
	s.logger.Debug("compliance report built",
		zap.String("as_of", asOf.Format("2006-01-02")),
		zap.Int("horizon_days", horizonDays),
		zap.Int("rows", len(items)))

	return &dto.ComplianceReport{
		AsOf:        dto.Date(asOf),
		HorizonDays: horizonDays,
		Cutoff:      dto.Date(cutoff),
		Items:       items,
	}, nil
}

func reportItem(row models.EnrollmentDetail, asOf time.Time) dto.ComplianceReportItem {
	expiration := CivilDate(row.ExpirationDate, time.UTC)
	return dto.ComplianceReportItem{
		EnrollmentID:        row.ID,
		PersonID:            row.PersonID,
		PersonName:          row.PersonName,
		PersonDNI:           row.PersonDNI,
		CourseID:            row.CourseID,
		CourseName:          row.CourseName,
		CourseDescription:   row.CourseDescription,
		Status:              string(row.Status),
		EnrollmentDate:      dto.Date(row.EnrollmentDate),
		CompletionDate:      dto.DatePtr(row.CompletionDate),
		DeadlineDate:        dto.Date(row.DeadlineDate),
		ExpirationDate:      dto.Date(expiration),
		InspectorID:         row.InspectorID,
		JudgeID:             row.JudgeID,
		DaysUntilExpiration: DaysBetween(asOf, expiration),
		IsExpired:           expiration.Before(asOf),
	}
}

func (s *ComplianceReportService) cacheKey(horizonDays int, asOf time.Time) string {
	excluded := make([]string, len(s.cfg.ExcludedStatuses))
	for i, status := range s.cfg.ExcludedStatuses {
		excluded[i] = string(status)
	}
	return fmt.Sprintf("%s%s:%d:%s", reportCachePrefix, asOf.Format("2006-01-02"), horizonDays, strings.Join(excluded, ","))
}
