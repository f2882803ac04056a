package jobs

import (
	"context"
	"time"

	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/metrics"
	"github.com/straye-as/shortage-api/internal/service"
	"go.uber.org/zap"
)

// ReportExportJobName is the name of the scheduled report archive job
const ReportExportJobName = "report_export"

// reportActor is recorded as the creator of scheduled exports
const reportActor = "scheduler"

// ReportArchiver renders and archives a shortage report
type ReportArchiver interface {
	ExportAndArchive(ctx context.Context, req service.ReportRequest, format, createdBy string) (*domain.ArchivedFileDTO, error)
}

// ReportExportJob archives the full shortage report as of the run date
type ReportExportJob struct {
	archiver ReportArchiver
	format   string
	metrics  *metrics.Metrics
	logger   *zap.Logger
	timeout  time.Duration
	now      func() time.Time
}

func NewReportExportJob(archiver ReportArchiver, format string, m *metrics.Metrics, logger *zap.Logger, timeout time.Duration) *ReportExportJob {
	return &ReportExportJob{
		archiver: archiver,
		format:   format,
		metrics:  m,
		logger:   logger.With(zap.String("job_name", ReportExportJobName)),
		timeout:  timeout,
		now:      time.Now,
	}
}

// Run is the cron entry point
func (j *ReportExportJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	archived, err := j.Export(ctx)
	j.metrics.ObserveJob(ReportExportJobName, err)
	if err != nil {
		j.logger.Error("report export failed", zap.Error(err))
		return
	}
	j.logger.Info("report export completed",
		zap.String("archive_id", archived.ID.String()),
		zap.String("filename", archived.Filename),
		zap.Int64("size", archived.Size),
	)
}

// Export renders the report for today and archives it
func (j *ReportExportJob) Export(ctx context.Context) (*domain.ArchivedFileDTO, error) {
	req := service.ReportRequest{AsOf: domain.DateOnly(j.now())}
	return j.archiver.ExportAndArchive(ctx, req, j.format, reportActor)
}

// RegisterReportExportJob schedules the export
func RegisterReportExportJob(scheduler *Scheduler, job *ReportExportJob, cronExpr string) error {
	if cronExpr == "" {
		return nil
	}
	return scheduler.AddJob(ReportExportJobName, cronExpr, job.Run)
}
