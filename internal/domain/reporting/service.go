// Package reporting turns filtered appointment queries into exports: an
// .xlsx spreadsheet, a PDF report with a generated summary, and aggregate
// measures.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dentalclinic/clinic/internal/domain/scheduling"
	"github.com/dentalclinic/clinic/internal/platform/apperror"
	"github.com/dentalclinic/clinic/internal/platform/document"
	"github.com/dentalclinic/clinic/internal/platform/i18n"
	"github.com/dentalclinic/clinic/internal/platform/metrics"
	"github.com/dentalclinic/clinic/internal/platform/middleware"
	"github.com/dentalclinic/clinic/internal/platform/spreadsheet"
	"github.com/dentalclinic/clinic/internal/platform/summary"
)

const (
	SheetName      = "Appointments"
	ReportFilename = "clinic_report.pdf"

	markupFile = "report.md"
)

// Report pipeline stages, logged on every transition.
const (
	StageQueried    = "queried"
	StageSummarized = "summarized"
	StageRendered   = "rendered"
	StageConverted  = "converted"
	StageStreamed   = "streamed"
	StageCleanedUp  = "cleaned_up"
	StageFailed     = "failed"
)

// AppointmentQuerier is the slice of the scheduling service exports need.
type AppointmentQuerier interface {
	QueryAppointments(ctx context.Context, f scheduling.AppointmentFilter) ([]scheduling.AppointmentRow, error)
}

// Config holds the report collaborators. Zero values fall back to an
// unconfigured summarizer, the embedded template, the native converter and
// English dates.
type Config struct {
	Summarizer     summary.Summarizer
	SummaryTimeout time.Duration
	Template       *document.Template
	Converter      document.Converter
	Dates          *i18n.DateFormatter
	// TempDir is the parent of per-report workspaces; empty means the OS
	// temp dir.
	TempDir        string
	Measures       MeasureRunner
	Metrics        *metrics.Metrics
}

type Service struct {
	appts          AppointmentQuerier
	summarizer     summary.Summarizer
	summaryTimeout time.Duration
	template       *document.Template
	converter      document.Converter
	dates          *i18n.DateFormatter
	tempDir        string
	measures       MeasureRunner
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	now            func() time.Time
}

func NewService(appts AppointmentQuerier, cfg Config, logger zerolog.Logger) (*Service, error) {
	s := &Service{
		appts:          appts,
		summarizer:     cfg.Summarizer,
		summaryTimeout: cfg.SummaryTimeout,
		template:       cfg.Template,
		converter:      cfg.Converter,
		dates:          cfg.Dates,
		tempDir:        cfg.TempDir,
		measures:       cfg.Measures,
		metrics:        cfg.Metrics,
		logger:         logger.With().Str("component", "reporting").Logger(),
		now:            time.Now,
	}
	if s.summarizer == nil {
		s.summarizer = summary.Unconfigured{}
	}
	if s.template == nil {
		t, err := document.LoadTemplate("")
		if err != nil {
			return nil, err
		}
		s.template = t
	}
	if s.converter == nil {
		s.converter = document.NewNative()
	}
	if s.dates == nil {
		s.dates = i18n.NewDateFormatter("en")
	}
	return s, nil
}

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	l := s.logger.With().Str("request_id", middleware.RequestIDFromContext(ctx)).Logger()
	return &l
}

// Spreadsheet is an in-memory .xlsx export.
type Spreadsheet struct {
	Data     []byte
	Filename string
}

// ExportSpreadsheet writes the filtered appointments to a single sheet. An
// empty result is a not-found error, never an empty workbook.
func (s *Service) ExportSpreadsheet(ctx context.Context, f scheduling.AppointmentFilter) (*Spreadsheet, error) {
	rows, err := s.query(ctx, f)
	if err != nil {
		s.metrics.Export("xlsx", resultLabel(err))
		return nil, err
	}

	cells := make([][]interface{}, len(rows))
	for i, r := range rows {
		vals := r.Cells()
		cells[i] = make([]interface{}, len(vals))
		for j, v := range vals {
			cells[i][j] = v
		}
	}
	buf, err := spreadsheet.Write(SheetName, scheduling.ExportColumns, cells)
	if err != nil {
		s.metrics.Export("xlsx", "error")
		return nil, apperror.Render(err, "write spreadsheet")
	}

	s.metrics.Export("xlsx", "ok")
	return &Spreadsheet{
		Data:     buf.Bytes(),
		Filename: fmt.Sprintf("appointments_%s.xlsx", s.now().Format("20060102")),
	}, nil
}

// SendFunc delivers the finished PDF. The file is removed as soon as it
// returns, so it must not retain path.
type SendFunc func(path string) error

// GenerateReport runs the report pipeline and hands the PDF to send. Each
// report gets its own workspace, removed on every exit path including send
// failures. A failing summary collaborator degrades to summary.Fallback.
func (s *Service) GenerateReport(ctx context.Context, f scheduling.AppointmentFilter, acceptLanguage string, send SendFunc) (err error) {
	log := s.log(ctx)
	stage := func(name string) { log.Debug().Str("stage", name).Msg("report stage") }
	defer func() {
		if err != nil {
			log.Debug().Str("stage", StageFailed).Err(err).Msg("report stage")
		}
		s.metrics.Export("pdf", resultLabel(err))
	}()

	rows, err := s.query(ctx, f)
	if err != nil {
		return err
	}
	stage(StageQueried)

	header := scheduling.ExportColumns
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = r.Cells()
	}

	res := summary.Generate(ctx, s.summarizer, summary.BuildPrompt(header, cells), s.summaryTimeout)
	if res.Fallback {
		s.metrics.SummaryFallback(res.Reason)
		log.Warn().
			Err(apperror.SummaryUnavailable(res.Err)).
			Str("reason", res.Reason).
			Msg("using fallback summary")
	}
	stage(StageSummarized)

	markup, err := s.template.Render(document.ReportData{
		DateField:    s.dates.FormatDate(acceptLanguage, s.now()),
		SummaryField: res.Text,
		Columns:      header,
		RawDataField: cells,
	})
	if err != nil {
		return apperror.Render(err, "fill template")
	}
	stage(StageRendered)

	ws, err := document.NewWorkspace(s.tempDir)
	if err != nil {
		return apperror.Render(err, "create workspace")
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			log.Error().Err(cerr).Str("dir", ws.Dir()).Msg("report workspace cleanup failed")
			return
		}
		stage(StageCleanedUp)
	}()

	src, err := ws.WriteFile(markupFile, markup)
	if err != nil {
		return apperror.Render(err, "write document")
	}
	dst := ws.Path(ReportFilename)
	if err := s.converter.Convert(ctx, src, dst); err != nil {
		return apperror.Render(err, "convert to pdf")
	}
	stage(StageConverted)

	if err := send(dst); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	stage(StageStreamed)
	return nil
}

func (s *Service) query(ctx context.Context, f scheduling.AppointmentFilter) ([]scheduling.AppointmentRow, error) {
	rows, err := s.appts.QueryAppointments(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperror.NotFound("no appointments match the given filters")
	}
	return rows, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperror.KindOf(err) == apperror.KindNotFound:
		return "not_found"
	default:
		return "error"
	}
}
