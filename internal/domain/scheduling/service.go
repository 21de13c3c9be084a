package scheduling

import (
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dentalclinic/clinic/internal/config"
	"github.com/dentalclinic/clinic/internal/platform/apperror"
	"github.com/dentalclinic/clinic/internal/platform/db"
	"github.com/dentalclinic/clinic/internal/platform/metrics"
	"github.com/dentalclinic/clinic/internal/platform/middleware"
	"github.com/dentalclinic/clinic/internal/platform/spreadsheet"
)

// Columns a bulk upload sheet must carry.
var requiredUploadColumns = []string{"patient_name", "appointment_date", "appointment_time"}

// Bulk upload skip reasons.
const (
	SkipDuplicate  = "duplicate"
	SkipIncomplete = "incomplete"
)

type Service struct {
	practitioners PractitionerRepository
	appointments  AppointmentRepository
	tx            db.Transactor
	resolution    string
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

// NewService wires the repositories. resolution is config.ResolutionCreate or
// config.ResolutionStrict; m may be nil.
func NewService(prac PractitionerRepository, appt AppointmentRepository, tx db.Transactor,
	resolution string, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if resolution == "" {
		resolution = config.ResolutionCreate
	}
	return &Service{
		practitioners: prac,
		appointments:  appt,
		tx:            tx,
		resolution:    resolution,
		metrics:       m,
		logger:        logger.With().Str("component", "scheduling").Logger(),
	}
}

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	l := s.logger.With().Str("request_id", middleware.RequestIDFromContext(ctx)).Logger()
	return &l
}

// -- Practitioners --

func (s *Service) ListPractitioners(ctx context.Context) ([]string, error) {
	names, err := s.practitioners.ListNames(ctx)
	if err != nil {
		return nil, apperror.Store(err, "list practitioners")
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (s *Service) FindPractitioner(ctx context.Context, name string) (int64, bool, error) {
	id, found, err := s.practitioners.FindByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return 0, false, apperror.Store(err, "find practitioner")
	}
	return id, found, nil
}

func (s *Service) ResolveOrCreatePractitioner(ctx context.Context, name string) (int64, error) {
	id, _, err := s.resolvePractitioner(ctx, name, config.ResolutionCreate)
	return id, err
}

func (s *Service) resolvePractitioner(ctx context.Context, name, mode string) (int64, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false, apperror.Validation("practitioner name is required")
	}
	if mode == config.ResolutionStrict {
		id, found, err := s.FindPractitioner(ctx, name)
		if err != nil {
			return 0, false, err
		}
		if !found {
			return 0, false, apperror.NotFound("practitioner %q not found", name)
		}
		return id, false, nil
	}
	id, created, err := s.practitioners.ResolveOrCreate(ctx, name)
	if err != nil {
		return 0, false, apperror.Store(err, "resolve practitioner")
	}
	if created {
		s.log(ctx).Info().Str("practitioner", name).Int64("practitioner_id", id).Msg("practitioner created")
	}
	return id, created, nil
}

// -- Appointments --

// SubmitAppointment stores one appointment. The practitioner comes from the
// request's practitioner field; older clients that omit it have the service
// value used as the practitioner name. Resolution and insert share one
// transaction.
func (s *Service) SubmitAppointment(ctx context.Context, req *SubmitAppointmentRequest) (*SubmitResult, error) {
	a, err := req.ToAppointment()
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Practitioner)
	if name == "" {
		name = a.Service
		s.log(ctx).Warn().
			Str("service", a.Service).
			Msg("submission without practitioner field, using service as practitioner name")
	}

	res := &SubmitResult{Practitioner: name}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		id, created, err := s.resolvePractitioner(ctx, name, s.resolution)
		if err != nil {
			return err
		}
		a.PractitionerID = id
		if err := s.appointments.Create(ctx, a); err != nil {
			return apperror.Store(err, "create appointment")
		}
		res.ID, res.PractitionerID, res.PractitionerCreated = a.ID, id, created
		return nil
	})
	if err != nil {
		return nil, asStoreError(err, "create appointment")
	}

	s.metrics.AppointmentCreated(SourceSubmit, 1)
	s.log(ctx).Debug().Int64("appointment_id", res.ID).Int64("practitioner_id", res.PractitionerID).Msg("appointment submitted")
	return res, nil
}

// BulkUpload imports the first sheet of an .xlsx workbook for provider. Rows
// missing a patient name, date or time are skipped as incomplete; rows whose
// (patient, date, time, practitioner) key was already seen in the file or is
// already stored are skipped as duplicates. Everything else is inserted in a
// single transaction, so a store failure commits nothing.
func (s *Service) BulkUpload(ctx context.Context, provider string, r io.Reader) (*UploadResult, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, apperror.Validation("provider is required")
	}

	tbl, err := spreadsheet.ReadFirstSheet(r)
	if err != nil {
		return nil, apperror.Ingestion(err, "unreadable spreadsheet")
	}
	if missing := tbl.Missing(requiredUploadColumns...); len(missing) > 0 {
		return nil, apperror.Ingestion(nil, "missing required columns: %s", strings.Join(missing, ", "))
	}

	res := &UploadResult{}
	var candidates []*Appointment
	for _, rec := range tbl.Records() {
		a, err := appointmentFromRecord(rec)
		if err != nil {
			return nil, err
		}
		if a == nil {
			res.SkippedIncomplete++
			continue
		}
		candidates = append(candidates, a)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		id, _, err := s.resolvePractitioner(ctx, provider, config.ResolutionCreate)
		if err != nil {
			return err
		}
		// Concurrent uploads for the same practitioner wait here, so the
		// duplicate check below sees rows the other upload committed.
		if err := s.appointments.LockPractitioner(ctx, id); err != nil {
			return apperror.Store(err, "lock practitioner")
		}
		seen := make(map[DedupKey]bool, len(candidates))
		for _, a := range candidates {
			a.PractitionerID = id
			key := a.DedupKey()
			if seen[key] {
				res.SkippedDuplicates++
				continue
			}
			seen[key] = true

			exists, err := s.appointments.Exists(ctx, key)
			if err != nil {
				return apperror.Store(err, "check duplicate appointment")
			}
			if exists {
				res.SkippedDuplicates++
				continue
			}
			if err := s.appointments.Create(ctx, a); err != nil {
				return apperror.Store(err, "create appointment")
			}
			res.Added++
		}
		return nil
	})
	if err != nil {
		return nil, asStoreError(err, "bulk upload")
	}

	s.metrics.AppointmentCreated(SourceUpload, res.Added)
	s.metrics.BulkRowSkipped(SkipDuplicate, res.SkippedDuplicates)
	s.metrics.BulkRowSkipped(SkipIncomplete, res.SkippedIncomplete)
	s.log(ctx).Info().
		Str("provider", provider).
		Int("added", res.Added).
		Int("skipped_duplicates", res.SkippedDuplicates).
		Int("skipped_incomplete", res.SkippedIncomplete).
		Msg("bulk upload processed")
	return res, nil
}

// appointmentFromRecord returns nil for an incomplete row.
func appointmentFromRecord(rec spreadsheet.Record) (*Appointment, error) {
	name := rec.Get("patient_name")
	dateCell := rec.Get("appointment_date")
	timeCell := rec.Get("appointment_time")
	if name == "" || dateCell == "" || timeCell == "" {
		return nil, nil
	}

	d, err := spreadsheet.ParseDate(dateCell)
	if err != nil {
		return nil, apperror.Ingestion(err, "row %d: invalid appointment_date", rec.Line)
	}
	tm, err := spreadsheet.ParseTimeOfDay(timeCell)
	if err != nil {
		return nil, apperror.Ingestion(err, "row %d: invalid appointment_time", rec.Line)
	}
	return &Appointment{
		PatientName:  name,
		PatientEmail: rec.Get("patient_email"),
		Date:         d,
		Time:         tm,
		Service:      rec.Get("service"),
		Notes:        rec.Get("notes"),
	}, nil
}

// QueryAppointments returns the rows matching f ordered by date, time and id.
func (s *Service) QueryAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentRow, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.appointments.Query(ctx, f)
	if err != nil {
		return nil, apperror.Store(err, "query appointments")
	}
	return rows, nil
}

// asStoreError classifies failures of the transaction itself (begin, commit).
func asStoreError(err error, op string) error {
	if apperror.KindOf(err) != "" {
		return err
	}
	return apperror.Store(err, op)
}
