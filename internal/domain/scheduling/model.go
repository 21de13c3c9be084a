package scheduling

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/dentalclinic/clinic/internal/platform/apperror"
)

// DateLayout is the wire format of appointment dates.
const DateLayout = "2006-01-02"

// Appointment sources, used as metric labels and log fields.
const (
	SourceSubmit = "submit"
	SourceUpload = "upload"
)

// Practitioner is a clinician appointments are booked with. Practitioners are
// created lazily by name and never updated.
type Practitioner struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

// Appointment is one booked visit. Time is normalized to "HH:MM:SS".
type Appointment struct {
	ID             int64     `json:"id"`
	PatientName    string    `json:"patient_name"`
	PatientEmail   string    `json:"patient_email"`
	Date           time.Time `json:"appointment_date"`
	Time           string    `json:"appointment_time"`
	Service        string    `json:"service"`
	Notes          string    `json:"notes"`
	PractitionerID int64     `json:"practitioner_id"`
}

// DedupKey identifies an appointment for bulk-upload duplicate detection.
type DedupKey struct {
	PatientName    string
	Date           string
	Time           string
	PractitionerID int64
}

func (a *Appointment) DedupKey() DedupKey {
	return DedupKey{
		PatientName:    a.PatientName,
		Date:           a.Date.Format(DateLayout),
		Time:           a.Time,
		PractitionerID: a.PractitionerID,
	}
}

// AppointmentRow is an appointment joined with its practitioner's name, the
// shape returned by filtered queries and written to exports.
type AppointmentRow struct {
	Appointment
	Practitioner string `json:"practitioner"`
}

// MarshalJSON renders the date as YYYY-MM-DD instead of a timestamp.
func (r AppointmentRow) MarshalJSON() ([]byte, error) {
	type plain struct {
		ID             int64  `json:"id"`
		PatientName    string `json:"patient_name"`
		PatientEmail   string `json:"patient_email"`
		Date           string `json:"appointment_date"`
		Time           string `json:"appointment_time"`
		Service        string `json:"service"`
		Notes          string `json:"notes"`
		PractitionerID int64  `json:"practitioner_id"`
		Practitioner   string `json:"practitioner"`
	}
	return json.Marshal(plain{
		ID:             r.ID,
		PatientName:    r.PatientName,
		PatientEmail:   r.PatientEmail,
		Date:           r.Date.Format(DateLayout),
		Time:           r.Time,
		Service:        r.Service,
		Notes:          r.Notes,
		PractitionerID: r.PractitionerID,
		Practitioner:   r.Practitioner,
	})
}

// ExportColumns is the column order of every appointment export.
var ExportColumns = []string{
	"patient_name", "patient_email", "appointment_date", "appointment_time",
	"service", "notes", "practitioner",
}

// Cells returns the row's values in ExportColumns order.
func (r AppointmentRow) Cells() []string {
	return []string{
		r.PatientName, r.PatientEmail, r.Date.Format(DateLayout), r.Time,
		r.Service, r.Notes, r.Practitioner,
	}
}

// AppointmentFilter narrows a query. Nil bounds are open; an empty
// Practitioners set matches everyone. Conditions combine with AND.
type AppointmentFilter struct {
	Start         *time.Time
	End           *time.Time
	Practitioners []string
}

func (f AppointmentFilter) Validate() error {
	if f.Start != nil && f.End != nil && f.Start.After(*f.End) {
		return apperror.Validation("startDate %s is after endDate %s",
			f.Start.Format(DateLayout), f.End.Format(DateLayout))
	}
	return nil
}

// ParseFilter builds a filter from the startDate/endDate/providers query
// parameters. Providers may repeat or be comma separated.
func ParseFilter(startDate, endDate string, providers []string) (AppointmentFilter, error) {
	var f AppointmentFilter
	var err error
	if f.Start, err = parseOptionalDate("startDate", startDate); err != nil {
		return f, err
	}
	if f.End, err = parseOptionalDate("endDate", endDate); err != nil {
		return f, err
	}
	seen := make(map[string]bool)
	for _, p := range providers {
		for _, name := range strings.Split(p, ",") {
			name = strings.TrimSpace(name)
			if name != "" && !seen[name] {
				seen[name] = true
				f.Practitioners = append(f.Practitioners, name)
			}
		}
	}
	return f, f.Validate()
}

func parseOptionalDate(param, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, apperror.Validation("%s must be YYYY-MM-DD, got %q", param, s)
	}
	return &t, nil
}

// SubmitAppointmentRequest is the JSON body of a single submission.
// Practitioner is optional; see Service.SubmitAppointment for the fallback.
type SubmitAppointmentRequest struct {
	Name         string `json:"name" validate:"required,notblank"`
	Email        string `json:"email" validate:"required,email"`
	Date         string `json:"date" validate:"required,datetime=2006-01-02"`
	Time         string `json:"time" validate:"required,clock"`
	Service      string `json:"service" validate:"required,notblank"`
	Practitioner string `json:"practitioner"`
	Notes        string `json:"notes"`
}

// ToAppointment converts a validated request. PractitionerID is left unset.
func (r *SubmitAppointmentRequest) ToAppointment() (*Appointment, error) {
	name, service := strings.TrimSpace(r.Name), strings.TrimSpace(r.Service)
	if name == "" || service == "" {
		return nil, apperror.Validation("name and service must not be blank")
	}
	d, err := time.Parse(DateLayout, strings.TrimSpace(r.Date))
	if err != nil {
		return nil, apperror.Validation("date must be YYYY-MM-DD, got %q", r.Date)
	}
	tm, err := normalizeClock(r.Time)
	if err != nil {
		return nil, err
	}
	return &Appointment{
		PatientName:  name,
		PatientEmail: strings.TrimSpace(r.Email),
		Date:         d,
		Time:         tm,
		Service:      service,
		Notes:        r.Notes,
	}, nil
}

func normalizeClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04:05"), nil
		}
	}
	return "", apperror.Validation("time must be HH:MM or HH:MM:SS, got %q", s)
}

// SubmitResult is the outcome of a successful submission.
type SubmitResult struct {
	ID             int64  `json:"id"`
	PractitionerID int64  `json:"practitioner_id"`
	Practitioner   string `json:"practitioner"`
	// PractitionerCreated is set when resolution had to add the practitioner.
	PractitionerCreated bool `json:"practitioner_created"`
}

// UploadResult counts what a bulk upload did with each data row.
type UploadResult struct {
	Added             int `json:"added"`
	SkippedDuplicates int `json:"skipped_duplicates"`
	SkippedIncomplete int `json:"skipped_incomplete"`
}
