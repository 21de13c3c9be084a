package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentalclinic/clinic/internal/domain/scheduling"
	"github.com/dentalclinic/clinic/internal/platform/apperror"
	"github.com/dentalclinic/clinic/internal/platform/db"
)

// MeasureDefinition is an aggregate over the filtered appointments.
type MeasureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// Select and GroupBy are written against scheduling.JoinedFrom.
	Select  string `json:"-"`
	GroupBy string `json:"-"`
	OrderBy string `json:"-"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

// PredefinedMeasures is the list of available measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "appointments-by-practitioner",
		Name:        "Appointments by Practitioner",
		Description: "Number of appointments per practitioner",
		Select:      "p.full_name AS practitioner, COUNT(*) AS total",
		GroupBy:     "p.full_name",
		OrderBy:     "total DESC, practitioner",
	},
	{
		ID:          "appointments-by-day",
		Name:        "Appointments by Day",
		Description: "Number of appointments per calendar day",
		Select:      "to_char(a.appointment_date, 'YYYY-MM-DD') AS appointment_date, COUNT(*) AS total",
		GroupBy:     "a.appointment_date",
		OrderBy:     "a.appointment_date",
	},
	{
		ID:          "appointments-by-service",
		Name:        "Appointments by Service",
		Description: "Number of appointments per requested service",
		Select:      "COALESCE(NULLIF(a.service, ''), 'unspecified') AS service, COUNT(*) AS total",
		GroupBy:     "1",
		OrderBy:     "total DESC, service",
	},
	{
		ID:          "patient-count",
		Name:        "Patient Count",
		Description: "Distinct patients and total appointments",
		Select:      "COUNT(DISTINCT a.patient_name) AS patients, COUNT(*) AS appointments",
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// SQL renders the measure restricted by p.
func (m *MeasureDefinition) SQL(p *db.Predicates) string {
	q := "SELECT " + m.Select + " FROM " + scheduling.JoinedFrom + p.Where()
	if m.GroupBy != "" {
		q += " GROUP BY " + m.GroupBy
	}
	if m.OrderBy != "" {
		q += " ORDER BY " + m.OrderBy
	}
	return q
}

// MeasureRunner executes a measure query and returns one map per row.
type MeasureRunner interface {
	Run(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error)
}

type pgMeasureRunner struct{ pool *pgxpool.Pool }

func NewMeasureRunnerPG(pool *pgxpool.Pool) MeasureRunner {
	return &pgMeasureRunner{pool: pool}
}

func (r *pgMeasureRunner) Run(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	results := []map[string]interface{}{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// EvaluateMeasure runs the measure over the appointments matching f.
func (s *Service) EvaluateMeasure(ctx context.Context, id string, f scheduling.AppointmentFilter) (*MeasureReport, error) {
	if s.measures == nil {
		return nil, apperror.NotFound("measures are not available")
	}
	m := FindMeasure(id)
	if m == nil {
		return nil, apperror.NotFound("measure %q not found", id)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	p := scheduling.FilterPredicates(f)
	results, err := s.measures.Run(ctx, m.SQL(p), p.Args()...)
	if err != nil {
		return nil, apperror.Store(err, "evaluate measure")
	}

	params := map[string]string{}
	if f.Start != nil {
		params["startDate"] = f.Start.Format(scheduling.DateLayout)
	}
	if f.End != nil {
		params["endDate"] = f.End.Format(scheduling.DateLayout)
	}
	for i, name := range f.Practitioners {
		if i == 0 {
			params["providers"] = name
		} else {
			params["providers"] += "," + name
		}
	}

	return &MeasureReport{
		MeasureID:   m.ID,
		MeasureName: m.Name,
		GeneratedAt: s.now(),
		Results:     results,
		Parameters:  params,
	}, nil
}
