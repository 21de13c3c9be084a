package scheduling

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentalclinic/clinic/internal/platform/db"
)

// =========== Practitioner Repository ===========

type practitionerRepoPG struct{ pool *pgxpool.Pool }

func NewPractitionerRepoPG(pool *pgxpool.Pool) PractitionerRepository {
	return &practitionerRepoPG{pool: pool}
}

func (r *practitionerRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *practitionerRepoPG) ListNames(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT full_name FROM practitioners ORDER BY full_name COLLATE "C"`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *practitionerRepoPG) FindByName(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM practitioners WHERE full_name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// ResolveOrCreate relies on the unique full_name constraint: a concurrent
// creator's insert is absorbed by ON CONFLICT and both callers read the same
// row.
func (r *practitionerRepoPG) ResolveOrCreate(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO practitioners (full_name) VALUES ($1)
		ON CONFLICT (full_name) DO NOTHING
		RETURNING id`, name).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}
	id, found, err := r.FindByName(ctx, name)
	if err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, errors.New("practitioner vanished after conflicting insert")
	}
	return id, false, nil
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

// Times travel as "HH:MM:SS" text and are cast server side.
func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (patient_name, patient_email, appointment_date,
			appointment_time, service, notes, practitioner_id)
		VALUES ($1, $2, $3, $4::text::time, $5, $6, $7)
		RETURNING id`,
		a.PatientName, a.PatientEmail, a.Date, a.Time, a.Service, a.Notes, a.PractitionerID,
	).Scan(&a.ID)
}

func (r *appointmentRepoPG) Exists(ctx context.Context, k DedupKey) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_name = $1 AND appointment_date = $2::text::date
				AND appointment_time = $3::text::time AND practitioner_id = $4)`,
		k.PatientName, k.Date, k.Time, k.PractitionerID,
	).Scan(&exists)
	return exists, err
}

// LockPractitioner takes a transaction-scoped advisory lock keyed by the
// practitioner. It must run inside db.WithTx.
func (r *appointmentRepoPG) LockPractitioner(ctx context.Context, practitionerID int64) error {
	if db.TxFromContext(ctx) == nil {
		return errors.New("practitioner lock requires a transaction")
	}
	_, err := r.conn(ctx).Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended('appointment_upload:' || $1::text, 0))`,
		practitionerID)
	return err
}

const rowCols = `a.id, a.patient_name, a.patient_email, a.appointment_date,
	to_char(a.appointment_time, 'HH24:MI:SS'), a.service, a.notes, a.practitioner_id, p.full_name`

// JoinedFrom is the FROM clause FilterPredicates is written against.
const JoinedFrom = `appointments a JOIN practitioners p ON p.id = a.practitioner_id`

// FilterPredicates translates f into conditions over JoinedFrom.
func FilterPredicates(f AppointmentFilter) *db.Predicates {
	p := &db.Predicates{}
	if f.Start != nil {
		p.Add("start_date", "a.appointment_date >= $%d", *f.Start)
	}
	if f.End != nil {
		p.Add("end_date", "a.appointment_date <= $%d", *f.End)
	}
	if len(f.Practitioners) > 0 {
		p.Add("practitioners", "p.full_name = ANY($%d)", f.Practitioners)
	}
	return p
}

func (r *appointmentRepoPG) Query(ctx context.Context, f AppointmentFilter) ([]AppointmentRow, error) {
	p := FilterPredicates(f)
	query := `SELECT ` + rowCols + ` FROM ` + JoinedFrom + p.Where() + `
		ORDER BY a.appointment_date, a.appointment_time, a.id`

	rows, err := r.conn(ctx).Query(ctx, query, p.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AppointmentRow
	for rows.Next() {
		var row AppointmentRow
		if err := rows.Scan(&row.ID, &row.PatientName, &row.PatientEmail, &row.Date,
			&row.Time, &row.Service, &row.Notes, &row.PractitionerID, &row.Practitioner); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
