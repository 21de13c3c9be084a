package scheduling

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/dentalclinic/clinic/internal/config"
)

// -- Mock Repositories --

type mockPractitionerRepo struct {
	names  map[string]int64
	nextID int64
	err    error
}

func newMockPractitionerRepo(names ...string) *mockPractitionerRepo {
	m := &mockPractitionerRepo{names: make(map[string]int64)}
	for _, n := range names {
		m.nextID++
		m.names[n] = m.nextID
	}
	return m
}

func (m *mockPractitionerRepo) ListNames(_ context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]string, 0, len(m.names))
	for n := range m.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockPractitionerRepo) FindByName(_ context.Context, name string) (int64, bool, error) {
	if m.err != nil {
		return 0, false, m.err
	}
	id, ok := m.names[name]
	return id, ok, nil
}

func (m *mockPractitionerRepo) ResolveOrCreate(_ context.Context, name string) (int64, bool, error) {
	if m.err != nil {
		return 0, false, m.err
	}
	if id, ok := m.names[name]; ok {
		return id, false, nil
	}
	m.nextID++
	m.names[name] = m.nextID
	return m.nextID, true, nil
}

func (m *mockPractitionerRepo) nameOf(id int64) string {
	for n, pid := range m.names {
		if pid == id {
			return n
		}
	}
	return ""
}

type mockAppointmentRepo struct {
	prac   *mockPractitionerRepo
	rows   []Appointment
	nextID int64
	// failOnCreate makes the n-th Create (1-based) fail.
	failOnCreate int
	creates      int
	queryErr     error
	// locked records the practitioners locked by bulk uploads.
	locked  []int64
	lockErr error
}

func newMockAppointmentRepo(prac *mockPractitionerRepo) *mockAppointmentRepo {
	return &mockAppointmentRepo{prac: prac}
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	m.creates++
	if m.failOnCreate > 0 && m.creates == m.failOnCreate {
		return errors.New("connection reset")
	}
	m.nextID++
	a.ID = m.nextID
	m.rows = append(m.rows, *a)
	return nil
}

func (m *mockAppointmentRepo) Exists(_ context.Context, key DedupKey) (bool, error) {
	for i := range m.rows {
		if m.rows[i].DedupKey() == key {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAppointmentRepo) LockPractitioner(_ context.Context, id int64) error {
	if m.lockErr != nil {
		return m.lockErr
	}
	m.locked = append(m.locked, id)
	return nil
}

func (m *mockAppointmentRepo) Query(_ context.Context, f AppointmentFilter) ([]AppointmentRow, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	want := make(map[string]bool)
	for _, p := range f.Practitioners {
		want[p] = true
	}
	var out []AppointmentRow
	for _, a := range m.rows {
		name := m.prac.nameOf(a.PractitionerID)
		if f.Start != nil && a.Date.Before(*f.Start) {
			continue
		}
		if f.End != nil && a.Date.After(*f.End) {
			continue
		}
		if len(want) > 0 && !want[name] {
			continue
		}
		out = append(out, AppointmentRow{Appointment: a, Practitioner: name})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ID < b.ID
	})
	return out, nil
}

// fakeTx restores both repositories when fn fails, like a rollback.
type fakeTx struct {
	prac      *mockPractitionerRepo
	appt      *mockAppointmentRepo
	commits   int
	rollbacks int
}

func (f *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	names := make(map[string]int64, len(f.prac.names))
	for k, v := range f.prac.names {
		names[k] = v
	}
	rows := append([]Appointment(nil), f.appt.rows...)

	if err := fn(ctx); err != nil {
		f.prac.names = names
		f.appt.rows = rows
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

type testEnv struct {
	svc  *Service
	prac *mockPractitionerRepo
	appt *mockAppointmentRepo
	tx   *fakeTx
}

func newTestEnv(resolution string, practitioners ...string) *testEnv {
	prac := newMockPractitionerRepo(practitioners...)
	appt := newMockAppointmentRepo(prac)
	tx := &fakeTx{prac: prac, appt: appt}
	return &testEnv{
		svc:  NewService(prac, appt, tx, resolution, nil, zerolog.Nop()),
		prac: prac,
		appt: appt,
		tx:   tx,
	}
}

func newTestService() *testEnv {
	return newTestEnv(config.ResolutionCreate)
}

// buildSheet returns an .xlsx workbook whose first sheet holds rows.
func buildSheet(t *testing.T, rows ...[]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		row := row
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf
}

var uploadHeader = []interface{}{"patient_name", "patient_email", "appointment_date", "appointment_time", "service", "notes"}
