package integration

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/dentalclinic/clinic/internal/config"
	"github.com/dentalclinic/clinic/internal/domain/scheduling"
	"github.com/dentalclinic/clinic/internal/platform/apperror"
	"github.com/dentalclinic/clinic/internal/platform/db"
)

func newService(pool *pgxpool.Pool, resolution string) *scheduling.Service {
	return scheduling.NewService(
		scheduling.NewPractitionerRepoPG(pool),
		scheduling.NewAppointmentRepoPG(pool),
		db.NewTransactor(pool),
		resolution,
		nil,
		zerolog.Nop(),
	)
}

func date(s string) time.Time {
	d, _ := time.Parse(scheduling.DateLayout, s)
	return d
}

func ptrDate(s string) *time.Time {
	d := date(s)
	return &d
}

func buildWorkbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
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

func TestPractitionerRepo(t *testing.T) {
	ctx := context.Background()
	pool, _ := newSchemaPool(t, "prac")
	repo := scheduling.NewPractitionerRepoPG(pool)

	t.Run("ListNames_Empty", func(t *testing.T) {
		names, err := repo.ListNames(ctx)
		if err != nil {
			t.Fatalf("ListNames: %v", err)
		}
		if len(names) != 0 {
			t.Errorf("expected no practitioners, got %v", names)
		}
	})

	t.Run("ResolveOrCreate", func(t *testing.T) {
		id, created, err := repo.ResolveOrCreate(ctx, "Dr. Smith")
		if err != nil {
			t.Fatalf("ResolveOrCreate: %v", err)
		}
		if !created || id == 0 {
			t.Fatalf("expected a new practitioner, got id=%d created=%v", id, created)
		}

		again, created, err := repo.ResolveOrCreate(ctx, "Dr. Smith")
		if err != nil {
			t.Fatalf("ResolveOrCreate again: %v", err)
		}
		if created || again != id {
			t.Errorf("expected existing id %d, got %d created=%v", id, again, created)
		}
	})

	t.Run("FindByName", func(t *testing.T) {
		if _, ok, err := repo.FindByName(ctx, "Dr. Nobody"); err != nil || ok {
			t.Errorf("expected not found, got ok=%v err=%v", ok, err)
		}
		if _, ok, err := repo.FindByName(ctx, "Dr. Smith"); err != nil || !ok {
			t.Errorf("expected found, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("ListNames_Ordered", func(t *testing.T) {
		for _, n := range []string{"Dr. Jones", "Dr. Adams", "dr. lower"} {
			if _, _, err := repo.ResolveOrCreate(ctx, n); err != nil {
				t.Fatalf("ResolveOrCreate(%s): %v", n, err)
			}
		}
		names, err := repo.ListNames(ctx)
		if err != nil {
			t.Fatalf("ListNames: %v", err)
		}
		want := []string{"Dr. Adams", "Dr. Jones", "Dr. Smith", "dr. lower"}
		if len(names) != len(want) {
			t.Fatalf("expected %v, got %v", want, names)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
			}
		}
	})
}

func TestPractitionerRepo_ConcurrentResolve(t *testing.T) {
	ctx := context.Background()
	pool, _ := newSchemaPool(t, "race")
	repo := scheduling.NewPractitionerRepoPG(pool)

	const workers = 16
	ids := make([]int64, workers)
	created := make([]bool, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], created[i], errs[i] = repo.ResolveOrCreate(ctx, "Dr. Race")
		}(i)
	}
	wg.Wait()

	creators := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("worker %d got id %d, want %d", i, ids[i], ids[0])
		}
		if created[i] {
			creators++
		}
	}
	if creators != 1 {
		t.Errorf("expected exactly one creator, got %d", creators)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM practitioners WHERE full_name = 'Dr. Race'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one row, got %d", count)
	}
}

// The same workbook uploaded by several clients at once is stored once.
func TestService_BulkUpload_ConcurrentSameFile(t *testing.T) {
	ctx := context.Background()
	pool, _ := newSchemaPool(t, "bulkrace")
	svc := newService(pool, config.ResolutionCreate)
	if _, err := svc.ResolveOrCreatePractitioner(ctx, "Dr. Race"); err != nil {
		t.Fatalf("ResolveOrCreatePractitioner: %v", err)
	}

	file := buildWorkbook(t, [][]interface{}{
		{"patient_name", "patient_email", "appointment_date", "appointment_time", "service", "notes"},
		{"Jane Doe", "jane@x.com", "2024-05-01", "09:00", "Cleaning", ""},
		{"John Roe", "john@x.com", "2024-05-01", "10:00", "Filling", ""},
		{"Ann Poe", "ann@x.com", "2024-05-02", "11:00", "Checkup", ""},
	}).Bytes()

	const workers = 8
	added := make([]int, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.BulkUpload(ctx, "Dr. Race", bytes.NewReader(file))
			if err != nil {
				errs[i] = err
				return
			}
			added[i] = res.Added
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		total += added[i]
	}
	if total != 3 {
		t.Errorf("expected 3 appointments added across all uploads, got %d", total)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 stored appointments, got %d", count)
	}
}

func TestAppointmentRepo_LockPractitionerNeedsTx(t *testing.T) {
	ctx := context.Background()
	pool, _ := newSchemaPool(t, "lock")
	repo := scheduling.NewAppointmentRepoPG(pool)

	if err := repo.LockPractitioner(ctx, 1); err == nil {
		t.Error("expected an error outside a transaction")
	}
	err := db.NewTransactor(pool).WithTx(ctx, func(ctx context.Context) error {
		return repo.LockPractitioner(ctx, 1)
	})
	if err != nil {
		t.Errorf("LockPractitioner in tx: %v", err)
	}
}

func TestAppointmentRepo(t *testing.T) {
	ctx := context.Background()
	pool, _ := newSchemaPool(t, "appt")
	prac := scheduling.NewPractitionerRepoPG(pool)
	repo := scheduling.NewAppointmentRepoPG(pool)

	smith, _, err := prac.ResolveOrCreate(ctx, "Dr. Smith")
	if err != nil {
		t.Fatalf("create practitioner: %v", err)
	}
	jones, _, err := prac.ResolveOrCreate(ctx, "Dr. Jones")
	if err != nil {
		t.Fatalf("create practitioner: %v", err)
	}

	fixtures := []*scheduling.Appointment{
		{PatientName: "Jane Doe", PatientEmail: "jane@x.com", Date: date("2024-05-02"), Time: "10:00:00", Service: "Cleaning", PractitionerID: smith},
		{PatientName: "John Roe", PatientEmail: "john@x.com", Date: date("2024-05-01"), Time: "14:30:00", Service: "Filling", PractitionerID: jones},
		{PatientName: "Ann Lee", PatientEmail: "ann@x.com", Date: date("2024-05-01"), Time: "09:00:00", Service: "Checkup", PractitionerID: smith},
		{PatientName: "Bob Ray", PatientEmail: "bob@x.com", Date: date("2024-05-10"), Time: "11:15:00", Service: "Crown", PractitionerID: jones, Notes: "sensitive"},
	}

	t.Run("Create", func(t *testing.T) {
		for _, a := range fixtures {
			if err := repo.Create(ctx, a); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if a.ID == 0 {
				t.Fatal("expected generated id")
			}
		}
	})

	t.Run("Create_FK_Violation", func(t *testing.T) {
		a := &scheduling.Appointment{PatientName: "X", Date: date("2024-05-01"), Time: "09:00:00", PractitionerID: 999999}
		if err := repo.Create(ctx, a); err == nil {
			t.Fatal("expected FK violation for unknown practitioner")
		}
	})

	t.Run("Exists", func(t *testing.T) {
		ok, err := repo.Exists(ctx, fixtures[0].DedupKey())
		if err != nil || !ok {
			t.Errorf("expected existing key, got ok=%v err=%v", ok, err)
		}
		other := *fixtures[0]
		other.PractitionerID = jones
		ok, err = repo.Exists(ctx, other.DedupKey())
		if err != nil || ok {
			t.Errorf("expected no match for another practitioner, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("Query_NoFilter", func(t *testing.T) {
		rows, err := repo.Query(ctx, scheduling.AppointmentFilter{})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		want := []string{"Ann Lee", "John Roe", "Jane Doe", "Bob Ray"}
		if len(rows) != len(want) {
			t.Fatalf("expected %d rows, got %d", len(want), len(rows))
		}
		for i, r := range rows {
			if r.PatientName != want[i] {
				t.Errorf("rows[%d] = %s, want %s", i, r.PatientName, want[i])
			}
		}
		if rows[0].Practitioner != "Dr. Smith" || rows[0].Time != "09:00:00" {
			t.Errorf("unexpected joined row %+v", rows[0])
		}
		if rows[3].Notes != "sensitive" || rows[3].Date.Format(scheduling.DateLayout) != "2024-05-10" {
			t.Errorf("unexpected last row %+v", rows[3])
		}
	})

	tests := []struct {
		name   string
		filter scheduling.AppointmentFilter
		want   int
	}{
		{"inclusive range", scheduling.AppointmentFilter{Start: ptrDate("2024-05-01"), End: ptrDate("2024-05-02")}, 3},
		{"single day", scheduling.AppointmentFilter{Start: ptrDate("2024-05-01"), End: ptrDate("2024-05-01")}, 2},
		{"open start", scheduling.AppointmentFilter{End: ptrDate("2024-05-01")}, 2},
		{"open end", scheduling.AppointmentFilter{Start: ptrDate("2024-05-03")}, 1},
		{"practitioner", scheduling.AppointmentFilter{Practitioners: []string{"Dr. Jones"}}, 2},
		{"practitioner set", scheduling.AppointmentFilter{Practitioners: []string{"Dr. Jones", "Dr. Smith"}}, 4},
		{"unknown practitioner", scheduling.AppointmentFilter{Practitioners: []string{"Dr. Who"}}, 0},
		{"range and practitioner", scheduling.AppointmentFilter{Start: ptrDate("2024-05-01"), End: ptrDate("2024-05-02"), Practitioners: []string{"Dr. Smith"}}, 2},
	}
	for _, tt := range tests {
		t.Run("Query_"+tt.name, func(t *testing.T) {
			rows, err := repo.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(rows) != tt.want {
				t.Errorf("expected %d rows, got %d", tt.want, len(rows))
			}
		})
	}
}

func TestService_SubmitAppointment(t *testing.T) {
	ctx := context.Background()
	pool, _ := newSchemaPool(t, "submit")

	req := &scheduling.SubmitAppointmentRequest{
		Name: "Jane Doe", Email: "jane@x.com", Date: "2024-05-01", Time: "09:00", Service: "Cleaning",
	}

	t.Run("Strict_UnknownPractitioner", func(t *testing.T) {
		_, err := newService(pool, config.ResolutionStrict).SubmitAppointment(ctx, req)
		if apperror.KindOf(err) != apperror.KindNotFound {
			t.Fatalf("expected not found, got %v", err)
		}
		var count int
		if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&count); err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != 0 {
			t.Errorf("expected nothing stored, got %d appointments", count)
		}
	})

	t.Run("Create_ServiceAsPractitioner", func(t *testing.T) {
		res, err := newService(pool, config.ResolutionCreate).SubmitAppointment(ctx, req)
		if err != nil {
			t.Fatalf("SubmitAppointment: %v", err)
		}
		if !res.PractitionerCreated || res.Practitioner != "Cleaning" {
			t.Errorf("unexpected result %+v", res)
		}

		rows, err := scheduling.NewAppointmentRepoPG(pool).Query(ctx, scheduling.AppointmentFilter{})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(rows) != 1 || rows[0].Practitioner != "Cleaning" || rows[0].Time != "09:00:00" {
			t.Errorf("unexpected rows %+v", rows)
		}
	})
}

func TestService_BulkUpload(t *testing.T) {
	ctx := context.Background()
	pool, _ := newSchemaPool(t, "bulk")
	svc := newService(pool, config.ResolutionCreate)

	sheet := [][]interface{}{
		{"patient_name", "patient_email", "appointment_date", "appointment_time", "service", "notes"},
		{"Jane Doe", "jane@x.com", "2024-05-01", "09:00", "Cleaning", ""},
		{"Jane Doe", "jane@x.com", "2024-05-01", "09:00", "Cleaning", ""},
		{"John Roe", "john@x.com", "2024-05-02", "10:30", "Filling", "allergic"},
		{"", "ghost@x.com", "2024-05-03", "11:00", "Checkup", ""},
	}

	first, err := svc.BulkUpload(ctx, "Dr. Smith", buildWorkbook(t, sheet))
	if err != nil {
		t.Fatalf("BulkUpload: %v", err)
	}
	if first.Added != 2 || first.SkippedDuplicates != 1 || first.SkippedIncomplete != 1 {
		t.Errorf("unexpected first result %+v", first)
	}

	second, err := svc.BulkUpload(ctx, "Dr. Smith", buildWorkbook(t, sheet))
	if err != nil {
		t.Fatalf("BulkUpload again: %v", err)
	}
	if second.Added != 0 || second.SkippedDuplicates != 3 {
		t.Errorf("expected a repeated upload to add nothing, got %+v", second)
	}

	rows, err := svc.QueryAppointments(ctx, scheduling.AppointmentFilter{Practitioners: []string{"Dr. Smith"}})
	if err != nil {
		t.Fatalf("QueryAppointments: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 stored appointments, got %d", len(rows))
	}
}

func TestService_BulkUpload_RejectsBadRow(t *testing.T) {
	ctx := context.Background()
	pool, _ := newSchemaPool(t, "bulkbad")
	svc := newService(pool, config.ResolutionCreate)

	sheet := [][]interface{}{
		{"patient_name", "appointment_date", "appointment_time"},
		{"Jane Doe", "2024-05-01", "09:00"},
		{"John Roe", "someday", "10:30"},
	}
	_, err := svc.BulkUpload(ctx, "Dr. Smith", buildWorkbook(t, sheet))
	var appErr *apperror.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperror.KindIngestion {
		t.Fatalf("expected ingestion error, got %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected nothing stored, got %d", count)
	}
}
