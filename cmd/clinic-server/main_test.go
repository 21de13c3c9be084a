package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentalclinic/clinic/internal/config"
	"github.com/dentalclinic/clinic/internal/domain/reporting"
	"github.com/dentalclinic/clinic/internal/domain/scheduling"
	"github.com/dentalclinic/clinic/internal/platform/auth"
	"github.com/dentalclinic/clinic/internal/platform/metrics"
	"github.com/dentalclinic/clinic/internal/platform/middleware"
	"github.com/dentalclinic/clinic/internal/platform/validation"
)

// ---------------------------------------------------------------------------
// In-memory repositories
// ---------------------------------------------------------------------------

type memStore struct {
	mu    sync.Mutex
	names map[string]int64
	appts []*scheduling.Appointment
}

func newMemStore(practitioners ...string) *memStore {
	s := &memStore{names: make(map[string]int64)}
	for _, n := range practitioners {
		s.names[n] = int64(len(s.names) + 1)
	}
	return s
}

func (s *memStore) ListNames(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	return out, nil
}

func (s *memStore) FindByName(_ context.Context, name string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.names[name]
	return id, ok, nil
}

func (s *memStore) ResolveOrCreate(_ context.Context, name string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.names[name]; ok {
		return id, false, nil
	}
	id := int64(len(s.names) + 1)
	s.names[name] = id
	return id, true, nil
}

type memAppointments struct{ *memStore }

func (s memAppointments) Create(_ context.Context, a *scheduling.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = int64(len(s.appts) + 1)
	s.appts = append(s.appts, a)
	return nil
}

func (s memAppointments) Exists(_ context.Context, k scheduling.DedupKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appts {
		if a.DedupKey() == k {
			return true, nil
		}
	}
	return false, nil
}

func (s memAppointments) LockPractitioner(context.Context, int64) error { return nil }

func (s memAppointments) Query(context.Context, scheduling.AppointmentFilter) ([]scheduling.AppointmentRow, error) {
	return nil, nil
}

type noTx struct{}

func (noTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

func newTestApp(t *testing.T, store *memStore) *app {
	t.Helper()
	m := metrics.New()
	sched := scheduling.NewService(store, memAppointments{store}, noTx{}, config.ResolutionCreate, m, zerolog.Nop())
	rep, err := reporting.NewService(sched, reporting.Config{Metrics: m, TempDir: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("reporting.NewService: %v", err)
	}
	return &app{scheduling: sched, reporting: rep, metrics: m}
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                    "test",
		CORSOrigins:            []string{"*"},
		RateLimitRPS:           100,
		RateLimitBurst:         100,
		RequestTimeout:         5 * time.Second,
		UploadMaxSize:          "1M",
		PractitionerResolution: config.ResolutionCreate,
		PDFConverter:           config.ConverterNative,
		MetricsEnabled:         true,
	}
}

func signToken(t *testing.T, secret string, roles ...string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "front-desk",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func serve(t *testing.T, cfg *config.Config, a *app, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := newEcho(cfg, a, nil, middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), zerolog.Nop())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Router
// ---------------------------------------------------------------------------

func TestNewEcho_Health(t *testing.T) {
	cfg := testConfig()
	cfg.AuthJWTSecret = "secret"
	rec := serve(t, cfg, newTestApp(t, newMemStore()), httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected X-Request-ID on the response")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on the response")
	}
}

func TestNewEcho_Metrics(t *testing.T) {
	cfg := testConfig()
	cfg.AuthJWTSecret = "secret"
	rec := serve(t, cfg, newTestApp(t, newMemStore()), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without a token, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected go collector output")
	}
}

func TestNewEcho_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = false
	rec := serve(t, cfg, newTestApp(t, newMemStore()), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestNewEcho_Routes(t *testing.T) {
	e := newEcho(testConfig(), newTestApp(t, newMemStore()), nil, middleware.NewRateLimiter(1, 1), zerolog.Nop())

	have := make(map[string]bool)
	for _, r := range e.Routes() {
		have[r.Method+" "+r.Path] = true
	}
	want := []string{
		"GET /api/v1/practitioners",
		"GET /api/v1/appointments",
		"POST /api/v1/appointments",
		"POST /api/v1/appointments/upload",
		"GET /api/v1/exports/appointments.xlsx",
		"GET /api/v1/exports/report.pdf",
		"GET /practitioners",
		"POST /submit-appointment",
		"POST /upload-appointments",
		"GET /export-excel",
		"GET /export-report",
		"GET /health",
		"GET /metrics",
		"GET /openapi.json",
	}
	for _, w := range want {
		if !have[w] {
			t.Errorf("route %q not registered", w)
		}
	}
}

// Every data route appears in /openapi.json with the same method.
func TestAPIDocs_CoverEveryRoute(t *testing.T) {
	cfg := testConfig()
	cfg.AuthJWTSecret = "secret"
	a := newTestApp(t, newMemStore())
	e := newEcho(cfg, a, nil, middleware.NewRateLimiter(100, 100), zerolog.Nop())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without a token, got %d", rec.Code)
	}
	var doc struct {
		Paths map[string]map[string]interface{} `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}

	open := map[string]bool{"/health": true, "/metrics": true, "/openapi.json": true}
	for _, r := range e.Routes() {
		if r.Method == echo.RouteNotFound || open[r.Path] {
			continue
		}
		path := strings.Replace(r.Path, ":id", "{id}", 1)
		if _, ok := doc.Paths[path][strings.ToLower(r.Method)]; !ok {
			t.Errorf("%s %s is not documented", r.Method, r.Path)
		}
	}
}

func TestNewEcho_AuthRequired(t *testing.T) {
	cfg := testConfig()
	cfg.AuthJWTSecret = "secret"
	a := newTestApp(t, newMemStore("Dr. Smith"))

	for _, path := range []string{"/api/v1/practitioners", "/practitioners"} {
		rec := serve(t, cfg, a, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/practitioners", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", auth.RoleViewer))
	rec := serve(t, cfg, a, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with a viewer token, got %d: %s", rec.Code, rec.Body.String())
	}
	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(names) != 1 || names[0] != "Dr. Smith" {
		t.Errorf("unexpected practitioners %v", names)
	}
}

func TestNewEcho_UnknownPathIsNotFoundUnderAuth(t *testing.T) {
	cfg := testConfig()
	cfg.AuthJWTSecret = "secret"
	a := newTestApp(t, newMemStore())

	for _, path := range []string{"/nope", "/favicon.ico", "/practitioners/extra"} {
		rec := serve(t, cfg, a, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
	rec := serve(t, cfg, a, httptest.NewRequest(http.MethodGet, "/export-excel", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("/export-excel: expected 401 without a token, got %d", rec.Code)
	}
}

func TestNewEcho_ViewerCannotSubmit(t *testing.T) {
	cfg := testConfig()
	cfg.AuthJWTSecret = "secret"
	body := `{"name":"Jane Doe","email":"jane@x.com","date":"2024-05-01","time":"09:00","service":"Cleaning","practitioner":"Dr. Smith"}`

	req := httptest.NewRequest(http.MethodPost, "/submit-appointment", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", auth.RoleViewer))
	rec := serve(t, cfg, newTestApp(t, newMemStore()), req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestNewEcho_LegacySubmit(t *testing.T) {
	store := newMemStore()
	body := `{"name":"Jane Doe","email":"jane@x.com","date":"2024-05-01","time":"09:00","service":"Cleaning","notes":""}`

	req := httptest.NewRequest(http.MethodPost, "/submit-appointment", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(t, testConfig(), newTestApp(t, store), req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := store.names["Cleaning"]; !ok {
		t.Error("expected the service name to be resolved as practitioner")
	}
	if len(store.appts) != 1 {
		t.Errorf("expected 1 appointment, got %d", len(store.appts))
	}
}

func TestNewEcho_InvalidSubmit(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(`{"name":"Jane Doe"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(t, testConfig(), newTestApp(t, newMemStore()), req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestNewEcho_EmptyExportIsNotFound(t *testing.T) {
	rec := serve(t, testConfig(), newTestApp(t, newMemStore()), httptest.NewRequest(http.MethodGet, "/export-excel", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Logger
// ---------------------------------------------------------------------------

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := newLogger("production", tt.level).GetLevel(); got != tt.want {
			t.Errorf("newLogger(%q) level = %v, want %v", tt.level, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Seed
// ---------------------------------------------------------------------------

func TestDemoAppointments(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	reqs := demoAppointments(gofakeit.New(42), 3, 25, now)
	if len(reqs) != 25 {
		t.Fatalf("expected 25 requests, got %d", len(reqs))
	}

	v := validation.New()
	practitioners := make(map[string]bool)
	for _, r := range reqs {
		if err := v.Validate(r); err != nil {
			t.Fatalf("generated request fails validation: %v (%+v)", err, r)
		}
		practitioners[r.Practitioner] = true
		d, _ := time.Parse(scheduling.DateLayout, r.Date)
		if d.Before(now.AddDate(0, 0, -16)) || d.After(now.AddDate(0, 0, 16)) {
			t.Errorf("date %s outside the seeding window", r.Date)
		}
	}
	if len(practitioners) > 3 {
		t.Errorf("expected at most 3 practitioners, got %d", len(practitioners))
	}

	again := demoAppointments(gofakeit.New(42), 3, 25, now)
	if again[0].Name != reqs[0].Name || again[24].Time != reqs[24].Time {
		t.Error("expected the same seed to produce the same data")
	}
}

type failingSubmitter struct {
	after int
	calls int
}

func (f *failingSubmitter) SubmitAppointment(context.Context, *scheduling.SubmitAppointmentRequest) (*scheduling.SubmitResult, error) {
	f.calls++
	if f.calls > f.after {
		return nil, errors.New("boom")
	}
	return &scheduling.SubmitResult{}, nil
}

func TestSubmitAll_StopsOnError(t *testing.T) {
	reqs := demoAppointments(gofakeit.New(1), 1, 5, time.Now())
	n, err := submitAll(context.Background(), &failingSubmitter{after: 2}, reqs)
	if err == nil || !strings.Contains(err.Error(), "seed appointment 3") {
		t.Fatalf("expected failure on the third appointment, got %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 submitted, got %d", n)
	}
}

// ---------------------------------------------------------------------------
// Report
// ---------------------------------------------------------------------------

type fakeExporter struct {
	pdf []byte
	err error
}

func (f *fakeExporter) ExportSpreadsheet(context.Context, scheduling.AppointmentFilter) (*reporting.Spreadsheet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &reporting.Spreadsheet{Data: []byte("PK"), Filename: "appointments_20240501.xlsx"}, nil
}

func (f *fakeExporter) GenerateReport(_ context.Context, _ scheduling.AppointmentFilter, _ string, send reporting.SendFunc) error {
	if f.err != nil {
		return f.err
	}
	src := filepath.Join(os.TempDir(), "clinic-report-test.pdf")
	if err := os.WriteFile(src, f.pdf, 0o600); err != nil {
		return err
	}
	defer os.Remove(src)
	return send(src)
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	svc := &fakeExporter{pdf: []byte("%PDF-1.3 test")}

	out := filepath.Join(dir, "out.pdf")
	path, err := writeReport(context.Background(), svc, scheduling.AppointmentFilter{}, "pdf", out, "")
	if err != nil {
		t.Fatalf("writeReport pdf: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || !bytes.HasPrefix(got, []byte("%PDF")) {
		t.Errorf("unexpected pdf output %q (%v)", got, err)
	}

	xlsx := filepath.Join(dir, "out.xlsx")
	if _, err := writeReport(context.Background(), svc, scheduling.AppointmentFilter{}, "xlsx", xlsx, ""); err != nil {
		t.Fatalf("writeReport xlsx: %v", err)
	}
	if _, err := os.Stat(xlsx); err != nil {
		t.Errorf("expected spreadsheet written: %v", err)
	}
}

func TestWriteReport_Error(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")
	svc := &fakeExporter{err: errors.New("no appointments")}
	if _, err := writeReport(context.Background(), svc, scheduling.AppointmentFilter{}, "pdf", out, ""); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("expected no output file on failure")
	}
}
