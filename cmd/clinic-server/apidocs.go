package main

import (
	"net/http"

	"github.com/dentalclinic/clinic/internal/domain/reporting"
	"github.com/dentalclinic/clinic/internal/platform/openapi"
	"github.com/dentalclinic/clinic/internal/platform/spreadsheet"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var filterParams = []openapi.Param{
	{Name: "startDate", In: "query", Format: "date", Description: "First appointment date, inclusive"},
	{Name: "endDate", In: "query", Format: "date", Description: "Last appointment date, inclusive"},
	{Name: "providers", In: "query", Type: "array", Description: "Practitioner names, repeatable or comma separated"},
}

var uploadForm = []openapi.Param{
	{Name: "file", Format: "binary", Required: true},
	{Name: "provider", Description: "Practitioner for rows without one"},
}

// apiDocs describes every clinic route for /openapi.json.
func apiDocs() *openapi.Generator {
	g := openapi.NewGenerator("Dental Clinic API", version, "/")

	g.AddSchema("SubmitAppointmentRequest", openapi.Object(
		[]string{"name", "email", "date", "time", "service"},
		map[string]string{
			"name": "string", "email": "string:email", "date": "string:date", "time": "string",
			"service": "string", "practitioner": "string", "notes": "string",
		}))
	g.AddSchema("SubmitResult", openapi.Object(nil, map[string]string{
		"message": "string", "id": "integer", "practitioner_id": "integer",
	}))
	g.AddSchema("UploadResult", openapi.Object(nil, map[string]string{
		"message": "string", "added": "integer", "skipped_duplicates": "integer", "skipped_incomplete": "integer",
	}))
	g.AddSchema("AppointmentRow", openapi.Object(nil, map[string]string{
		"id": "integer", "patient_name": "string", "patient_email": "string", "appointment_date": "string:date",
		"appointment_time": "string", "service": "string", "notes": "string",
		"practitioner_id": "integer", "practitioner": "string",
	}))
	g.AddSchema("AppointmentPage", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"data":  map[string]interface{}{"type": "array", "items": map[string]string{"$ref": "#/components/schemas/AppointmentRow"}},
			"total": map[string]string{"type": "integer"},
		},
	})
	g.AddSchema("MeasureDefinition", openapi.Object(nil, map[string]string{
		"id": "string", "name": "string", "description": "string",
	}))
	g.AddSchema("MeasureReport", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"measure_id":   map[string]string{"type": "string"},
			"measure_name": map[string]string{"type": "string"},
			"generated_at": map[string]string{"type": "string", "format": "date-time"},
			"results":      map[string]interface{}{"type": "array", "items": map[string]string{"type": "object"}},
			"parameters":   map[string]interface{}{"type": "object", "additionalProperties": map[string]string{"type": "string"}},
		},
	})

	names := openapi.Response{Description: "Practitioner names in ascending order"}
	submitted := map[int]openapi.Response{
		201: {Description: "Appointment created", Schema: "SubmitResult"},
		400: {Description: "Missing or malformed field"},
		404: {Description: "Unknown practitioner"},
	}
	uploaded := map[int]openapi.Response{
		200: {Description: "Rows added and skipped", Schema: "UploadResult"},
		400: {Description: "Unreadable workbook or missing column"},
		404: {Description: "Unknown practitioner"},
	}
	xlsx := map[int]openapi.Response{
		200: {Description: "Appointment workbook", ContentType: spreadsheet.ContentType},
		400: {Description: "Malformed filter"},
		404: {Description: "No appointments match"},
	}
	pdf := map[int]openapi.Response{
		200: {Description: "Appointment report " + reporting.ReportFilename, ContentType: "application/pdf"},
		400: {Description: "Malformed filter"},
		404: {Description: "No appointments match"},
	}
	languageParam := openapi.Param{Name: "Accept-Language", In: "header", Description: "Locale for report dates"}

	g.Add(
		openapi.Operation{
			Method: http.MethodGet, Path: "/api/v1/practitioners", ID: "listPractitioners",
			Summary: "List practitioner names", Tag: "practitioners",
			Responses: map[int]openapi.Response{200: names},
		},
		openapi.Operation{
			Method: http.MethodGet, Path: "/api/v1/appointments", ID: "queryAppointments",
			Summary: "Query appointments by date range and practitioner", Tag: "appointments",
			Params: filterParams, Responses: map[int]openapi.Response{
				200: {Description: "Matching appointments", Schema: "AppointmentPage"},
				400: {Description: "Malformed filter"},
			},
		},
		openapi.Operation{
			Method: http.MethodPost, Path: "/api/v1/appointments", ID: "submitAppointment",
			Summary: "Book one appointment", Tag: "appointments", Body: "SubmitAppointmentRequest",
			Responses: submitted,
		},
		openapi.Operation{
			Method: http.MethodPost, Path: "/api/v1/appointments/upload", ID: "uploadAppointments",
			Summary: "Bulk import appointments from a workbook", Tag: "appointments",
			Multipart: uploadForm, Responses: uploaded,
		},
		openapi.Operation{
			Method: http.MethodGet, Path: "/api/v1/exports/appointments.xlsx", ID: "exportSpreadsheet",
			Summary: "Download matching appointments as a workbook", Tag: "exports",
			Params: filterParams, Responses: xlsx,
		},
		openapi.Operation{
			Method: http.MethodGet, Path: "/api/v1/exports/report.pdf", ID: "exportReport",
			Summary: "Download the summarized PDF report", Tag: "exports",
			Params: append([]openapi.Param{languageParam}, filterParams...), Responses: pdf,
		},
		openapi.Operation{
			Method: http.MethodGet, Path: "/api/v1/reports/measures", ID: "listMeasures",
			Summary: "List predefined measures", Tag: "reports",
			Responses: map[int]openapi.Response{200: {Description: "Measures", Schema: "MeasureDefinition", Array: true}},
		},
		openapi.Operation{
			Method: http.MethodGet, Path: "/api/v1/reports/measures/:id/evaluate", ID: "evaluateMeasure",
			Summary: "Evaluate a measure over matching appointments", Tag: "reports",
			Params: append([]openapi.Param{{Name: "id", In: "path"}}, filterParams...), Responses: map[int]openapi.Response{
				200: {Description: "Measure results", Schema: "MeasureReport"},
				404: {Description: "Unknown measure"},
			},
		},

		openapi.Operation{
			Method: http.MethodGet, Path: "/practitioners", ID: "legacyListPractitioners",
			Summary: "List practitioner names", Tag: "legacy", Deprecated: true,
			Responses: map[int]openapi.Response{200: names},
		},
		openapi.Operation{
			Method: http.MethodPost, Path: "/submit-appointment", ID: "legacySubmitAppointment",
			Summary: "Book one appointment", Tag: "legacy", Deprecated: true,
			Body: "SubmitAppointmentRequest", Responses: submitted,
		},
		openapi.Operation{
			Method: http.MethodPost, Path: "/upload-appointments", ID: "legacyUploadAppointments",
			Summary: "Bulk import appointments", Tag: "legacy", Deprecated: true,
			Multipart: uploadForm, Responses: uploaded,
		},
		openapi.Operation{
			Method: http.MethodGet, Path: "/export-excel", ID: "legacyExportSpreadsheet",
			Summary: "Download matching appointments as a workbook", Tag: "legacy", Deprecated: true,
			Params: filterParams, Responses: xlsx,
		},
		openapi.Operation{
			Method: http.MethodGet, Path: "/export-report", ID: "legacyExportReport",
			Summary: "Download the summarized PDF report", Tag: "legacy", Deprecated: true,
			Params: append([]openapi.Param{languageParam}, filterParams...), Responses: pdf,
		},
	)
	return g
}
