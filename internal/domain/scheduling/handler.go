package scheduling

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dentalclinic/clinic/internal/platform/apperror"
	"github.com/dentalclinic/clinic/internal/platform/auth"
	"github.com/dentalclinic/clinic/internal/platform/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the versioned routes on api and the original
// unversioned paths on legacy. Role checks are attached per route so the
// groups keep echo's normal 404 handling.
func (h *Handler) RegisterRoutes(api *echo.Group, legacy middleware.Routes) {
	read := auth.RequireRole(auth.RoleViewer, auth.RoleStaff)
	write := auth.RequireRole(auth.RoleStaff)

	api.GET("/practitioners", h.ListPractitioners, read)
	api.GET("/appointments", h.QueryAppointments, read)
	api.POST("/appointments", h.SubmitAppointment, write)
	api.POST("/appointments/upload", h.UploadAppointments, write)

	if legacy != nil {
		legacy.GET("/practitioners", h.ListPractitioners, read)
		legacy.POST("/submit-appointment", h.SubmitAppointment, write)
		legacy.POST("/upload-appointments", h.UploadAppointments, write)
	}
}

func (h *Handler) ListPractitioners(c echo.Context) error {
	names, err := h.svc.ListPractitioners(c.Request().Context())
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, names)
}

func (h *Handler) SubmitAppointment(c echo.Context) error {
	var req SubmitAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if err := c.Validate(&req); err != nil {
		return apperror.HTTPError(err)
	}
	res, err := h.svc.SubmitAppointment(c.Request().Context(), &req)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":         "Appointment created",
		"id":              res.ID,
		"practitioner_id": res.PractitionerID,
	})
}

func (h *Handler) UploadAppointments(c echo.Context) error {
	provider := c.FormValue("provider")
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	defer f.Close()

	res, err := h.svc.BulkUpload(c.Request().Context(), provider, f)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":            "Upload successful",
		"added":              res.Added,
		"skipped_duplicates": res.SkippedDuplicates,
		"skipped_incomplete": res.SkippedIncomplete,
	})
}

func (h *Handler) QueryAppointments(c echo.Context) error {
	f, err := FilterFromRequest(c)
	if err != nil {
		return apperror.HTTPError(err)
	}
	rows, err := h.svc.QueryAppointments(c.Request().Context(), f)
	if err != nil {
		return apperror.HTTPError(err)
	}
	if rows == nil {
		rows = []AppointmentRow{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  rows,
		"total": len(rows),
	})
}

// FilterFromRequest reads startDate, endDate and providers from the query
// string. It is shared with the export handlers.
func FilterFromRequest(c echo.Context) (AppointmentFilter, error) {
	q := c.QueryParams()
	return ParseFilter(q.Get("startDate"), q.Get("endDate"), q["providers"])
}
