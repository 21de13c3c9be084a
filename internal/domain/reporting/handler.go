package reporting

import (
	"bytes"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/dentalclinic/clinic/internal/domain/scheduling"
	"github.com/dentalclinic/clinic/internal/platform/apperror"
	"github.com/dentalclinic/clinic/internal/platform/auth"
	"github.com/dentalclinic/clinic/internal/platform/middleware"
	"github.com/dentalclinic/clinic/internal/platform/spreadsheet"
)

// Handler provides HTTP handlers for exports and measures.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the export routes on api and their original paths on
// legacy.
func (h *Handler) RegisterRoutes(api *echo.Group, legacy middleware.Routes) {
	read := auth.RequireRole(auth.RoleViewer, auth.RoleStaff)

	api.GET("/exports/appointments.xlsx", h.ExportSpreadsheet, read)
	api.GET("/exports/report.pdf", h.ExportReport, read)
	api.GET("/reports/measures", h.ListMeasures, read)
	api.GET("/reports/measures/:id/evaluate", h.EvaluateMeasure, read)

	if legacy != nil {
		legacy.GET("/export-excel", h.ExportSpreadsheet, read)
		legacy.GET("/export-report", h.ExportReport, read)
	}
}

func (h *Handler) ExportSpreadsheet(c echo.Context) error {
	f, err := scheduling.FilterFromRequest(c)
	if err != nil {
		return apperror.HTTPError(err)
	}
	sheet, err := h.svc.ExportSpreadsheet(c.Request().Context(), f)
	if err != nil {
		return apperror.HTTPError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+sheet.Filename)
	return c.Stream(http.StatusOK, spreadsheet.ContentType, bytes.NewReader(sheet.Data))
}

// ExportReport streams the PDF report. The workspace holding it is released
// once the stream has been written or has failed.
func (h *Handler) ExportReport(c echo.Context) error {
	f, err := scheduling.FilterFromRequest(c)
	if err != nil {
		return apperror.HTTPError(err)
	}
	lang := c.Request().Header.Get("Accept-Language")

	err = h.svc.GenerateReport(c.Request().Context(), f, lang, func(path string) error {
		pdf, err := os.Open(path)
		if err != nil {
			return err
		}
		defer pdf.Close()
		c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+ReportFilename)
		return c.Stream(http.StatusOK, "application/pdf", pdf)
	})
	if err != nil {
		// Once the stream has started echo only logs this; the client sees a
		// truncated body.
		return apperror.HTTPError(err)
	}
	return nil
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

func (h *Handler) EvaluateMeasure(c echo.Context) error {
	f, err := scheduling.FilterFromRequest(c)
	if err != nil {
		return apperror.HTTPError(err)
	}
	report, err := h.svc.EvaluateMeasure(c.Request().Context(), c.Param("id"), f)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, report)
}
