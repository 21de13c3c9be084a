package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentalclinic/clinic/internal/platform/auth"
)

// AuditEntry records one access to clinic data.
type AuditEntry struct {
	UserID    string
	UserRoles []string
	Resource  string // practitioners, appointments, exports, reports
	Action    string // read, create, export
	Route     string
	Method    string
	IPAddress string
	UserAgent string
	RequestID string
	Status    int
	Timestamp time.Time
}

// Audit logs who read, created or exported appointment data. It runs after
// authentication so the caller's identity is on the context. Requests that
// matched no data route are not audited.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			route := c.Path()
			resource := resourceOf(route)
			if resource == "" {
				return err
			}

			req := c.Request()
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			entry := AuditEntry{
				UserID:    auth.UserIDFromContext(req.Context()),
				UserRoles: auth.RolesFromContext(req.Context()),
				Resource:  resource,
				Action:    actionOf(req.Method, resource),
				Route:     route,
				Method:    req.Method,
				IPAddress: c.RealIP(),
				UserAgent: req.UserAgent(),
				RequestID: RequestIDFromContext(req.Context()),
				Status:    status,
				Timestamp: time.Now().UTC(),
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("route", entry.Route).
				Str("remote_ip", entry.IPAddress).
				Str("user_agent", entry.UserAgent).
				Int("status", entry.Status).
				Time("at", entry.Timestamp).
				Msg("data_access")

			return err
		}
	}
}

// resourceOf maps a route template, versioned or not, to the data it serves.
func resourceOf(route string) string {
	switch {
	case strings.HasSuffix(route, "/*") || route == "":
		return ""
	case strings.Contains(route, "practitioners"):
		return "practitioners"
	case strings.Contains(route, "/exports/") || strings.HasPrefix(route, "/export-"):
		return "exports"
	case strings.Contains(route, "/reports/"):
		return "reports"
	case strings.Contains(route, "appointment"):
		return "appointments"
	default:
		return ""
	}
}

func actionOf(method, resource string) string {
	switch {
	case resource == "exports":
		return "export"
	case method == http.MethodPost:
		return "create"
	default:
		return "read"
	}
}
