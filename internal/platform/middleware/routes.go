package middleware

import (
	"github.com/labstack/echo/v4"
)

// Routes is the registration surface shared by *echo.Echo, *echo.Group and
// Guarded.
type Routes interface {
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// Guarded registers routes with guards ahead of each route's own middleware.
// A group with middleware adds catch-all routes for its prefix, which at the
// root would run the guards for every unknown path; Guarded adds none, so
// unmatched paths still answer 404.
type Guarded struct {
	routes Routes
	guards []echo.MiddlewareFunc
}

func Guard(r Routes, guards ...echo.MiddlewareFunc) *Guarded {
	return &Guarded{routes: r, guards: guards}
}

func (g *Guarded) GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route {
	return g.routes.GET(path, h, g.with(m)...)
}

func (g *Guarded) POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route {
	return g.routes.POST(path, h, g.with(m)...)
}

func (g *Guarded) with(m []echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(g.guards)+len(m))
	out = append(out, g.guards...)
	return append(out, m...)
}
