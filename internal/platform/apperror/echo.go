package apperror

import "github.com/labstack/echo/v4"

// HTTPError converts err for echo. The cause rides along as the internal
// error so the request logger records it; the body carries only the public
// message.
func HTTPError(err error) *echo.HTTPError {
	return echo.NewHTTPError(HTTPStatus(err), PublicMessage(err)).SetInternal(err)
}
