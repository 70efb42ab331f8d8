package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	// MaxAge is how long browsers may cache a preflight answer, in seconds.
	MaxAge int
}

// CORS returns echo's CORS middleware for the dashboard origins. Retry-After and
// the request id are exposed so browser clients can back off and report them.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}
	if len(cfg.AllowMethods) == 0 {
		cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.AllowOrigins,
		AllowMethods:  cfg.AllowMethods,
		AllowHeaders:  cfg.AllowHeaders,
		ExposeHeaders: []string{echo.HeaderRetryAfter, echo.HeaderXRequestID},
		MaxAge:        cfg.MaxAge,
	})
}
