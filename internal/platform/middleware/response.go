package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/karinehei/TherapyCare/internal/platform/auth"
)

// SecurityConfig controls SecurityHeaders.
type SecurityConfig struct {
	// HSTS adds Strict-Transport-Security. Enable only when the API is
	// served over TLS.
	HSTS bool
	// NoStorePrefix marks the paths whose responses must never be cached.
	// Empty means every path.
	NoStorePrefix string
}

// SecurityHeaders sets browser hardening headers on every response. Responses
// under NoStorePrefix carry patient records and session notes, so they are
// also marked uncacheable.
func SecurityHeaders(cfg SecurityConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			if strings.HasPrefix(c.Request().URL.Path, cfg.NoStorePrefix) {
				h.Set("Cache-Control", "no-store")
				h.Set("Pragma", "no-cache")
			}
			return next(c)
		}
	}
}

// Recovery turns a handler panic into a 500 carrying the request id, so the
// log line can be found from a client report. The panic value is logged,
// never returned.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				var stack [4096]byte
				n := runtime.Stack(stack[:], false)
				rid, _ := c.Get("request_id").(string)

				evt := logger.Error().
					Str("request_id", rid).
					Str("method", c.Request().Method).
					Str("path", c.Path()).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", stack[:n])
				if p := auth.PrincipalFromContext(c.Request().Context()); p != nil {
					evt = evt.Str("principal_id", p.ID.String())
				}
				evt.Msg("panic recovered")

				body := map[string]interface{}{"detail": "internal server error"}
				if rid != "" {
					body["request_id"] = rid
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, body)
			}()
			return next(c)
		}
	}
}

// RequestTimeout puts a deadline on the request context. Handlers run on the
// request goroutine; services pass the context to pgx, so an expired deadline
// aborts the query and rolls back the transaction. If the deadline has passed
// and nothing was written, the response becomes a 504 whatever the handler
// returned.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return echo.NewHTTPError(http.StatusGatewayTimeout, map[string]interface{}{
					"detail": "request exceeded the time limit",
				}).SetInternal(err)
			}
			return err
		}
	}
}
