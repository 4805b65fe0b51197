package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/drinks-fyi/pkg/drinks"
	"github.com/Sternrassler/drinks-fyi/pkg/store"
)

// requestLogger writes one zerolog event per request.
func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// resolve the status before logging
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			event := logger.Info()
			switch {
			case res.Status >= 500:
				event = logger.Error().Err(err)
			case res.Status >= 400:
				event = logger.Warn()
			}
			event.
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("cache", res.Header().Get("X-Cache")).
				Msg("HTTP request")
			return nil
		}
	}
}

// noStore keeps private pages out of browser and edge caches.
func noStore(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderCacheControl, "private, no-store")
		return next(c)
	}
}

type errorPage struct {
	Status  int
	Message string
}

// errorHandler maps domain errors to HTTP statuses and renders an error page,
// or JSON for API clients.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	case errors.Is(err, store.ErrNotFound):
		code, msg = http.StatusNotFound, "We could not find that drink."
	case errors.Is(err, store.ErrConflict):
		code, msg = http.StatusConflict, err.Error()
	case errors.Is(err, drinks.ErrInvalid):
		code, msg = http.StatusUnprocessableEntity, err.Error()
	}

	if code >= 500 {
		s.logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("Request failed")
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")

	var werr error
	switch {
	case c.Request().Method == http.MethodHead:
		werr = c.NoContent(code)
	case wantsJSON(c):
		werr = c.JSON(code, map[string]any{"error": msg, "status": code})
	default:
		werr = c.Render(code, "error", view{
			Title: http.StatusText(code),
			Data:  errorPage{Status: code, Message: msg},
		})
	}
	if werr != nil {
		s.logger.Error().Err(werr).Msg("Failed to write error response")
	}
}

func wantsJSON(c echo.Context) bool {
	req := c.Request()
	return strings.HasPrefix(req.URL.Path, "/webhooks/") ||
		strings.Contains(req.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}
