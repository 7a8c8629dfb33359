package account

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	authed := api.Group("", auth.RequireAuthenticated())
	authed.GET("/me", h.Me)
	authed.POST("/auth/session", h.Session)
	authed.POST("/auth/logout", h.Logout)
}

// SyncUser mirrors the request principal into app_user before the handler
// runs, so foreign keys to the caller always resolve.
func (h *Handler) SyncUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := auth.PrincipalFromContext(c.Request().Context())
			if p != nil {
				if err := h.svc.EnsureUser(c.Request().Context(), p); err != nil {
					return apperr.HTTP(err)
				}
			}
			return next(c)
		}
	}
}

func (h *Handler) Me(c echo.Context) error {
	u, err := h.svc.Me(c.Request().Context(), auth.CallerFrom(c))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Session(c echo.Context) error {
	caller := auth.CallerFrom(c)
	if err := h.svc.RecordLogin(c.Request().Context(), caller); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, caller.Principal)
}

func (h *Handler) Logout(c echo.Context) error {
	if err := h.svc.RecordLogout(c.Request().Context(), auth.CallerFrom(c)); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
