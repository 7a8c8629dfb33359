package auditevent

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
	"github.com/karinehei/TherapyCare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the read endpoints behind authentication. Write verbs
// are mounted outside it so every caller, anonymous included, gets 403.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/audit/events", auth.RequireAuthenticated())
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		api.Add(method, "/audit/events", h.Reject)
		api.Add(method, "/audit/events/:id", h.Reject)
	}
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	q := Query{
		Actor:      c.QueryParam("actor"),
		Action:     c.QueryParam("action"),
		EntityType: c.QueryParam("entity_type"),
		EntityID:   c.QueryParam("entity_id"),
		DateFrom:   c.QueryParam("date_from"),
		DateTo:     c.QueryParam("date_to"),
	}
	items, total, err := h.svc.List(c.Request().Context(), auth.CallerFrom(c), q, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"detail": "invalid id"})
	}
	e, err := h.svc.Get(c.Request().Context(), auth.CallerFrom(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Reject(c echo.Context) error {
	return apperr.HTTP(h.svc.Write(auth.CallerFrom(c)))
}
