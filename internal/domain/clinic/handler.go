package clinic

import (
	"net/http"

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/clinics", h.ListClinics)
	api.GET("/clinics/:slug", h.GetClinic)

	admin := api.Group("", auth.RequireRole(auth.RoleClinicAdmin))
	admin.POST("/clinics", h.CreateClinic)
	admin.POST("/clinics/:slug/memberships", h.AddMembership)
	admin.GET("/clinics/:slug/memberships", h.ListMemberships)
}

func (h *Handler) CreateClinic(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}
	cl, err := h.svc.CreateClinic(c.Request().Context(), auth.CallerFrom(c), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) ListClinics(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListClinics(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetClinic(c echo.Context) error {
	cl, err := h.svc.GetClinic(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) AddMembership(c echo.Context) error {
	var in MembershipInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}
	m, err := h.svc.AddMembership(c.Request().Context(), auth.CallerFrom(c), c.Param("slug"), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) ListMemberships(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMemberships(c.Request().Context(), auth.CallerFrom(c), c.Param("slug"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
