package referral

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

// RegisterRoutes mounts the referral endpoints. createMW wraps only the
// public create route, which is where the anonymous limiter goes.
func (h *Handler) RegisterRoutes(api *echo.Group, createMW ...echo.MiddlewareFunc) {
	api.POST("/referrals", h.Create, createMW...)
	api.GET("/referrals", h.List)
	api.GET("/referrals/:id", h.Get, auth.RequireAuthenticated())
	api.PATCH("/referrals/:id", h.Update, auth.RequireAuthenticated())
	api.POST("/referrals/:id/notes", h.AddNote, auth.RequireAuthenticated())
	api.POST("/referrals/:id/questionnaires", h.AddQuestionnaire, auth.RequireAuthenticated())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, map[string]string{"detail": "invalid id"})
	}
	return id, nil
}

func badBody() error {
	return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return badBody()
	}
	d, err := h.svc.Create(c.Request().Context(), auth.CallerFrom(c), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), auth.CallerFrom(c), Status(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Get(c.Request().Context(), auth.CallerFrom(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return badBody()
	}
	d, err := h.svc.Update(c.Request().Context(), auth.CallerFrom(c), id, in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) AddNote(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		Body string `json:"body"`
	}
	if err := c.Bind(&body); err != nil {
		return badBody()
	}
	n, err := h.svc.AddNote(c.Request().Context(), auth.CallerFrom(c), id, body.Body)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) AddQuestionnaire(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in QuestionnaireInput
	if err := c.Bind(&in); err != nil {
		return badBody()
	}
	q, err := h.svc.AddQuestionnaire(c.Request().Context(), auth.CallerFrom(c), id, in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, q)
}
