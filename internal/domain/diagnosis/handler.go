package diagnosis

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/pkg/civil"
	"github.com/emhr/emhr/pkg/params"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readRoles := append([]string{auth.RoleBiller}, auth.ClinicalRoles...)
	read := api.Group("", auth.RequireRole(readRoles...))
	read.GET("/clients/:id/diagnoses", h.ListDiagnoses)

	write := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleSupervisor))
	write.POST("/clients/:id/diagnoses", h.CreateDiagnosis)
	write.PUT("/diagnoses/:id", h.UpdateDiagnosis)
	write.POST("/diagnoses/:id/resolve", h.ResolveDiagnosis)
}

func principal(c echo.Context) *auth.Principal {
	return auth.PrincipalFromContext(c.Request().Context())
}

func (h *Handler) ListDiagnoses(c echo.Context) error {
	clientID, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListDiagnoses(c.Request().Context(), principal(c), clientID, c.QueryParam("status"))
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Diagnosis{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateDiagnosis(c echo.Context) error {
	clientID, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var d Diagnosis
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = 0
	d.ClientID = clientID
	if err := h.svc.CreateDiagnosis(c.Request().Context(), principal(c), &d); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) UpdateDiagnosis(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var d Diagnosis
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = id
	updated, err := h.svc.UpdateDiagnosis(c.Request().Context(), principal(c), &d)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, updated)
}

type resolveRequest struct {
	ResolvedDate *civil.Date `json:"resolved_date"`
}

func (h *Handler) ResolveDiagnosis(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.ResolveDiagnosis(c.Request().Context(), principal(c), id, req.ResolvedDate)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}
