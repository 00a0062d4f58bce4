package client

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/pkg/civil"
	"github.com/emhr/emhr/pkg/pagination"
	"github.com/emhr/emhr/pkg/params"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/clients", h.SearchClients)
	api.GET("/clients/:id", h.GetClient)

	writeRoles := append([]string{auth.RoleFrontDesk}, auth.ClinicalRoles...)
	writeGroup := api.Group("", auth.RequireRole(writeRoles...))
	writeGroup.POST("/clients", h.CreateClient)
	writeGroup.PUT("/clients/:id", h.UpdateClient)

	clinicalGroup := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleSupervisor))
	clinicalGroup.POST("/clients/:id/discharge", h.DischargeClient)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.DELETE("/clients/:id", h.DeleteClient)
}

func principal(c echo.Context) *auth.Principal {
	return auth.PrincipalFromContext(c.Request().Context())
}

func (h *Handler) CreateClient(c echo.Context) error {
	var cl Client
	if err := c.Bind(&cl); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl.ID = 0
	if err := h.svc.CreateClient(c.Request().Context(), principal(c), &cl); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) GetClient(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	cl, err := h.svc.GetClient(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) SearchClients(c echo.Context) error {
	pg := pagination.FromContext(c)
	providerID, err := params.QueryID(c, "provider_id")
	if err != nil {
		return err
	}
	filter := SearchFilter{
		Query:      c.QueryParam("q"),
		Status:     c.QueryParam("status"),
		ProviderID: providerID,
	}
	items, total, err := h.svc.SearchClients(c.Request().Context(), principal(c), filter, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Client{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateClient(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var cl Client
	if err := c.Bind(&cl); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl.ID = id
	if err := h.svc.UpdateClient(c.Request().Context(), principal(c), &cl); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, cl)
}

type dischargeRequest struct {
	DischargeDate *civil.Date `json:"discharge_date"`
}

func (h *Handler) DischargeClient(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var req dischargeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl, err := h.svc.DischargeClient(c.Request().Context(), principal(c), id, req.DischargeDate)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) DeleteClient(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteClient(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
