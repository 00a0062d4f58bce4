package treatment

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/pkg/params"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole(auth.ClinicalRoles...))
	clinical.GET("/clients/:id/treatment-goals", h.ListGoals)
	clinical.POST("/clients/:id/treatment-goals", h.CreateGoal)
	clinical.GET("/treatment-goals/:id", h.GetGoal)
	clinical.PUT("/treatment-goals/:id", h.UpdateGoal)
	clinical.POST("/treatment-goals/:id/status", h.SetGoalStatus)
	clinical.DELETE("/treatment-goals/:id", h.DeleteGoal)
	clinical.GET("/interventions", h.ListInterventions)
	clinical.GET("/interventions/:id", h.GetIntervention)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/interventions", h.CreateIntervention)
	admin.PUT("/interventions/:id", h.UpdateIntervention)
}

func principal(c echo.Context) *auth.Principal {
	return auth.PrincipalFromContext(c.Request().Context())
}

func (h *Handler) ListGoals(c echo.Context) error {
	clientID, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListGoals(c.Request().Context(), principal(c), clientID, c.QueryParam("status"))
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Goal{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateGoal(c echo.Context) error {
	clientID, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var g Goal
	if err := c.Bind(&g); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	g.ID = 0
	g.ClientID = clientID
	if err := h.svc.CreateGoal(c.Request().Context(), principal(c), &g); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, g)
}

func (h *Handler) GetGoal(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	g, err := h.svc.GetGoal(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) UpdateGoal(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var g Goal
	if err := c.Bind(&g); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	g.ID = id
	updated, err := h.svc.UpdateGoal(c.Request().Context(), principal(c), &g)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, updated)
}

type goalStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetGoalStatus(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var req goalStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	g, err := h.svc.SetGoalStatus(c.Request().Context(), principal(c), id, req.Status)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) DeleteGoal(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteGoal(c.Request().Context(), principal(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListInterventions(c echo.Context) error {
	includeInactive, err := params.QueryBool(c, "include_inactive")
	if err != nil {
		return err
	}
	filter := InterventionFilter{
		Category:   c.QueryParam("category"),
		Query:      c.QueryParam("q"),
		ActiveOnly: includeInactive == nil || !*includeInactive,
	}
	items, err := h.svc.ListInterventions(c.Request().Context(), filter)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Intervention{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetIntervention(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	i, err := h.svc.GetIntervention(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, i)
}

func (h *Handler) CreateIntervention(c echo.Context) error {
	var i Intervention
	if err := c.Bind(&i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	i.ID = 0
	if err := h.svc.CreateIntervention(c.Request().Context(), &i); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, i)
}

func (h *Handler) UpdateIntervention(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var i Intervention
	if err := c.Bind(&i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	i.ID = id
	if err := h.svc.UpdateIntervention(c.Request().Context(), &i); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, i)
}
