package insurance

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
	readRoles := append([]string{auth.RoleBiller, auth.RoleFrontDesk}, auth.ClinicalRoles...)
	read := api.Group("", auth.RequireRole(readRoles...))
	read.GET("/clients/:id/insurance", h.ListInsurance)
	read.GET("/insurance/:id", h.GetInsurance)

	write := api.Group("", auth.RequireRole(auth.RoleBiller, auth.RoleFrontDesk))
	write.POST("/clients/:id/insurance", h.CreateInsurance)
	write.PUT("/insurance/:id", h.UpdateInsurance)
	write.DELETE("/insurance/:id", h.DeactivateInsurance)
}

func principal(c echo.Context) *auth.Principal {
	return auth.PrincipalFromContext(c.Request().Context())
}

func (h *Handler) ListInsurance(c echo.Context) error {
	clientID, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	activeOnly, err := params.QueryBool(c, "active")
	if err != nil {
		return err
	}
	items, err := h.svc.ListByClient(c.Request().Context(), principal(c), clientID, activeOnly != nil && *activeOnly)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Insurance{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetInsurance(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	ins, err := h.svc.GetInsurance(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, ins)
}

func (h *Handler) CreateInsurance(c echo.Context) error {
	clientID, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var ins Insurance
	if err := c.Bind(&ins); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ins.ID = 0
	ins.ClientID = clientID
	if err := h.svc.CreateInsurance(c.Request().Context(), principal(c), &ins); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, ins)
}

func (h *Handler) UpdateInsurance(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var ins Insurance
	if err := c.Bind(&ins); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ins.ID = id
	updated, err := h.svc.UpdateInsurance(c.Request().Context(), principal(c), &ins)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeactivateInsurance(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeactivateInsurance(c.Request().Context(), principal(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
