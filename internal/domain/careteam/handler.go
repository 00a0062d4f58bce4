package careteam

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
	api.GET("/clients/:id/care-team", h.ListMembers)
	api.GET("/users/:id/clients", h.ListClientsForUser)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleSupervisor, auth.RoleClinician))
	writeGroup.POST("/clients/:id/care-team", h.AddMember)
	writeGroup.DELETE("/clients/:id/care-team/:userID", h.RemoveMember)
}

func (h *Handler) requireAccess(c echo.Context, clientID int64) error {
	ctx := c.Request().Context()
	if err := Require(ctx, h.svc, auth.PrincipalFromContext(ctx), clientID); err != nil {
		return apperr.HTTP(err)
	}
	return nil
}

func (h *Handler) ListMembers(c echo.Context) error {
	clientID, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	if err := h.requireAccess(c, clientID); err != nil {
		return err
	}
	members, err := h.svc.ListByClient(c.Request().Context(), clientID, c.QueryParam("include_inactive") != "true")
	if err != nil {
		return apperr.HTTP(err)
	}
	if members == nil {
		members = []*Member{}
	}
	return c.JSON(http.StatusOK, members)
}

func (h *Handler) AddMember(c echo.Context) error {
	clientID, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	if err := h.requireAccess(c, clientID); err != nil {
		return err
	}
	var m Member
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.ClientID = clientID
	if err := h.svc.AddMember(c.Request().Context(), &m); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) RemoveMember(c echo.Context) error {
	clientID, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	userID, err := params.ID(c, "userID")
	if err != nil {
		return err
	}
	if err := h.requireAccess(c, clientID); err != nil {
		return err
	}
	if err := h.svc.RemoveMember(c.Request().Context(), clientID, userID); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListClientsForUser(c echo.Context) error {
	userID, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil || (!p.IsAdmin() && p.UserID != userID) {
		return echo.NewHTTPError(http.StatusForbidden, "can only list your own caseload")
	}
	ids, err := h.svc.ListClientsForUser(c.Request().Context(), userID)
	if err != nil {
		return apperr.HTTP(err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"user_id": userID, "client_ids": ids})
}
