package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/pkg/pagination"
	"github.com/emhr/emhr/pkg/params"
)

type Handler struct {
	svc       *Service
	settings  *Settings
	accessLog *AccessLog
}

func NewHandler(svc *Service, settings *Settings, accessLog *AccessLog) *Handler {
	return &Handler{svc: svc, settings: settings, accessLog: accessLog}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Lookups used by every screen.
	api.GET("/facilities", h.ListActiveFacilities)
	api.GET("/list-options", h.ListNames)
	api.GET("/list-options/:list", h.ListOptions)

	g := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	g.GET("/facilities", h.ListFacilities)
	g.POST("/facilities", h.CreateFacility)
	g.GET("/facilities/:id", h.GetFacility)
	g.PUT("/facilities/:id", h.UpdateFacility)
	g.DELETE("/facilities/:id", h.DeactivateFacility)

	g.PUT("/list-options/:list/:option", h.SaveOption)
	g.DELETE("/list-options/:list/:option", h.DeleteOption)

	g.GET("/settings", h.ListSettings)
	g.GET("/settings/:key", h.GetSetting)
	g.PUT("/settings/:key", h.SetSetting)
	g.DELETE("/settings/:key", h.DeleteSetting)

	g.GET("/access-log", h.ListAccessLog)
}

// -- Facilities --

func (h *Handler) ListActiveFacilities(c echo.Context) error {
	items, err := h.svc.ListFacilities(c.Request().Context(), true)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Facility{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListFacilities(c echo.Context) error {
	items, err := h.svc.ListFacilities(c.Request().Context(), false)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Facility{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateFacility(c echo.Context) error {
	var f Facility
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f.ID = 0
	if err := h.svc.CreateFacility(c.Request().Context(), &f); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) GetFacility(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	f, err := h.svc.GetFacility(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) UpdateFacility(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var f Facility
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f.ID = id
	if err := h.svc.UpdateFacility(c.Request().Context(), &f); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) DeactivateFacility(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeactivateFacility(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- List options --

func (h *Handler) ListNames(c echo.Context) error {
	names, err := h.svc.ListNames(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, names)
}

func (h *Handler) ListOptions(c echo.Context) error {
	includeInactive, err := params.QueryBool(c, "include_inactive")
	if err != nil {
		return err
	}
	items, err := h.svc.ListOptions(c.Request().Context(), c.Param("list"), includeInactive == nil || !*includeInactive)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*ListOption{}
	}
	return c.JSON(http.StatusOK, items)
}

type optionRequest struct {
	Title     string `json:"title"`
	SortOrder int    `json:"sort_order"`
	IsActive  *bool  `json:"is_active"`
}

func (h *Handler) SaveOption(c echo.Context) error {
	var req optionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o := &ListOption{
		ListID:    c.Param("list"),
		OptionID:  c.Param("option"),
		Title:     req.Title,
		SortOrder: req.SortOrder,
		IsActive:  req.IsActive == nil || *req.IsActive,
	}
	if err := h.svc.SaveOption(c.Request().Context(), o); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) DeleteOption(c echo.Context) error {
	if err := h.svc.DeleteOption(c.Request().Context(), c.Param("list"), c.Param("option")); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Settings --

func (h *Handler) ListSettings(c echo.Context) error {
	items, err := h.settings.List(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Setting{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetSetting(c echo.Context) error {
	key := c.Param("key")
	v, err := h.settings.Get(c.Request().Context(), key)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"key": key, "value": v})
}

type settingRequest struct {
	Value string `json:"value"`
}

func (h *Handler) SetSetting(c echo.Context) error {
	var req settingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.settings.Set(c.Request().Context(), c.Param("key"), req.Value)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) DeleteSetting(c echo.Context) error {
	if err := h.settings.Delete(c.Request().Context(), c.Param("key")); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Access log --

func (h *Handler) ListAccessLog(c echo.Context) error {
	var f AccessLogFilter
	var err error
	if f.UserID, err = params.QueryID(c, "user_id"); err != nil {
		return err
	}
	if f.From, err = params.QueryTime(c, "from"); err != nil {
		return err
	}
	if f.To, err = params.QueryTime(c, "to"); err != nil {
		return err
	}
	f.ClientID = c.QueryParam("client_id")

	pg := pagination.FromContext(c)
	items, total, err := h.accessLog.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*AccessLogEntry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
