package billing

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/pkg/pagination"
	"github.com/emhr/emhr/pkg/params"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleBiller))
	g.GET("/charges", h.ListCharges)
	g.GET("/charges/summary", h.Summary)
	g.GET("/charges/export", h.ExportCharges)
	g.POST("/charges", h.CreateCharge)
	g.GET("/charges/:id", h.GetCharge)
	g.POST("/charges/:id/status", h.UpdateStatus)
	g.POST("/charges/:id/void", h.VoidCharge)
}

func filterFromQuery(c echo.Context) (ChargeFilter, error) {
	var f ChargeFilter
	var err error
	if f.ClientID, err = params.QueryID(c, "client_id"); err != nil {
		return f, err
	}
	if f.From, err = params.QueryDate(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = params.QueryDate(c, "to"); err != nil {
		return f, err
	}
	f.Status = c.QueryParam("status")
	return f, nil
}

func (h *Handler) CreateCharge(c echo.Context) error {
	var ch Charge
	if err := c.Bind(&ch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ch.ID = 0
	p := auth.PrincipalFromContext(c.Request().Context())
	if err := h.svc.CreateCharge(c.Request().Context(), p, &ch); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, ch)
}

func (h *Handler) GetCharge(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	ch, err := h.svc.GetCharge(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var req StatusUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ch, err := h.svc.UpdateStatus(c.Request().Context(), id, &req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *Handler) VoidCharge(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	ch, err := h.svc.VoidCharge(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *Handler) ListCharges(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCharges(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Charge{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Summary(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	sum, err := h.svc.Summary(c.Request().Context(), f)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) ExportCharges(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	data, err := h.svc.ExportCharges(c.Request().Context(), f)
	if err != nil {
		return apperr.HTTP(err)
	}
	name := fmt.Sprintf("charges-%s.xlsx", h.svc.now().UTC().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, xlsxMIME, data)
}
