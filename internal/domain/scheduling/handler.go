package scheduling

import (
	"errors"
	"net/http"

	"github.com/jinzhu/now"
	"github.com/labstack/echo/v4"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/notification"
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
	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/:id", h.GetAppointment)

	writeRoles := append([]string{auth.RoleFrontDesk}, auth.ClinicalRoles...)
	writeGroup := api.Group("", auth.RequireRole(writeRoles...))
	writeGroup.POST("/appointments", h.CreateAppointment)
	writeGroup.PUT("/appointments/:id", h.UpdateAppointment)
	writeGroup.POST("/appointments/:id/cancel", h.CancelAppointment)
	writeGroup.POST("/appointments/:id/status", h.SetStatus)
	writeGroup.POST("/appointments/:id/reminder", h.SendReminder)
}

func principal(c echo.Context) *auth.Principal {
	return auth.PrincipalFromContext(c.Request().Context())
}

type appointmentsResponse struct {
	Appointments []*Appointment `json:"appointments"`
	Count        int            `json:"count"`
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ID = 0
	created, err := h.svc.CreateAppointment(c.Request().Context(), principal(c), &req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, appointmentsResponse{Appointments: created, Count: len(created)})
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.UpdateAppointment(c.Request().Context(), principal(c), id, &req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, appointmentsResponse{Appointments: updated, Count: len(updated)})
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ids, err := h.svc.CancelAppointment(c.Request().Context(), principal(c), id, &req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"cancelled": ids,
		"count":     len(ids),
	})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.SetStatus(c.Request().Context(), principal(c), id, req.Status)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SendReminder(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.SendReminder(c.Request().Context(), principal(c), id); err != nil {
		if errors.Is(err, notification.ErrQueueFull) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "reminder queue is full, try again later")
		}
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"success": true, "appointmentId": id})
}

// ListAppointments accepts from/to bounds or a single date, which covers
// that whole day.
func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	var filter ListFilter
	var err error
	if filter.ProviderID, err = params.QueryID(c, "provider_id"); err != nil {
		return err
	}
	if filter.ClientID, err = params.QueryID(c, "client_id"); err != nil {
		return err
	}
	if filter.From, err = params.QueryTime(c, "from"); err != nil {
		return err
	}
	if filter.To, err = params.QueryTime(c, "to"); err != nil {
		return err
	}
	day, err := params.QueryTime(c, "date")
	if err != nil {
		return err
	}
	if day != nil {
		from, to := now.With(*day).BeginningOfDay(), now.With(*day).EndOfDay()
		filter.From, filter.To = &from, &to
	}
	filter.Status = c.QueryParam("status")

	items, total, err := h.svc.ListAppointments(c.Request().Context(), principal(c), filter, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
