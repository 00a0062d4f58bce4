package notes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
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
	clinical := api.Group("", auth.RequireRole(auth.ClinicalRoles...))
	clinical.GET("/notes", h.ListNotes)
	clinical.POST("/notes", h.CreateNote)
	clinical.GET("/notes/:id", h.GetNote)
	clinical.PUT("/notes/:id", h.UpdateNote)
	clinical.DELETE("/notes/:id", h.DeleteNote)
	clinical.POST("/notes/:id/submit", h.SubmitForReview)
	clinical.POST("/notes/:id/sign", h.SignNote)
	clinical.POST("/notes/:id/addendum", h.CreateAddendum)

	clinical.GET("/note-drafts", h.ListDrafts)
	clinical.POST("/note-drafts", h.SaveDraft)
	clinical.GET("/note-drafts/:id", h.GetDraft)
	clinical.DELETE("/note-drafts/:id", h.DeleteDraft)

	review := api.Group("", auth.RequireRole(auth.RoleSupervisor))
	review.GET("/notes/review-queue", h.ListPendingReview)
	review.POST("/notes/:id/review", h.ReviewNote)
}

func principal(c echo.Context) *auth.Principal {
	return auth.PrincipalFromContext(c.Request().Context())
}

func (h *Handler) CreateNote(c echo.Context) error {
	var n Note
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n.ID = 0
	if err := h.svc.CreateNote(c.Request().Context(), principal(c), &n); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) GetNote(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	n, err := h.svc.GetNote(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) UpdateNote(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var n Note
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n.ID = id
	updated, err := h.svc.UpdateNote(c.Request().Context(), principal(c), &n)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteNote(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteNote(c.Request().Context(), principal(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListNotes(c echo.Context) error {
	pg := pagination.FromContext(c)
	var filter ListFilter
	var err error
	if filter.ClientID, err = params.QueryID(c, "client_id"); err != nil {
		return err
	}
	if filter.AuthorID, err = params.QueryID(c, "author_id"); err != nil {
		return err
	}
	filter.Status = c.QueryParam("status")
	filter.NoteType = c.QueryParam("note_type")

	items, total, err := h.svc.ListNotes(c.Request().Context(), principal(c), filter, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Note{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListPendingReview(c echo.Context) error {
	pg := pagination.FromContext(c)
	supervisorID, err := params.QueryID(c, "supervisor_id")
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListPendingReview(c.Request().Context(), principal(c), supervisorID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Note{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) SubmitForReview(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	n, err := h.svc.SubmitForReview(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) ReviewNote(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.svc.ReviewNote(c.Request().Context(), principal(c), id, &req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) SignNote(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var req SignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.SignNote(c.Request().Context(), principal(c), id, &req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) CreateAddendum(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var req AddendumRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.svc.CreateAddendum(c.Request().Context(), principal(c), id, &req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) SaveDraft(c echo.Context) error {
	var d Draft
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = 0
	if err := h.svc.SaveDraft(c.Request().Context(), principal(c), &d); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetDraft(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDraft(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDrafts(c echo.Context) error {
	clientID, err := params.QueryID(c, "client_id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListDrafts(c.Request().Context(), principal(c), clientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Draft{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DeleteDraft(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDraft(c.Request().Context(), principal(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
