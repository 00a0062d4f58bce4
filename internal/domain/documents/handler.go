package documents

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/blobstore"
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
	roles := append([]string{auth.RoleBiller, auth.RoleFrontDesk}, auth.ClinicalRoles...)
	g := api.Group("", auth.RequireRole(roles...))
	g.GET("/clients/:id/documents", h.ListDocuments)
	g.POST("/clients/:id/documents", h.UploadDocument)
	g.GET("/documents/:id", h.GetDocument)
	g.GET("/documents/:id/content", h.DownloadDocument)
	g.DELETE("/documents/:id", h.DeleteDocument)
}

func principal(c echo.Context) *auth.Principal {
	return auth.PrincipalFromContext(c.Request().Context())
}

// contentTypeOf prefers the part header and falls back to the extension.
func contentTypeOf(header, fileName string) string {
	if header != "" && header != "application/octet-stream" {
		return header
	}
	if byExt := mime.TypeByExtension(filepath.Ext(fileName)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

func (h *Handler) UploadDocument(c echo.Context) error {
	clientID, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if file.Size > blobstore.MaxFileSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, blobstore.ErrFileTooLarge.Error())
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read uploaded file")
	}
	defer src.Close()

	up := &Upload{
		ClientID:    clientID,
		Category:    c.FormValue("category"),
		Description: c.FormValue("description"),
		FileName:    file.Filename,
		ContentType: contentTypeOf(file.Header.Get(echo.HeaderContentType), file.Filename),
	}
	d, err := h.svc.Upload(c.Request().Context(), principal(c), up, src)
	if err != nil {
		if errors.Is(err, blobstore.ErrFileTooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
		}
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDocument(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDocument(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DownloadDocument(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	d, rc, err := h.svc.Open(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	defer rc.Close()

	disposition := "attachment"
	if c.QueryParam("inline") == "true" {
		disposition = "inline"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("%s; filename=%q", disposition, d.FileName))
	c.Response().Header().Set("X-Content-SHA256", d.SHA256)
	return c.Stream(http.StatusOK, d.ContentType, rc)
}

func (h *Handler) ListDocuments(c echo.Context) error {
	clientID, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByClient(c.Request().Context(), principal(c), clientID, c.QueryParam("category"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Document{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteDocument(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), principal(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
