package identity

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/pkg/pagination"
	"github.com/emhr/emhr/pkg/params"
)

type Handler struct {
	svc      *Service
	sessions *auth.SessionManager
	tokens   *auth.TokenIssuer
	authn    *auth.Authenticator
}

func NewHandler(svc *Service, sessions *auth.SessionManager, tokens *auth.TokenIssuer, authn *auth.Authenticator) *Handler {
	return &Handler{svc: svc, sessions: sessions, tokens: tokens, authn: authn}
}

func (h *Handler) RegisterRoutes(authGroup *echo.Group, api *echo.Group) {
	authGroup.POST("/login", h.Login)
	authGroup.POST("/logout", h.Logout)
	authGroup.GET("/session", h.Session)
	authGroup.POST("/token", h.Token)

	api.GET("/me", h.Me)
	api.PUT("/me/password", h.ChangeOwnPassword)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.GET("/users", h.ListUsers)
	adminGroup.POST("/users", h.CreateUser)
	adminGroup.GET("/users/:id", h.GetUser)
	adminGroup.PUT("/users/:id", h.UpdateUser)
	adminGroup.DELETE("/users/:id", h.DeactivateUser)
	adminGroup.PUT("/users/:id/password", h.ResetPassword)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) authenticate(c echo.Context) (*User, error) {
	var req credentials
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Username == "" || req.Password == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}
	u, err := h.svc.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return nil, apperr.HTTP(err)
	}
	return u, nil
}

// -- Session Handlers --

func (h *Handler) Login(c echo.Context) error {
	u, err := h.authenticate(c)
	if err != nil {
		return err
	}
	p := u.Principal(db.TenantFromContext(c.Request().Context()))
	if err := h.sessions.Save(c, p); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    u,
	})
}

func (h *Handler) Logout(c echo.Context) error {
	if h.authn != nil {
		h.authn.RevokeBearer(c)
	}
	if err := h.sessions.Clear(c); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) Session(c echo.Context) error {
	p, err := h.sessions.Load(c.Request())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}
	u, err := h.svc.GetUser(c.Request().Context(), p.UserID)
	if err != nil || !u.IsActive {
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"user":          u,
		"tenantId":      p.TenantID,
	})
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) Token(c echo.Context) error {
	u, err := h.authenticate(c)
	if err != nil {
		return err
	}
	tok, exp, err := h.tokens.Issue(u.Principal(db.TenantFromContext(c.Request().Context())))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, tokenResponse{Token: tok, TokenType: "Bearer", ExpiresAt: exp})
}

// -- Current User Handlers --

func (h *Handler) Me(c echo.Context) error {
	u, err := h.svc.GetUser(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

type passwordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ChangeOwnPassword(c echo.Context) error {
	var req passwordChange
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.ChangePassword(c.Request().Context(), id, req.CurrentPassword, req.NewPassword, false); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- User Administration Handlers --

type createUserRequest struct {
	User
	Password string `json:"password"`
}

func (h *Handler) CreateUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u := req.User
	if err := h.svc.CreateUser(c.Request().Context(), &u, req.Password); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	u, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter := UserFilter{Role: c.QueryParam("role"), ActiveOnly: c.QueryParam("include_inactive") != "true"}
	items, total, err := h.svc.ListUsers(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateUser(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var u User
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u.ID = id
	if err := h.svc.UpdateUser(c.Request().Context(), &u); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeactivateUser(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	if id == auth.UserIDFromContext(c.Request().Context()) {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot deactivate your own account")
	}
	if err := h.svc.DeactivateUser(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ResetPassword(c echo.Context) error {
	id, err := params.ID(c, "id")
	if err != nil {
		return err
	}
	var req passwordChange
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ChangePassword(c.Request().Context(), id, "", req.NewPassword, true); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
