package account

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/elanza/clinic/internal/platform/apperr"
	"github.com/elanza/clinic/internal/platform/auth"
	"github.com/elanza/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	self := api.Group("", auth.RequireAuthenticated())
	self.GET("/users/me", h.GetMe)
	self.PUT("/users/me", h.PutMe)

	admin := api.Group("", auth.RequirePrivileged())
	admin.GET("/users", h.ListUsers)

	super := api.Group("", auth.RequireRole(auth.RoleSuperAdmin))
	super.PUT("/users/:id/role", h.UpdateRole)
	super.DELETE("/users/:id", h.DeleteUser)
}

func (h *Handler) GetMe(c echo.Context) error {
	ctx := c.Request().Context()
	actor := auth.ActorFromContext(ctx)
	u, err := h.svc.Get(ctx, actor, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) PutMe(c echo.Context) error {
	var in ProfileInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	u, err := h.svc.UpsertSelf(ctx, auth.ActorFromContext(ctx), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	p, err := pagination.FromContext(c)
	if err != nil {
		return apperr.New(apperr.InvalidArgument, err.Error())
	}
	page, err := h.svc.List(c.Request().Context(), auth.Role(c.QueryParam("role")), c.QueryParam("search"), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) UpdateRole(c echo.Context) error {
	var in RoleInput
	if err := bind(c, &in); err != nil {
		return err
	}
	u, err := h.svc.UpdateRole(c.Request().Context(), c.Param("id"), in.Role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteUser(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperr.New(apperr.InvalidArgument, "invalid request body")
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(v); err != nil {
			return err
		}
	}
	return nil
}
