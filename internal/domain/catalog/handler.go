package catalog

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/elanza/clinic/internal/platform/apperr"
	"github.com/elanza/clinic/internal/platform/auth"
)

type Handler struct {
	catalog *Catalog
}

func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/services", auth.RequireAuthenticated())
	read.GET("", h.ListServices)
	read.GET("/:id", h.GetService)

	write := api.Group("/services", auth.RequirePrivileged())
	write.POST("", h.CreateService)
	write.PUT("/:id", h.UpdateService)
	write.DELETE("/:id", h.DeleteService)
}

// ListServices returns the bookable catalog. Privileged callers may pass
// all=true to include inactive services and categories.
func (h *Handler) ListServices(c echo.Context) error {
	activeOnly := true
	if c.QueryParam("all") == "true" {
		if !auth.ActorFromContext(c.Request().Context()).Privileged() {
			return apperr.New(apperr.PermissionDenied, "listing every service requires an administrator")
		}
		activeOnly = false
	}
	items, err := h.catalog.List(c.Request().Context(), activeOnly)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) GetService(c echo.Context) error {
	s, err := h.catalog.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) CreateService(c echo.Context) error {
	var in Input
	if err := bindInput(c, &in); err != nil {
		return err
	}
	s, err := h.catalog.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) UpdateService(c echo.Context) error {
	var in Input
	if err := bindInput(c, &in); err != nil {
		return err
	}
	s, err := h.catalog.Update(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) DeleteService(c echo.Context) error {
	if err := h.catalog.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func bindInput(c echo.Context, in *Input) error {
	if err := c.Bind(in); err != nil {
		return apperr.New(apperr.InvalidArgument, "invalid request body")
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(in); err != nil {
			return err
		}
	}
	return nil
}
