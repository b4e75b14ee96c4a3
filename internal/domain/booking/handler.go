package booking

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/elanza/clinic/internal/platform/apperr"
	"github.com/elanza/clinic/internal/platform/auth"
)

type Handler struct {
	orch *Orchestrator
}

func NewHandler(orch *Orchestrator) *Handler {
	return &Handler{orch: orch}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments", h.CreateAppointment)
	api.POST("/appointments/:id/cancel", h.CancelAppointment)

	read := api.Group("", auth.RequireAuthenticated())
	read.GET("/appointments", h.ListAppointments)
	read.GET("/doctors/:id/availability", h.GetAvailability)
	read.GET("/doctors/:id/schedule", h.GetSchedule)

	write := api.Group("", auth.RequirePrivileged())
	write.PUT("/doctors/:id/schedule", h.PutSchedule)
}

// CreateAppointment admits a booking for the caller. The actor check lives
// in the orchestrator so the Unauthenticated path is reported like any
// other admission outcome.
func (h *Handler) CreateAppointment(c echo.Context) error {
	ctx := c.Request().Context()
	actor := auth.ActorFromContext(ctx)
	if actor == nil {
		_, err := h.orch.Create(ctx, nil, CreateRequest{})
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.New(apperr.InvalidArgument, "invalid request body")
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(&req); err != nil {
			return err
		}
	}
	a, err := h.orch.Create(ctx, actor, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":       true,
		"appointmentId": a.ID.String(),
	})
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.orch.Cancel(ctx, auth.ActorFromContext(ctx), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) ListAppointments(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	ctx := c.Request().Context()
	items, err := h.orch.ListForUser(ctx, auth.ActorFromContext(ctx), c.QueryParam("userId"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) GetAvailability(c echo.Context) error {
	slots, err := h.orch.Availability(c.Request().Context(), c.Param("id"), c.QueryParam("date"), c.QueryParam("serviceId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": slots})
}

func (h *Handler) GetSchedule(c echo.Context) error {
	s, err := h.orch.GetSchedule(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) PutSchedule(c echo.Context) error {
	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return apperr.New(apperr.InvalidArgument, "invalid request body")
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(&req); err != nil {
			return err
		}
	}
	s, err := h.orch.PutSchedule(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}
