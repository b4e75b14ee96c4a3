package treatment

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/elanza/clinic/internal/platform/apperr"
	"github.com/elanza/clinic/internal/platform/auth"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireAuthenticated())
	read.GET("/users/:id/packages", h.ListPackages)
	read.GET("/packages/:id/history", h.ListHistory)
	read.GET("/packages/:id/receipt", h.GetReceipt)

	staff := api.Group("", auth.RequirePrivileged())
	staff.POST("/packages/:id/history", h.AppendHistory)
	staff.POST("/packages/:id/photos", h.UploadPhoto)
	staff.GET("/admin/packages/export", h.ExportSales)

	sales := api.Group("", auth.RequireRole(auth.RoleSuperAdmin))
	sales.POST("/users/:id/packages", h.SellPackages)
}

func (h *Handler) SellPackages(c echo.Context) error {
	var req SaleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	sold, err := h.svc.Sell(ctx, auth.ActorFromContext(ctx), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"data": sold})
}

func (h *Handler) ListPackages(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ListPackages(ctx, auth.ActorFromContext(ctx), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) ListHistory(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ListHistory(ctx, auth.ActorFromContext(ctx), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) AppendHistory(c echo.Context) error {
	var in HistoryInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	e, err := h.svc.AppendHistory(ctx, auth.ActorFromContext(ctx), c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

// UploadPhoto expects a multipart form with the image in the "photo" field.
func (h *Handler) UploadPhoto(c echo.Context) error {
	fh, err := c.FormFile("photo")
	if err != nil {
		return apperr.New(apperr.InvalidArgument, "a photo file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.New(apperr.InvalidArgument, "unreadable photo upload")
	}
	defer f.Close()

	ctx := c.Request().Context()
	url, err := h.svc.UploadPhoto(ctx, auth.ActorFromContext(ctx), c.Param("id"), fh.Header.Get(echo.HeaderContentType), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"url": url})
}

func (h *Handler) GetReceipt(c echo.Context) error {
	ctx := c.Request().Context()
	out, err := h.svc.Receipt(ctx, auth.ActorFromContext(ctx), c.Param("id"))
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`inline; filename="recibo-%s.pdf"`, c.Param("id")))
	return c.Blob(http.StatusOK, "application/pdf", out)
}

// ExportSales defaults to the current month when from/to are omitted.
func (h *Handler) ExportSales(c echo.Context) error {
	from, to := c.QueryParam("from"), c.QueryParam("to")
	if from == "" || to == "" {
		now := time.Now().In(h.svc.loc)
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, h.svc.loc)
		if from == "" {
			from = first.Format("2006-01-02")
		}
		if to == "" {
			to = first.AddDate(0, 1, -1).Format("2006-01-02")
		}
	}
	out, err := h.svc.ExportSales(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="ventas_%s_%s.xlsx"`, from, to))
	return c.Blob(http.StatusOK, xlsxMIME, out)
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
