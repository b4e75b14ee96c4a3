package treatment

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/elanza/clinic/internal/platform/apperr"
	"github.com/elanza/clinic/internal/platform/auth"
	"github.com/elanza/clinic/internal/platform/middleware"
)

func newTestServer() (*echo.Echo, *fixture) {
	f := newFixture()
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	e.Validator = middleware.NewValidator()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if uid := c.Request().Header.Get("X-Test-User"); uid != "" {
				a := &auth.Actor{UserID: uid, Role: auth.Role(c.Request().Header.Get("X-Test-Role"))}
				c.SetRequest(c.Request().WithContext(auth.WithActor(c.Request().Context(), a)))
			}
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(api)
	return e, f
}

func serve(e *echo.Echo, req *http.Request, a *auth.Actor) *httptest.ResponseRecorder {
	if a != nil {
		req.Header.Set("X-Test-User", a.UserID)
		req.Header.Set("X-Test-Role", string(a.Role))
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_SellAndList(t *testing.T) {
	e, _ := newTestServer()
	body := `{"items":[{"serviceId":"facial","sessions":5,"amount":"2500.00"}],"method":"efectivo","receiptFolio":"F-9"}`

	rec := serve(e, jsonRequest(http.MethodPost, "/api/v1/users/client-1/packages", body), staff)
	if rec.Code != http.StatusForbidden {
		t.Errorf("admin sale: expected 403, got %d", rec.Code)
	}
	rec = serve(e, jsonRequest(http.MethodPost, "/api/v1/users/client-1/packages", body), owner)
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/users/client-1/packages", nil), client)
	var list struct {
		Data []Package `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &list)
	if rec.Code != http.StatusOK || len(list.Data) != 1 || list.Data[0].TotalAppointments != 5 {
		t.Errorf("list: %d %s", rec.Code, rec.Body.String())
	}
	if rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/users/client-1/packages", nil), other); rec.Code != http.StatusForbidden {
		t.Errorf("other list: expected 403, got %d", rec.Code)
	}
}

func TestHandler_SellValidation(t *testing.T) {
	e, _ := newTestServer()
	rec := serve(e, jsonRequest(http.MethodPost, "/api/v1/users/client-1/packages", `{"items":[],"method":"efectivo"}`), owner)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty items: expected 400, got %d", rec.Code)
	}
	rec = serve(e, jsonRequest(http.MethodPost, "/api/v1/users/client-1/packages",
		`{"items":[{"serviceId":"facial","sessions":1,"amount":10}],"method":"tarjeta"}`), owner)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("card without type: expected 400, got %d", rec.Code)
	}
}

func TestHandler_HistoryFlow(t *testing.T) {
	e, f := newTestServer()
	p := f.sellOne(t, 2)
	base := "/api/v1/packages/" + p.ID.String()

	rec := serve(e, jsonRequest(http.MethodPost, base+"/history", `{"doctorName":"Dra. Ruiz","notes":"ok"}`), client)
	if rec.Code != http.StatusForbidden {
		t.Errorf("client append: expected 403, got %d", rec.Code)
	}
	rec = serve(e, jsonRequest(http.MethodPost, base+"/history", `{"doctorName":"Dra. Ruiz","notes":"ok"}`), staff)
	if rec.Code != http.StatusCreated {
		t.Fatalf("append: %d %s", rec.Code, rec.Body.String())
	}
	rec = serve(e, jsonRequest(http.MethodPost, base+"/history", `{"doctorName":"Dra. Ruiz","photos":["not a url"]}`), staff)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad photo url: expected 400, got %d", rec.Code)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, base+"/history", nil), client)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Dra. Ruiz") {
		t.Errorf("history: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_UploadPhoto(t *testing.T) {
	e, f := newTestServer()
	p := f.sellOne(t, 1)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="photo"; filename="antes.jpg"`)
	hdr.Set("Content-Type", "image/jpeg")
	part, _ := mw.CreatePart(hdr)
	part.Write([]byte("jpeg-bytes"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/packages/"+p.ID.String()+"/photos", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := serve(e, req, staff)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	var out map[string]string
	json.Unmarshal(rec.Body.Bytes(), &out)
	if !strings.Contains(out["url"], "/o/history%2F") {
		t.Errorf("unexpected url %q", out["url"])
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/packages/"+p.ID.String()+"/photos", strings.NewReader(""))
	if rec = serve(e, req, staff); rec.Code != http.StatusBadRequest {
		t.Errorf("missing file: expected 400, got %d", rec.Code)
	}
}

func TestHandler_ReceiptAndExport(t *testing.T) {
	e, f := newTestServer()
	p := f.sellOne(t, 3)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/packages/"+p.ID.String()+"/receipt", nil), client)
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "application/pdf" {
		t.Errorf("receipt: %d %q", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/admin/packages/export", nil), client)
	if rec.Code != http.StatusForbidden {
		t.Errorf("client export: expected 403, got %d", rec.Code)
	}
	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/admin/packages/export", nil), staff)
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != xlsxMIME {
		t.Errorf("export: %d %q", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}
	if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentDisposition), "attachment;") {
		t.Errorf("missing attachment disposition")
	}
}
