package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"1M", 1 << 20},
		{"10MB", 10 << 20},
		{"512K", 512 << 10},
		{"1G", 1 << 30},
		{"1024", 1024},
		{"", 1 << 20},
		{"invalid", 1 << 20},
		{"-5", 1 << 20},
	}
	for _, tt := range tests {
		if got := parseLimit(tt.input); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(`{"serviceId":"facial"}`))
	c := e.NewContext(req, httptest.NewRecorder())

	var got []byte
	err := BodyLimit("1M", "10M")(func(c echo.Context) error {
		var err error
		got, err = io.ReadAll(c.Request().Body)
		return err
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `{"serviceId":"facial"}` {
		t.Errorf("body = %q", got)
	}
}

func TestBodyLimit_RejectsByContentLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", bytes.NewReader(make([]byte, 2048)))
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	err := BodyLimit("1K", "10M")(func(echo.Context) error {
		called = true
		return nil
	})(c)
	if statusOf(err) != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}
	if called {
		t.Error("handler must not run")
	}
}

func TestBodyLimit_PhotoUploadsUseUploadLimit(t *testing.T) {
	e := echo.New()
	path := "/api/v1/packages/6f1c1c9e-7d4e-4a43-9f1a-0d6c2f3b1a11/photos"

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(make([]byte, 4096)))
	c := e.NewContext(req, httptest.NewRecorder())
	if err := BodyLimit("1K", "8K")(func(echo.Context) error { return nil })(c); err != nil {
		t.Errorf("upload within upload limit rejected: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, path, bytes.NewReader(make([]byte, 9000)))
	c = e.NewContext(req, httptest.NewRecorder())
	err := BodyLimit("1K", "8K")(func(echo.Context) error { return nil })(c)
	if statusOf(err) != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413 over upload limit, got %v", err)
	}
}

func TestBodyLimit_SkipsEmptyBody(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/services", nil), httptest.NewRecorder())
	called := false
	if err := BodyLimit("1", "1")(func(echo.Context) error { called = true; return nil })(c); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("handler not called")
	}
}

func TestBodyLimit_EnforcesLimitDuringRead(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", bytes.NewReader(bytes.Repeat([]byte("a"), 1024)))
	req.ContentLength = -1
	c := e.NewContext(req, httptest.NewRecorder())

	err := BodyLimit("512", "10M")(func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		return err
	})(c)
	if statusOf(err) != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 while reading, got %v", err)
	}
}
