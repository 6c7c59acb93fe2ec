package factory

import (
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

func TestNewModuleLoggerTagsModule(t *testing.T) {
	entry, ok := NewModuleLogger("callbacks-controller").(*logrus.Entry)
	if !ok {
		t.Fatal("expected logrus entry")
	}
	if entry.Data["module"] != "callbacks-controller" {
		t.Fatalf("unexpected module field: %v", entry.Data["module"])
	}
}

func TestLoggerWithContextAddsRequestID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/chip/return", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-123")
	ctx := e.NewContext(req, httptest.NewRecorder())

	entry, ok := LoggerWithContext(NewModuleLogger("callbacks-controller"), ctx).(*logrus.Entry)
	if !ok {
		t.Fatal("expected logrus entry")
	}
	if entry.Data["request_id"] != "req-123" {
		t.Fatalf("unexpected request_id field: %v", entry.Data["request_id"])
	}
}

func TestLoggerWithContextWithoutRequestID(t *testing.T) {
	e := echo.New()
	ctx := e.NewContext(httptest.NewRequest("GET", "/health", nil), httptest.NewRecorder())

	base := NewModuleLogger("callbacks-controller")
	if LoggerWithContext(base, ctx) != base {
		t.Fatal("expected logger to be returned unchanged")
	}
}
