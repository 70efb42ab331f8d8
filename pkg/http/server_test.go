package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRoutes struct{}

type pingRequest struct {
	Name  string `json:"name" validate:"required"`
	Limit int    `json:"limit" default:"12" validate:"min=1,max=60"`
}

func (echoRoutes) RegisterRoutes(e *echo.Echo) {
	e.POST("/ping", func(c echo.Context) error {
		var req pingRequest
		if errs := ReadAndValidateRequest(c, &req); errs != nil {
			return BadRequestResponse(c, errs)
		}
		return SuccessResponse(c, req)
	})
	e.GET("/gone", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundError("no panel").WithError(errors.New("empty")))
	})
	e.GET("/busy", func(c echo.Context) error {
		return AppErrorResponse(c, ServiceUnavailableError("breaker open").WithRetryAfter(1500*time.Millisecond))
	})
	e.GET("/boom", func(c echo.Context) error {
		return AppErrorResponse(c, errors.New("plain"))
	})
}

func newTestServer() *Server {
	reg := prometheus.NewRegistry()
	return NewServer(echoRoutes{}, nil, WithRegisterer(reg), WithCORS(false))
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestServer_ValidationDefaultsAndErrors(t *testing.T) {
	s := newTestServer()

	rec := do(s, http.MethodPost, "/ping", `{"name":"ovip"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"limit":12`)

	rec = do(s, http.MethodPost, "/ping", `{"limit":100}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_REQUIRED")
	assert.Contains(t, rec.Body.String(), "ERR_MAX")
}

func TestServer_AppErrors(t *testing.T) {
	s := newTestServer()

	rec := do(s, http.MethodGet, "/gone", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")

	rec = do(s, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(s, http.MethodGet, "/busy", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "2", rec.Header().Get(echo.HeaderRetryAfter))
}

func TestServer_RequestID(t *testing.T) {
	s := newTestServer()

	rec := do(s, http.MethodPost, "/ping", `{"name":"ovip"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get(echo.HeaderXRequestID)
	require.NotEmpty(t, id)
	assert.Contains(t, rec.Body.String(), `"request_id":"`+id+`"`)

	rec = do(s, http.MethodPost, "/ping", `{"limit":100}`)
	assert.Contains(t, rec.Body.String(), `"field":"name"`)
}

func TestServer_Healthz(t *testing.T) {
	rec := do(newTestServer(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
