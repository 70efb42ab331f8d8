package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestLimiter_BurstThenDeny(t *testing.T) {
	l := New(0.001, 2)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(0, 1)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("a"))
	}
}

func TestLimiter_Middleware(t *testing.T) {
	e := echo.New()
	l := New(0.001, 1)
	e.POST("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, l.Middleware())

	codes := make([]int, 0, 2)
	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		last = rec
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "1000", last.Header().Get(echo.HeaderRetryAfter))
	assert.Contains(t, last.Body.String(), "ERR_RATE_LIMITED")
}
