package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestReadyz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	cases := map[string]struct {
		checks map[string]Check
		code   int
		body   string
	}{
		"all up":     {map[string]Check{"postgres": ok, "redis": ok}, http.StatusOK, `"redis":"connected"`},
		"redis down": {map[string]Check{"postgres": ok, "redis": down}, http.StatusServiceUnavailable, `"redis":"unavailable"`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := &HealthHandler{checks: tc.checks}
			r := gin.New()
			r.GET("/readyz", h.Readyz)
			r.GET("/healthz", h.Healthz)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tc.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)

			rec = httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestNewHealthHandler_WithoutRabbitMQ(t *testing.T) {
	h := NewHealthHandler(nil, nil, nil)
	assert.Contains(t, h.checks, "postgres")
	assert.Contains(t, h.checks, "redis")
	assert.NotContains(t, h.checks, "rabbitmq")
}
