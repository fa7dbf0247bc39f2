package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthHandlerReady(t *testing.T) {
	healthy := NewHealthHandler(map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
	})
	c, w := newTestContext(http.MethodGet, "/ready", nil, nil)
	healthy.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	degraded := NewHealthHandler(map[string]ReadinessCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	c, w = newTestContext(http.MethodGet, "/ready", nil, nil)
	degraded.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
