package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-copy-api/internal/config"
)

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{App: config.AppConfig{Version: "1.2.3"}, LLM: config.LLMConfig{DefaultProvider: "fake"}}

	serve := func(h *HealthHandler, path string) *httptest.ResponseRecorder {
		engine := gin.New()
		engine.GET("/health", h.Health)
		engine.GET("/ready", h.Ready)
		engine.GET("/live", h.Live)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	ok := NewHealthHandler(cfg, &staticFactory{model: &scriptedModel{}})
	w := serve(ok, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","version":"1.2.3"}`, w.Body.String())

	assert.Equal(t, http.StatusOK, serve(ok, "/ready").Code)
	assert.Equal(t, http.StatusOK, serve(ok, "/live").Code)

	broken := NewHealthHandler(cfg, &staticFactory{err: errors.New("provider fake not found")})
	w = serve(broken, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body readinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "error", body.Checks["llm"].Status)
}
