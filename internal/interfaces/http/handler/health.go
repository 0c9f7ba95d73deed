package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"product-copy-api/internal/config"
	"product-copy-api/internal/workflow/port"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version  string
	provider string
	factory  port.ChatModelFactory
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(cfg *config.Config, factory port.ChatModelFactory) *HealthHandler {
	return &HealthHandler{
		version:  cfg.App.Version,
		provider: cfg.LLM.DefaultProvider,
		factory:  factory,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health 健康检查接口
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
	})
}

// Ready 就绪检查接口：默认 provider 的 ChatModel 能否构建。
// 不向模型发起真实调用。
// @Summary 就绪检查
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	check := &readinessCheck{Status: "unknown"}
	ready := true

	if h == nil || h.factory == nil {
		check.Status = "missing"
		check.Error = "llm factory not configured"
		ready = false
	} else {
		start := time.Now()
		_, err := h.factory.Get(ctx, h.provider)
		check.LatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			check.Status = "error"
			check.Error = err.Error()
			ready = false
		} else {
			check.Status = "ok"
		}
	}

	resp := readinessResponse{
		Status: "ok",
		Checks: map[string]*readinessCheck{"llm": check},
	}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
	})
}
