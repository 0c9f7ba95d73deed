// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"product-copy-api/internal/application/describe"
	"product-copy-api/internal/config"
	"product-copy-api/internal/domain/entity"
	"product-copy-api/internal/interfaces/http/dto"
	apperrors "product-copy-api/pkg/errors"
	"product-copy-api/pkg/logger"
)

// GenerateHandler 文案生成处理器
type GenerateHandler struct {
	cfg       config.GenerationConfig
	generator *describe.Generator
}

// NewGenerateHandler 创建文案生成处理器
func NewGenerateHandler(cfg *config.Config, generator *describe.Generator) *GenerateHandler {
	return &GenerateHandler{
		cfg:       cfg.Generation,
		generator: generator,
	}
}

type eventKind int

const (
	kindDelta eventKind = iota
	kindDone
	kindError
)

type streamEvent struct {
	kind   eventKind
	chunk  string
	result *entity.GenerationResult
	err    error
}

// Generate SSE 流式生成产品文案
// @Summary 流式生成产品文案
// @Description 请求体为表单 JSON，原样嵌入 Prompt；响应为 text/event-stream（delta/done/error 事件）
// @Tags Generate
// @Accept json
// @Produce text/event-stream
// @Success 200 {string} string "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Failure 504 {object} dto.ErrorResponse
// @Router /api/generate [post]
func (h *GenerateHandler) Generate(c *gin.Context) {
	clientCtx := c.Request.Context()

	body, err := h.readBody(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			dto.RequestEntityTooLarge(c, "request body too large")
			return
		}
		dto.BadRequest(c, "failed to read request body")
		return
	}
	if !json.Valid(body) {
		dto.BadRequest(c, "request body must be valid JSON")
		return
	}

	ctx, cancel := context.WithTimeout(clientCtx, h.cfg.Timeout)
	defer cancel()

	// 首字节之前的失败仍可返回普通 JSON 错误
	st, err := h.generator.Stream(ctx, body)
	if err != nil {
		logger.Warn(ctx, "generation rejected before streaming", "error", err.Error())
		dto.FromError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// 单一有序通道，保证 delta 不会被 done/error 越过
	events := make(chan streamEvent, 16)

	go func() {
		defer close(events)

		var finalErr error
		defer func() { st.Close(finalErr) }()

		send := func(ev streamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				if finalErr == nil {
					finalErr = ctx.Err()
				}
				return false
			}
		}

		for {
			chunk, recvErr := st.Recv()
			if errors.Is(recvErr, io.EOF) {
				break
			}
			if recvErr != nil {
				finalErr = recvErr
				send(streamEvent{kind: kindError, err: recvErr})
				return
			}
			if !send(streamEvent{kind: kindDelta, chunk: chunk}) {
				return
			}
		}

		res, resErr := st.Result()
		if resErr != nil {
			finalErr = resErr
			send(streamEvent{kind: kindError, err: resErr})
			return
		}
		send(streamEvent{kind: kindDone, result: res})
	}()

	index := 0
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			switch ev.kind {
			case kindDelta:
				c.SSEvent(dto.EventDelta, dto.DeltaEvent{Index: index, Chunk: ev.chunk})
				index++
				return true
			case kindDone:
				c.SSEvent(dto.EventDone, dto.DoneEvent{Descriptions: ev.result.Descriptions})
				return false
			default:
				logger.Warn(ctx, "generation stream failed", "error", ev.err.Error(), "chunks", index)
				c.SSEvent(dto.EventError, dto.NewErrorEvent(ev.err))
				return false
			}

		case <-ctx.Done():
			// 客户端断开时无需再写；否则是生成超时
			if clientCtx.Err() == nil {
				c.SSEvent(dto.EventError, dto.NewErrorEvent(apperrors.ErrLLMTimeout.WithError(ctx.Err())))
			}
			return false
		}
	})
}

func (h *GenerateHandler) readBody(c *gin.Context) ([]byte, error) {
	r := c.Request.Body
	if h.cfg.MaxBodyBytes > 0 {
		r = http.MaxBytesReader(c.Writer, r, h.cfg.MaxBodyBytes)
	}
	return io.ReadAll(r)
}
