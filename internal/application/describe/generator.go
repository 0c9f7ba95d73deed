// Package describe 实现产品文案的流式生成：Prompt 组装、模型调用、增量解析与结果校验
package describe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"product-copy-api/internal/config"
	"product-copy-api/internal/domain/entity"
	"product-copy-api/internal/infrastructure/llm"
	"product-copy-api/internal/workflow/node"
	"product-copy-api/internal/workflow/port"
	workflowprompt "product-copy-api/internal/workflow/prompt"
	apperrors "product-copy-api/pkg/errors"
	"product-copy-api/pkg/logger"
	"product-copy-api/pkg/metrics"
	"product-copy-api/pkg/tracer"
)

// 生成结果状态（指标标签）
const (
	StatusSuccess         = "success"
	StatusError           = "error"
	StatusTimeout         = "timeout"
	StatusCanceled        = "canceled"
	StatusSchemaViolation = "schema_violation"
)

// Generator 文案生成器，无状态，可被并发请求共享
type Generator struct {
	factory  port.ChatModelFactory
	registry *workflowprompt.Registry
	gen      config.GenerationConfig
	provider string
	model    string
}

// NewGenerator 创建文案生成器
func NewGenerator(cfg *config.Config, factory port.ChatModelFactory, registry *workflowprompt.Registry) *Generator {
	provider := cfg.LLM.DefaultProvider
	return &Generator{
		factory:  factory,
		registry: registry,
		gen:      cfg.Generation,
		provider: provider,
		model:    cfg.LLM.Providers[provider].Model,
	}
}

// Provider 当前使用的 provider 名称
func (g *Generator) Provider() string {
	return g.provider
}

// Stream 发起一次流式生成。
// body 为表单 JSON，原样压缩后嵌入 Prompt，不做字段校验。
// 返回错误时尚未向客户端输出任何内容；成功时调用方必须调用 Stream.Close。
func (g *Generator) Stream(ctx context.Context, body []byte) (*Stream, error) {
	ctx = logger.WithContext(ctx, logger.ProviderKey, g.provider)
	ctx, span := tracer.Start(ctx, "describe.generate",
		trace.WithAttributes(
			attribute.String("llm.provider", g.provider),
			attribute.String("llm.model", g.model),
		),
	)
	if ctx.Value(logger.TraceIDKey) == nil {
		if id := tracer.TraceID(ctx); id != "" {
			ctx = logger.WithContext(ctx, logger.TraceIDKey, id)
		}
	}

	fail := func(err error, status string) (*Stream, error) {
		metrics.GenerationTotal.WithLabelValues(g.provider, status).Inc()
		metrics.LLMCallTotal.WithLabelValues(g.provider, g.model, status).Inc()
		tracer.Finish(span, err)
		return nil, err
	}

	var compacted bytes.Buffer
	if err := json.Compact(&compacted, body); err != nil {
		return fail(apperrors.ErrInvalidParam.WithError(err).WithDetail("request body must be valid JSON"), StatusError)
	}

	msgs, err := g.formatMessages(ctx, compacted.String())
	if err != nil {
		return fail(apperrors.ErrInternalError.WithError(err), StatusError)
	}

	chatModel, err := g.factory.Get(ctx, g.provider)
	if err != nil {
		return fail(apperrors.ErrLLMProvider.WithError(err).WithDetail(err.Error()), StatusError)
	}

	start := time.Now()
	reader, err := chatModel.Stream(ctx, msgs, g.modelOptions(true)...)
	if err != nil && node.IsResponseFormatUnsupportedError(err) {
		if reader != nil {
			reader.Close()
		}
		logger.Warn(ctx, "llm json_schema not supported for stream, fallback to prompt-only",
			"provider", g.provider,
			"model", g.model,
			"error", err.Error(),
		)
		metrics.LLMSchemaFallbackTotal.WithLabelValues(g.provider).Inc()
		reader, err = chatModel.Stream(ctx, msgs, g.modelOptions(false)...)
	}
	if err != nil {
		appErr, status := classify(ctx, err)
		logger.Error(ctx, "llm stream call failed", err, "model", g.model)
		return fail(appErr, status)
	}

	metrics.ActiveStreams.Inc()
	return &Stream{
		ctx:      ctx,
		reader:   reader,
		span:     span,
		gen:      g.gen,
		provider: g.provider,
		model:    g.model,
		start:    start,
	}, nil
}

func (g *Generator) formatMessages(ctx context.Context, formJSON string) ([]*schema.Message, error) {
	id, err := workflowprompt.ParseID(g.gen.PromptVersion)
	if err != nil {
		return nil, err
	}
	tpl, err := g.registry.ChatTemplate(id)
	if err != nil {
		return nil, err
	}
	return tpl.Format(ctx, map[string]any{
		workflowprompt.VarContext: formJSON,
	})
}

func (g *Generator) modelOptions(enableSchema bool) []model.Option {
	opts := make([]model.Option, 0, 2)
	if !enableSchema {
		return opts
	}

	s := DescriptionsJSONSchema(g.gen.TargetCount, g.gen.MaxNameLength)
	// OpenAI 兼容服务使用 response_format，其余适配器读取 WithResponseSchema
	opts = append(opts,
		openaiopts.WithExtraFields(map[string]any{
			"response_format": map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   SchemaName,
					"strict": false,
					"schema": s,
				},
			},
		}),
		llm.WithResponseSchema(SchemaName, s),
	)
	return opts
}

// classify 将模型调用错误映射为 AppError 与指标状态
func classify(ctx context.Context, err error) (*apperrors.AppError, string) {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		if appErr.Code == apperrors.CodeSchemaViolation {
			return appErr, StatusSchemaViolation
		}
		return appErr, StatusError
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return apperrors.ErrLLMTimeout.WithError(err), StatusTimeout
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return apperrors.ErrLLMProvider.WithError(err).WithDetail("generation canceled"), StatusCanceled
	default:
		return apperrors.ErrLLMProvider.WithError(err).WithDetail(err.Error()), StatusError
	}
}

// Stream 一次进行中的生成
type Stream struct {
	ctx      context.Context
	reader   *schema.StreamReader[*schema.Message]
	span     trace.Span
	gen      config.GenerationConfig
	provider string
	model    string
	start    time.Time

	text       strings.Builder
	chunks     int
	firstChunk bool
	usage      *schema.TokenUsage

	closeOnce sync.Once
}

// Recv 返回下一段非空文本分片，流正常结束时返回 io.EOF。
// 其余错误均为 *AppError。
func (s *Stream) Recv() (string, error) {
	for {
		msg, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			appErr, _ := classify(s.ctx, err)
			return "", appErr
		}
		if msg == nil {
			continue
		}
		if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
			s.usage = msg.ResponseMeta.Usage
		}
		if msg.Content == "" {
			continue
		}

		if !s.firstChunk {
			s.firstChunk = true
			metrics.GenerationFirstChunk.WithLabelValues(s.provider).Observe(time.Since(s.start).Seconds())
		}
		s.chunks++
		s.text.WriteString(msg.Content)
		return msg.Content, nil
	}
}

// Text 目前累计的原始文本
func (s *Stream) Text() string {
	return s.text.String()
}

// Result 在 Recv 返回 io.EOF 后校验累计文本
func (s *Stream) Result() (*entity.GenerationResult, error) {
	res, err := ParseResult(s.text.String())
	if err != nil {
		logger.Warn(s.ctx, "model output failed schema check",
			"chunks", s.chunks,
			"bytes", s.text.Len(),
			"output_head", node.TruncateByRunes(s.text.String(), 200),
			"error", err.Error(),
		)
		return nil, err
	}

	for _, reason := range ShapeWarnings(res, s.gen.TargetCount, s.gen.MaxNameLength) {
		metrics.GenerationShapeWarnings.WithLabelValues(s.provider, reason).Inc()
		logger.Warn(s.ctx, "generated descriptions deviate from requested shape",
			"reason", reason,
			"count", len(res.Descriptions),
		)
	}
	return res, nil
}

// Close 释放模型流并记录本次生成的指标，err 为流的最终结果（nil 表示成功）。
// 可重复调用，只有第一次生效。
func (s *Stream) Close(err error) {
	s.closeOnce.Do(func() {
		s.reader.Close()
		metrics.ActiveStreams.Dec()

		status := StatusSuccess
		if err != nil {
			_, status = classify(s.ctx, err)
		}

		metrics.GenerationTotal.WithLabelValues(s.provider, status).Inc()
		metrics.LLMCallTotal.WithLabelValues(s.provider, s.model, status).Inc()
		metrics.GenerationDuration.WithLabelValues(s.provider).Observe(time.Since(s.start).Seconds())
		metrics.GenerationChunks.WithLabelValues(s.provider).Observe(float64(s.chunks))
		if s.usage != nil {
			metrics.LLMTokensUsed.WithLabelValues(s.provider, s.model, "prompt").Add(float64(s.usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(s.provider, s.model, "completion").Add(float64(s.usage.CompletionTokens))
			s.span.SetAttributes(
				attribute.Int("llm.prompt_tokens", s.usage.PromptTokens),
				attribute.Int("llm.completion_tokens", s.usage.CompletionTokens),
			)
		}
		s.span.SetAttributes(attribute.Int("describe.chunks", s.chunks))

		logger.Info(s.ctx, "description generation finished",
			"status", status,
			"chunks", s.chunks,
			"duration_ms", time.Since(s.start).Milliseconds(),
		)
		tracer.Finish(s.span, err)
	})
}
