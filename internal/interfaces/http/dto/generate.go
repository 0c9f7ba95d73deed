package dto

import (
	"product-copy-api/internal/domain/entity"
	apperrors "product-copy-api/pkg/errors"
)

// SSE 事件名
const (
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

// 流内错误码（error 事件的 code 字段）
const (
	StreamCodeTimeout         = "timeout"
	StreamCodeSchemaViolation = "schema_violation"
	StreamCodeProvider        = "provider_error"
	StreamCodeInternal        = "internal_error"
)

// DeltaEvent 一段原始 JSON 文本分片，按 index 顺序拼接即为完整输出
type DeltaEvent struct {
	Index int    `json:"index"`
	Chunk string `json:"chunk"`
}

// DoneEvent 流结束时完整且通过校验的结果
type DoneEvent struct {
	Descriptions []entity.Description `json:"descriptions"`
}

// ErrorEvent 流内错误，发送后连接即关闭
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorEvent 将错误映射为流内错误事件
func NewErrorEvent(err error) ErrorEvent {
	appErr := apperrors.AsAppError(err)

	code := StreamCodeInternal
	switch appErr.Code {
	case apperrors.CodeLLMTimeout:
		code = StreamCodeTimeout
	case apperrors.CodeSchemaViolation:
		code = StreamCodeSchemaViolation
	case apperrors.CodeLLMProviderError, apperrors.CodeLLMCallFailed, apperrors.CodeGenerationFailed:
		code = StreamCodeProvider
	}

	msg := appErr.Message
	if appErr.Detail != "" {
		msg += ": " + appErr.Detail
	}
	return ErrorEvent{Code: code, Message: msg}
}
