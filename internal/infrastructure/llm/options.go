package llm

import (
	"github.com/cloudwego/eino/components/model"
)

// responseSchemaOptions 非 OpenAI 适配器使用的结构化输出约束
type responseSchemaOptions struct {
	Name   string
	Schema map[string]any
}

// WithResponseSchema 声明期望的 JSON Schema。
// OpenAI 适配器通过 response_format 额外字段接收同一份 Schema，会忽略该选项。
func WithResponseSchema(name string, schema map[string]any) model.Option {
	return model.WrapImplSpecificOptFn(func(o *responseSchemaOptions) {
		o.Name = name
		o.Schema = schema
	})
}

func getResponseSchema(opts []model.Option) *responseSchemaOptions {
	return model.GetImplSpecificOptions(&responseSchemaOptions{}, opts...)
}

// callOptions 合并配置默认值与调用方传入的通用选项
type callOptions struct {
	Model       string
	Temperature *float32
	MaxTokens   *int
	Stop        []string
}

func resolveCallOptions(defaultModel string, temperature float64, maxTokens int, opts []model.Option) callOptions {
	base := &model.Options{
		Model: &defaultModel,
	}
	if temperature > 0 {
		t := float32(temperature)
		base.Temperature = &t
	}
	if maxTokens > 0 {
		m := maxTokens
		base.MaxTokens = &m
	}

	common := model.GetCommonOptions(base, opts...)
	out := callOptions{
		Temperature: common.Temperature,
		MaxTokens:   common.MaxTokens,
		Stop:        common.Stop,
	}
	if common.Model != nil {
		out.Model = *common.Model
	}
	return out
}
