package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"product-copy-api/internal/config"
)

// GeminiChatModel 基于 google genai SDK 的 ChatModel 适配器
type GeminiChatModel struct {
	client *genai.Client
	cfg    config.ProviderConfig
}

// NewGeminiChatModel 创建 Gemini ChatModel
func NewGeminiChatModel(ctx context.Context, cfg config.ProviderConfig) (*GeminiChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api_key is empty")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiChatModel{client: client, cfg: cfg}, nil
}

func (m *GeminiChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return generateFromStream(ctx, m, input, opts...)
}

func (m *GeminiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	co := resolveCallOptions(m.cfg.Model, m.cfg.Temperature, m.cfg.MaxTokens, opts)
	if co.Model == "" {
		return nil, fmt.Errorf("gemini model is empty")
	}

	system, rest := splitMessages(input)
	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		role := genai.RoleUser
		if msg.Role == schema.Assistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("gemini: no user content")
	}

	gcfg := &genai.GenerateContentConfig{
		Temperature:   co.Temperature,
		StopSequences: co.Stop,
	}
	if co.MaxTokens != nil {
		gcfg.MaxOutputTokens = int32(*co.MaxTokens)
	}
	if system != "" {
		gcfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if rs := getResponseSchema(opts); rs.Schema != nil {
		gcfg.ResponseMIMEType = "application/json"
		gcfg.ResponseSchema = toGenaiSchema(rs.Schema)
	}

	return pipeStream(ctx, func(ctx context.Context, emit func(*schema.Message) bool) error {
		var promptTokens, completionTokens int
		var finishReason string

		for resp, err := range m.client.Models.GenerateContentStream(ctx, co.Model, contents, gcfg) {
			if err != nil {
				return fmt.Errorf("gemini stream: %w", err)
			}
			if resp == nil {
				continue
			}
			if resp.UsageMetadata != nil {
				promptTokens = int(resp.UsageMetadata.PromptTokenCount)
				completionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			cand := resp.Candidates[0]
			if cand.FinishReason != "" {
				finishReason = string(cand.FinishReason)
			}
			if cand.FinishReason == genai.FinishReasonSafety {
				return fmt.Errorf("gemini: response blocked by safety filter")
			}
			text := candidateText(cand)
			if text == "" {
				continue
			}
			if !emit(schema.AssistantMessage(text, nil)) {
				return errStreamClosed
			}
		}

		if promptTokens > 0 || completionTokens > 0 || finishReason != "" {
			if !emit(usageMessage(promptTokens, completionTokens, finishReason)) {
				return errStreamClosed
			}
		}
		return nil
	})
}

func candidateText(cand *genai.Candidate) string {
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// toGenaiSchema 将 JSON Schema（map 形式）转换为 genai.Schema。
// 仅支持 Gemini 可识别的子集：type、description、properties、required、items、enum
// 以及长度/数量约束。
func toGenaiSchema(s map[string]any) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{}

	if t, ok := s["type"].(string); ok {
		out.Type = toGenaiType(t)
	}
	if d, ok := s["description"].(string); ok {
		out.Description = d
	}
	if props, ok := s["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if child, ok := raw.(map[string]any); ok {
				out.Properties[name] = toGenaiSchema(child)
			}
		}
	}
	out.Required = toStrings(s["required"])
	if items, ok := s["items"].(map[string]any); ok {
		out.Items = toGenaiSchema(items)
	}
	out.Enum = toStrings(s["enum"])
	out.MinLength = toInt64Ptr(s["minLength"])
	out.MaxLength = toInt64Ptr(s["maxLength"])
	out.MinItems = toInt64Ptr(s["minItems"])
	out.MaxItems = toInt64Ptr(s["maxItems"])

	return out
}

func toInt64Ptr(v any) *int64 {
	var n int64
	switch vv := v.(type) {
	case int:
		n = int64(vv)
	case int32:
		n = int64(vv)
	case int64:
		n = vv
	case float64:
		n = int64(vv)
	default:
		return nil
	}
	return &n
}

func toGenaiType(t string) genai.Type {
	switch strings.ToLower(t) {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}

func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
