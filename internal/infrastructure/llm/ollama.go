package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/ollama/ollama/api"

	"product-copy-api/internal/config"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaChatModel 基于 ollama 原生 API 的 ChatModel 适配器
type OllamaChatModel struct {
	client *api.Client
	cfg    config.ProviderConfig
}

// NewOllamaChatModel 创建 Ollama ChatModel
func NewOllamaChatModel(cfg config.ProviderConfig) (*OllamaChatModel, error) {
	// api.NewClient 需要不带 /v1 后缀的地址
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultOllamaURL
	}
	base = strings.TrimSuffix(strings.TrimSuffix(base, "/"), "/v1")

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse ollama base_url %q: %w", base, err)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &OllamaChatModel{
		client: api.NewClient(u, httpClient),
		cfg:    cfg,
	}, nil
}

func (m *OllamaChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return generateFromStream(ctx, m, input, opts...)
}

func (m *OllamaChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	co := resolveCallOptions(m.cfg.Model, m.cfg.Temperature, m.cfg.MaxTokens, opts)
	if co.Model == "" {
		return nil, fmt.Errorf("ollama model is empty")
	}

	messages := make([]api.Message, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		messages = append(messages, api.Message{Role: string(msg.Role), Content: msg.Content})
	}

	stream := true
	req := &api.ChatRequest{
		Model:    co.Model,
		Messages: messages,
		Stream:   &stream,
		Options:  map[string]any{},
	}
	if co.Temperature != nil {
		req.Options["temperature"] = *co.Temperature
	}
	if co.MaxTokens != nil {
		req.Options["num_predict"] = *co.MaxTokens
	}
	if len(co.Stop) > 0 {
		req.Options["stop"] = co.Stop
	}
	if rs := getResponseSchema(opts); rs.Schema != nil {
		raw, err := json.Marshal(rs.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal ollama format schema: %w", err)
		}
		req.Format = raw
	}

	return pipeStream(ctx, func(ctx context.Context, emit func(*schema.Message) bool) error {
		closed := false
		err := m.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Message.Content != "" {
				if !emit(schema.AssistantMessage(resp.Message.Content, nil)) {
					closed = true
					return errStreamClosed
				}
			}
			if resp.Done {
				if !emit(usageMessage(resp.PromptEvalCount, resp.EvalCount, resp.DoneReason)) {
					closed = true
					return errStreamClosed
				}
			}
			return nil
		})
		if closed {
			return errStreamClosed
		}
		if err != nil {
			return fmt.Errorf("ollama chat: %w", err)
		}
		return nil
	})
}
