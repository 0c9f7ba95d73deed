//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"product-copy-api/internal/application/describe"
	"product-copy-api/internal/config"
	"product-copy-api/internal/infrastructure/llm"
	"product-copy-api/internal/interfaces/http/handler"
	"product-copy-api/internal/interfaces/http/router"
	"product-copy-api/internal/workflow/port"
	workflowprompt "product-copy-api/internal/workflow/prompt"
)

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		LLMSet,
		GenerationSet,
		RouterSet,
	)
	return nil, nil, nil
}

// LLMSet 模型提供方集合
var LLMSet = wire.NewSet(
	ProvideChatModelFactory,
	wire.Bind(new(port.ChatModelFactory), new(*llm.EinoFactory)),
)

// GenerationSet 描述生成集合
var GenerationSet = wire.NewSet(
	workflowprompt.NewRegistry,
	describe.NewGenerator,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	handler.NewGenerateHandler,
	handler.NewHealthHandler,
	router.New,
)
