package wire

import (
	"context"

	"product-copy-api/internal/config"
	"product-copy-api/internal/infrastructure/llm"
	"product-copy-api/pkg/logger"
)

// ProvideChatModelFactory 提供模型工厂，并预热默认提供方。
// 预热失败只记录告警，/ready 会如实反映。
func ProvideChatModelFactory(ctx context.Context, cfg *config.Config) *llm.EinoFactory {
	factory := llm.NewEinoFactory(cfg)
	if _, err := factory.Default(ctx); err != nil {
		logger.Warn(ctx, "default llm provider not available",
			"provider", cfg.LLM.DefaultProvider,
			"error", err.Error(),
		)
	}
	return factory
}
