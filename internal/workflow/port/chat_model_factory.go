// Package port 定义生成流程对外部能力的最小依赖
package port

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// ChatModelFactory 按 provider 名称返回可流式调用的 ChatModel。
// name 为空时返回默认 provider；未配置的 provider 返回错误。
type ChatModelFactory interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}
