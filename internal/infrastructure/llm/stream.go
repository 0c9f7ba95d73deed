package llm

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// streamFunc 向 emit 逐块推送模型输出，emit 返回 false 表示下游已关闭
type streamFunc func(ctx context.Context, emit func(*schema.Message) bool) error

// pipeStream 在独立 goroutine 中运行 fn，并把结果桥接为 Eino StreamReader。
// 返回前等待第一个分片或错误：首个分片之前的失败（鉴权、参数被拒等）
// 作为 Stream 的返回错误同步交给调用方，之后的失败才经由 Recv 传递。
func pipeStream(ctx context.Context, fn streamFunc) (*schema.StreamReader[*schema.Message], error) {
	sr, sw := schema.Pipe[*schema.Message](16)

	// 容量为 1，调用方提前返回时 goroutine 也不会阻塞
	ready := make(chan error, 1)
	var once sync.Once
	signal := func(err error) {
		once.Do(func() { ready <- err })
	}

	go func() {
		defer sw.Close()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		emitted := false
		err := fn(ctx, func(msg *schema.Message) bool {
			if closed := sw.Send(msg, nil); closed {
				cancel()
				return false
			}
			emitted = true
			signal(nil)
			return true
		})
		if err != nil && !errors.Is(err, errStreamClosed) {
			if !emitted {
				signal(err)
				return
			}
			sw.Send(nil, err)
		}
		signal(nil)
	}()

	select {
	case err := <-ready:
		if err != nil {
			sr.Close()
			return nil, err
		}
		return sr, nil
	case <-ctx.Done():
		sr.Close()
		return nil, ctx.Err()
	}
}

var errStreamClosed = errors.New("stream closed by reader")

// generateFromStream 用流式实现 Generate，拼接全部分片
func generateFromStream(ctx context.Context, m model.BaseChatModel, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	sr, err := m.Stream(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	defer sr.Close()

	var chunks []*schema.Message
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, msg)
	}
	if len(chunks) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	return schema.ConcatMessages(chunks)
}

// splitMessages 把 system 消息与对话消息拆开
func splitMessages(input []*schema.Message) (system string, rest []*schema.Message) {
	for _, m := range input {
		if m == nil {
			continue
		}
		if m.Role == schema.System {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func usageMessage(promptTokens, completionTokens int, finishReason string) *schema.Message {
	msg := schema.AssistantMessage("", nil)
	msg.ResponseMeta = &schema.ResponseMeta{
		FinishReason: finishReason,
		Usage: &schema.TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
	return msg
}
