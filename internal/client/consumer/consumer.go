// Package consumer 提交生成请求并增量消费 SSE 流，维护可供渲染的快照
package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"product-copy-api/internal/application/describe"
	"product-copy-api/internal/domain/entity"
	"product-copy-api/internal/interfaces/http/dto"
)

var (
	// ErrGenerating 已有生成在进行中
	ErrGenerating = errors.New("consumer: generation already in progress")
	// ErrClosed Consumer 已关闭
	ErrClosed = errors.New("consumer: closed")
)

// Status 生成状态
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusSettled    Status = "settled"
)

// FailureKind 失败类别
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureUpstream  FailureKind = "upstream"
	FailureSchema    FailureKind = "schema"
)

// Failure 生成失败的原因，已展示的部分结果不会因此被撤回
type Failure struct {
	Kind    FailureKind
	Code    string
	Message string
}

func (f *Failure) Error() string {
	if f.Code != "" {
		return fmt.Sprintf("%s error (%s): %s", f.Kind, f.Code, f.Message)
	}
	return fmt.Sprintf("%s error: %s", f.Kind, f.Message)
}

// Snapshot 某一时刻的生成状态（副本，可安全持有）
type Snapshot struct {
	Status       Status
	Descriptions []entity.Description
	// Err 非空表示生成以失败结束
	Err *Failure
	// Incomplete 结果因失败而不完整
	Incomplete bool
}

func (s Snapshot) clone() Snapshot {
	s.Descriptions = append([]entity.Description(nil), s.Descriptions...)
	if s.Err != nil {
		e := *s.Err
		s.Err = &e
	}
	return s
}

// Listener 每次状态变化后被调用，调用顺序与分片到达顺序一致。
// 不要在 Listener 中调用 Close。
type Listener func(Snapshot)

// Option Consumer 选项
type Option func(*Consumer)

// WithHTTPClient 指定 HTTP 客户端
func WithHTTPClient(client *http.Client) Option {
	return func(c *Consumer) { c.client = client }
}

// WithListener 注册状态监听
func WithListener(l Listener) Option {
	return func(c *Consumer) { c.listener = l }
}

// Consumer 一次只处理一个生成
type Consumer struct {
	endpoint string
	client   *http.Client
	listener Listener

	// notifyMu 串行化 "修改 + 通知"，保证监听方看到的顺序与到达顺序一致
	notifyMu sync.Mutex

	mu     sync.Mutex
	state  Snapshot
	seq    uint64
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	wg sync.WaitGroup
}

// New 创建 Consumer，endpoint 为 POST /api/generate 的完整地址
func New(endpoint string, opts ...Option) *Consumer {
	c := &Consumer{
		endpoint: endpoint,
		client:   http.DefaultClient,
		state:    Snapshot{Status: StatusIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Busy 是否有生成在进行中
func (c *Consumer) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Status == StatusGenerating
}

// Snapshot 当前状态
func (c *Consumer) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Done 当前生成结束（或被关闭）时关闭的通道；空闲时返回已关闭的通道
func (c *Consumer) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Submit 发起一次生成并立即返回；结果通过 Listener 与 Snapshot 获取。
// 新的提交会丢弃上一次的结果。
func (c *Consumer) Submit(ctx context.Context, req entity.GenerationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("consumer: encode request: %w", err)
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Status == StatusGenerating {
		c.mu.Unlock()
		return ErrGenerating
	}

	runCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(runCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("consumer: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	c.seq++
	seq := c.seq
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.state = Snapshot{Status: StatusGenerating}
	snap := c.state.clone()
	c.wg.Add(1)
	c.mu.Unlock()

	if c.listener != nil {
		c.listener(snap)
	}

	go c.run(cancel, seq, done, httpReq)
	return nil
}

// Close 中断进行中的请求（关闭连接）并等待读取协程退出。
// 返回后不会再有任何状态变化或通知。
func (c *Consumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

func (c *Consumer) run(cancel context.CancelFunc, seq uint64, done chan struct{}, req *http.Request) {
	defer c.wg.Done()
	defer close(done)
	defer cancel()

	failure := c.stream(seq, req)
	c.apply(seq, func(s *Snapshot) {
		s.Status = StatusSettled
		if failure != nil {
			s.Err = failure
			s.Incomplete = true
		}
	})
}

// stream 读取整个响应，返回 nil 表示收到 done 事件
func (c *Consumer) stream(seq uint64, req *http.Request) *Failure {
	resp, err := c.client.Do(req)
	if err != nil {
		return &Failure{Kind: FailureTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return upstreamFailure(resp)
	}

	var text strings.Builder
	events := newEventReader(resp.Body)
	for {
		ev, err := events.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return &Failure{Kind: FailureTransport, Message: "stream interrupted: " + err.Error()}
		}

		switch ev.Event {
		case dto.EventDelta:
			var d dto.DeltaEvent
			if err := json.Unmarshal([]byte(ev.Data), &d); err != nil {
				return &Failure{Kind: FailureTransport, Message: "malformed delta event: " + err.Error()}
			}
			text.WriteString(d.Chunk)
			if items, ok := describe.ParsePartial(text.String()); ok {
				c.apply(seq, func(s *Snapshot) {
					s.Descriptions = describe.Merge(s.Descriptions, items)
				})
			}

		case dto.EventDone:
			var d dto.DoneEvent
			if err := json.Unmarshal([]byte(ev.Data), &d); err != nil {
				return &Failure{Kind: FailureTransport, Message: "malformed done event: " + err.Error()}
			}
			c.apply(seq, func(s *Snapshot) {
				s.Descriptions = describe.Merge(s.Descriptions, d.Descriptions)
			})
			return nil

		case dto.EventError:
			var e dto.ErrorEvent
			if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
				e = dto.ErrorEvent{Message: ev.Data}
			}
			kind := FailureUpstream
			if e.Code == dto.StreamCodeSchemaViolation {
				kind = FailureSchema
			}
			return &Failure{Kind: kind, Code: e.Code, Message: e.Message}
		}
	}
}

func upstreamFailure(resp *http.Response) *Failure {
	f := &Failure{Kind: FailureUpstream, Message: resp.Status}

	var body dto.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		f.Message = body.Message
		if body.Error != nil {
			f.Code = body.Error.ErrorCode
			if body.Error.Details != "" {
				f.Message += ": " + body.Error.Details
			}
		}
	}
	return f
}

// apply 在 seq 仍为当前生成且未关闭时修改状态并通知
func (c *Consumer) apply(seq uint64, mutate func(s *Snapshot)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return
	}
	mutate(&c.state)
	snap := c.state.clone()
	c.mu.Unlock()

	if c.listener != nil {
		c.listener(snap)
	}
}
