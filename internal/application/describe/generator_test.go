package describe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-copy-api/internal/config"
	"product-copy-api/internal/infrastructure/llm"
	workflowprompt "product-copy-api/internal/workflow/prompt"
	apperrors "product-copy-api/pkg/errors"
)

const validOutput = `{"descriptions":[` +
	`{"name":"Focus Timer","description":"Stay on task."},` +
	`{"name":"Deep Work Kit","description":"Less noise."},` +
	`{"name":"Calm Flow","description":"Grab it today."}]}`

type streamCall struct {
	input []*schema.Message
	opts  []model.Option
}

type fakeChatModel struct {
	mu     sync.Mutex
	calls  []streamCall
	stream func(ctx context.Context, call int) (*schema.StreamReader[*schema.Message], error)
}

func (m *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return nil, errors.New("not implemented")
}

func (m *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.mu.Lock()
	m.calls = append(m.calls, streamCall{input: input, opts: opts})
	n := len(m.calls)
	m.mu.Unlock()
	return m.stream(ctx, n)
}

func (m *fakeChatModel) Calls() []streamCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]streamCall(nil), m.calls...)
}

type fakeFactory struct {
	model model.BaseChatModel
	err   error
}

func (f *fakeFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.model, nil
}

func chunked(text string, size int) *schema.StreamReader[*schema.Message] {
	var msgs []*schema.Message
	for len(text) > 0 {
		n := size
		if n > len(text) {
			n = len(text)
		}
		msgs = append(msgs, schema.AssistantMessage(text[:n], nil))
		text = text[n:]
	}
	usage := schema.AssistantMessage("", nil)
	usage.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 120, CompletionTokens: 80}}
	msgs = append(msgs, usage)
	return schema.StreamReaderFromArray(msgs)
}

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			DefaultProvider: "fake",
			Providers:       map[string]config.ProviderConfig{"fake": {Model: "fake-model"}},
		},
		Generation: config.GenerationConfig{
			Timeout:       30 * time.Second,
			PromptVersion: string(workflowprompt.PromptProductDescriptionV1),
			TargetCount:   3,
			MaxNameLength: 60,
		},
	}
}

func newTestGenerator(f *fakeFactory) *Generator {
	return NewGenerator(testConfig(), f, workflowprompt.NewRegistry())
}

func collect(t *testing.T, st *Stream) ([]string, error) {
	t.Helper()
	var chunks []string
	for {
		chunk, err := st.Recv()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}

func TestGenerator_StreamSuccess(t *testing.T) {
	cm := &fakeChatModel{stream: func(ctx context.Context, call int) (*schema.StreamReader[*schema.Message], error) {
		return chunked(validOutput, 17), nil
	}}
	g := newTestGenerator(&fakeFactory{model: cm})

	st, err := g.Stream(context.Background(), []byte(`{ "title": "Focus Timer",
		"features": ["Pomodoro"] }`))
	require.NoError(t, err)

	chunks, err := collect(t, st)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 3)
	assert.Equal(t, validOutput, st.Text())

	res, err := st.Result()
	require.NoError(t, err)
	assert.Len(t, res.Descriptions, 3)
	assert.Equal(t, "Focus Timer", res.Descriptions[0].Name)
	st.Close(nil)
	st.Close(nil)

	calls := cm.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].opts, 2)
	require.Len(t, calls[0].input, 2)
	assert.Contains(t, calls[0].input[1].Content, `{"title":"Focus Timer","features":["Pomodoro"]}`)
}

func TestGenerator_SchemaFallback(t *testing.T) {
	cm := &fakeChatModel{stream: func(ctx context.Context, call int) (*schema.StreamReader[*schema.Message], error) {
		if call == 1 {
			return nil, errors.New("400 Unknown parameter: 'response_format'")
		}
		return chunked(validOutput, 40), nil
	}}
	g := newTestGenerator(&fakeFactory{model: cm})

	st, err := g.Stream(context.Background(), []byte(`{"title":"x"}`))
	require.NoError(t, err)
	defer st.Close(nil)

	_, err = collect(t, st)
	require.NoError(t, err)

	calls := cm.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[0].opts, 2)
	assert.Empty(t, calls[1].opts)
}

// Ollama 拒绝 format 参数时，应在首个分片之前回退为仅靠提示词的调用
func TestGenerator_SchemaFallbackOllama(t *testing.T) {
	var (
		calls   atomic.Int32
		mu      sync.Mutex
		formats []bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, hasFormat := body["format"]
		mu.Lock()
		formats = append(formats, hasFormat)
		mu.Unlock()

		if hasFormat {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid format"}`)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		content, _ := json.Marshal(validOutput)
		fmt.Fprintf(w, `{"model":"llama3","message":{"role":"assistant","content":%s},"done":false}`+"\n", content)
		fmt.Fprint(w, `{"model":"llama3","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":9,"eval_count":30}`+"\n")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.LLM = config.LLMConfig{
		DefaultProvider: "local",
		Providers: map[string]config.ProviderConfig{
			"local": {Type: config.ProviderTypeOllama, BaseURL: srv.URL, Model: "llama3"},
		},
	}
	g := NewGenerator(cfg, llm.NewEinoFactory(cfg), workflowprompt.NewRegistry())

	st, err := g.Stream(context.Background(), []byte(`{"title":"Focus Timer"}`))
	require.NoError(t, err)
	defer st.Close(nil)

	chunks, err := collect(t, st)
	require.NoError(t, err)
	assert.Equal(t, validOutput, strings.Join(chunks, ""))

	res, err := st.Result()
	require.NoError(t, err)
	assert.Len(t, res.Descriptions, 3)

	assert.EqualValues(t, 2, calls.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, formats)
}

// 非 schema 类的拒绝在首个分片之前以错误返回，不会开始流
func TestGenerator_OllamaRejectsBeforeStreaming(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model \"llama3\" not found, try pulling it first"}`)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.LLM = config.LLMConfig{
		DefaultProvider: "local",
		Providers: map[string]config.ProviderConfig{
			"local": {Type: config.ProviderTypeOllama, BaseURL: srv.URL, Model: "llama3"},
		},
	}
	g := NewGenerator(cfg, llm.NewEinoFactory(cfg), workflowprompt.NewRegistry())

	st, err := g.Stream(context.Background(), []byte(`{"title":"Focus Timer"}`))
	require.Error(t, err)
	assert.Nil(t, st)
	assert.ErrorIs(t, err, apperrors.ErrLLMProvider)
	assert.EqualValues(t, 1, calls.Load())

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadGateway, appErr.HTTPStatus)
}

func TestGenerator_PreStreamFailures(t *testing.T) {
	t.Run("invalid body", func(t *testing.T) {
		g := newTestGenerator(&fakeFactory{model: &fakeChatModel{}})
		_, err := g.Stream(context.Background(), []byte(`{"title":`))

		appErr := apperrors.AsAppError(err)
		assert.Equal(t, apperrors.CodeInvalidParam, appErr.Code)
		assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	})

	t.Run("unknown provider", func(t *testing.T) {
		g := newTestGenerator(&fakeFactory{err: errors.New("provider fake not found in LLM config")})
		_, err := g.Stream(context.Background(), []byte(`{}`))

		appErr := apperrors.AsAppError(err)
		assert.Equal(t, apperrors.CodeLLMProviderError, appErr.Code)
		assert.Equal(t, http.StatusBadGateway, appErr.HTTPStatus)
	})

	t.Run("provider rejects call", func(t *testing.T) {
		cm := &fakeChatModel{stream: func(ctx context.Context, call int) (*schema.StreamReader[*schema.Message], error) {
			return nil, errors.New("401 Unauthorized")
		}}
		g := newTestGenerator(&fakeFactory{model: cm})
		_, err := g.Stream(context.Background(), []byte(`{}`))

		appErr := apperrors.AsAppError(err)
		assert.Equal(t, apperrors.CodeLLMProviderError, appErr.Code)
		assert.Contains(t, appErr.Detail, "401")
		assert.Len(t, cm.Calls(), 1)
	})
}

func TestGenerator_MidStreamTimeout(t *testing.T) {
	cm := &fakeChatModel{stream: func(ctx context.Context, call int) (*schema.StreamReader[*schema.Message], error) {
		sr, sw := schema.Pipe[*schema.Message](1)
		go func() {
			defer sw.Close()
			sw.Send(schema.AssistantMessage(`{"descriptions":[{"name":"Foc`, nil), nil)
			<-ctx.Done()
			sw.Send(nil, ctx.Err())
		}()
		return sr, nil
	}}
	g := newTestGenerator(&fakeFactory{model: cm})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	st, err := g.Stream(ctx, []byte(`{}`))
	require.NoError(t, err)

	chunks, err := collect(t, st)
	st.Close(err)

	assert.Equal(t, []string{`{"descriptions":[{"name":"Foc`}, chunks)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeLLMTimeout, appErr.Code)
}

func TestGenerator_SchemaViolationAtEnd(t *testing.T) {
	cm := &fakeChatModel{stream: func(ctx context.Context, call int) (*schema.StreamReader[*schema.Message], error) {
		return chunked(`{"descriptions":[{"name":"A"}]}`, 8), nil
	}}
	g := newTestGenerator(&fakeFactory{model: cm})

	st, err := g.Stream(context.Background(), []byte(`{}`))
	require.NoError(t, err)

	_, err = collect(t, st)
	require.NoError(t, err)

	_, err = st.Result()
	st.Close(err)
	assert.ErrorIs(t, err, apperrors.ErrSchemaViolation)
}
