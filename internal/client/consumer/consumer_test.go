package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-copy-api/internal/domain/entity"
)

const fullOutput = `{"descriptions":[` +
	`{"name":"Focus Timer","description":"Stay on task."},` +
	`{"name":"Deep Work Kit","description":"Less noise."},` +
	`{"name":"Calm Flow","description":"Grab it today."}]}`

var testRequest = entity.GenerationRequest{
	Title:    "Focus Timer",
	Features: []string{"Pomodoro"},
	Audience: "remote workers",
	Tone:     entity.ToneProfessional,
	Length:   entity.LengthShort,
}

func writeEvent(w http.ResponseWriter, event string, payload any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event:%s\ndata:%s\n\n", event, data)
	w.(http.Flusher).Flush()
}

func writeDeltas(w http.ResponseWriter, text string, size int) {
	for i := 0; len(text) > 0; i++ {
		n := min(size, len(text))
		writeEvent(w, "delta", map[string]any{"index": i, "chunk": text[:n]})
		text = text[n:]
	}
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) listen(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func waitDone(t *testing.T, c *Consumer) Snapshot {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("generation did not settle")
	}
	return c.Snapshot()
}

func TestConsumer_CompleteGeneration(t *testing.T) {
	var gotBody entity.GenerationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "text/event-stream")
		writeDeltas(w, fullOutput, 7)

		var final map[string]any
		_ = json.Unmarshal([]byte(fullOutput), &final)
		writeEvent(w, "done", final)
	}))
	defer srv.Close()

	rec := &recorder{}
	c := New(srv.URL, WithListener(rec.listen))
	defer c.Close()

	require.NoError(t, c.Submit(context.Background(), testRequest))
	snap := waitDone(t, c)

	assert.Equal(t, testRequest, gotBody)
	assert.Equal(t, StatusSettled, snap.Status)
	assert.Nil(t, snap.Err)
	assert.False(t, snap.Incomplete)
	require.Len(t, snap.Descriptions, 3)
	for _, d := range snap.Descriptions {
		assert.NotEmpty(t, d.Name)
		assert.NotEmpty(t, d.Description)
		assert.LessOrEqual(t, utf8.RuneCountInString(d.Name), 60)
	}

	// 每个下标的值只增不减
	snaps := rec.all()
	require.Greater(t, len(snaps), 3)
	assert.Equal(t, StatusGenerating, snaps[0].Status)
	for i := 1; i < len(snaps); i++ {
		prev, cur := snaps[i-1], snaps[i]
		require.GreaterOrEqual(t, len(cur.Descriptions), len(prev.Descriptions))
		for j := range prev.Descriptions {
			assert.True(t, strings.HasPrefix(cur.Descriptions[j].Name, prev.Descriptions[j].Name))
			assert.True(t, strings.HasPrefix(cur.Descriptions[j].Description, prev.Descriptions[j].Description))
		}
	}
	assert.Equal(t, StatusSettled, snaps[len(snaps)-1].Status)
}

func TestConsumer_CloseAbortsConnection(t *testing.T) {
	disconnected := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeDeltas(w, `{"descriptions":[{"name":"Focus`, 100)
		<-r.Context().Done()
		close(disconnected)
	}))
	defer srv.Close()

	rec := &recorder{}
	c := New(srv.URL, WithListener(rec.listen))

	require.NoError(t, c.Submit(context.Background(), testRequest))
	require.Eventually(t, func() bool {
		return len(c.Snapshot().Descriptions) == 1
	}, 5*time.Second, 5*time.Millisecond)

	c.Close()
	notified := len(rec.all())
	before := c.Snapshot()

	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not observe the disconnect")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.all(), notified)
	assert.Equal(t, before, c.Snapshot())
	assert.ErrorIs(t, c.Submit(context.Background(), testRequest), ErrClosed)

	// 重复关闭是安全的
	c.Close()
}

func TestConsumer_ErrorAfterPartialChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "delta", map[string]any{"index": 0, "chunk": `{"descriptions":[{"name":"Focus Timer","description":"Stay`})
		writeEvent(w, "error", map[string]any{"code": "provider_error", "message": "LLM provider error: connection reset"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	require.NoError(t, c.Submit(context.Background(), testRequest))
	snap := waitDone(t, c)

	assert.Equal(t, StatusSettled, snap.Status)
	assert.False(t, c.Busy())
	assert.True(t, snap.Incomplete)
	require.NotNil(t, snap.Err)
	assert.Equal(t, FailureUpstream, snap.Err.Kind)
	assert.Equal(t, "provider_error", snap.Err.Code)
	assert.Equal(t, []entity.Description{{Name: "Focus Timer", Description: "Stay"}}, snap.Descriptions)
}

func TestConsumer_SchemaViolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, "error", map[string]any{"code": "schema_violation", "message": "bad shape"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	require.NoError(t, c.Submit(context.Background(), testRequest))
	snap := waitDone(t, c)
	require.NotNil(t, snap.Err)
	assert.Equal(t, FailureSchema, snap.Err.Kind)
}

func TestConsumer_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"code":502,"message":"LLM provider error","error":{"error_code":"5005","details":"401 invalid api key"}}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	require.NoError(t, c.Submit(context.Background(), testRequest))
	snap := waitDone(t, c)

	require.NotNil(t, snap.Err)
	assert.Equal(t, FailureUpstream, snap.Err.Kind)
	assert.Equal(t, "5005", snap.Err.Code)
	assert.Contains(t, snap.Err.Message, "401 invalid api key")
	assert.Empty(t, snap.Descriptions)
}

func TestConsumer_StreamEndsWithoutTerminalEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, "delta", map[string]any{"index": 0, "chunk": `{"descriptions":[{"name":"A"`})
	}))
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	require.NoError(t, c.Submit(context.Background(), testRequest))
	snap := waitDone(t, c)

	require.NotNil(t, snap.Err)
	assert.Equal(t, FailureTransport, snap.Err.Kind)
	assert.True(t, snap.Incomplete)
	assert.Equal(t, "A", snap.Descriptions[0].Name)
}

func TestConsumer_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url)
	defer c.Close()

	require.NoError(t, c.Submit(context.Background(), testRequest))
	snap := waitDone(t, c)
	require.NotNil(t, snap.Err)
	assert.Equal(t, FailureTransport, snap.Err.Kind)
}

func TestConsumer_RejectsConcurrentSubmit(t *testing.T) {
	release := make(chan struct{})
	var calls sync.WaitGroup
	calls.Add(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Done()
		select {
		case <-release:
		case <-r.Context().Done():
		}
		writeEvent(w, "done", map[string]any{"descriptions": []any{}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()

	require.NoError(t, c.Submit(context.Background(), testRequest))
	assert.True(t, c.Busy())
	assert.ErrorIs(t, c.Submit(context.Background(), testRequest), ErrGenerating)

	calls.Wait()
	close(release)
	snap := waitDone(t, c)
	assert.Equal(t, StatusSettled, snap.Status)
	assert.Nil(t, snap.Err)
	assert.False(t, c.Busy())
}

func TestEventReader(t *testing.T) {
	input := ": keep-alive\n\n" +
		"event:delta\ndata:{\"index\":0}\n\n" +
		"event: error\r\ndata: line1\r\ndata: line2\r\n\r\n" +
		"data:tail-without-blank-line"
	er := newEventReader(strings.NewReader(input))

	ev, err := er.Next()
	require.NoError(t, err)
	assert.Equal(t, sseEvent{Event: "delta", Data: `{"index":0}`}, ev)

	ev, err = er.Next()
	require.NoError(t, err)
	assert.Equal(t, sseEvent{Event: "error", Data: "line1\nline2"}, ev)

	_, err = er.Next()
	assert.Error(t, err)
}
