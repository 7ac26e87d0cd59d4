package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestClient(t *testing.T, status int, body string, inspect func(*http.Request)) Client {
	t.Helper()
	hc := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if inspect != nil {
			inspect(r)
		}
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil
	})}
	c, err := NewClient(logger.Nop(), Config{APIKey: "sk-test", BaseURL: "https://router.test/api/v1/", HTTPClient: hc})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestStreamChatDecodesFramesAndSkipsMalformed(t *testing.T) {
	body := strings.Join([]string{
		": OPENROUTER PROCESSING",
		"",
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		"",
		`data: {not json`,
		"",
		`data: {"choices":[{"delta":{"reasoning":"thinking"}}]}`,
		"",
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		"",
		"data: [DONE]",
		"",
		`data: {"choices":[{"delta":{"content":"after done"}}]}`,
		"",
	}, "\n")

	var gotReq ChatRequest
	c := newTestClient(t, 200, body, func(r *http.Request) {
		if r.URL.String() != "https://router.test/api/v1/chat/completions" {
			t.Errorf("url=%s", r.URL)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing auth header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
	})

	var content, reasoning strings.Builder
	err := c.StreamChat(context.Background(), ChatRequest{Model: "m"}, func(ch StreamChunk) error {
		d, ok := ch.FirstDelta()
		if !ok {
			return nil
		}
		content.WriteString(d.Content)
		reasoning.WriteString(d.Reasoning)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if !gotReq.Stream {
		t.Fatalf("request was not marked stream=true")
	}
	if content.String() != "Hello" {
		t.Fatalf("content=%q", content.String())
	}
	if reasoning.String() != "thinking" {
		t.Fatalf("reasoning=%q", reasoning.String())
	}
}

func TestStreamChatSingleNewlineFrames(t *testing.T) {
	body := `data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n" +
		`data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n" +
		"data: [DONE]\n" +
		`data: {"choices":[{"delta":{"content":"!"}}]}` + "\n"
	c := newTestClient(t, 200, body, nil)

	var content strings.Builder
	frames := 0
	err := c.StreamChat(context.Background(), ChatRequest{Model: "m"}, func(ch StreamChunk) error {
		frames++
		if d, ok := ch.FirstDelta(); ok {
			content.WriteString(d.Content)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if frames != 2 || content.String() != "Hello" {
		t.Fatalf("frames=%d content=%q", frames, content.String())
	}
}

// stallingBody returns one frame and then blocks until the request is canceled.
type stallingBody struct {
	ctx  context.Context
	sent bool
}

func (b *stallingBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, `data: {"choices":[{"delta":{"content":"Hi"}}]}`+"\n"), nil
	}
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func (b *stallingBody) Close() error { return nil }

func TestStreamChatIdleTimeout(t *testing.T) {
	hc := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 200,
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
			Body:       &stallingBody{ctx: r.Context()},
		}, nil
	})}
	c, err := NewClient(logger.Nop(), Config{APIKey: "sk-test", HTTPClient: hc, IdleTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	var content strings.Builder
	done := make(chan error, 1)
	go func() {
		done <- c.StreamChat(context.Background(), ChatRequest{Model: "m"}, func(ch StreamChunk) error {
			if d, ok := ch.FirstDelta(); ok {
				content.WriteString(d.Content)
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStreamIdle) {
			t.Fatalf("expected ErrStreamIdle, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("stalled stream was never abandoned")
	}
	if content.String() != "Hi" {
		t.Fatalf("content=%q", content.String())
	}
}

func TestStreamChatHTTPError(t *testing.T) {
	c := newTestClient(t, 402, `{"error":{"message":"insufficient credits"}}`, nil)
	err := c.StreamChat(context.Background(), ChatRequest{Model: "m"}, nil)
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != 402 {
		t.Fatalf("expected HTTPError 402, got %v", err)
	}
}

func TestStreamChatInBandError(t *testing.T) {
	c := newTestClient(t, 200, `data: {"error":{"message":"model overloaded"}}`+"\n\n", nil)
	err := c.StreamChat(context.Background(), ChatRequest{Model: "m"}, func(StreamChunk) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("expected in-band error, got %v", err)
	}
}

func TestStreamSSEHandlesUnterminatedTail(t *testing.T) {
	var got []string
	err := streamSSE(strings.NewReader("data: a\n\ndata: b"), func(_ string, data string) error {
		got = append(got, data)
		return nil
	})
	if err != nil {
		t.Fatalf("streamSSE: %v", err)
	}
	if len(got) != 2 || got[1] != "b" {
		t.Fatalf("got=%v", got)
	}
}

func TestToolCallMessageEncodesNullContent(t *testing.T) {
	raw, err := json.Marshal(ChatMessage{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "c1", Type: "function", Function: FunctionCall{Name: "web_search", Arguments: `{"query":"x"}`}}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"content":null`) {
		t.Fatalf("assistant tool turn must carry null content: %s", raw)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.Nop(), Config{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
