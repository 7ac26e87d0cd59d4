package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func textResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestWebSearchShapesAndCachesResults(t *testing.T) {
	var calls int32
	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		require.Equal(t, "k", r.Header.Get("X-API-KEY"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "golang", body["q"])
		require.EqualValues(t, 20, body["num"])
		return textResponse(200, `{
			"organic":[{"title":"Go","link":"https://go.dev","snippet":"The Go language","position":1}],
			"peopleAlsoAsk":[{"question":"a","snippet":"1"},{"question":"b","snippet":"2"},{"question":"c","snippet":"3"},{"question":"d","snippet":"4"}],
			"relatedSearches":[{"query":"r1"},{"query":"r2"},{"query":"r3"},{"query":"r4"},{"query":"r5"},{"query":"r6"}]
		}`), nil
	})}
	tool := NewWebSearchTool(logger.Nop(), SearchConfig{APIKey: "k", HTTPClient: client})

	out, err := tool.Call(context.Background(), `{"query":"golang","numResults":50}`)
	require.NoError(t, err)

	var res SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, "golang", res.Query)
	require.Len(t, res.Organic, 1)
	require.Len(t, res.PeopleAlsoAsk, 3)
	require.Equal(t, []string{"r1", "r2", "r3", "r4", "r5"}, res.RelatedSearches)
	require.Contains(t, out, `"knowledgeGraph":null`)

	_, err = tool.Call(context.Background(), `{"query":"golang","numResults":50}`)
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestWebSearchUpstreamError(t *testing.T) {
	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return textResponse(429, "slow down"), nil
	})}
	tool := NewWebSearchTool(logger.Nop(), SearchConfig{APIKey: "k", HTTPClient: client})
	_, err := tool.Call(context.Background(), `{"query":"x"}`)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, 429, ue.Status)
}

func TestHTMLToTextStripsScriptsAndStyles(t *testing.T) {
	title, text := htmlToText(`<html><head><title> Pet door </title><style>body{color:red}</style></head>
		<body><script>var x = 1;</script><h1>Pet</h1>
		<p>A   pet door
		is a door.</p></body></html>`)
	require.Equal(t, "Pet door", title)
	require.Equal(t, "Pet door Pet A pet door is a door.", text)

	title, _ = htmlToText(`<p>no head</p>`)
	require.Equal(t, "No title found", title)
}

func TestExtractContentTruncatesByRunes(t *testing.T) {
	long := strings.Repeat("é", 12000)
	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		require.Contains(t, r.Header.Get("User-Agent"), "Chrome/91")
		return textResponse(200, "<html><body><p>"+long+"</p></body></html>"), nil
	})}
	tool := NewExtractContentTool(logger.Nop(), ExtractConfig{HTTPClient: client})
	out, err := tool.Call(context.Background(), `{"url":"https://example.com/page"}`)
	require.NoError(t, err)

	var res ExtractResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, 12000, res.ContentLength)
	require.True(t, res.Truncated)
	require.Equal(t, 10000, utf8.RuneCountInString(res.Content))
	require.Equal(t, "No title found", res.Title)
}

func TestExtractContentExactlyAtCapIsNotTruncated(t *testing.T) {
	body := strings.Repeat("a", 10000)
	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return textResponse(200, body), nil
	})}
	tool := NewExtractContentTool(logger.Nop(), ExtractConfig{HTTPClient: client})
	out, err := tool.Call(context.Background(), `{"url":"https://example.com"}`)
	require.NoError(t, err)
	var res ExtractResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.False(t, res.Truncated)
	require.Equal(t, 10000, res.ContentLength)
}

func TestExtractContentRefusesInternalTargets(t *testing.T) {
	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatalf("request should not be sent: %s", r.URL)
		return nil, nil
	})}
	tool := NewExtractContentTool(logger.Nop(), ExtractConfig{HTTPClient: client})
	for _, u := range []string{
		"http://127.0.0.1:8080/admin",
		"http://localhost/",
		"http://169.254.169.254/latest/meta-data",
		"http://10.0.0.5/",
		"http://[::1]/",
	} {
		_, err := tool.Call(context.Background(), `{"url":"`+u+`"}`)
		require.ErrorIs(t, err, ErrBlockedAddress, u)
	}
	_, err := tool.Call(context.Background(), `{"url":"file:///etc/passwd"}`)
	require.ErrorContains(t, err, "unsupported url scheme")
}

func TestGuardedDialerRejectsLoopback(t *testing.T) {
	d := guardedDialer(false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := d.DialContext(ctx, "tcp", "127.0.0.1:9")
	require.True(t, errors.Is(err, ErrBlockedAddress), "got %v", err)
	require.False(t, isDisallowedIP(net.ParseIP("93.184.216.34")))
	require.True(t, isDisallowedIP(net.ParseIP("100.64.1.1")))
}

func TestExtractContentNon2xx(t *testing.T) {
	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return textResponse(404, "missing"), nil
	})}
	tool := NewExtractContentTool(logger.Nop(), ExtractConfig{HTTPClient: client})
	_, err := tool.Call(context.Background(), `{"url":"https://example.com/x"}`)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, 404, ue.Status)
}

type stubTool struct {
	name  string
	delay time.Duration
	err   error
	live  *int32
	peak  *int32
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return s.name }
func (s *stubTool) Definition() openai.FunctionDefinition {
	return openai.FunctionDefinition{Name: s.name}
}
func (s *stubTool) Call(ctx context.Context, input string) (string, error) {
	if s.live != nil {
		n := atomic.AddInt32(s.live, 1)
		for {
			p := atomic.LoadInt32(s.peak)
			if n <= p || atomic.CompareAndSwapInt32(s.peak, p, n) {
				break
			}
		}
		defer atomic.AddInt32(s.live, -1)
	}
	time.Sleep(s.delay)
	if s.err != nil {
		return "", s.err
	}
	return s.name + ":" + input, nil
}

func TestExecutorKeepsOrderAndFormatsErrors(t *testing.T) {
	slow := &stubTool{name: "slow", delay: 30 * time.Millisecond}
	fast := &stubTool{name: "fast"}
	bad := &stubTool{name: "bad", err: errors.New("boom")}
	ex := NewExecutor(logger.Nop(), 4, slow, fast, bad)

	res := ex.Execute(context.Background(), []Call{
		{ID: "1", Name: "slow", Arguments: "a"},
		{ID: "2", Name: "fast", Arguments: "b"},
		{ID: "3", Name: "bad", Arguments: "c"},
		{ID: "4", Name: "nope", Arguments: "d"},
	})
	require.Len(t, res, 4)
	require.Equal(t, "slow:a", res[0].Content)
	require.Equal(t, "fast:b", res[1].Content)
	require.Equal(t, "Error executing tool: boom", res[2].Content)
	require.Equal(t, "Error executing tool: unknown tool nope", res[3].Content)
	require.Equal(t, "3", res[2].CallID)
	require.Len(t, ex.Definitions(), 3)
}

func TestExecutorBoundsParallelism(t *testing.T) {
	var live, peak int32
	tool := &stubTool{name: "t", delay: 20 * time.Millisecond, live: &live, peak: &peak}
	ex := NewExecutor(logger.Nop(), 2, tool)
	calls := make([]Call, 6)
	for i := range calls {
		calls[i] = Call{Name: "t"}
	}
	ex.Execute(context.Background(), calls)
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}
