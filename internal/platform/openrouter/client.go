package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

var errStreamDone = errors.New("stream done")

// ErrStreamIdle is returned when an open stream delivers no bytes for longer
// than the idle timeout.
var ErrStreamIdle = errors.New("openrouter stream idle")

const (
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultIdleTimeout = 90 * time.Second
	doneSentinel       = "[DONE]"
)

type Config struct {
	APIKey     string
	BaseURL    string
	Referer    string
	AppTitle   string
	HTTPClient *http.Client

	// IdleTimeout bounds the gap between reads on an open stream.
	IdleTimeout time.Duration
}

// Client streams chat completions from an OpenAI-compatible endpoint.
type Client interface {
	// StreamChat posts req with stream=true and calls onChunk for every
	// decoded frame until [DONE] or EOF. Frames that fail to decode are
	// logged and skipped. An error from onChunk stops the stream.
	StreamChat(ctx context.Context, req ChatRequest, onChunk func(StreamChunk) error) error
	// OpenAIConfig returns a go-openai config aimed at the same endpoint.
	OpenAIConfig() openai.ClientConfig
}

type client struct {
	log        *logger.Logger
	apiKey     string
	baseURL    string
	referer    string
	appTitle   string
	httpClient *http.Client
	idle       time.Duration
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENROUTER_API_KEY")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		// no overall timeout: streams run as long as the model keeps talking
		hc = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 90 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   16,
		}}
	}
	if cfg.AppTitle == "" {
		cfg.AppTitle = "KieraChat"
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &client{
		log:        log.With("client", "OpenRouterClient"),
		apiKey:     cfg.APIKey,
		baseURL:    base,
		referer:    cfg.Referer,
		appTitle:   cfg.AppTitle,
		httpClient: hc,
		idle:       cfg.IdleTimeout,
	}, nil
}

func (c *client) OpenAIConfig() openai.ClientConfig {
	oc := openai.DefaultConfig(c.apiKey)
	oc.BaseURL = c.baseURL
	oc.HTTPClient = c.httpClient
	return oc
}

func (c *client) StreamChat(ctx context.Context, reqBody ChatRequest, onChunk func(StreamChunk) error) error {
	reqBody.Stream = true
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctxutil.Default(ctx))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	req.Header.Set("X-Title", c.appTitle)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	// A stalled upstream cancels the request instead of holding the job.
	var stalled atomic.Bool
	timer := time.AfterFunc(c.idle, func() {
		stalled.Store(true)
		cancel()
	})
	defer timer.Stop()
	body := &idleReader{r: resp.Body, timer: timer, idle: c.idle}

	frames, skipped := 0, 0
	err = streamSSE(body, func(_ string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" {
			return nil
		}
		if data == doneSentinel {
			return errStreamDone
		}
		var chunk StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			skipped++
			c.log.Warn("skipping malformed stream frame", "error", err, "bytes", len(data))
			return nil
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			return fmt.Errorf("openrouter stream error: %s", chunk.Error.Message)
		}
		frames++
		if onChunk == nil {
			return nil
		}
		return onChunk(chunk)
	})
	if errors.Is(err, errStreamDone) {
		err = nil
	}
	if err != nil && stalled.Load() {
		err = fmt.Errorf("%w after %s: %v", ErrStreamIdle, c.idle, err)
	}
	c.log.Debug("stream finished", "model", reqBody.Model, "frames", frames, "skipped", skipped)
	return err
}

// idleReader pushes the idle deadline back on every read that returns data.
type idleReader struct {
	r     io.Reader
	timer *time.Timer
	idle  time.Duration
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.idle)
	}
	return n, err
}
