package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

const (
	ExtractContentName = "extract_content"
	extractUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	maxExtractBytes    = 5 << 20
	maxExtractRunes    = 10000
	noTitle            = "No title found"
)

type ExtractConfig struct {
	HTTPClient *http.Client
	// AllowPrivateNetworks disables the internal-address guard. Local development only.
	AllowPrivateNetworks bool
}

type ExtractResult struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	ContentLength int    `json:"contentLength"`
	Truncated     bool   `json:"truncated"`
}

type extractArgs struct {
	URL string `json:"url"`
}

type extractContentTool struct {
	cfg ExtractConfig
	log *logger.Logger
}

func NewExtractContentTool(log *logger.Logger, cfg ExtractConfig) Tool {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newGuardedClient(20*time.Second, cfg.AllowPrivateNetworks)
	}
	return &extractContentTool{cfg: cfg, log: log.With("tool", ExtractContentName)}
}

func (t *extractContentTool) Name() string { return ExtractContentName }

func (t *extractContentTool) Description() string {
	return "Extract the main content from a specific webpage URL. Use this after web search to get detailed information from a specific source."
}

func (t *extractContentTool) Definition() openai.FunctionDefinition {
	return openai.FunctionDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"url": {
					Type:        jsonschema.String,
					Description: "The URL of the webpage to extract content from",
				},
			},
			Required: []string{"url"},
		},
	}
}

func (t *extractContentTool) Call(ctx context.Context, input string) (string, error) {
	var args extractArgs
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid extract_content arguments: %w", err)
	}
	res, err := t.extract(ctx, args.URL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content from URL: %w", err)
	}
	out, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (t *extractContentTool) extract(ctx context.Context, rawURL string) (*ExtractResult, error) {
	u, err := checkURL(rawURL, t.cfg.AllowPrivateNetworks)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", extractUserAgent)

	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, ErrBlockedAddress) {
			return nil, ErrBlockedAddress
		}
		return nil, &UpstreamError{Body: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &UpstreamError{Status: resp.StatusCode, Body: truncateBody(b, 512)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxExtractBytes))
	if err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: err.Error()}
	}
	title, text := htmlToText(string(raw))

	n := utf8.RuneCountInString(text)
	content := text
	if n > maxExtractRunes {
		content = string([]rune(text)[:maxExtractRunes])
	}
	return &ExtractResult{
		URL:           rawURL,
		Title:         title,
		Content:       content,
		ContentLength: n,
		Truncated:     n > maxExtractRunes,
	}, nil
}

// htmlToText returns the document title and its visible text with
// whitespace collapsed. Script and style bodies are dropped.
func htmlToText(doc string) (string, string) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return noTitle, strings.Join(strings.Fields(doc), " ")
	}
	var (
		sb    strings.Builder
		title string
		walk  func(n *html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			case atom.Title:
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	if title == "" {
		title = noTitle
	}
	return title, strings.Join(strings.Fields(sb.String()), " ")
}
