package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

const (
	WebSearchName          = "web_search"
	defaultSerperEndpoint  = "https://google.serper.dev/search"
	defaultSearchResults   = 10
	maxSearchResults       = 20
	maxPeopleAlsoAsk       = 3
	maxRelatedSearches     = 5
	searchCacheTTL         = 5 * time.Minute
	searchCacheCleanup     = 10 * time.Minute
	maxSearchResponseBytes = 2 << 20
)

type SearchConfig struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

type OrganicResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

type PeopleAlsoAsk struct {
	Question string `json:"question"`
	Snippet  string `json:"snippet"`
}

type SearchResult struct {
	Query           string          `json:"query"`
	KnowledgeGraph  json.RawMessage `json:"knowledgeGraph"`
	Organic         []OrganicResult `json:"organic"`
	PeopleAlsoAsk   []PeopleAlsoAsk `json:"peopleAlsoAsk"`
	RelatedSearches []string        `json:"relatedSearches"`
}

type searchArgs struct {
	Query      string  `json:"query"`
	NumResults float64 `json:"numResults"`
}

type serperResponse struct {
	KnowledgeGraph json.RawMessage `json:"knowledgeGraph"`
	Organic        []OrganicResult `json:"organic"`
	PeopleAlsoAsk  []PeopleAlsoAsk `json:"peopleAlsoAsk"`
	Related        []struct {
		Query string `json:"query"`
	} `json:"relatedSearches"`
}

type webSearchTool struct {
	cfg   SearchConfig
	cache *cache.Cache
	log   *logger.Logger
}

func NewWebSearchTool(log *logger.Logger, cfg SearchConfig) Tool {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultSerperEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &webSearchTool{
		cfg:   cfg,
		cache: cache.New(searchCacheTTL, searchCacheCleanup),
		log:   log.With("tool", WebSearchName),
	}
}

func (t *webSearchTool) Name() string { return WebSearchName }

func (t *webSearchTool) Description() string {
	return "Search the web for current information on any topic. Use this when you need up-to-date information or when the user asks about recent events, news, or specific facts."
}

func (t *webSearchTool) Definition() openai.FunctionDefinition {
	return openai.FunctionDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"query": {
					Type:        jsonschema.String,
					Description: "The search query to find relevant information",
				},
				"numResults": {
					Type:        jsonschema.Number,
					Description: "Number of search results to return (default: 10, max: 20)",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (t *webSearchTool) Call(ctx context.Context, input string) (string, error) {
	var args searchArgs
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid web_search arguments: %w", err)
	}
	args.Query = strings.TrimSpace(args.Query)
	if args.Query == "" {
		return "", errors.New("web_search requires a query")
	}
	num := int(args.NumResults)
	if num <= 0 {
		num = defaultSearchResults
	}
	if num > maxSearchResults {
		num = maxSearchResults
	}

	res, err := t.search(ctx, args.Query, num)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (t *webSearchTool) search(ctx context.Context, query string, num int) (*SearchResult, error) {
	key := fmt.Sprintf("%d\x00%s", num, query)
	if hit, ok := t.cache.Get(key); ok {
		return hit.(*SearchResult), nil
	}
	if t.cfg.APIKey == "" {
		return nil, errors.New("web search is not configured")
	}

	body, _ := json.Marshal(map[string]any{"q": query, "num": num})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", t.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Body: err.Error()}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchResponseBytes))
	if err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: truncateBody(raw, 512)}
	}

	var sr serperResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	res := &SearchResult{
		Query:           query,
		Organic:         []OrganicResult{},
		PeopleAlsoAsk:   []PeopleAlsoAsk{},
		RelatedSearches: []string{},
	}
	if len(sr.KnowledgeGraph) > 0 && string(sr.KnowledgeGraph) != "null" {
		res.KnowledgeGraph = sr.KnowledgeGraph
	}
	if sr.Organic != nil {
		res.Organic = sr.Organic
	}
	for i, p := range sr.PeopleAlsoAsk {
		if i >= maxPeopleAlsoAsk {
			break
		}
		res.PeopleAlsoAsk = append(res.PeopleAlsoAsk, p)
	}
	for i, r := range sr.Related {
		if i >= maxRelatedSearches {
			break
		}
		res.RelatedSearches = append(res.RelatedSearches, r.Query)
	}

	t.cache.Set(key, res, cache.DefaultExpiration)
	t.log.Debug("web search done", "results", len(res.Organic))
	return res, nil
}
