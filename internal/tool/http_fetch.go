package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	einotool "github.com/cloudwego/eino/components/tool"
)

const httpFetchDescription = `Fetches a URL and returns its content as a JSON document.

Usage:
- url must start with http:// or https://
- HTML responses are converted to Markdown for the model
- Returns {"url": ..., "content": ...} on success, {"url": ..., "error": ...} on failure
- This tool never modifies files and has no sandboxing restriction beyond the URL scheme check`

const (
	httpFetchMaxResponseSize = 5 * 1024 * 1024 // 5MB
	httpFetchDefaultTimeout  = 30 * time.Second
	httpFetchMaxTimeout      = 120 * time.Second
)

// HTTPFetchTool implements http_fetch. Its Execute result is always valid
// JSON ({content} or {error}); TurnRunner classifies success/failure
// structurally rather than by string prefix.
type HTTPFetchTool struct {
	client *http.Client
}

// HTTPFetchInput is the http_fetch tool's parameter shape.
type HTTPFetchInput struct {
	URL     string `json:"url"`
	Timeout int    `json:"timeout,omitempty"`
}

// httpFetchOutput is the JSON document returned as Result.Output.
type httpFetchOutput struct {
	URL     string `json:"url"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewHTTPFetchTool builds an http_fetch tool.
func NewHTTPFetchTool() *HTTPFetchTool {
	return &HTTPFetchTool{client: &http.Client{Timeout: httpFetchDefaultTimeout}}
}

func (t *HTTPFetchTool) ID() string          { return "http_fetch" }
func (t *HTTPFetchTool) Description() string { return httpFetchDescription }

func (t *HTTPFetchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "The URL to fetch"},
			"timeout": {"type": "integer", "description": "Optional timeout in seconds (max 120)"}
		},
		"required": ["url"]
	}`)
}

func (t *HTTPFetchTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params HTTPFetchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	out := t.fetch(ctx, params)
	body, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}

	return &Result{
		Title:    params.URL,
		Output:   string(body),
		Metadata: map[string]any{"url": params.URL, "error": out.Error != ""},
	}, nil
}

func (t *HTTPFetchTool) fetch(ctx context.Context, params HTTPFetchInput) httpFetchOutput {
	if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
		return httpFetchOutput{URL: params.URL, Error: "url must start with http:// or https://"}
	}

	timeout := httpFetchDefaultTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Second
		if timeout > httpFetchMaxTimeout {
			timeout = httpFetchMaxTimeout
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, params.URL, nil)
	if err != nil {
		return httpFetchOutput{URL: params.URL, Error: err.Error()}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; agent-orchestrator/1.0)")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.1")

	resp, err := t.client.Do(req)
	if err != nil {
		return httpFetchOutput{URL: params.URL, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpFetchOutput{URL: params.URL, Error: fmt.Sprintf("request failed with status %d", resp.StatusCode)}
	}
	if resp.ContentLength > httpFetchMaxResponseSize {
		return httpFetchOutput{URL: params.URL, Error: "response exceeds 5MB limit"}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, httpFetchMaxResponseSize+1))
	if err != nil {
		return httpFetchOutput{URL: params.URL, Error: err.Error()}
	}
	if len(body) > httpFetchMaxResponseSize {
		return httpFetchOutput{URL: params.URL, Error: "response exceeds 5MB limit"}
	}

	content := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		cleaned, cleanErr := stripBoilerplate(content)
		if cleanErr == nil {
			content = cleaned
		}
		markdown, convErr := convertHTMLToMarkdown(content)
		if convErr != nil {
			return httpFetchOutput{URL: params.URL, Error: fmt.Sprintf("html to markdown conversion failed: %v", convErr)}
		}
		content = markdown
	}

	return httpFetchOutput{URL: params.URL, Content: content}
}

// stripBoilerplate removes navigation/script/style noise before markdown
// conversion, giving the model a cleaner document than html-to-markdown's
// own element removal covers alone.
func stripBoilerplate(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, iframe, nav, footer, header, aside").Remove()
	rendered, err := doc.Html()
	if err != nil {
		return "", err
	}
	return rendered, nil
}

func (t *HTTPFetchTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

func convertHTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		EmDelimiter:      "*",
	})
	converter.Remove("script", "style", "meta", "link")
	return converter.ConvertString(html)
}
