package handlers

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"isd-finance-ai/internal/contextutil"
)

//go:embed landing.md
var landingMarkdown []byte

// LandingHandler serves the API overview page at "/".
type LandingHandler struct {
	page []byte
}

// landingPageData holds template data for the rendered page.
type landingPageData struct {
	Title   string
	Content template.HTML
}

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    :root {
      color-scheme: dark;
    }
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
      margin: 0 auto;
      padding: 2rem;
      max-width: 900px;
      line-height: 1.7;
      background: #050b18;
      color: #e4ecff;
    }
    article {
      background: rgba(12, 19, 35, 0.85);
      border: 1px solid rgba(99, 102, 241, 0.2);
      border-radius: 16px;
      padding: 2rem;
    }
    article h1, article h2 {
      color: #c7d2fe;
    }
    table {
      border-collapse: collapse;
      width: 100%;
    }
    th, td {
      border: 1px solid rgba(148, 163, 184, 0.3);
      padding: 0.4rem 0.8rem;
      text-align: left;
    }
    pre {
      background: #0f172a;
      padding: 1rem;
      overflow-x: auto;
      border-radius: 10px;
    }
    code {
      font-family: 'SFMono-Regular', Consolas, 'Liberation Mono', Menlo, monospace;
      color: #cbd5ff;
    }
  </style>
</head>
<body>
  <article>{{.Content}}</article>
</body>
</html>`))

// NewLandingHandler renders the embedded overview once.
func NewLandingHandler() (*LandingHandler, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)

	content, err := renderMarkdown(md, landingMarkdown)
	if err != nil {
		return nil, err
	}

	var page bytes.Buffer
	if err := landingTemplate.Execute(&page, landingPageData{
		Title:   "ISD Finance Assistant",
		Content: template.HTML(content),
	}); err != nil {
		return nil, fmt.Errorf("execute landing template: %w", err)
	}

	return &LandingHandler{page: page.Bytes()}, nil
}

// ServeHTTP writes the pre-rendered page.
func (h *LandingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(h.page); err != nil {
		logger.WarnContext(ctx, "failed to write landing page", "error", err)
	}
}

func renderMarkdown(md goldmark.Markdown, content []byte) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert(content, &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}
