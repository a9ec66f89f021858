// internal/tools/content.go
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

const defaultContentLength = 8000

const outerHTMLScript = `document.documentElement ? document.documentElement.outerHTML : ""`

var (
	sanitizer   = bluemonday.UGCPolicy()
	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

// PageMarkdown strips scripts, styles and other active content from html and
// converts the rest to markdown. Relative links resolve against pageURL.
func PageMarkdown(html, pageURL string) (string, error) {
	clean := sanitizer.Sanitize(html)
	md, err := mdConverter.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil {
		return "", fmt.Errorf("could not convert page to markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

func extractContent(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	var html string
	if err := env.Browser.ExecuteScript(ctx, outerHTMLScript, &html); err != nil {
		return Failf("Extract content failed: %v", err), nil
	}
	pageURL, _ := env.Browser.URL(ctx)

	md, err := PageMarkdown(html, pageURL)
	if err != nil {
		return Failf("Extract content failed: %v", err), nil
	}
	if md == "" {
		return Fail("Page has no readable content"), nil
	}

	limit := p.Int("max_length")
	truncated := false
	if r := []rune(md); limit > 0 && len(r) > limit {
		md = string(r[:limit])
		truncated = true
	}
	return Ok(md, map[string]interface{}{
		"url":       pageURL,
		"content":   md,
		"truncated": truncated,
	}), nil
}
