package changelog

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/k3a/html2text"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer turns markdown release notes into sanitized HTML and plain text.
// It is safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewRenderer creates a renderer supporting GitHub flavoured markdown.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// HTML renders notes to HTML with scripts, styles and event handlers removed.
func (r *Renderer) HTML(notes string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(notes), &buf); err != nil {
		return "", fmt.Errorf("failed to render release notes: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}

// PlainText renders notes for channels that cannot display HTML.
func (r *Renderer) PlainText(notes string) (string, error) {
	rendered, err := r.HTML(notes)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(html2text.HTML2Text(rendered)), nil
}
