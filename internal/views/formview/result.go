package formview

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/charmbracelet/glamour"
	"github.com/microcosm-cc/bluemonday"
)

// ResultRenderer turns the server's completion message, which may be HTML,
// into styled terminal text.
type ResultRenderer struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
	conv   *converter.Converter
	style  string
}

// NewResultRenderer uses the named glamour style ("dark", "light", "notty",
// ...). An empty style detects the terminal background.
func NewResultRenderer(style string) *ResultRenderer {
	return &ResultRenderer{
		policy: bluemonday.UGCPolicy(),
		strict: bluemonday.StrictPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		style: style,
	}
}

// Markdown sanitizes html and converts it to markdown. If conversion fails
// the tag-stripped text is returned.
func (r *ResultRenderer) Markdown(html string) string {
	clean := r.policy.Sanitize(html)
	md, err := r.conv.ConvertString(clean)
	if err != nil || strings.TrimSpace(md) == "" {
		return strings.TrimSpace(r.strict.Sanitize(html))
	}
	return strings.TrimSpace(md)
}

// Render returns html as terminal output wrapped at width.
func (r *ResultRenderer) Render(html string, width int) string {
	md := r.Markdown(html)
	if width < 20 {
		width = 20
	}

	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if r.style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(r.style))
	}
	tr, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return md
	}
	out, err := tr.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
