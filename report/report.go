// Package report renders portfolios, trade history and receipts as markdown,
// and optionally styles that markdown for a terminal with glamour.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"

	"github.com/charmbracelet/glamour"

	"github.com/rustyeddy/papertrade/journal"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/sim"
)

//go:embed templates/*.md
var templates embed.FS

// DefaultWidth is the word wrap used when Render is given a width <= 0.
const DefaultWidth = 100

var funcs = template.FuncMap{
	"usd": market.FormatUSD,
	"cell": func(s string) string {
		return strings.ReplaceAll(s, "|", `\|`)
	},
	// signed shows sold shares as a negative quantity.
	"signed": func(e journal.Entry) int64 {
		if e.Side == journal.Sell {
			return -e.Shares
		}
		return e.Shares
	},
}

func renderTemplate(file string, data any) (string, error) {
	content, err := fs.ReadFile(templates, "templates/"+file)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", file, err)
	}
	tmpl, err := template.New(file).Funcs(funcs).Parse(string(content))
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", file, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", file, err)
	}
	return buf.String(), nil
}

// PortfolioMarkdown renders the holdings table with the cash row and grand
// total.
func PortfolioMarkdown(view sim.PortfolioView) (string, error) {
	return renderTemplate("portfolio.md", view)
}

// HistoryMarkdown renders trades oldest first.
func HistoryMarkdown(entries []journal.Entry) (string, error) {
	return renderTemplate("history.md", entries)
}

// ReceiptMarkdown renders the confirmation shown after a trade.
func ReceiptMarkdown(r sim.Receipt) (string, error) {
	return renderTemplate("receipt.md", r)
}

// Style selects a glamour style. Plain output suits pipes and tests.
type Style string

const (
	StylePlain Style = "notty"
	StyleDark  Style = "dark"
	StyleLight Style = "light"
	StyleAuto  Style = "auto"
)

// ParseStyle accepts plain, dark, light or auto. The empty string is auto.
func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return StyleAuto, nil
	case "plain", "notty":
		return StylePlain, nil
	case "dark":
		return StyleDark, nil
	case "light":
		return StyleLight, nil
	}
	return "", fmt.Errorf("unknown style %q", s)
}

// Render styles markdown for a terminal of the given width.
func Render(md string, style Style, width int) (string, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == StyleAuto || style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(string(style)))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
