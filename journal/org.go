package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrade/market"
)

// FormatEntryOrg renders an Entry as an Org-mode heading with the structured
// facts in a PROPERTIES drawer, ready to paste into a trading diary.
func FormatEntryOrg(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %d %s @ %s (%s)\n", e.Side.Label(), e.Shares, e.Symbol, market.FormatUSD(e.Price), shortID(e.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", e.ID)
	fmt.Fprintf(&b, ":SEQ: %d\n", e.Seq)
	fmt.Fprintf(&b, ":SIDE: %s\n", e.Side)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", e.Symbol)
	fmt.Fprintf(&b, ":SHARES: %d\n", e.Shares)
	fmt.Fprintf(&b, ":PRICE: %s\n", e.Price.StringFixed(2))
	fmt.Fprintf(&b, ":TOTAL: %s\n", e.Total().StringFixed(2))
	fmt.Fprintf(&b, ":TIME: %s\n", e.CreatedAt.UTC().Format(time.RFC3339))
	b.WriteString(":END:\n")
	b.WriteString("\n*** Notes\n- \n")
	return b.String()
}

// FormatEntriesOrg renders multiple entries separated by a blank line.
func FormatEntriesOrg(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatEntryOrg(e))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
