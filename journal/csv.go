package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{"id", "seq", "side", "symbol", "shares", "price", "total", "created_at"}

// WriteCSV writes entries with a header row. Prices are written with two
// decimals.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{
			e.ID,
			strconv.FormatInt(e.Seq, 10),
			string(e.Side),
			e.Symbol,
			strconv.FormatInt(e.Shares, 10),
			e.Price.StringFixed(2),
			e.Total().StringFixed(2),
			e.CreatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
