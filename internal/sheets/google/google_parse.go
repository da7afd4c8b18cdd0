package google

import (
	"fmt"
	"strconv"
	"strings"

	"tucano/internal/core"
	ports "tucano/internal/sheets"
)

// parseLedger converts a values matrix (as returned by Sheets API) back into
// ledger rows. The header row and blank rows are skipped.
func parseLedger(values [][]interface{}) ([]ports.Row, error) {
	var out []ports.Row
	for i, raw := range values {
		cols := toStrings(raw)
		if i == 0 && strings.EqualFold(safeGet(cols, 0), ports.Header[0]) {
			continue
		}
		if len(cols) == 0 || safeGet(cols, 0) == "" {
			continue
		}
		cents, ok := parseEurosToCents(safeGet(cols, 5))
		if !ok {
			return nil, fmt.Errorf("row %d: unexpected amount %q", i+1, safeGet(cols, 5))
		}
		out = append(out, ports.Row{
			ID:          safeGet(cols, 0),
			Date:        safeGet(cols, 1),
			Name:        safeGet(cols, 2),
			Type:        safeGet(cols, 3),
			Category:    safeGet(cols, 4),
			Amount:      core.Money{Cents: cents},
			Paid:        parsePaid(safeGet(cols, 6)),
			Installment: safeGet(cols, 7),
		})
	}
	return out, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

func parsePaid(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1", "x":
		return true
	}
	return false
}

// parseEurosToCents accepts "29.90", "29,9" and plain numbers. Values typed
// by hand may carry a thousands separator ("1.234,56").
func parseEurosToCents(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return int64((f * 100.0) + 0.5), true
}
