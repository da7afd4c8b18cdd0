package sheets

import (
	"context"
	"fmt"
	"sort"

	"tucano/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter replaces the mirrored ledger of a user.
	LedgerWriter interface {
		WriteLedger(ctx context.Context, uid string, rows []Row) (ref string, err error)
	}

	// LedgerReader returns what is currently mirrored for a user. A user that
	// was never mirrored has no rows and no error.
	LedgerReader interface {
		ReadLedger(ctx context.Context, uid string) ([]Row, error)
	}

	Ledger interface {
		LedgerWriter
		LedgerReader
	}
)

// Header is the first row of every ledger sheet.
var Header = []string{"ID", "Date", "Name", "Type", "Category", "Amount", "Paid", "Installment"}

// Row is one mirrored transaction.
type Row struct {
	ID          string
	Date        string
	Name        string
	Type        string
	Category    string
	Amount      core.Money
	Paid        bool
	Installment string
}

// Rows converts transactions into ledger rows ordered by date, then id.
func Rows(txs []core.Transaction) []Row {
	out := make([]Row, 0, len(txs))
	for _, t := range txs {
		r := Row{
			ID:       t.ID,
			Date:     t.Date.String(),
			Name:     t.Name,
			Type:     string(t.Type),
			Category: t.Category,
			Amount:   t.Amount,
			Paid:     t.Paid,
		}
		if n := core.InstallmentNumber(t); n > 0 {
			r.Installment = fmt.Sprintf("%d/%d", n, t.Installments)
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Equal reports whether two ledgers hold the same rows in the same order.
func Equal(a, b []Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
