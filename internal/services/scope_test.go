package services

import (
	"errors"
	"testing"

	"tucano/internal/core"
)

func groupOf(rid string, dates ...core.Date) []core.Transaction {
	out := make([]core.Transaction, 0, len(dates))
	for i, d := range dates {
		out = append(out, core.Transaction{
			ID:           rid + "-" + string(rune('a'+i)),
			Name:         "Rent",
			Amount:       core.Money{Cents: 100000},
			Date:         d,
			Type:         core.Expense,
			Category:     "Aluguel",
			IsRecurring:  true,
			RecurrenceID: rid,
		})
	}
	return out
}

func TestScopeSelectors(t *testing.T) {
	group := groupOf("r1",
		core.NewDate(2025, 7, 20),
		core.NewDate(2025, 5, 20),
		core.NewDate(2025, 6, 20),
	)
	other := groupOf("r2", core.NewDate(2025, 6, 1))
	all := append(append([]core.Transaction{}, group...), other...)
	target := group[2] // June

	tests := []struct {
		name     string
		selector ScopeSelector
		target   core.Transaction
		want     []string
	}{
		{
			name:     "single - only the target",
			selector: SingleSelector{},
			target:   target,
			want:     []string{"2025-06-20"},
		},
		{
			name:     "future - target and later instances of the group",
			selector: FutureSelector{},
			target:   target,
			want:     []string{"2025-06-20", "2025-07-20"},
		},
		{
			name:     "all - whole group in date order",
			selector: AllSelector{},
			target:   target,
			want:     []string{"2025-05-20", "2025-06-20", "2025-07-20"},
		},
		{
			name:     "all - ungrouped transaction stays alone",
			selector: AllSelector{},
			target:   core.Transaction{ID: "x", Date: core.NewDate(2025, 6, 1)},
			want:     []string{"2025-06-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.selector.Select(tt.target, all)
			if len(got) != len(tt.want) {
				t.Fatalf("Select() returned %d instances, want %d", len(got), len(tt.want))
			}
			for i, d := range tt.want {
				if got[i].Date.String() != d {
					t.Errorf("Select()[%d] = %s, want %s", i, got[i].Date, d)
				}
			}
		})
	}
}

func TestSelectorRegistry_Get(t *testing.T) {
	registry := NewSelectorRegistry()

	tests := []struct {
		scope   Scope
		wantErr bool
	}{
		{"", false},
		{ScopeSingle, false},
		{ScopeFuture, false},
		{ScopeAll, false},
		{"past", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			sel, err := registry.Get(tt.scope)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidScope) || !core.IsValidation(err) {
					t.Errorf("Get(%q) error = %v, want invalid scope validation error", tt.scope, err)
				}
				return
			}
			if err != nil || sel == nil {
				t.Errorf("Get(%q) = %v, %v", tt.scope, sel, err)
			}
		})
	}
}
