package memory

import (
	"context"
	"testing"

	"tucano/internal/core"
	"tucano/internal/sheets"
)

func TestStoreWriteAndRead(t *testing.T) {
	s := New()
	ctx := context.Background()

	rows, err := s.ReadLedger(ctx, "u1")
	if err != nil || len(rows) != 0 {
		t.Fatalf("unexpected empty ledger: rows=%v err=%v", rows, err)
	}

	want := []sheets.Row{{ID: "t1", Date: "2025-05-10", Name: "Rent", Type: "expense", Amount: core.Money{Cents: 90000}}}
	ref, err := s.WriteLedger(ctx, "u1", want)
	if err != nil || ref != "mem:u1:1" {
		t.Fatalf("unexpected write: ref=%q err=%v", ref, err)
	}

	got, _ := s.ReadLedger(ctx, "u1")
	if !sheets.Equal(got, want) {
		t.Fatalf("ReadLedger() = %v, want %v", got, want)
	}

	// the stored rows are a copy
	got[0].Name = "changed"
	again, _ := s.ReadLedger(ctx, "u1")
	if again[0].Name != "Rent" {
		t.Errorf("stored rows were modified through a returned slice")
	}

	if _, err := s.WriteLedger(ctx, "u1", nil); err != nil {
		t.Fatal(err)
	}
	if s.Writes("u1") != 2 {
		t.Errorf("Writes() = %d, want 2", s.Writes("u1"))
	}
	if _, err := s.WriteLedger(ctx, "", want); err == nil {
		t.Error("expected error for empty user id")
	}
}
