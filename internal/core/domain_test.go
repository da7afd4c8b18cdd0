package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func validTransaction() Transaction {
	return Transaction{
		Name:           "Aluguel",
		Amount:         Money{Cents: 150000},
		Date:           NewDate(2025, 5, 5),
		Type:           Expense,
		Category:       "Aluguel",
		IncludeInStats: true,
	}
}

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestTransactionValidate(t *testing.T) {
	if err := validTransaction().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	end := NewDate(2025, 4, 1)
	cases := []struct {
		name   string
		mutate func(*Transaction)
		field  string
		want   error
	}{
		{"empty name", func(tx *Transaction) { tx.Name = "  " }, "name", ErrEmptyName},
		{"zero amount", func(tx *Transaction) { tx.Amount = Money{} }, "amount", ErrInvalidAmount},
		{"zero date", func(tx *Transaction) { tx.Date = Date{} }, "date", nil},
		{"bad type", func(tx *Transaction) { tx.Type = "transfer" }, "type", ErrInvalidType},
		{"no category", func(tx *Transaction) { tx.Category = "" }, "categoryId", ErrEmptyCategory},
		{"end before start", func(tx *Transaction) { tx.RecurringEndDate = &end }, "recurringEndDate", ErrInvalidEndDate},
		{"recurrence day", func(tx *Transaction) { tx.RecurrenceDay = 32 }, "recurrenceDay", ErrInvalidDay},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := validTransaction()
			tc.mutate(&tx)
			err := tx.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("field = %q, want %q", ve.Field, tc.field)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !IsValidation(err) {
				t.Fatalf("IsValidation should be true")
			}
		})
	}
}

func TestTransactionJSONOmitsAbsentOptionalFields(t *testing.T) {
	b, err := json.Marshal(validTransaction())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"recurringEndDate", "purchaseDate", "totalAmount", "installments", "isSubscription", "recurrenceId"} {
		if _, ok := raw[k]; ok {
			t.Fatalf("optional field %q should be omitted: %s", k, b)
		}
	}
	if raw["date"] != "2025-05-05" {
		t.Fatalf("date = %v", raw["date"])
	}
	if raw["categoryId"] != "Aluguel" {
		t.Fatalf("categoryId = %v", raw["categoryId"])
	}
}

func TestEffectiveRecurrenceDay(t *testing.T) {
	tx := validTransaction()
	if got := tx.EffectiveRecurrenceDay(); got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
	tx.RecurrenceDay = 31
	if got := tx.EffectiveRecurrenceDay(); got != 31 {
		t.Fatalf("got %d, want 31", got)
	}
}

func TestShoppingListRecompute(t *testing.T) {
	var l ShoppingList
	l.Recompute(nil)
	if l.IsCompleted || l.ItemCount != 0 || l.Spent.Cents != 0 {
		t.Fatalf("empty list must not be completed: %+v", l)
	}

	items := []ShoppingListItem{
		{Name: "Arroz", Quantity: 2, Unit: "kg", Price: Money{Cents: 650}, IsPurchased: true},
		{Name: "Leite", Quantity: 3, Unit: "l", Price: Money{Cents: 499}},
	}
	l.Recompute(items)
	if l.Spent.Cents != 1300+1497 {
		t.Fatalf("spent = %d", l.Spent.Cents)
	}
	if l.ItemCount != 2 || l.IsCompleted {
		t.Fatalf("unexpected derived state: %+v", l)
	}

	items[1].IsPurchased = true
	l.Recompute(items)
	if !l.IsCompleted {
		t.Fatalf("all purchased should complete the list")
	}
}

func TestShoppingValidation(t *testing.T) {
	good := ShoppingList{Name: "Mercado", Month: 5, Year: 2025, Budget: Money{Cents: 100}}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []ShoppingList{
		{Name: "", Month: 5, Year: 2025, Budget: Money{Cents: 100}},
		{Name: "x", Month: 13, Year: 2025, Budget: Money{Cents: 100}},
		{Name: "x", Month: 5, Year: 0, Budget: Money{Cents: 100}},
		{Name: "x", Month: 5, Year: 2025},
	}
	for i, l := range bads {
		if err := l.Validate(); err == nil {
			t.Fatalf("list case %d expected error", i)
		}
	}

	item := ShoppingListItem{Name: "Arroz", Quantity: 1, Unit: "kg", Price: Money{Cents: 100}}
	if err := item.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	item.Unit = "lb"
	if err := item.Validate(); !errors.Is(err, ErrInvalidUnit) {
		t.Fatalf("expected ErrInvalidUnit, got %v", err)
	}
	item.Unit = "un"
	item.Quantity = 0
	if err := item.Validate(); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestCreditCardSettingsDefaults(t *testing.T) {
	s := CreditCardSettings{}.WithDefaults()
	if s.ClosingDay != DefaultClosingDay || s.PaymentDay != DefaultPaymentDay {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	if err := (CreditCardSettings{ClosingDay: 0, PaymentDay: 10}).Validate(); err == nil {
		t.Fatalf("expected error for closing day 0")
	}
	if err := (CreditCardSettings{ClosingDay: 31, PaymentDay: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestDefaultCategories(t *testing.T) {
	if got := len(DefaultCategories(CategoryIncome)); got != 5 {
		t.Fatalf("income seeds = %d", got)
	}
	if got := len(DefaultCategories(CategoryExpense)); got != 18 {
		t.Fatalf("expense seeds = %d", got)
	}
	if got := DefaultCategories(CategoryShopping); got != nil {
		t.Fatalf("shopping has no seeds, got %v", got)
	}
}
