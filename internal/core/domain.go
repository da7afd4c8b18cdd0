package core

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	CategoryShopping CategoryType = "shopping"
	CategoryExpense  CategoryType = "expense"
	CategoryIncome   CategoryType = "income"
)

// Default credit card cycle used when a user never saved settings.
const (
	DefaultClosingDay = 6
	DefaultPaymentDay = 10
)

// HorizonMonths is the number of future instances kept materialized for an
// open-ended recurrence.
const HorizonMonths = 12

const maxNameLength = 200

type (
	TransactionType string

	CategoryType string

	Unit string

	Transaction struct {
		ID             string          `json:"id"`
		Name           string          `json:"name"`
		Description    string          `json:"description,omitempty"`
		Amount         Money           `json:"amount"`
		Date           Date            `json:"date"`
		Type           TransactionType `json:"type"`
		Category       string          `json:"categoryId"` // category name
		Paid           bool            `json:"isPaid"`
		IncludeInStats bool            `json:"includeInStats"`

		// Recurrence
		IsRecurring      bool   `json:"isRecurring,omitempty"`
		RecurrenceID     string `json:"recurrenceId,omitempty"`
		RecurringEndDate *Date  `json:"recurringEndDate,omitempty"`
		// RecurrenceDay is the intended day of month. Dates are clamped to the
		// month length, so the stored date alone cannot recover a 31st.
		RecurrenceDay int `json:"recurrenceDay,omitempty"`

		// Credit card
		PurchaseDate   *Date  `json:"purchaseDate,omitempty"`
		TotalAmount    *Money `json:"totalAmount,omitempty"`
		Installments   int    `json:"installments,omitempty"`
		IsSubscription bool   `json:"isSubscription,omitempty"`
	}

	Category struct {
		ID   string       `json:"id"`
		Name string       `json:"name"`
		Type CategoryType `json:"type"`
	}

	ShoppingList struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Month       int    `json:"month"`
		Year        int    `json:"year"`
		Budget      Money  `json:"budget"`
		Spent       Money  `json:"spent"`
		ItemCount   int    `json:"itemCount"`
		IsCompleted bool   `json:"isCompleted"`
		CreatedAt   int64  `json:"createdAt,omitempty"` // unix millis
		UpdatedAt   int64  `json:"updatedAt,omitempty"`
	}

	ShoppingListItem struct {
		ID          string  `json:"id"`
		Name        string  `json:"name"`
		Quantity    float64 `json:"quantity"`
		Unit        Unit    `json:"unit"`
		Brand       string  `json:"brand,omitempty"`
		Price       Money   `json:"price"`
		Category    string  `json:"category,omitempty"`
		IsPurchased bool    `json:"isPurchased"`
	}

	CreditCardSettings struct {
		ClosingDay int `json:"closingDay"`
		PaymentDay int `json:"paymentDay"`
	}

	// ValidationError reports which field failed and why.
	ValidationError struct {
		Field string
		Err   error
	}
)

var (
	ErrInvalidDay          = errors.New("invalid day")
	ErrInvalidMonth        = errors.New("invalid month")
	ErrInvalidYear         = errors.New("invalid year")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidType         = errors.New("invalid type")
	ErrInvalidUnit         = errors.New("invalid unit")
	ErrEmptyName           = errors.New("empty name")
	ErrNameTooLong         = errors.New("name too long (max 200 characters)")
	ErrEmptyCategory       = errors.New("empty category")
	ErrInvalidEndDate      = errors.New("end date before start date")
	ErrInvalidInstallments = errors.New("installments must be at least 1")
	ErrTooManyInstallments = errors.New("too many installments (max 36)")
)

// Units accepted for shopping items.
var Units = []Unit{"un", "kg", "g", "l", "ml", "cx", "pct"}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err is (or wraps) a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (t CategoryType) Valid() bool {
	switch t {
	case CategoryShopping, CategoryExpense, CategoryIncome:
		return true
	}
	return false
}

func (u Unit) Valid() bool {
	for _, v := range Units {
		if u == v {
			return true
		}
	}
	return false
}

func validateName(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid(field, ErrEmptyName)
	}
	if len(name) > maxNameLength {
		return invalid(field, ErrNameTooLong)
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := validateName("name", t.Name); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return invalid("amount", err)
	}
	if err := t.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if !t.Type.Valid() {
		return invalid("type", ErrInvalidType)
	}
	if strings.TrimSpace(t.Category) == "" {
		return invalid("categoryId", ErrEmptyCategory)
	}
	if t.RecurringEndDate != nil {
		if err := t.RecurringEndDate.Validate(); err != nil {
			return invalid("recurringEndDate", err)
		}
		if t.RecurringEndDate.Before(t.Date.Time) {
			return invalid("recurringEndDate", ErrInvalidEndDate)
		}
	}
	if t.RecurrenceDay < 0 || t.RecurrenceDay > 31 {
		return invalid("recurrenceDay", ErrInvalidDay)
	}
	return nil
}

// EffectiveRecurrenceDay is the day of month the recurrence aims for.
func (t Transaction) EffectiveRecurrenceDay() int {
	if t.RecurrenceDay > 0 {
		return t.RecurrenceDay
	}
	return t.Date.Day()
}

// IsCredit reports whether the transaction came from a credit card purchase.
func (t Transaction) IsCredit() bool {
	return t.PurchaseDate != nil
}

func (c Category) Validate() error {
	if err := validateName("name", c.Name); err != nil {
		return err
	}
	if !c.Type.Valid() {
		return invalid("type", ErrInvalidType)
	}
	return nil
}

func (l ShoppingList) Validate() error {
	if err := validateName("name", l.Name); err != nil {
		return err
	}
	if l.Month < 1 || l.Month > 12 {
		return invalid("month", ErrInvalidMonth)
	}
	if l.Year < 1900 || l.Year > 9999 {
		return invalid("year", ErrInvalidYear)
	}
	if err := l.Budget.Validate(); err != nil {
		return invalid("budget", err)
	}
	return nil
}

// Recompute derives spent, item count and completion from the list items.
func (l *ShoppingList) Recompute(items []ShoppingListItem) {
	var spent int64
	purchased := 0
	for _, it := range items {
		spent += it.Total().Cents
		if it.IsPurchased {
			purchased++
		}
	}
	l.Spent = Money{Cents: spent}
	l.ItemCount = len(items)
	l.IsCompleted = len(items) > 0 && purchased == len(items)
}

// MonthKey returns the YYYY-MM key of the list's month.
func (l ShoppingList) MonthKey() string {
	return MonthKey(l.Year, l.Month)
}

func (i ShoppingListItem) Validate() error {
	if err := validateName("name", i.Name); err != nil {
		return err
	}
	if i.Quantity <= 0 {
		return invalid("quantity", ErrInvalidQuantity)
	}
	if !i.Unit.Valid() {
		return invalid("unit", ErrInvalidUnit)
	}
	if i.Price.Cents < 0 {
		return invalid("price", ErrInvalidAmount)
	}
	return nil
}

// Total is price times quantity rounded to the cent.
func (i ShoppingListItem) Total() Money {
	return i.Price.MulFloat(i.Quantity)
}

func (s CreditCardSettings) Validate() error {
	if s.ClosingDay < 1 || s.ClosingDay > 31 {
		return invalid("closingDay", ErrInvalidDay)
	}
	if s.PaymentDay < 1 || s.PaymentDay > 31 {
		return invalid("paymentDay", ErrInvalidDay)
	}
	return nil
}

// WithDefaults fills unset days with the default cycle.
func (s CreditCardSettings) WithDefaults() CreditCardSettings {
	if s.ClosingDay == 0 {
		s.ClosingDay = DefaultClosingDay
	}
	if s.PaymentDay == 0 {
		s.PaymentDay = DefaultPaymentDay
	}
	return s
}

// DefaultCategories returns the seed names for a category type.
func DefaultCategories(t CategoryType) []string {
	switch t {
	case CategoryIncome:
		return []string{"Salário", "Benefícios", "Freelas", "Presentes", "Investimentos"}
	case CategoryExpense:
		return []string{
			"Aluguel", "Condomínio", "Contas", "Mercado", "Delivery", "Restaurantes",
			"Transporte", "Pets", "Cigarros", "Bebidas", "Roupas", "Saúde",
			"Educação", "Lazer", "Cartão", "Empréstimos", "Doações", "Presentes",
		}
	}
	return nil
}
