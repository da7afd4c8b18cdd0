package core

import (
	"sort"
	"strings"
	"time"
)

// OthersCategory collects everything past the top entries of a breakdown.
const OthersCategory = "Others"

// TopCategories is how many categories a breakdown keeps individually.
const TopCategories = 5

const (
	PeriodDay     Period = "day"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

type Period string

func (p Period) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear:
		return true
	}
	return false
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// MonthTotal holds income and expense for one YYYY-MM month.
type MonthTotal struct {
	Month   string `json:"month"`
	Income  Money  `json:"income"`
	Expense Money  `json:"expense"`
}

// MonthBalance is the cumulative balance at the end of a month.
type MonthBalance struct {
	Month   string `json:"month"`
	Balance Money  `json:"balance"`
}

// ShoppingListDetail is a list together with its items.
type ShoppingListDetail struct {
	ShoppingList
	Items []ShoppingListItem `json:"items"`
}

// Dashboard aggregates everything shown for one period.
type Dashboard struct {
	Period             Period           `json:"period"`
	From               Date             `json:"from"`
	To                 Date             `json:"to"`
	TotalIncome        Money            `json:"totalIncome"`
	TotalExpense       Money            `json:"totalExpense"`
	ExpenseByCategory  []CategoryAmount `json:"expenseByCategory"`
	IncomeByCategory   []CategoryAmount `json:"incomeByCategory"`
	TopExpenses        []Transaction    `json:"topExpenses"`
	TopIncomes         []Transaction    `json:"topIncomes"`
	Monthly            []MonthTotal     `json:"monthly"`
	Balance            []MonthBalance   `json:"balance"`
	CreditByCategory   []CategoryAmount `json:"creditByCategory"`
	TotalCredit        Money            `json:"totalCredit"`
	ShoppingByCategory []CategoryAmount `json:"shoppingByCategory"`
	TotalShopping      Money            `json:"totalShopping"`
}

// PeriodRange returns the inclusive day range of the period containing ref.
// Weeks start on Monday.
func PeriodRange(p Period, ref Date) (Date, Date) {
	y, m := ref.Year(), ref.Month()
	switch p {
	case PeriodDay:
		return ref, ref
	case PeriodWeek:
		offset := (int(ref.Weekday()) + 6) % 7
		from := DateOf(ref.AddDate(0, 0, -offset))
		return from, DateOf(from.AddDate(0, 0, 6))
	case PeriodQuarter:
		first := (m-1)/3*3 + 1
		return NewDate(y, first, 1), NewDate(y, first+2, DaysIn(y, first+2))
	case PeriodYear:
		return NewDate(y, 1, 1), NewDate(y, 12, 31)
	default:
		return NewDate(y, m, 1), NewDate(y, m, DaysIn(y, m))
	}
}

// FilterByPeriod keeps transactions dated inside the period containing ref.
func FilterByPeriod(txs []Transaction, p Period, ref Date) []Transaction {
	from, to := PeriodRange(p, ref)
	return FilterByRange(txs, from, to)
}

// FilterByRange keeps transactions dated in [from, to].
func FilterByRange(txs []Transaction, from, to Date) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if t.Date.Before(from.Time) || t.Date.After(to.Time) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// FilterByMonth keeps transactions whose date falls in the YYYY-MM key.
func FilterByMonth(txs []Transaction, key string) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if t.Date.MonthKey() == key {
			out = append(out, t)
		}
	}
	return out
}

// StatsOnly drops transactions excluded from statistics.
func StatsOnly(txs []Transaction) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if t.IncludeInStats {
			out = append(out, t)
		}
	}
	return out
}

// SumByCategory totals the given type per category, largest first. When
// limit > 0 only the first limit categories are kept and the remainder is
// folded into OthersCategory.
func SumByCategory(txs []Transaction, typ TransactionType, limit int) []CategoryAmount {
	return collapse(sumBy(txs, func(t Transaction) (string, bool) {
		return t.Category, t.Type == typ
	}), limit)
}

// CreditByCategory totals credit card expenses per category, largest first.
func CreditByCategory(txs []Transaction) []CategoryAmount {
	return sumBy(txs, func(t Transaction) (string, bool) {
		return t.Category, t.Type == Expense && t.IsCredit()
	})
}

// ShoppingByCategory totals price times quantity per item category.
func ShoppingByCategory(items []ShoppingListItem) []CategoryAmount {
	sums := map[string]int64{}
	for _, it := range items {
		if it.Category == "" {
			continue
		}
		sums[it.Category] += it.Total().Cents
	}
	return sorted(sums)
}

func sumBy(txs []Transaction, key func(Transaction) (string, bool)) []CategoryAmount {
	sums := map[string]int64{}
	for _, t := range txs {
		name, ok := key(t)
		if !ok {
			continue
		}
		sums[name] += t.Amount.Cents
	}
	return sorted(sums)
}

func sorted(sums map[string]int64) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(sums))
	for name, cents := range sums {
		if cents <= 0 {
			continue
		}
		out = append(out, CategoryAmount{Name: name, Amount: Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func collapse(cats []CategoryAmount, limit int) []CategoryAmount {
	if limit <= 0 || len(cats) <= limit {
		return cats
	}
	var rest int64
	for _, c := range cats[limit:] {
		rest += c.Amount.Cents
	}
	out := append([]CategoryAmount(nil), cats[:limit]...)
	return append(out, CategoryAmount{Name: OthersCategory, Amount: Money{Cents: rest}})
}

// MonthlyTotals groups income and expense by YYYY-MM, oldest first.
func MonthlyTotals(txs []Transaction) []MonthTotal {
	byKey := map[string]*MonthTotal{}
	for _, t := range txs {
		key := t.Date.MonthKey()
		mt, ok := byKey[key]
		if !ok {
			mt = &MonthTotal{Month: key}
			byKey[key] = mt
		}
		switch t.Type {
		case Income:
			mt.Income = mt.Income.Add(t.Amount)
		case Expense:
			mt.Expense = mt.Expense.Add(t.Amount)
		}
	}
	out := make([]MonthTotal, 0, len(byKey))
	for _, mt := range byKey {
		out = append(out, *mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// RunningBalance accumulates income minus expense across months in order.
func RunningBalance(months []MonthTotal) []MonthBalance {
	out := make([]MonthBalance, len(months))
	var bal int64
	for i, m := range months {
		bal += m.Income.Cents - m.Expense.Cents
		out[i] = MonthBalance{Month: m.Month, Balance: Money{Cents: bal}}
	}
	return out
}

// TopTransactions returns the n largest transactions of a type.
func TopTransactions(txs []Transaction, typ TransactionType, n int) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Date.Before(out[j].Date.Time)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Totals sums income and expense.
func Totals(txs []Transaction) (income, expense Money) {
	for _, t := range txs {
		switch t.Type {
		case Income:
			income = income.Add(t.Amount)
		case Expense:
			expense = expense.Add(t.Amount)
		}
	}
	return income, expense
}

// BuildDashboard computes every dashboard aggregate for the period holding
// ref. Shopping figures come from completed lists of ref's month.
func BuildDashboard(txs []Transaction, lists []ShoppingListDetail, p Period, ref Date) Dashboard {
	if !p.Valid() {
		p = PeriodMonth
	}
	from, to := PeriodRange(p, ref)
	inPeriod := StatsOnly(FilterByRange(txs, from, to))
	income, expense := Totals(inPeriod)
	monthly := MonthlyTotals(inPeriod)

	d := Dashboard{
		Period:            p,
		From:              from,
		To:                to,
		TotalIncome:       income,
		TotalExpense:      expense,
		ExpenseByCategory: SumByCategory(inPeriod, Expense, TopCategories),
		IncomeByCategory:  SumByCategory(inPeriod, Income, TopCategories),
		TopExpenses:       TopTransactions(inPeriod, Expense, TopCategories),
		TopIncomes:        TopTransactions(inPeriod, Income, TopCategories),
		Monthly:           monthly,
		Balance:           RunningBalance(monthly),
		CreditByCategory:  CreditByCategory(inPeriod),
	}
	for _, c := range d.CreditByCategory {
		d.TotalCredit = d.TotalCredit.Add(c.Amount)
	}

	var items []ShoppingListItem
	for _, l := range lists {
		if l.IsCompleted && l.Year == ref.Year() && l.Month == ref.Month() {
			items = append(items, l.Items...)
		}
	}
	d.ShoppingByCategory = ShoppingByCategory(items)
	for _, c := range d.ShoppingByCategory {
		d.TotalShopping = d.TotalShopping.Add(c.Amount)
	}
	return d
}

// CreditFilter narrows the credit card statement view.
type CreditFilter struct {
	Month    string // YYYY-MM, empty for all
	Category string
	Search   string
}

// CreditEntry is a credit transaction with its installment label.
type CreditEntry struct {
	Transaction
	InstallmentNumber int `json:"installmentNumber,omitempty"`
}

// CreditStatement lists credit transactions matching f, most recent purchase
// first, with the month total.
func CreditStatement(txs []Transaction, f CreditFilter) ([]CreditEntry, Money) {
	var total Money
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]CreditEntry, 0)
	for _, t := range txs {
		if !t.IsCredit() {
			continue
		}
		if f.Month != "" && t.Date.MonthKey() != f.Month {
			continue
		}
		total = total.Add(t.Amount)
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Name), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		out = append(out, CreditEntry{Transaction: t, InstallmentNumber: InstallmentNumber(t)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return purchaseTime(out[i].Transaction).After(purchaseTime(out[j].Transaction))
	})
	return out, total
}

func purchaseTime(t Transaction) time.Time {
	if t.PurchaseDate != nil {
		return t.PurchaseDate.Time
	}
	return t.Date.Time
}

// InstallmentNumber is the month distance between billing and purchase,
// clamped to [1, installments]. Zero when the transaction is not an
// installment.
func InstallmentNumber(t Transaction) int {
	if t.PurchaseDate == nil || t.Installments < 1 {
		return 0
	}
	n := MonthsBetween(*t.PurchaseDate, t.Date)
	if n > t.Installments {
		n = t.Installments
	}
	if n < 1 {
		n = 1
	}
	return n
}
