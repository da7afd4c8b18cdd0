package services

import (
	"context"
	"fmt"
	"strings"

	"tucano/internal/core"
	"tucano/internal/log"
)

// SubscriptionMonths is how many charges a new subscription starts with.
const SubscriptionMonths = 12

// MaxInstallments caps the installments of one purchase.
const MaxInstallments = 36

// Purchase is a credit card purchase before it is turned into billing-date
// transactions.
type Purchase struct {
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Category       string     `json:"categoryId"`
	PurchaseDate   core.Date  `json:"purchaseDate"`
	Total          core.Money `json:"totalAmount"`
	Installments   int        `json:"installments"`
	IsSubscription bool       `json:"isSubscription"`
	IncludeInStats bool       `json:"includeInStats"`
}

func (p Purchase) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &core.ValidationError{Field: "name", Err: core.ErrEmptyName}
	}
	if strings.TrimSpace(p.Category) == "" {
		return &core.ValidationError{Field: "categoryId", Err: core.ErrEmptyCategory}
	}
	if err := p.PurchaseDate.Validate(); err != nil {
		return &core.ValidationError{Field: "purchaseDate", Err: err}
	}
	if err := p.Total.Validate(); err != nil {
		return &core.ValidationError{Field: "totalAmount", Err: err}
	}
	if !p.IsSubscription {
		if p.Installments < 1 {
			return &core.ValidationError{Field: "installments", Err: core.ErrInvalidInstallments}
		}
		if p.Installments > MaxInstallments {
			return &core.ValidationError{Field: "installments", Err: core.ErrTooManyInstallments}
		}
		// every installment must be at least one cent
		if p.Total.Cents < int64(p.Installments) {
			return &core.ValidationError{Field: "totalAmount", Err: core.ErrInvalidAmount}
		}
	}
	return nil
}

// FirstBillingMonth is the month whose statement carries the purchase:
// purchases after the closing day fall on the next month.
func FirstBillingMonth(purchase core.Date, closingDay int) (year, month int) {
	year, month = purchase.Year(), purchase.Month()
	if purchase.Day() > closingDay {
		year, month = core.NextMonth(year, month)
	}
	return year, month
}

// BillingPlan decides how a purchase spreads over billing months.
type BillingPlan interface {
	Months(p Purchase) int
	Amounts(p Purchase) []core.Money
	Recurring() bool
}

// InstallmentPlan splits the total in equal installments; the last one
// absorbs the rounding difference.
type InstallmentPlan struct{}

func (InstallmentPlan) Months(p Purchase) int { return p.Installments }

func (InstallmentPlan) Amounts(p Purchase) []core.Money { return p.Total.Split(p.Installments) }

func (InstallmentPlan) Recurring() bool { return false }

// SubscriptionPlan charges the full amount every month and keeps going
// through the projector.
type SubscriptionPlan struct{}

func (SubscriptionPlan) Months(Purchase) int { return SubscriptionMonths }

func (SubscriptionPlan) Amounts(p Purchase) []core.Money {
	out := make([]core.Money, SubscriptionMonths)
	for i := range out {
		out[i] = p.Total
	}
	return out
}

func (SubscriptionPlan) Recurring() bool { return true }

// PlanFor picks the billing plan of a purchase.
func PlanFor(p Purchase) BillingPlan {
	if p.IsSubscription {
		return SubscriptionPlan{}
	}
	return InstallmentPlan{}
}

// Schedule turns a purchase into its billing-date transactions. All of them
// share recurrenceID and are dated on the payment day.
func Schedule(p Purchase, settings core.CreditCardSettings, recurrenceID string) []core.Transaction {
	settings = settings.WithDefaults()
	plan := PlanFor(p)
	installments := p.Installments
	if p.IsSubscription {
		installments = 1
	}
	total := p.Total
	purchased := p.PurchaseDate
	amounts := plan.Amounts(p)

	y, m := FirstBillingMonth(p.PurchaseDate, settings.ClosingDay)
	out := make([]core.Transaction, 0, plan.Months(p))
	for i := 0; i < plan.Months(p); i++ {
		if i > 0 {
			y, m = core.NextMonth(y, m)
		}
		d := core.ClampedDate(y, m, settings.PaymentDay)
		t := core.Transaction{
			ID:             InstanceID(recurrenceID, d),
			Name:           strings.TrimSpace(p.Name),
			Description:    p.Description,
			Amount:         amounts[i],
			Date:           d,
			Type:           core.Expense,
			Category:       p.Category,
			IncludeInStats: p.IncludeInStats,
			IsRecurring:    plan.Recurring(),
			RecurrenceID:   recurrenceID,
			PurchaseDate:   &purchased,
			TotalAmount:    &total,
			Installments:   installments,
			IsSubscription: p.IsSubscription,
		}
		if p.IsSubscription {
			t.RecurrenceDay = settings.PaymentDay
		}
		out = append(out, t)
	}
	return out
}

// CreditScheduler writes credit card purchases.
type CreditScheduler struct {
	store  TransactionStore
	logger *log.Logger
}

func NewCreditScheduler(store TransactionStore) *CreditScheduler {
	return &CreditScheduler{
		store:  store,
		logger: log.New(log.DefaultConfig()).WithComponent(log.ComponentCredit),
	}
}

// WithLogger replaces the scheduler's logger.
func (s *CreditScheduler) WithLogger(l *log.Logger) *CreditScheduler {
	s.logger = l.WithComponent(log.ComponentCredit)
	return s
}

// Purchase schedules p for uid using the user's card cycle. Every instance
// is validated before the first write. Instances are then written in
// parallel; when a write fails the error reports how many landed and
// nothing is rolled back.
func (s *CreditScheduler) Purchase(ctx context.Context, uid string, p Purchase) ([]core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	settings, err := s.store.GetCreditSettings(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("schedule purchase: %w", err)
	}
	txs := Schedule(p, settings, s.store.NewID())
	for _, t := range txs {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	written, err := writeAll(ctx, s.store, uid, txs)
	if err != nil {
		s.logger.ErrorContext(ctx, "Credit purchase partially written",
			log.FieldUserID, uid,
			log.FieldCount, written,
			"planned", len(txs),
			log.FieldError, err)
		return nil, fmt.Errorf("schedule purchase: wrote %d of %d: %w", written, len(txs), err)
	}
	s.logger.InfoContext(ctx, "Credit purchase scheduled",
		log.FieldUserID, uid,
		log.FieldRecurrenceID, txs[0].RecurrenceID,
		log.FieldCount, len(txs),
		"subscription", p.IsSubscription)
	return txs, nil
}
