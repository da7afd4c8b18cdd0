package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tucano/internal/core"
)

func TestFirstBillingMonth(t *testing.T) {
	tests := []struct {
		name      string
		purchase  core.Date
		closing   int
		wantYear  int
		wantMonth int
	}{
		{"after closing day - next month", core.NewDate(2025, 5, 20), 6, 2025, 6},
		{"before closing day - same month", core.NewDate(2025, 5, 3), 6, 2025, 5},
		{"on closing day - same month", core.NewDate(2025, 5, 6), 6, 2025, 5},
		{"december after closing - january next year", core.NewDate(2025, 12, 7), 6, 2026, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y, m := FirstBillingMonth(tt.purchase, tt.closing)
			if y != tt.wantYear || m != tt.wantMonth {
				t.Errorf("FirstBillingMonth(%s, %d) = %d-%d, want %d-%d", tt.purchase, tt.closing, y, m, tt.wantYear, tt.wantMonth)
			}
		})
	}
}

func purchase(total int64, installments int, d core.Date) Purchase {
	return Purchase{
		Name:           "Notebook",
		Category:       "Cartão",
		PurchaseDate:   d,
		Total:          core.Money{Cents: total},
		Installments:   installments,
		IncludeInStats: true,
	}
}

func TestSchedule(t *testing.T) {
	t.Run("should split installments from the next billing month", func(t *testing.T) {
		// given
		p := purchase(30000, 3, core.NewDate(2025, 5, 20))

		// when
		txs := Schedule(p, defaultSettings, "g1")

		// then
		assert.Equal(t, []string{"2025-06-10", "2025-07-10", "2025-08-10"}, datesOf(txs))
		for i, tx := range txs {
			assert.Equal(t, int64(10000), tx.Amount.Cents)
			assert.False(t, tx.IsRecurring)
			assert.False(t, tx.IsSubscription)
			assert.Equal(t, "g1", tx.RecurrenceID)
			assert.Equal(t, 3, tx.Installments)
			assert.Equal(t, int64(30000), tx.TotalAmount.Cents)
			assert.Equal(t, "2025-05-20", tx.PurchaseDate.String())
			assert.Equal(t, core.Expense, tx.Type)
			assert.Equal(t, i+1, core.InstallmentNumber(tx))
			assert.NoError(t, tx.Validate())
		}
	})

	t.Run("should let the last installment absorb the rounding", func(t *testing.T) {
		txs := Schedule(purchase(10000, 3, core.NewDate(2025, 5, 1)), defaultSettings, "g1")

		require.Len(t, txs, 3)
		assert.Equal(t, int64(3333), txs[0].Amount.Cents)
		assert.Equal(t, int64(3333), txs[1].Amount.Cents)
		assert.Equal(t, int64(3334), txs[2].Amount.Cents)
	})

	t.Run("should keep every installment at one cent or more", func(t *testing.T) {
		// given
		p := purchase(150, MaxInstallments, core.NewDate(2025, 5, 1))
		require.NoError(t, p.Validate())

		// when
		txs := Schedule(p, defaultSettings, "g1")

		// then
		require.Len(t, txs, MaxInstallments)
		var sum int64
		for _, tx := range txs {
			assert.NoError(t, tx.Validate())
			sum += tx.Amount.Cents
		}
		assert.Equal(t, int64(150), sum)
	})

	t.Run("should charge a subscription monthly for a year", func(t *testing.T) {
		// given
		p := purchase(2990, 1, core.NewDate(2025, 5, 3))
		p.IsSubscription = true

		// when
		txs := Schedule(p, defaultSettings, "g1")

		// then
		require.Len(t, txs, 12)
		assert.Equal(t, "2025-05-10", txs[0].Date.String())
		assert.Equal(t, "2026-04-10", txs[11].Date.String())
		for _, tx := range txs {
			assert.Equal(t, int64(2990), tx.Amount.Cents)
			assert.True(t, tx.IsRecurring)
			assert.True(t, tx.IsSubscription)
			assert.Equal(t, 1, tx.Installments)
			assert.Equal(t, 10, tx.RecurrenceDay)
		}
	})

	t.Run("should clamp the payment day to short months", func(t *testing.T) {
		txs := Schedule(purchase(20000, 2, core.NewDate(2025, 1, 10)), core.CreditCardSettings{ClosingDay: 5, PaymentDay: 31}, "g1")

		assert.Equal(t, []string{"2025-02-28", "2025-03-31"}, datesOf(txs))
	})

	t.Run("should use default settings when none are set", func(t *testing.T) {
		txs := Schedule(purchase(5000, 1, core.NewDate(2025, 5, 7)), core.CreditCardSettings{}, "g1")

		assert.Equal(t, []string{"2025-06-10"}, datesOf(txs))
	})
}

func TestPurchase_Validate(t *testing.T) {
	base := purchase(30000, 3, core.NewDate(2025, 5, 20))

	tests := []struct {
		name   string
		mutate func(p *Purchase)
		field  string
	}{
		{"empty name", func(p *Purchase) { p.Name = " " }, "name"},
		{"empty category", func(p *Purchase) { p.Category = "" }, "categoryId"},
		{"missing date", func(p *Purchase) { p.PurchaseDate = core.Date{} }, "purchaseDate"},
		{"zero total", func(p *Purchase) { p.Total = core.Money{} }, "totalAmount"},
		{"no installments", func(p *Purchase) { p.Installments = 0 }, "installments"},
		{"installments below a cent", func(p *Purchase) { p.Total = core.Money{Cents: 2} }, "totalAmount"},
		{"too many installments", func(p *Purchase) { p.Installments = MaxInstallments + 1 }, "installments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)

			err := p.Validate()

			var ve *core.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	t.Run("should accept the maximum installments", func(t *testing.T) {
		p := base
		p.Installments = MaxInstallments

		assert.NoError(t, p.Validate())
	})

	t.Run("subscription ignores installments", func(t *testing.T) {
		p := base
		p.Installments = 0
		p.IsSubscription = true

		assert.NoError(t, p.Validate())
	})
}

func TestCreditScheduler_Purchase(t *testing.T) {
	t.Run("should write installments using the saved card cycle", func(t *testing.T) {
		// given
		e := setup(t, time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC))
		require.NoError(t, e.repo.SaveCreditSettings(e.ctx, "u1", core.CreditCardSettings{ClosingDay: 25, PaymentDay: 5}))

		// when
		txs, err := e.credit.Purchase(e.ctx, "u1", purchase(30000, 3, core.NewDate(2025, 5, 20)))

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"2025-05-05", "2025-06-05", "2025-07-05"}, datesOf(txs))
		stored, err := e.repo.ListTransactions(e.ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, txs, stored)
	})

	t.Run("should reject invalid purchases without writing", func(t *testing.T) {
		e := setup(t, time.Now())

		_, err := e.credit.Purchase(e.ctx, "u1", purchase(30000, 0, core.NewDate(2025, 5, 20)))

		assert.True(t, core.IsValidation(err))
		stored, err := e.repo.ListTransactions(e.ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("should keep a subscription going through the projector", func(t *testing.T) {
		// given
		e := setup(t, time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC))
		p := purchase(2990, 1, core.NewDate(2025, 5, 3))
		p.IsSubscription = true
		_, err := e.credit.Purchase(e.ctx, "u1", p)
		require.NoError(t, err)

		// when
		same, err := e.projector.ReconcileUser(e.ctx, "u1")
		require.NoError(t, err)
		e.setNow(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
		next, err := e.projector.ReconcileUser(e.ctx, "u1")
		require.NoError(t, err)

		// then
		assert.Zero(t, same)
		assert.Equal(t, 1, next)
		stored, err := e.repo.ListTransactions(e.ctx, "u1")
		require.NoError(t, err)
		require.Len(t, stored, 13)
		last := stored[12]
		assert.Equal(t, "2026-05-10", last.Date.String())
		assert.Equal(t, int64(2990), last.Amount.Cents)
		assert.True(t, last.IsSubscription)
	})
}
