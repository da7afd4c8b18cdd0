package http

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tucano/internal/core"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// eventuallyTransactions polls path until the listing holds n transactions.
func (e *testEnv) eventuallyTransactions(t *testing.T, path, uid string, n int) transactionList {
	t.Helper()
	var out transactionList
	require.Eventually(t, func() bool {
		rec := e.do(t, http.MethodGet, path, "", uid)
		if rec.Code != http.StatusOK {
			return false
		}
		out = decode[transactionList](t, rec)
		return len(out.Transactions) == n
	}, waitFor, tick)
	return out
}

func TestTransactionHandlers(t *testing.T) {
	t.Run("should create a single transaction and toggle it", func(t *testing.T) {
		// given
		env := newTestEnv(t)
		body := `{"name":"Mercado","amount":100,"date":"2025-05-05","type":"expense","categoryId":"c1","includeInStats":true}`

		// when
		rec := env.do(t, http.MethodPost, "/api/transactions", body, "u1")

		// then
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		created := decode[[]core.Transaction](t, rec)
		require.Len(t, created, 1)
		assert.Equal(t, int64(10000), created[0].Amount.Cents)
		assert.False(t, created[0].Paid)

		list := env.eventuallyTransactions(t, "/api/transactions?month=2025-05", "u1", 1)
		assert.Equal(t, "2025-05", list.Month)
		assert.Equal(t, int64(10000), list.TotalExpense.Cents)
		assert.Zero(t, list.TotalIncome.Cents)

		rec = env.do(t, http.MethodPost, "/api/transactions/"+created[0].ID+"/toggle-paid", "", "u1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[core.Transaction](t, rec).Paid)
	})

	t.Run("should expand a recurring transaction over twelve months", func(t *testing.T) {
		// given
		env := newTestEnv(t)
		body := `{"name":"Aluguel","amount":"1500,00","date":"2025-05-10","type":"expense","categoryId":"c1","isRecurring":true}`

		// when
		rec := env.do(t, http.MethodPost, "/api/transactions", body, "u1")

		// then
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		created := decode[[]core.Transaction](t, rec)
		require.Len(t, created, 12)
		assert.Equal(t, "2026-04-10", created[11].Date.String())
		for _, tx := range created {
			assert.Equal(t, created[0].RecurrenceID, tx.RecurrenceID)
			assert.Equal(t, int64(150000), tx.Amount.Cents)
		}

		june := env.eventuallyTransactions(t, "/api/transactions?month=2025-06&type=expense", "u1", 1)
		assert.Equal(t, created[1].ID, june.Transactions[0].ID)
	})

	t.Run("should edit the whole group with scope all", func(t *testing.T) {
		// given
		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/api/transactions",
			`{"name":"Academia","amount":90,"date":"2025-05-10","type":"expense","categoryId":"c1","isRecurring":true}`, "u1")
		require.Equal(t, http.StatusCreated, rec.Code)
		created := decode[[]core.Transaction](t, rec)

		// when
		rec = env.do(t, http.MethodPut, "/api/transactions/"+created[3].ID+"?scope=all",
			`{"name":"Academia Plus","amount":120,"date":"2025-08-15","type":"expense","categoryId":"c1","isRecurring":true}`, "u1")

		// then
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		updated := decode[[]core.Transaction](t, rec)
		require.Len(t, updated, 12)
		for _, tx := range updated {
			assert.Equal(t, "Academia Plus", tx.Name)
			assert.Equal(t, int64(12000), tx.Amount.Cents)
			assert.Equal(t, 15, tx.Date.Day())
		}
	})

	t.Run("should end a group through an edit", func(t *testing.T) {
		// given
		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/api/transactions",
			`{"name":"Curso","amount":200,"date":"2025-05-10","type":"expense","categoryId":"c1","isRecurring":true}`, "u1")
		require.Equal(t, http.StatusCreated, rec.Code)
		created := decode[[]core.Transaction](t, rec)

		// when
		rec = env.do(t, http.MethodPut, "/api/transactions/"+created[2].ID+"?scope=future",
			`{"name":"Curso","amount":200,"date":"2025-07-10","type":"expense","categoryId":"c1","isRecurring":true,"recurringEndDate":"2025-09-30"}`, "u1")

		// then
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, decode[[]core.Transaction](t, rec), 3)
		env.eventuallyTransactions(t, "/api/transactions", "u1", 5)
	})

	t.Run("should delete the future of a group", func(t *testing.T) {
		// given
		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/api/transactions",
			`{"name":"Streaming","amount":30,"date":"2025-05-10","type":"expense","categoryId":"c1","isRecurring":true}`, "u1")
		require.Equal(t, http.StatusCreated, rec.Code)
		created := decode[[]core.Transaction](t, rec)

		// when
		rec = env.do(t, http.MethodDelete, "/api/transactions/"+created[2].ID+"?scope=future", "", "u1")

		// then
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, map[string]int{"deleted": 10}, decode[map[string]int](t, rec))
		env.eventuallyTransactions(t, "/api/transactions", "u1", 2)
	})

	t.Run("should reject group scopes on a single transaction", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/api/transactions",
			`{"name":"Padaria","amount":12,"date":"2025-05-05","type":"expense","categoryId":"c1"}`, "u1")
		require.Equal(t, http.StatusCreated, rec.Code)
		id := decode[[]core.Transaction](t, rec)[0].ID

		rec = env.do(t, http.MethodDelete, "/api/transactions/"+id+"?scope=future", "", "u1")

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "scope", decode[ErrorBody](t, rec).Field)
	})

	t.Run("should report validation and input errors", func(t *testing.T) {
		env := newTestEnv(t)
		tests := []struct {
			name   string
			method string
			path   string
			body   string
			status int
		}{
			{"missing name", http.MethodPost, "/api/transactions", `{"amount":10,"date":"2025-05-05","type":"expense","categoryId":"c1"}`, http.StatusUnprocessableEntity},
			{"zero amount", http.MethodPost, "/api/transactions", `{"name":"x","amount":0,"date":"2025-05-05","type":"expense","categoryId":"c1"}`, http.StatusUnprocessableEntity},
			{"malformed json", http.MethodPost, "/api/transactions", `{"name":`, http.StatusBadRequest},
			{"bad date", http.MethodPost, "/api/transactions", `{"name":"x","amount":1,"date":"05/05/2025","type":"expense","categoryId":"c1"}`, http.StatusBadRequest},
			{"bad month filter", http.MethodGet, "/api/transactions?month=2025-13", "", http.StatusBadRequest},
			{"bad type filter", http.MethodGet, "/api/transactions?type=transfer", "", http.StatusBadRequest},
			{"unknown id", http.MethodPost, "/api/transactions/nope/toggle-paid", "", http.StatusNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := env.do(t, tt.method, tt.path, tt.body, "u1")
				assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			})
		}
	})

	t.Run("should keep users apart", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/api/transactions",
			`{"name":"Salário","amount":5000,"date":"2025-05-05","type":"income","categoryId":"c1"}`, "u1")
		require.Equal(t, http.StatusCreated, rec.Code)
		id := decode[[]core.Transaction](t, rec)[0].ID

		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/transactions/"+id+"/toggle-paid", "", "u2").Code)
		env.eventuallyTransactions(t, "/api/transactions", "u1", 1)
		env.eventuallyTransactions(t, "/api/transactions", "u2", 0)
	})
}

func TestCreditHandlers(t *testing.T) {
	t.Run("should bill installments from the month after closing", func(t *testing.T) {
		// given
		env := newTestEnv(t)
		rec := env.do(t, http.MethodPut, "/api/settings/credit-card", `{"closingDay":5,"paymentDay":12}`, "u1")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// when
		rec = env.do(t, http.MethodPost, "/api/credit/purchases",
			`{"name":"Geladeira","categoryId":"c1","purchaseDate":"2025-05-10","totalAmount":100,"installments":3}`, "u1")

		// then
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		txs := decode[[]core.Transaction](t, rec)
		require.Len(t, txs, 3)
		assert.Equal(t, "2025-06-12", txs[0].Date.String())
		assert.Equal(t, "2025-08-12", txs[2].Date.String())
		assert.Equal(t, int64(3333), txs[0].Amount.Cents)
		assert.Equal(t, int64(3334), txs[2].Amount.Cents)

		var stmt creditStatement
		require.Eventually(t, func() bool {
			rec := env.do(t, http.MethodGet, "/api/credit?month=2025-06", "", "u1")
			if rec.Code != http.StatusOK {
				return false
			}
			stmt = decode[creditStatement](t, rec)
			return len(stmt.Entries) == 1
		}, waitFor, tick)
		assert.Equal(t, 1, stmt.Entries[0].InstallmentNumber)
		assert.Equal(t, int64(3333), stmt.Total.Cents)
	})

	t.Run("should return the saved settings", func(t *testing.T) {
		env := newTestEnv(t)
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/settings/credit-card", `{"closingDay":28,"paymentDay":7}`, "u1").Code)

		rec := env.do(t, http.MethodGet, "/api/settings/credit-card", "", "u1")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, core.CreditCardSettings{ClosingDay: 28, PaymentDay: 7}, decode[core.CreditCardSettings](t, rec))
	})

	t.Run("should reject invalid input", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPut, "/api/settings/credit-card", `{"closingDay":0,"paymentDay":7}`, "u1")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "closingDay", decode[ErrorBody](t, rec).Field)

		rec = env.do(t, http.MethodPost, "/api/credit/purchases",
			`{"name":"TV","categoryId":"c1","purchaseDate":"2025-05-10","totalAmount":100,"installments":0}`, "u1")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "installments", decode[ErrorBody](t, rec).Field)

		rec = env.do(t, http.MethodPost, "/api/credit/purchases",
			`{"name":"TV","categoryId":"c1","purchaseDate":"2025-05-10","totalAmount":100,"installments":37}`, "u1")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "installments", decode[ErrorBody](t, rec).Field)
	})
}

func TestCategoryHandlers(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/categories/expense", "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	defaults := decode[[]core.Category](t, rec)
	assert.Len(t, defaults, len(core.DefaultCategories(core.CategoryExpense)))

	rec = env.do(t, http.MethodPost, "/api/categories/expense", `{"name":"Pets"}`, "u1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pets := decode[core.Category](t, rec)
	assert.Equal(t, "Pets", pets.Name)

	rec = env.do(t, http.MethodPost, "/api/categories/expense", `{"name":"pets"}`, "u1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/categories/expense/"+pets.ID, `{"name":"Animais"}`, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Animais", decode[core.Category](t, rec).Name)

	rec = env.do(t, http.MethodDelete, "/api/categories/expense/"+pets.ID, "", "u1")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/categories/expense", "", "u1")
	assert.Len(t, decode[[]core.Category](t, rec), len(defaults))

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/categories/travel", "", "u1").Code)
}

func TestShoppingListHandlers(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/shopping-lists", `{"name":"Feira","month":5,"year":2025,"budget":200}`, "u1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	list := decode[core.ShoppingListDetail](t, rec)
	assert.Empty(t, list.Items)

	rec = env.do(t, http.MethodPost, "/api/shopping-lists/"+list.ID+"/items",
		`{"name":"Arroz","quantity":2,"unit":"kg","price":6.5}`, "u1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	list = decode[core.ShoppingListDetail](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.ItemCount)
	assert.Equal(t, int64(1300), list.Spent.Cents)
	assert.False(t, list.IsCompleted)

	itemPath := fmt.Sprintf("/api/shopping-lists/%s/items/%s", list.ID, list.Items[0].ID)
	rec = env.do(t, http.MethodPost, itemPath+"/toggle", "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[core.ShoppingListDetail](t, rec).IsCompleted)

	rec = env.do(t, http.MethodPut, itemPath, `{"name":"Arroz","quantity":1,"unit":"kg","price":6.5,"isPurchased":true}`, "u1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(650), decode[core.ShoppingListDetail](t, rec).Spent.Cents)

	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/api/shopping-lists?month=2025-05", "", "u1")
		lists := decode[[]core.ShoppingListDetail](t, rec)
		return len(lists) == 1 && lists[0].Spent.Cents == 650
	}, waitFor, tick)

	rec = env.do(t, http.MethodDelete, itemPath, "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[core.ShoppingListDetail](t, rec).Items)

	assert.Equal(t, http.StatusUnprocessableEntity,
		env.do(t, http.MethodPost, "/api/shopping-lists", `{"name":"x","month":13,"year":2025,"budget":10}`, "u1").Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/shopping-lists/"+list.ID, "", "u1").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/shopping-lists/"+list.ID, "", "u1").Code)
}

func TestDashboardHandler(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{
		`{"name":"Salário","amount":5000,"date":"2025-05-05","type":"income","categoryId":"job","includeInStats":true}`,
		`{"name":"Mercado","amount":300,"date":"2025-05-06","type":"expense","categoryId":"food","includeInStats":true}`,
		`{"name":"Cinema","amount":40,"date":"2025-04-06","type":"expense","categoryId":"fun","includeInStats":true}`,
	} {
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/transactions", body, "u1").Code)
	}

	var dash core.Dashboard
	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/api/dashboard?period=month", "", "u1")
		if rec.Code != http.StatusOK {
			return false
		}
		dash = decode[core.Dashboard](t, rec)
		return dash.TotalIncome.Cents == 500000
	}, waitFor, tick)
	assert.Equal(t, int64(30000), dash.TotalExpense.Cents)
	assert.Equal(t, "2025-05-01", dash.From.String())

	rec := env.do(t, http.MethodGet, "/api/dashboard?period=decade", "", "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataHandlers(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/transactions",
		`{"name":"Mercado","amount":100,"date":"2025-05-05","type":"expense","categoryId":"c1"}`, "u1")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/data/export", "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="tucano-2025-05-20.json"`, rec.Header().Get("Content-Disposition"))
	exported := rec.Body.String()

	t.Run("should restore an export into another user", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/data/import", exported, "u2")

		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		env.eventuallyTransactions(t, "/api/transactions", "u2", 1)
	})

	t.Run("should reject malformed documents", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/data/import", `[1,2,3]`, "u3")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "could not import data", decode[ErrorBody](t, rec).Error)
	})

	t.Run("should delete everything", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/data", "", "u1")

		require.Equal(t, http.StatusNoContent, rec.Code)
		env.eventuallyTransactions(t, "/api/transactions", "u1", 0)
	})
}

func TestExportOfEmptyUser(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/data/export", "", "fresh")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"categories":{},"shoppingLists":{},"transactions":{}}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
