package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tucano/internal/core"
	"tucano/internal/docstore/memory"
)

func setupRepository(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	store := memory.NewStore()
	t.Cleanup(func() { store.Close() })
	n := 0
	repo := New(store,
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id%03d", n) }),
		WithClock(func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }),
	)
	return context.Background(), repo
}

func sampleTx(name string, cents int64, d core.Date) core.Transaction {
	return core.Transaction{
		Name:           name,
		Amount:         core.Money{Cents: cents},
		Date:           d,
		Type:           core.Expense,
		Category:       "Contas",
		IncludeInStats: true,
	}
}

func TestTransactions(t *testing.T) {
	t.Run("should create, read and delete a transaction", func(t *testing.T) {
		// given
		ctx, repo := setupRepository(t)

		// when
		created, err := repo.CreateTransaction(ctx, "u1", sampleTx("Luz", 12050, core.NewDate(2025, 5, 10)))
		require.NoError(t, err)

		// then
		assert.Equal(t, "id001", created.ID)
		got, err := repo.GetTransaction(ctx, "u1", created.ID)
		require.NoError(t, err)
		assert.Equal(t, created, got)

		require.NoError(t, repo.DeleteTransaction(ctx, "u1", created.ID))
		_, err = repo.GetTransaction(ctx, "u1", created.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should reject invalid transactions before writing", func(t *testing.T) {
		// given
		ctx, repo := setupRepository(t)
		bad := sampleTx("", 100, core.NewDate(2025, 5, 10))

		// when
		_, err := repo.CreateTransaction(ctx, "u1", bad)

		// then
		assert.True(t, core.IsValidation(err))
		txs, err := repo.ListTransactions(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, txs)
	})

	t.Run("should list ordered by date and isolate users", func(t *testing.T) {
		// given
		ctx, repo := setupRepository(t)
		_, err := repo.CreateTransaction(ctx, "u1", sampleTx("later", 100, core.NewDate(2025, 6, 1)))
		require.NoError(t, err)
		_, err = repo.CreateTransaction(ctx, "u1", sampleTx("earlier", 100, core.NewDate(2025, 5, 1)))
		require.NoError(t, err)
		_, err = repo.CreateTransaction(ctx, "u2", sampleTx("other", 100, core.NewDate(2025, 5, 1)))
		require.NoError(t, err)

		// when
		txs, err := repo.ListTransactions(ctx, "u1")

		// then
		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.Equal(t, "earlier", txs[0].Name)
		users, err := repo.Users(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2"}, users)
	})

	t.Run("should update and delete in batches", func(t *testing.T) {
		// given
		ctx, repo := setupRepository(t)
		a, _ := repo.CreateTransaction(ctx, "u1", sampleTx("a", 100, core.NewDate(2025, 5, 1)))
		b, _ := repo.CreateTransaction(ctx, "u1", sampleTx("b", 100, core.NewDate(2025, 6, 1)))

		// when
		a.Paid, b.Paid = true, true
		require.NoError(t, repo.UpdateTransactions(ctx, "u1", []core.Transaction{a, b}))
		txs, _ := repo.ListTransactions(ctx, "u1")

		// then
		assert.True(t, txs[0].Paid && txs[1].Paid)
		require.NoError(t, repo.DeleteTransactions(ctx, "u1", []string{a.ID, b.ID}))
		txs, _ = repo.ListTransactions(ctx, "u1")
		assert.Empty(t, txs)
	})

	t.Run("should reject malformed user ids", func(t *testing.T) {
		ctx, repo := setupRepository(t)
		_, err := repo.ListTransactions(ctx, "a/b")
		assert.ErrorIs(t, err, ErrInvalidUser)
		_, err = repo.ListTransactions(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidUser)
	})
}

func TestCategories(t *testing.T) {
	t.Run("should seed defaults once", func(t *testing.T) {
		// given
		ctx, repo := setupRepository(t)

		// when
		cats, err := repo.EnsureDefaultCategories(ctx, "u1", core.CategoryIncome)
		require.NoError(t, err)
		again, err := repo.EnsureDefaultCategories(ctx, "u1", core.CategoryIncome)
		require.NoError(t, err)

		// then
		assert.Len(t, cats, 5)
		assert.Equal(t, cats, again)
	})

	t.Run("should enforce unique names per type", func(t *testing.T) {
		// given
		ctx, repo := setupRepository(t)
		_, err := repo.CreateCategory(ctx, "u1", core.Category{Name: "Frutas", Type: core.CategoryShopping})
		require.NoError(t, err)

		// when
		_, err = repo.CreateCategory(ctx, "u1", core.Category{Name: " frutas ", Type: core.CategoryShopping})

		// then
		assert.ErrorIs(t, err, ErrConflict)
		_, err = repo.CreateCategory(ctx, "u1", core.Category{Name: "Frutas", Type: core.CategoryExpense})
		assert.NoError(t, err)
	})

	t.Run("should rename and delete", func(t *testing.T) {
		// given
		ctx, repo := setupRepository(t)
		c, err := repo.CreateCategory(ctx, "u1", core.Category{Name: "Frutas", Type: core.CategoryShopping})
		require.NoError(t, err)

		// when
		_, err = repo.RenameCategory(ctx, "u1", core.CategoryShopping, c.ID, "Hortifruti")
		require.NoError(t, err)

		// then
		cats, _ := repo.ListCategories(ctx, "u1", core.CategoryShopping)
		require.Len(t, cats, 1)
		assert.Equal(t, "Hortifruti", cats[0].Name)
		require.NoError(t, repo.DeleteCategory(ctx, "u1", core.CategoryShopping, c.ID))
		assert.ErrorIs(t, repo.DeleteCategory(ctx, "u1", core.CategoryShopping, c.ID), ErrNotFound)
	})
}

func TestShoppingLists(t *testing.T) {
	t.Run("should recompute totals and completion on item writes", func(t *testing.T) {
		// given
		ctx, repo := setupRepository(t)
		l, err := repo.CreateShoppingList(ctx, "u1", core.ShoppingList{Name: "Mercado", Month: 5, Year: 2025, Budget: core.Money{Cents: 50000}})
		require.NoError(t, err)

		// when
		d, err := repo.AddItem(ctx, "u1", l.ID, core.ShoppingListItem{Name: "Arroz", Quantity: 2, Unit: "kg", Price: core.Money{Cents: 650}})
		require.NoError(t, err)
		d, err = repo.AddItem(ctx, "u1", l.ID, core.ShoppingListItem{Name: "Leite", Quantity: 1, Unit: "l", Price: core.Money{Cents: 499}})
		require.NoError(t, err)

		// then
		assert.Equal(t, int64(1799), d.Spent.Cents)
		assert.Equal(t, 2, d.ItemCount)
		assert.False(t, d.IsCompleted)

		for _, it := range d.Items {
			d, err = repo.ToggleItem(ctx, "u1", l.ID, it.ID)
			require.NoError(t, err)
		}
		stored, err := repo.GetShoppingList(ctx, "u1", l.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsCompleted)
		assert.Equal(t, int64(1799), stored.Spent.Cents)

		d, err = repo.DeleteItem(ctx, "u1", l.ID, stored.Items[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 1, d.ItemCount)
	})

	t.Run("should keep items when the list is edited", func(t *testing.T) {
		// given
		ctx, repo := setupRepository(t)
		l, _ := repo.CreateShoppingList(ctx, "u1", core.ShoppingList{Name: "Mercado", Month: 5, Year: 2025, Budget: core.Money{Cents: 100}})
		_, err := repo.AddItem(ctx, "u1", l.ID, core.ShoppingListItem{Name: "Café", Quantity: 1, Unit: "un", Price: core.Money{Cents: 1890}})
		require.NoError(t, err)

		// when
		l.Name, l.Budget = "Feira", core.Money{Cents: 20000}
		_, err = repo.UpdateShoppingList(ctx, "u1", l)
		require.NoError(t, err)

		// then
		got, err := repo.GetShoppingList(ctx, "u1", l.ID)
		require.NoError(t, err)
		assert.Equal(t, "Feira", got.Name)
		assert.Len(t, got.Items, 1)
		assert.Equal(t, int64(1890), got.Spent.Cents)
	})

	t.Run("should report missing lists and items", func(t *testing.T) {
		ctx, repo := setupRepository(t)
		_, err := repo.GetShoppingList(ctx, "u1", "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		l, _ := repo.CreateShoppingList(ctx, "u1", core.ShoppingList{Name: "x", Month: 1, Year: 2025, Budget: core.Money{Cents: 1}})
		_, err = repo.ToggleItem(ctx, "u1", l.ID, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCreditSettings(t *testing.T) {
	ctx, repo := setupRepository(t)

	s, err := repo.GetCreditSettings(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, core.CreditCardSettings{ClosingDay: 6, PaymentDay: 10}, s)

	require.NoError(t, repo.SaveCreditSettings(ctx, "u1", core.CreditCardSettings{ClosingDay: 25, PaymentDay: 5}))
	s, _ = repo.GetCreditSettings(ctx, "u1")
	assert.Equal(t, 25, s.ClosingDay)

	err = repo.SaveCreditSettings(ctx, "u1", core.CreditCardSettings{ClosingDay: 40, PaymentDay: 5})
	assert.True(t, core.IsValidation(err))
}

func TestExportImport(t *testing.T) {
	t.Run("should reproduce identical partitions after import", func(t *testing.T) {
		// given
		ctx, repo := setupRepository(t)
		_, err := repo.CreateTransaction(ctx, "u1", sampleTx("Netflix", 2990, core.NewDate(2025, 5, 10)))
		require.NoError(t, err)
		_, err = repo.EnsureDefaultCategories(ctx, "u1", core.CategoryExpense)
		require.NoError(t, err)
		l, _ := repo.CreateShoppingList(ctx, "u1", core.ShoppingList{Name: "Mercado", Month: 5, Year: 2025, Budget: core.Money{Cents: 100}})
		_, err = repo.AddItem(ctx, "u1", l.ID, core.ShoppingListItem{Name: "Arroz", Quantity: 1.5, Unit: "kg", Price: core.Money{Cents: 990}})
		require.NoError(t, err)

		exported, err := repo.Export(ctx, "u1")
		require.NoError(t, err)
		data, err := json.Marshal(exported)
		require.NoError(t, err)

		// when
		require.NoError(t, repo.DeleteAll(ctx, "u1"))
		emptied, err := repo.Export(ctx, "u1")
		require.NoError(t, err)
		require.NoError(t, repo.Import(ctx, "u1", data))

		// then
		assert.JSONEq(t, `{}`, string(emptied.Transactions))
		again, err := repo.Export(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, string(exported.Categories), string(again.Categories))
		assert.Equal(t, string(exported.ShoppingLists), string(again.ShoppingLists))
		assert.Equal(t, string(exported.Transactions), string(again.Transactions))
		assert.Contains(t, string(again.Transactions), "29.9")
	})

	t.Run("should write nothing for malformed documents", func(t *testing.T) {
		for _, doc := range []string{
			`not json`,
			`[1,2]`,
			`{"categories":{"expense":{}},"transactions":5}`,
			`{"transactions":{"t1":{"amount":"abc"}}}`,
			`{"shoppingLists":{"bad.key":{}}}`,
		} {
			ctx, repo := setupRepository(t)
			err := repo.Import(ctx, "u1", []byte(doc))
			assert.ErrorIs(t, err, ErrImport, doc)
			exported, err := repo.Export(ctx, "u1")
			require.NoError(t, err)
			assert.JSONEq(t, `{}`, string(exported.Categories), doc)
			assert.JSONEq(t, `{}`, string(exported.Transactions), doc)
		}
	})

	t.Run("should leave partitions absent from the document untouched", func(t *testing.T) {
		ctx, repo := setupRepository(t)
		_, err := repo.CreateTransaction(ctx, "u1", sampleTx("Luz", 100, core.NewDate(2025, 5, 1)))
		require.NoError(t, err)

		require.NoError(t, repo.Import(ctx, "u1", []byte(`{"categories":{"income":{"c1":{"name":"Salário"}}}}`)))

		txs, _ := repo.ListTransactions(ctx, "u1")
		assert.Len(t, txs, 1)
		cats, _ := repo.ListCategories(ctx, "u1", core.CategoryIncome)
		require.Len(t, cats, 1)
		assert.Equal(t, "Salário", cats[0].Name)
	})
}
