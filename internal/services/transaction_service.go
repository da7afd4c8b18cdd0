package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tucano/internal/core"
	"tucano/internal/log"
)

// ErrNotRecurring is returned for future or all scopes on a transaction
// that belongs to no recurrence group.
var ErrNotRecurring = errors.New("transaction is not recurring")

// Edit carries the user-editable fields of a transaction.
type Edit struct {
	Name             string               `json:"name"`
	Description      string               `json:"description,omitempty"`
	Amount           core.Money           `json:"amount"`
	Date             core.Date            `json:"date"`
	Type             core.TransactionType `json:"type"`
	Category         string               `json:"categoryId"`
	Paid             bool                 `json:"isPaid"`
	IncludeInStats   bool                 `json:"includeInStats"`
	IsRecurring      bool                 `json:"isRecurring"`
	RecurringEndDate *core.Date           `json:"recurringEndDate,omitempty"`
}

// apply writes the edit onto t. When moveDay is set only the day of month of
// the new date is taken, keeping t's own year and month.
func (e Edit) apply(t core.Transaction, moveDay bool) core.Transaction {
	t.Name = strings.TrimSpace(e.Name)
	t.Description = e.Description
	t.Amount = e.Amount
	t.Type = e.Type
	t.Category = e.Category
	t.Paid = e.Paid
	t.IncludeInStats = e.IncludeInStats
	t.IsRecurring = e.IsRecurring
	t.RecurringEndDate = e.RecurringEndDate
	if moveDay {
		t.Date = t.Date.WithDay(e.Date.Day())
		t.RecurrenceDay = e.Date.Day()
	}
	return t
}

// TransactionService handles transaction writes that span a recurrence
// group.
type TransactionService struct {
	store     TransactionStore
	projector *Projector
	scopes    *SelectorRegistry
	logger    *log.Logger
}

func NewTransactionService(store TransactionStore, projector *Projector) *TransactionService {
	return &TransactionService{
		store:     store,
		projector: projector,
		scopes:    NewSelectorRegistry(),
		logger:    log.New(log.DefaultConfig()).WithComponent(log.ComponentRecurrence),
	}
}

// WithLogger replaces the service logger.
func (s *TransactionService) WithLogger(l *log.Logger) *TransactionService {
	s.logger = l.WithComponent(log.ComponentRecurrence)
	return s
}

// Create stores t. A recurring transaction starts a new group: its month and
// up to eleven following months are written, stopping at the end date.
func (s *TransactionService) Create(ctx context.Context, uid string, t core.Transaction) ([]core.Transaction, error) {
	t.Name = strings.TrimSpace(t.Name)
	t.RecurrenceID = ""
	t.RecurrenceDay = 0
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if !t.IsRecurring {
		t.RecurringEndDate = nil
		t.ID = s.store.NewID()
		if err := s.store.SaveTransaction(ctx, uid, t); err != nil {
			return nil, fmt.Errorf("create transaction: %w", err)
		}
		log.NewStructuredLogger(s.logger).LogTransactionCreated(ctx, uid, t.ID, t.Name, string(t.Type), t.Amount.Cents, t.Category)
		return []core.Transaction{t}, nil
	}

	t.RecurrenceID = s.store.NewID()
	t.RecurrenceDay = t.Date.Day()
	t.ID = InstanceID(t.RecurrenceID, t.Date)
	txs := Expand(t, s.projector.horizon)
	written, err := writeAll(ctx, s.store, uid, txs)
	if err != nil {
		s.logger.ErrorContext(ctx, "Recurring transaction partially written",
			log.FieldUserID, uid,
			log.FieldRecurrenceID, t.RecurrenceID,
			log.FieldCount, written,
			log.FieldError, err)
		return nil, fmt.Errorf("create recurring transaction: wrote %d of %d: %w", written, len(txs), err)
	}
	s.logger.InfoContext(ctx, "Recurring transaction created",
		log.FieldUserID, uid,
		log.FieldRecurrenceID, t.RecurrenceID,
		log.FieldTxName, t.Name,
		log.FieldCount, len(txs))
	return txs, nil
}

// affected loads the target and the instances scope reaches.
func (s *TransactionService) affected(ctx context.Context, uid, id string, scope Scope) (core.Transaction, []core.Transaction, error) {
	sel, err := s.scopes.Get(scope)
	if err != nil {
		return core.Transaction{}, nil, err
	}
	target, err := s.store.GetTransaction(ctx, uid, id)
	if err != nil {
		return core.Transaction{}, nil, err
	}
	if scope != "" && scope != ScopeSingle && target.RecurrenceID == "" {
		return core.Transaction{}, nil, &core.ValidationError{Field: "scope", Err: ErrNotRecurring}
	}
	if target.RecurrenceID == "" {
		return target, []core.Transaction{target}, nil
	}
	all, err := s.store.ListTransactions(ctx, uid)
	if err != nil {
		return core.Transaction{}, nil, fmt.Errorf("load recurrence group: %w", err)
	}
	return target, sel.Select(target, all), nil
}

// Update applies e to the transaction id and, depending on scope, to the
// rest of its group. Grouped instances only take the day of month of the
// new date so each keeps its own month. An end date removes the instances
// in scope that fall after it. Making a single transaction recurring starts
// a new group from it. All instances are written in one atomic update.
func (s *TransactionService) Update(ctx context.Context, uid, id string, e Edit, scope Scope) ([]core.Transaction, error) {
	target, insts, err := s.affected(ctx, uid, id, scope)
	if err != nil {
		return nil, err
	}
	if target.RecurrenceID == "" {
		return s.updateSingle(ctx, uid, target, e)
	}

	moveDay := !e.Date.IsZero() && e.Date.Compare(target.Date) != 0
	var (
		out    []core.Transaction
		remove []string
	)
	for _, inst := range insts {
		t := e.apply(inst, moveDay)
		if t.RecurringEndDate != nil && t.Date.After(t.RecurringEndDate.Time) {
			if t.ID == target.ID {
				return nil, &core.ValidationError{Field: "recurringEndDate", Err: core.ErrInvalidEndDate}
			}
			remove = append(remove, t.ID)
			continue
		}
		out = append(out, t)
	}
	if err := s.store.ReplaceTransactions(ctx, uid, out, remove); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Recurring transaction updated",
		log.FieldUserID, uid,
		log.FieldRecurrenceID, target.RecurrenceID,
		"scope", scope,
		log.FieldCount, len(out),
		"removed", len(remove))
	return out, nil
}

func (s *TransactionService) updateSingle(ctx context.Context, uid string, target core.Transaction, e Edit) ([]core.Transaction, error) {
	t := e.apply(target, false)
	t.Date = e.Date
	if !t.IsRecurring {
		t.RecurringEndDate = nil
		if err := s.store.UpdateTransactions(ctx, uid, []core.Transaction{t}); err != nil {
			return nil, err
		}
		return []core.Transaction{t}, nil
	}

	t.RecurrenceID = s.store.NewID()
	t.RecurrenceDay = t.Date.Day()
	txs := Expand(t, s.projector.horizon)
	if err := s.store.UpdateTransactions(ctx, uid, txs); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Transaction made recurring",
		log.FieldUserID, uid,
		log.FieldTransactionID, t.ID,
		log.FieldRecurrenceID, t.RecurrenceID,
		log.FieldCount, len(txs))
	return txs, nil
}

// Delete removes the transaction id and, depending on scope, the rest of its
// group. Deleting the future of a group also ends the recurrence on the
// remaining instances so the projector does not bring the months back.
func (s *TransactionService) Delete(ctx context.Context, uid, id string, scope Scope) (int, error) {
	target, insts, err := s.affected(ctx, uid, id, scope)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(insts))
	gone := make(map[string]bool, len(insts))
	for _, t := range insts {
		ids = append(ids, t.ID)
		gone[t.ID] = true
	}
	if err := s.store.DeleteTransactions(ctx, uid, ids); err != nil {
		return 0, err
	}

	if scope == ScopeFuture && target.RecurrenceID != "" {
		if err := s.endRecurrence(ctx, uid, target, gone); err != nil {
			return len(ids), err
		}
	}
	s.logger.InfoContext(ctx, "Transactions deleted",
		log.FieldUserID, uid,
		log.FieldTransactionID, id,
		"scope", scope,
		log.FieldCount, len(ids))
	return len(ids), nil
}

func (s *TransactionService) endRecurrence(ctx context.Context, uid string, target core.Transaction, gone map[string]bool) error {
	all, err := s.store.ListTransactions(ctx, uid)
	if err != nil {
		return fmt.Errorf("end recurrence: %w", err)
	}
	end := core.DateOf(target.Date.AddDate(0, 0, -1))
	var rest []core.Transaction
	for _, t := range all {
		if t.RecurrenceID != target.RecurrenceID || gone[t.ID] || !t.IsRecurring {
			continue
		}
		if t.Date.After(end.Time) {
			continue
		}
		t.RecurringEndDate = &end
		rest = append(rest, t)
	}
	if err := s.store.UpdateTransactions(ctx, uid, rest); err != nil {
		return fmt.Errorf("end recurrence: %w", err)
	}
	return nil
}

// TogglePaid flips the paid flag of one transaction.
func (s *TransactionService) TogglePaid(ctx context.Context, uid, id string) (core.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, uid, id)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Paid = !t.Paid
	if err := s.store.PatchTransaction(ctx, uid, id, map[string]any{"isPaid": t.Paid}); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

// Reconcile runs the projector for uid.
func (s *TransactionService) Reconcile(ctx context.Context, uid string) (int, error) {
	return s.projector.ReconcileUser(ctx, uid)
}
