package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"tucano/internal/core"
	"tucano/internal/log"
)

// instanceNamespace seeds the name-based ids of projected instances.
var instanceNamespace = uuid.MustParse("5b0c7c1e-8f0a-4c55-9a4e-2f7d3c7f1a90")

// InstanceID is the id of the instance of a recurrence dated d. The same
// group and date always give the same id, so two processes projecting the
// same month write the same record.
func InstanceID(recurrenceID string, d core.Date) string {
	return uuid.NewSHA1(instanceNamespace, []byte(recurrenceID+"/"+d.String())).String()
}

// PlanProjection returns the instances missing from every recurrence group
// in txs. It is pure: nothing is written.
func PlanProjection(txs []core.Transaction, now time.Time, settings core.CreditCardSettings, horizon int) []core.Transaction {
	groups := make(map[string][]core.Transaction)
	var order []string
	for _, t := range txs {
		if t.RecurrenceID == "" {
			continue
		}
		if _, seen := groups[t.RecurrenceID]; !seen {
			order = append(order, t.RecurrenceID)
		}
		groups[t.RecurrenceID] = append(groups[t.RecurrenceID], t)
	}
	sort.Strings(order)

	var out []core.Transaction
	for _, rid := range order {
		out = append(out, PlanGroup(groups[rid], now, settings, horizon)...)
	}
	return out
}

// PlanGroup returns the instances one recurrence group still needs so that
// horizon instances exist from the current month on, stopping at the end
// date. Instances already present at a date are never planned again.
func PlanGroup(group []core.Transaction, now time.Time, settings core.CreditCardSettings, horizon int) []core.Transaction {
	tmpl, ok := template(group)
	if !ok {
		return nil
	}
	end := tmpl.RecurringEndDate
	if end != nil && end.Before(core.DateOf(now).Time) {
		return nil
	}

	monthStart := core.StartOfMonth(now)
	existing := make(map[string]bool, len(group))
	future := 0
	anchor := tmpl.Date
	for _, t := range group {
		existing[t.Date.String()] = true
		if !t.Date.Before(monthStart.Time) {
			if future == 0 || t.Date.After(anchor.Time) {
				anchor = t.Date
			}
			future++
		}
	}
	needed := horizon - future
	if needed <= 0 {
		return nil
	}

	// Groups that went quiet resume from the current month, not from where
	// they stopped.
	y, m := anchor.Year(), anchor.Month()
	if core.MonthKey(y, m) < monthStart.MonthKey() {
		y, m = monthStart.Year(), monthStart.Month()-1
		if m == 0 {
			y, m = y-1, 12
		}
	}

	day := tmpl.EffectiveRecurrenceDay()
	if tmpl.IsSubscription {
		day = settings.WithDefaults().PaymentDay
	}

	var out []core.Transaction
	for i := 0; i < needed; i++ {
		y, m = core.NextMonth(y, m)
		d := core.ClampedDate(y, m, day)
		if end != nil && d.After(end.Time) {
			break
		}
		if existing[d.String()] {
			continue
		}
		inst := tmpl
		inst.ID = InstanceID(tmpl.RecurrenceID, d)
		inst.Date = d
		inst.Paid = false
		inst.RecurrenceDay = day
		out = append(out, inst)
	}
	return out
}

// template is the latest recurring instance of the group.
func template(group []core.Transaction) (core.Transaction, bool) {
	var tmpl core.Transaction
	found := false
	for _, t := range group {
		if !t.IsRecurring || t.RecurrenceID == "" {
			continue
		}
		if !found || t.Date.After(tmpl.Date.Time) {
			tmpl, found = t, true
		}
	}
	return tmpl, found
}

// Projector keeps recurrence groups materialized ahead of the current month.
type Projector struct {
	store   TransactionStore
	clock   Clock
	horizon int
	logger  *log.Logger
	flight  singleflight.Group
}

// ProjectorOption configures a Projector.
type ProjectorOption func(*Projector)

func WithClock(c Clock) ProjectorOption {
	return func(p *Projector) { p.clock = c }
}

func WithHorizon(n int) ProjectorOption {
	return func(p *Projector) {
		if n > 0 {
			p.horizon = n
		}
	}
}

func WithProjectorLogger(l *log.Logger) ProjectorOption {
	return func(p *Projector) { p.logger = l.WithComponent(log.ComponentRecurrence) }
}

func NewProjector(store TransactionStore, opts ...ProjectorOption) *Projector {
	p := &Projector{
		store:   store,
		clock:   time.Now,
		horizon: core.HorizonMonths,
		logger:  log.New(log.DefaultConfig()).WithComponent(log.ComponentRecurrence),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Now is the projector's clock reading.
func (p *Projector) Now() time.Time {
	return p.clock()
}

// ReconcileUser fills the missing instances of every recurrence group of
// uid and returns how many were written. Concurrent calls for the same user
// share one pass. Write failures are logged and returned joined; instances
// already written stay, and the next pass fills the rest.
func (p *Projector) ReconcileUser(ctx context.Context, uid string) (int, error) {
	v, err, shared := p.flight.Do(uid, func() (any, error) {
		return p.reconcile(ctx, uid)
	})
	if shared {
		p.logger.DebugContext(ctx, "Joined running reconciliation", log.FieldUserID, uid)
	}
	n, _ := v.(int)
	return n, err
}

func (p *Projector) reconcile(ctx context.Context, uid string) (int, error) {
	txs, err := p.store.ListTransactions(ctx, uid)
	if err != nil {
		return 0, fmt.Errorf("reconcile %s: %w", uid, err)
	}
	settings, err := p.store.GetCreditSettings(ctx, uid)
	if err != nil {
		return 0, fmt.Errorf("reconcile %s: %w", uid, err)
	}
	plan := PlanProjection(txs, p.clock(), settings, p.horizon)
	if len(plan) == 0 {
		return 0, nil
	}

	written, err := writeAll(ctx, p.store, uid, plan)
	if err != nil {
		p.logger.ErrorContext(ctx, "Some projected instances were not written",
			log.FieldUserID, uid,
			log.FieldCount, written,
			"planned", len(plan),
			log.FieldError, err)
		return written, fmt.Errorf("reconcile %s: %w", uid, err)
	}
	p.logger.InfoContext(ctx, "Projected recurring instances",
		log.FieldUserID, uid,
		log.FieldCount, written)
	return written, nil
}

// Expand materializes a new recurrence from its first instance: the first
// month and up to horizon-1 following months, stopping at the end date.
func Expand(first core.Transaction, horizon int) []core.Transaction {
	day := first.EffectiveRecurrenceDay()
	out := []core.Transaction{first}
	y, m := first.Date.Year(), first.Date.Month()
	for i := 1; i < horizon; i++ {
		y, m = core.NextMonth(y, m)
		d := core.ClampedDate(y, m, day)
		if first.RecurringEndDate != nil && d.After(first.RecurringEndDate.Time) {
			break
		}
		inst := first
		inst.ID = InstanceID(first.RecurrenceID, d)
		inst.Date = d
		inst.Paid = false
		out = append(out, inst)
	}
	return out
}
