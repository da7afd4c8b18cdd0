// Package services provides business logic over the repository.
//
// This file implements the Strategy Pattern for recurrence scoping. Each
// scope (single, future, all) has its own selector that decides which
// instances of a recurrence group an edit or delete touches.
package services

import (
	"errors"
	"fmt"
	"sort"

	"tucano/internal/core"
)

// Scope names how far an edit or delete reaches inside a recurrence group.
type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeFuture Scope = "future"
	ScopeAll    Scope = "all"
)

var ErrInvalidScope = errors.New("invalid scope")

// ScopeSelector is the strategy interface for choosing affected instances.
type ScopeSelector interface {
	// Select returns the instances of all that an operation on target touches,
	// ordered by date.
	Select(target core.Transaction, all []core.Transaction) []core.Transaction
}

// SingleSelector touches only the target.
type SingleSelector struct{}

func (SingleSelector) Select(target core.Transaction, _ []core.Transaction) []core.Transaction {
	return []core.Transaction{target}
}

// FutureSelector touches the target and every later instance of its group.
type FutureSelector struct{}

func (FutureSelector) Select(target core.Transaction, all []core.Transaction) []core.Transaction {
	return groupWhere(target, all, func(t core.Transaction) bool {
		return !t.Date.Before(target.Date.Time)
	})
}

// AllSelector touches every instance of the group.
type AllSelector struct{}

func (AllSelector) Select(target core.Transaction, all []core.Transaction) []core.Transaction {
	return groupWhere(target, all, func(core.Transaction) bool { return true })
}

func groupWhere(target core.Transaction, all []core.Transaction, keep func(core.Transaction) bool) []core.Transaction {
	if target.RecurrenceID == "" {
		return []core.Transaction{target}
	}
	var out []core.Transaction
	for _, t := range all {
		if t.RecurrenceID == target.RecurrenceID && keep(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}

// SelectorRegistry maps scopes to their selectors.
type SelectorRegistry struct {
	selectors map[Scope]ScopeSelector
}

// NewSelectorRegistry creates a registry with the default selectors.
func NewSelectorRegistry() *SelectorRegistry {
	return &SelectorRegistry{
		selectors: map[Scope]ScopeSelector{
			ScopeSingle: SingleSelector{},
			ScopeFuture: FutureSelector{},
			ScopeAll:    AllSelector{},
		},
	}
}

// Get returns the selector for a scope. The empty scope means single.
func (r *SelectorRegistry) Get(s Scope) (ScopeSelector, error) {
	if s == "" {
		s = ScopeSingle
	}
	sel, ok := r.selectors[s]
	if !ok {
		return nil, &core.ValidationError{Field: "scope", Err: fmt.Errorf("%w: %q", ErrInvalidScope, s)}
	}
	return sel, nil
}

// Register adds or replaces a selector.
func (r *SelectorRegistry) Register(s Scope, sel ScopeSelector) {
	r.selectors[s] = sel
}
