// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating request bodies
// and query parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"tucano/internal/core"
	"tucano/internal/services"
)

const (
	// maxBodyBytes bounds ordinary JSON bodies.
	maxBodyBytes = 1 << 20
	// maxImportBytes bounds the import document.
	maxImportBytes = 10 << 20
)

// decodeJSON reads one JSON value from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return badRequest("request body too large")
		case errors.Is(err, io.EOF):
			return badRequest("empty request body")
		}
		return badRequest("invalid JSON body: " + err.Error())
	}
	if dec.More() {
		return badRequest("unexpected data after JSON body")
	}
	return nil
}

// readBody returns the raw body, at most limit bytes.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, badRequest("request body too large")
		}
		return nil, badRequest("could not read request body")
	}
	return data, nil
}

// ParseMonthParam returns the month query parameter as a YYYY-MM key. An
// absent parameter yields the empty string.
func ParseMonthParam(query url.Values) (string, error) {
	v := strings.TrimSpace(query.Get("month"))
	if v == "" {
		return "", nil
	}
	y, m, err := core.ParseMonthKey(v)
	if err != nil {
		return "", badRequest(fmt.Sprintf("invalid month %q: want YYYY-MM", v))
	}
	return core.MonthKey(y, m), nil
}

// ParseScope reads the scope query parameter; empty means single.
func ParseScope(query url.Values) services.Scope {
	return services.Scope(strings.ToLower(strings.TrimSpace(query.Get("scope"))))
}

// ParseTransactionType reads an optional type filter.
func ParseTransactionType(query url.Values) (core.TransactionType, error) {
	v := core.TransactionType(strings.ToLower(strings.TrimSpace(query.Get("type"))))
	if v != "" && !v.Valid() {
		return "", badRequest(fmt.Sprintf("invalid type %q: want income or expense", v))
	}
	return v, nil
}

// ParseCategoryType validates the {type} path segment.
func ParseCategoryType(s string) (core.CategoryType, error) {
	t := core.CategoryType(strings.ToLower(s))
	if !t.Valid() {
		return "", badRequest(fmt.Sprintf("invalid category type %q", s))
	}
	return t, nil
}

// ParsePeriod reads the dashboard period, month by default.
func ParsePeriod(query url.Values) (core.Period, error) {
	p := core.Period(strings.ToLower(strings.TrimSpace(query.Get("period"))))
	if p == "" {
		return core.PeriodMonth, nil
	}
	if !p.Valid() {
		return "", badRequest(fmt.Sprintf("invalid period %q", p))
	}
	return p, nil
}

// ParseReferenceDate picks the day a dashboard period is built around: an
// explicit date, else today inside the current month, else the first day of
// the requested month.
func ParseReferenceDate(query url.Values, today core.Date) (core.Date, error) {
	if v := strings.TrimSpace(query.Get("date")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.Date{}, badRequest(fmt.Sprintf("invalid date %q: want YYYY-MM-DD", v))
		}
		return d, nil
	}
	month, err := ParseMonthParam(query)
	if err != nil {
		return core.Date{}, err
	}
	if month == "" || month == today.MonthKey() {
		return today, nil
	}
	y, m, _ := core.ParseMonthKey(month)
	return core.NewDate(y, m, 1), nil
}
