// Package form holds the create/edit models behind every dialog: defaults,
// patching from a stored record, parsing a submitted form and validation.
package form

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"winery/internal/core"
)

type Mode string

const (
	ModeAdd  Mode = "add"
	ModeEdit Mode = "edit"
)

// Dialog is the open/closed state of an edit dialog and the record it edits.
type Dialog struct {
	Mode Mode
	ID   int64
}

func Add() Dialog { return Dialog{Mode: ModeAdd} }

func Edit(id int64) Dialog { return Dialog{Mode: ModeEdit, ID: id} }

// Method is the HTTP verb the save issues against the API.
func (d Dialog) Method() string {
	if d.Mode == ModeEdit {
		return http.MethodPut
	}
	return http.MethodPost
}

func (d Dialog) IsEdit() bool { return d.Mode == ModeEdit }

// Title renders "New person" or "Edit person".
func (d Dialog) Title(noun string) string {
	if d.IsEdit() {
		return "Edit " + noun
	}
	return "New " + noun
}

var (
	errNumber   = errors.New("must be a number")
	errAmount   = errors.New("must be an amount like 12.50")
	errDate     = errors.New("must be a date (yyyy-mm-dd)")
	errNegative = errors.New("must not be negative")
	errMissing  = errors.New("cannot be blank")
)

// reader pulls typed values out of a submitted form, remembering the first
// parse error per field.
type reader struct {
	v    url.Values
	errs validation.Errors
}

func newReader(v url.Values) *reader {
	return &reader{v: v, errs: validation.Errors{}}
}

func (r *reader) text(key string) string {
	return strings.TrimSpace(r.v.Get(key))
}

func (r *reader) fail(key string, err error) {
	if _, ok := r.errs[key]; !ok {
		r.errs[key] = err
	}
}

func (r *reader) id(key string) int64 {
	s := r.text(key)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		r.fail(key, errNumber)
	}
	return n
}

func (r *reader) count(key string) int {
	s := r.text(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		r.fail(key, errNumber)
	}
	return n
}

func (r *reader) decimal(key string) core.Decimal {
	s := r.text(key)
	if s == "" {
		return 0
	}
	d, err := core.ParseDecimal(s)
	if err != nil {
		r.fail(key, errAmount)
	}
	return d
}

func (r *reader) date(key string) core.Date {
	s := r.text(key)
	if s == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(s)
	if err != nil {
		r.fail(key, errDate)
	}
	return d
}

// checkbox treats any present value other than "false" as checked.
func (r *reader) checkbox(key string) bool {
	vals, ok := r.v[key]
	if !ok || len(vals) == 0 {
		return false
	}
	// Hidden "false" inputs precede the checkbox, so the last value wins.
	last := strings.ToLower(strings.TrimSpace(vals[len(vals)-1]))
	return last != "false" && last != "off" && last != "0"
}

// merge combines parse errors with validation errors; parse errors win.
func (r *reader) merge(err error) error {
	var verrs validation.Errors
	if err != nil && !errors.As(err, &verrs) {
		return err
	}
	for k, e := range r.errs {
		if verrs == nil {
			verrs = validation.Errors{}
		}
		verrs[k] = e
	}
	if len(verrs) == 0 {
		return nil
	}
	return verrs
}

var (
	nonNegative = validation.By(func(value interface{}) error {
		switch v := value.(type) {
		case core.Decimal:
			if v.IsNegative() {
				return errNegative
			}
		case int:
			if v < 0 {
				return errNegative
			}
		}
		return nil
	})
	requiredDate = validation.By(func(value interface{}) error {
		if d, ok := value.(core.Date); ok && d.IsZero() {
			return errMissing
		}
		return nil
	})
)

// FieldErrors flattens a validation error into field -> message for templates.
// Errors that are not per-field land under "".
func FieldErrors(err error) map[string]string {
	if err == nil {
		return nil
	}
	out := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for k, e := range verrs {
			out[k] = e.Error()
		}
		return out
	}
	out[""] = err.Error()
	return out
}
