// Package core provides the winery domain model.
//
// This file contains the fixed-point decimal used for money and work hours,
// and the aggregate totals map returned alongside paged lists.
package core

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Decimal is a signed amount with two fractional digits, stored in hundredths.
type Decimal int64

var ErrInvalidAmount = errors.New("invalid amount")

// DecimalFromInt returns n whole units.
func DecimalFromInt(n int64) Decimal {
	return Decimal(n * 100)
}

// ParseDecimal converts a decimal string to hundredths with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. Zero is a valid amount.
//
// Examples:
//
//	ParseDecimal("12.34")  -> 1234
//	ParseDecimal("12,345") -> 1235
//	ParseDecimal("-0.5")   -> -50
func ParseDecimal(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafe = (1<<63 - 1) / 100
	if iv > maxSafe-1 {
		return 0, ErrInvalidAmount
	}
	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			frac += int64(fracPart[1] - '0')
		}
		if len(fracPart) > 2 && fracPart[2] >= '5' {
			frac++
		}
	}
	v := iv*100 + frac
	if neg {
		v = -v
	}
	return Decimal(v), nil
}

// MustDecimal is ParseDecimal for literals known to be valid.
func MustDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic("core: invalid decimal literal " + strconv.Quote(s))
	}
	return d
}

func (d Decimal) Add(o Decimal) Decimal { return d + o }

func (d Decimal) Mul(n int) Decimal { return d * Decimal(n) }

func (d Decimal) IsZero() bool { return d == 0 }

func (d Decimal) IsNegative() bool { return d < 0 }

// Hundredths returns the raw fixed-point value.
func (d Decimal) Hundredths() int64 { return int64(d) }

// Float returns the value for display math such as chart widths.
// Use Decimal arithmetic for sums.
func (d Decimal) Float() float64 {
	return float64(d) / 100.0
}

// String formats with exactly two fractional digits, e.g. "100.50".
func (d Decimal) String() string {
	v := int64(d)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	frac := v % 100
	s := strconv.FormatInt(v/100, 10) + "."
	if frac < 10 {
		s += "0"
	}
	return sign + s + strconv.FormatInt(frac, 10)
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalJSON accepts a JSON number, a numeric string or null.
func (d *Decimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return ErrInvalidAmount
		}
		if strings.TrimSpace(unq) == "" {
			*d = 0
			return nil
		}
		s = unq
	}
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return ErrInvalidAmount
		}
		*d = Decimal(math.Round(f * 100))
		return nil
	}
	parsed, err := ParseDecimal(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Keys of the aggregate maps returned with entry and event lists.
const (
	TotalAmountPaid  = "amountPaid"
	TotalAmountDue   = "amountDue"
	TotalSum         = "total"
	TotalWorkHours   = "workHours"
	TotalLunch       = "lunchTotal"
	TotalTasting     = "tastingTotal"
	TotalAddedWines  = "addedWinesValue"
	TotalExtraCharge = "extraChargeAmount"
	TotalGrand       = "grandTotal"
)

// Totals is a server-computed aggregate keyed by field name.
type Totals map[string]Decimal

// Get returns the named aggregate, or zero when the server omitted it.
func (t Totals) Get(key string) Decimal {
	return t[key]
}

// EntryTotals sums entries the way the API does for pageTotal/grandTotal.
func EntryTotals(entries []Entry) Totals {
	t := Totals{TotalAmountPaid: 0, TotalAmountDue: 0, TotalSum: 0, TotalWorkHours: 0}
	for _, e := range entries {
		t[TotalAmountPaid] += e.AmountPaid
		t[TotalAmountDue] += e.AmountDue
		t[TotalWorkHours] += e.WorkHours
	}
	t[TotalSum] = t[TotalAmountPaid] + t[TotalAmountDue]
	return t
}

// EventTotals sums events the way the API does for pageTotal/grandTotal.
func EventTotals(events []Event) Totals {
	t := Totals{TotalLunch: 0, TotalTasting: 0, TotalAddedWines: 0, TotalExtraCharge: 0, TotalGrand: 0}
	for _, e := range events {
		t[TotalLunch] += e.LunchTotal
		t[TotalTasting] += e.TastingTotal
		t[TotalAddedWines] += e.AddedWinesValue
		t[TotalExtraCharge] += e.ExtraChargeAmount
		t[TotalGrand] += e.GrandTotal
	}
	return t
}
