// Package core provides money parsing and handling utilities.
//
// Amounts are kept as shopspring decimals so sums never pick up float noise.
// This file also carries the BRL display formatting used by the templates.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// MissingAmount is shown in place of an amount that failed to parse.
const MissingAmount = "—"

// ParseAmount converts user or wire input into a non-negative decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Thousands
// separators are not accepted: "1.234,56" is rejected rather than guessed at.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if s == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseNullAmount is the lenient form used at the API boundary: anything that
// does not parse yields an invalid NullDecimal instead of an error.
func ParseNullAmount(s string) decimal.NullDecimal {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// FormatBRL renders an amount as Brazilian reais, e.g. "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteString("-")
	}
	b.WriteString("R$ ")
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}

// FormatNullBRL is FormatBRL for amounts that may be missing.
func FormatNullBRL(d decimal.NullDecimal) string {
	if !d.Valid {
		return MissingAmount
	}
	return FormatBRL(d.Decimal)
}
