// Package http provides HTTP server and handler implementations.
//
// This file holds the helpers that turn query strings and request bodies
// into typed values.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"walletwise/internal/bills"
	"walletwise/internal/core"
)

const maxBodyBytes = 64 << 10

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// Ref returns the first day of the month.
func (p MonthParams) Ref() core.Date {
	return core.NewDate(p.Year, p.Month, 1)
}

// Prev returns the previous month.
func (p MonthParams) Prev() MonthParams {
	d := core.NewDate(p.Year, p.Month-1, 1)
	return MonthParams{Year: d.Year(), Month: int(d.Month())}
}

// Next returns the following month.
func (p MonthParams) Next() MonthParams {
	d := core.NewDate(p.Year, p.Month+1, 1)
	return MonthParams{Year: d.Year(), Month: int(d.Month())}
}

// ParseMonthParams extracts year and month from the query, defaulting to the
// month of now. Out of range values fall back to the default.
func ParseMonthParams(query url.Values, now time.Time) MonthParams {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil && y >= 1900 && y <= 9999 {
			params.Year = y
		}
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 1 && m <= 12 {
			params.Month = m
		}
	}

	return params
}

// PeriodParams is the inclusive window of the period query page.
type PeriodParams struct {
	From core.Date
	To   core.Date
}

// ParsePeriodParams reads inicio and fim, each defaulting to the bounds of
// the month of now.
func ParsePeriodParams(query url.Values, now time.Time) (PeriodParams, error) {
	first, last := core.MonthBounds(core.DateOf(now))
	params := PeriodParams{From: first, To: last}

	if v := strings.TrimSpace(query.Get("inicio")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return params, &bills.ValidationError{Field: "inicio", Message: "Selecione a data de início"}
		}
		params.From = d
	}
	if v := strings.TrimSpace(query.Get("fim")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return params, &bills.ValidationError{Field: "fim", Message: "Selecione a data de fim"}
		}
		params.To = d
	}
	return params, nil
}

// ParseDayParam reads the day opened in the day modal.
func ParseDayParam(query url.Values) (core.Date, error) {
	d, err := core.ParseDate(strings.TrimSpace(query.Get("data")))
	if err != nil {
		return core.Date{}, &bills.ValidationError{Field: "data", Message: "Data inválida"}
	}
	return d, nil
}

// ParseBillID reads the {id} path segment.
func ParseBillID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &bills.ValidationError{Field: "id", Message: "Conta inválida"}
	}
	return id, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads up to 64 KiB of the body once.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
