package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

const (
	StatePaid    PaymentState = "pago"
	StatePending PaymentState = "pendente"
	StateOverdue PaymentState = "vencido"
)

const (
	CategoryWater      Category = "agua"
	CategoryPower      Category = "luz"
	CategoryPhone      Category = "telefone"
	CategoryMobile     Category = "celular"
	CategoryTV         Category = "tv"
	CategoryCreditCard Category = "cartao"
	CategoryCollege    Category = "faculdade"
	CategoryCourse     Category = "curso"
	CategoryHealth     Category = "saude"
	CategoryPet        Category = "pet"
	CategoryCar        Category = "carro"
	CategoryInternet   Category = "internet"
	CategoryOther      Category = "outros"
)

type (
	PaymentState string

	Category string

	Date struct {
		time.Time
	}

	// Bill is a single payable obligation ("conta") as held in memory.
	Bill struct {
		ID          int64
		Description string
		Category    Category
		// Amount is invalid when the API sent something that does not parse.
		Amount       decimal.NullDecimal
		DueDate      Date
		Responsible  string
		State        PaymentState
		ExternalCode *int64
		OwnerUserID  *int64
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrInvalidState     = errors.New("invalid payment state")
)

// categoryLabels keeps the order of the registration form.
var categoryLabels = []struct {
	Category Category
	Label    string
}{
	{CategoryWater, "Água"},
	{CategoryPower, "Luz"},
	{CategoryPhone, "Telefone"},
	{CategoryMobile, "Celular"},
	{CategoryTV, "Televisão"},
	{CategoryCreditCard, "Cartão de Crédito"},
	{CategoryCollege, "Faculdade"},
	{CategoryCourse, "Curso"},
	{CategoryHealth, "Saúde"},
	{CategoryPet, "Pet"},
	{CategoryCar, "Carro"},
	{CategoryInternet, "Internet"},
	{CategoryOther, "Outros"},
}

// Categories returns every known category in form order.
func Categories() []Category {
	out := make([]Category, len(categoryLabels))
	for i, c := range categoryLabels {
		out[i] = c.Category
	}
	return out
}

func (c Category) IsValid() bool {
	for _, l := range categoryLabels {
		if l.Category == c {
			return true
		}
	}
	return false
}

// Label returns the display name, or the raw value for categories the form does not know.
func (c Category) Label() string {
	for _, l := range categoryLabels {
		if l.Category == c {
			return l.Label
		}
	}
	return string(c)
}

// ParseCategory normalizes user input into a known category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", ErrInvalidCategory
	}
	return c, nil
}

func (s PaymentState) IsValid() bool {
	switch s {
	case StatePaid, StatePending, StateOverdue:
		return true
	}
	return false
}

// Unpaid reports whether the bill still has to be paid. A stored "vencido"
// counts the same as "pendente", so it stays in the outstanding total and
// its day keeps a status colour; a plain "pendente" match would drop it from
// both. Lateness itself is always derived from the due date.
func (s PaymentState) Unpaid() bool {
	return s == StatePending || s == StateOverdue
}

// ParsePaymentState normalizes user input into a payment state.
func ParsePaymentState(s string) (PaymentState, error) {
	st := PaymentState(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", ErrInvalidState
	}
	return st, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time of day, keeping the calendar date as seen in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate accepts YYYY-MM-DD, ignoring anything after a 'T' time separator.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String formats the date in wire format.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// Display formats the date the way the UI shows it (DD/MM/YYYY).
func (d Date) Display() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("02/01/2006")
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

// Weekday index with Sunday = 0.
func (d Date) WeekdayIndex() int {
	return int(d.Weekday())
}

// Unassigned reports whether nobody has claimed the bill yet.
func (b Bill) Unassigned() bool {
	return strings.TrimSpace(b.Responsible) == ""
}

// Validate checks the fields a bill must carry before it is sent for registration.
func (b Bill) Validate() error {
	if strings.TrimSpace(b.Description) == "" {
		return ErrEmptyDescription
	}
	if len(b.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if b.DueDate.IsZero() {
		return ErrInvalidDate
	}
	if !b.Amount.Valid || b.Amount.Decimal.IsNegative() {
		return ErrInvalidAmount
	}
	if !b.Category.IsValid() {
		return ErrInvalidCategory
	}
	if !b.State.IsValid() {
		return ErrInvalidState
	}
	return nil
}
