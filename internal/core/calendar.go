package core

import "time"

const (
	StatusNone Status = iota
	StatusOverdue
	StatusUpcoming
)

type (
	// Status is the colour a calendar day gets.
	Status int

	// DayCell is one day of the month grid with the bills due on it.
	DayCell struct {
		Date  Date
		Bills []Bill
	}
)

func (s Status) String() string {
	switch s {
	case StatusOverdue:
		return "overdue"
	case StatusUpcoming:
		return "upcoming"
	default:
		return "none"
	}
}

// MonthBounds returns the first and last day of the month containing ref.
func MonthBounds(ref Date) (first, last Date) {
	first = NewDate(ref.Year(), int(ref.Month()), 1)
	last = NewDate(ref.Year(), int(ref.Month())+1, 0)
	return first, last
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return NewDate(year, int(month)+1, 0).Day()
}

// BucketMonth returns one cell per day of the month containing ref, in
// ascending order. Bills keep their input order inside a cell; bills due
// outside the month are left out. The input slice is not modified.
func BucketMonth(bills []Bill, ref Date) []DayCell {
	first, last := MonthBounds(ref)
	cells := make([]DayCell, last.Day())
	for i := range cells {
		cells[i].Date = first.AddDays(i)
	}
	for _, b := range bills {
		d := b.DueDate
		if d.Year() != first.Year() || d.Month() != first.Month() {
			continue
		}
		idx := d.Day() - 1
		cells[idx].Bills = append(cells[idx].Bills, b)
	}
	return cells
}

// LeadingBlanks is the number of empty slots before the first cell in a
// Sunday-first week grid.
func LeadingBlanks(cells []DayCell) int {
	if len(cells) == 0 {
		return 0
	}
	return cells[0].Date.WeekdayIndex()
}

// DayStatus derives the day colour from due dates alone. The stored
// "vencido" state is not consulted: an unpaid bill is overdue when its due
// date is before today.
func DayStatus(cell DayCell, today Date) Status {
	upcoming := false
	for _, b := range cell.Bills {
		if !b.State.Unpaid() {
			continue
		}
		if b.DueDate.Before(today) {
			return StatusOverdue
		}
		upcoming = true
	}
	if upcoming {
		return StatusUpcoming
	}
	return StatusNone
}
