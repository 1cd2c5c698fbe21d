package core

import "github.com/shopspring/decimal"

// ResponsibleAmount is the rollup for one responsible party.
type ResponsibleAmount struct {
	Name string
	// Outstanding is what the party still has to pay in the window.
	Outstanding decimal.Decimal
	// Total includes the party's paid bills as well.
	Total decimal.Decimal
}

// Summary holds the monetary rollups for a date window.
type Summary struct {
	Outstanding   decimal.Decimal
	Paid          decimal.Decimal
	Unassigned    decimal.Decimal
	ByResponsible []ResponsibleAmount
}

// Summarize totals the bills due strictly between start and end.
// Bills whose amount failed to parse never contribute to any figure.
// ByResponsible keeps the order in which each party first appears.
func Summarize(bills []Bill, start, end Date) Summary {
	s := Summary{
		Outstanding: decimal.Zero,
		Paid:        decimal.Zero,
		Unassigned:  decimal.Zero,
	}
	index := map[string]int{}

	for _, b := range bills {
		if !b.Amount.Valid {
			continue
		}
		if !b.DueDate.After(start) || !b.DueDate.Before(end) {
			continue
		}
		amt := b.Amount.Decimal
		unpaid := b.State.Unpaid()

		switch {
		case unpaid:
			s.Outstanding = s.Outstanding.Add(amt)
		case b.State == StatePaid:
			s.Paid = s.Paid.Add(amt)
		}

		if b.Unassigned() {
			if b.State != StatePaid {
				s.Unassigned = s.Unassigned.Add(amt)
			}
			continue
		}

		i, ok := index[b.Responsible]
		if !ok {
			i = len(s.ByResponsible)
			index[b.Responsible] = i
			s.ByResponsible = append(s.ByResponsible, ResponsibleAmount{
				Name:        b.Responsible,
				Outstanding: decimal.Zero,
				Total:       decimal.Zero,
			})
		}
		r := &s.ByResponsible[i]
		r.Total = r.Total.Add(amt)
		if unpaid {
			r.Outstanding = r.Outstanding.Add(amt)
		}
	}
	return s
}

// SummarizeMonth summarizes the whole month containing ref, first and last
// day included.
func SummarizeMonth(bills []Bill, ref Date) Summary {
	first, last := MonthBounds(ref)
	return Summarize(bills, first.AddDays(-1), last.AddDays(1))
}
