package http

import (
	"strconv"
	"strings"

	"walletwise/internal/core"
)

const unassignedLabel = "---"

var (
	monthNames = [...]string{
		"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
		"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
	}
	weekdayNames = []string{"Dom", "Seg", "Ter", "Qua", "Qui", "Sex", "Sáb"}
	stateLabels  = []struct {
		State core.PaymentState
		Label string
	}{
		{core.StatePending, "Pendente"},
		{core.StatePaid, "Pago"},
		{core.StateOverdue, "Vencido"},
	}
)

type (
	billView struct {
		ID          int64
		Description string
		Category    string
		Amount      string
		DueDate     string
		Responsible string
		State       string
		Code        string
		Paid        bool
	}

	dayView struct {
		Day    int
		Date   string
		Count  int
		Status string
	}

	personView struct {
		Name   string
		Amount string
	}

	summaryView struct {
		Outstanding string
		Unassigned  string
		Paid        string
		People      []personView
	}

	boardView struct {
		Year       int
		Month      int
		MonthLabel string
		Prev       MonthParams
		Next       MonthParams
		Weekdays   []string
		Blanks     []struct{}
		Days       []dayView
		Summary    summaryView
		Bills      []billView
		// Stale is set when the reload failed and the previous list is shown.
		Stale bool
	}

	dayModalView struct {
		Date    string
		ISODate string
		Bills   []billView
	}

	activityView struct {
		UserName    string
		Action      string
		Description string
		When        string
	}

	optionView struct {
		Value    string
		Label    string
		Selected bool
	}
)

func newBillView(b core.Bill) billView {
	v := billView{
		ID:          b.ID,
		Description: b.Description,
		Category:    b.Category.Label(),
		Amount:      core.FormatNullBRL(b.Amount),
		DueDate:     b.DueDate.Display(),
		Responsible: b.Responsible,
		State:       string(b.State),
		Paid:        b.State == core.StatePaid,
	}
	if b.Unassigned() {
		v.Responsible = unassignedLabel
	}
	if b.ExternalCode != nil {
		v.Code = strconv.FormatInt(*b.ExternalCode, 10)
	}
	return v
}

func newBillViews(list []core.Bill) []billView {
	out := make([]billView, 0, len(list))
	for _, b := range list {
		out = append(out, newBillView(b))
	}
	return out
}

func newSummaryView(s core.Summary) summaryView {
	v := summaryView{
		Outstanding: core.FormatBRL(s.Outstanding),
		Unassigned:  core.FormatBRL(s.Unassigned),
		Paid:        core.FormatBRL(s.Paid),
	}
	for _, r := range s.ByResponsible {
		v.People = append(v.People, personView{Name: r.Name, Amount: core.FormatBRL(r.Outstanding)})
	}
	return v
}

// newBoardView lays out the month of p for the bills in list.
func newBoardView(list []core.Bill, p MonthParams, today core.Date) boardView {
	ref := p.Ref()
	cells := core.BucketMonth(list, ref)

	v := boardView{
		Year:       p.Year,
		Month:      p.Month,
		MonthLabel: monthNames[p.Month-1] + " " + strconv.Itoa(p.Year),
		Prev:       p.Prev(),
		Next:       p.Next(),
		Weekdays:   weekdayNames,
		Blanks:     make([]struct{}, core.LeadingBlanks(cells)),
		Summary:    newSummaryView(core.SummarizeMonth(list, ref)),
		Bills:      newBillViews(list),
	}
	for _, c := range cells {
		v.Days = append(v.Days, dayView{
			Day:    c.Date.Day(),
			Date:   c.Date.String(),
			Count:  len(c.Bills),
			Status: core.DayStatus(c, today).String(),
		})
	}
	return v
}

func newDayModalView(list []core.Bill, day core.Date) dayModalView {
	v := dayModalView{Date: day.Display(), ISODate: day.String()}
	for _, b := range list {
		if b.DueDate.Equal(day) {
			v.Bills = append(v.Bills, newBillView(b))
		}
	}
	return v
}

func newActivityViews(list []core.Activity) []activityView {
	out := make([]activityView, 0, len(list))
	for _, a := range list {
		out = append(out, activityView{
			UserName:    a.UserName,
			Action:      a.Action.Label(),
			Description: a.BillDescription,
			When:        a.CreatedAt.Local().Format("02/01 15:04"),
		})
	}
	return out
}

func categoryOptions(selected string) []optionView {
	if selected == "" {
		selected = string(core.CategoryWater)
	}
	out := make([]optionView, 0, len(core.Categories()))
	for _, c := range core.Categories() {
		out = append(out, optionView{Value: string(c), Label: c.Label(), Selected: string(c) == selected})
	}
	return out
}

func stateOptions(selected string) []optionView {
	if selected == "" {
		selected = string(core.StatePending)
	}
	out := make([]optionView, 0, len(stateLabels))
	for _, s := range stateLabels {
		out = append(out, optionView{Value: string(s.State), Label: s.Label, Selected: string(s.State) == selected})
	}
	return out
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s))
}
