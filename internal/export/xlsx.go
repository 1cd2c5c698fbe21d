// Package export renders bill lists as spreadsheets for download.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"walletwise/internal/core"
)

const (
	billsSheet   = "Contas"
	summarySheet = "Resumo"
)

var billHeaders = []string{"Código", "Descrição", "Tipo", "Valor", "Vencimento", "Responsável", "Estado"}

// BillsXLSX writes the bills due in [from, to] into a workbook with one
// row per bill and a summary sheet for the same window.
func BillsXLSX(list []core.Bill, from, to core.Date) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// the default sheet is renamed rather than left empty
	if err := f.SetSheetName(f.GetSheetName(0), billsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	if err := writeBills(f, list); err != nil {
		return nil, err
	}
	if err := writeSummary(f, list, from, to); err != nil {
		return nil, err
	}

	idx, _ := f.GetSheetIndex(billsSheet)
	f.SetActiveSheet(idx)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeBills(f *excelize.File, list []core.Bill) error {
	for i, h := range billHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(billsSheet, cell, h); err != nil {
			return err
		}
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}

	for n, b := range list {
		row := n + 2
		write := func(col int, v any) error {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			return f.SetCellValue(billsSheet, cell, v)
		}

		code := ""
		if b.ExternalCode != nil {
			code = fmt.Sprint(*b.ExternalCode)
		}
		responsible := b.Responsible
		if b.Unassigned() {
			responsible = "---"
		}
		values := []any{code, b.Description, b.Category.Label(), nil, b.DueDate.Display(), responsible, string(b.State)}
		for col, v := range values {
			if v == nil {
				continue
			}
			if err := write(col+1, v); err != nil {
				return err
			}
		}

		amountCell, _ := excelize.CoordinatesToCellName(4, row)
		if b.Amount.Valid {
			if err := f.SetCellFloat(billsSheet, amountCell, b.Amount.Decimal.InexactFloat64(), 2, 64); err != nil {
				return err
			}
			if err := f.SetCellStyle(billsSheet, amountCell, amountCell, money); err != nil {
				return err
			}
		} else if err := f.SetCellValue(billsSheet, amountCell, core.MissingAmount); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(billsSheet, "A", "A", 12)
	_ = f.SetColWidth(billsSheet, "B", "B", 36)
	_ = f.SetColWidth(billsSheet, "C", "C", 20)
	_ = f.SetColWidth(billsSheet, "D", "E", 14)
	_ = f.SetColWidth(billsSheet, "F", "F", 24)
	return f.SetColWidth(billsSheet, "G", "G", 12)
}

func writeSummary(f *excelize.File, list []core.Bill, from, to core.Date) error {
	// Summarize excludes its bounds
	s := core.Summarize(list, from.AddDays(-1), to.AddDays(1))

	rows := [][]any{
		{"Período", from.Display() + " a " + to.Display()},
		{"Em aberto", core.FormatBRL(s.Outstanding)},
		{"Sem responsável", core.FormatBRL(s.Unassigned)},
		{"Pago", core.FormatBRL(s.Paid)},
		{},
		{"Responsável", "Em aberto", "Total"},
	}
	for _, r := range s.ByResponsible {
		rows = append(rows, []any{r.Name, core.FormatBRL(r.Outstanding), core.FormatBRL(r.Total)})
	}

	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &r); err != nil {
			return err
		}
	}
	return f.SetColWidth(summarySheet, "A", "C", 22)
}
