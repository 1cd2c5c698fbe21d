// Package sheets defines the spreadsheet mirror of the activity log.
package sheets

import (
	"context"

	"walletwise/internal/core"
)

// Ports for outbound adapters.
type (
	// ActivityWriter appends one activity row and returns a reference to it.
	ActivityWriter interface {
		Append(ctx context.Context, a core.Activity) (rowRef string, err error)
	}

	// RefChecker reports whether an activity was already mirrored, so a
	// redelivered message does not produce a duplicate row.
	RefChecker interface {
		HasRef(ctx context.Context, a core.Activity) (bool, error)
	}

	// Mirror is what the sync worker needs from a spreadsheet backend.
	Mirror interface {
		ActivityWriter
		RefChecker
	}
)

// Header is the first row of every activity sheet.
var Header = []string{"Data", "Usuário", "Ação", "Conta", "Descrição", "Valor", "Vencimento", "Referência"}

// Row renders an activity in Header order.
func Row(a core.Activity) []any {
	amount := ""
	if a.Amount.Valid {
		amount = a.Amount.Decimal.StringFixed(2)
	}
	return []any{
		a.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		a.UserName,
		a.Action.Label(),
		a.BillID,
		a.BillDescription,
		amount,
		a.DueDate.Display(),
		a.Ref.String(),
	}
}
