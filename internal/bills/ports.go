package bills

import (
	"context"

	"walletwise/internal/core"
)

type (
	// Identity is who the remote API says logged in.
	Identity struct {
		UserID int64
		Name   string
	}

	// Change is a partial update of a bill. Nil fields are left untouched.
	Change struct {
		ID          int64
		Responsible *string
		OwnerUserID *int64
		State       *core.PaymentState
	}
)

// Ports for the remote bill store.
type (
	Authenticator interface {
		Login(ctx context.Context, username, password string) (Identity, error)
	}

	Lister interface {
		ListBills(ctx context.Context) ([]core.Bill, error)
		// ListBillsBetween returns bills due in [from, to]. Zero dates mean unbounded.
		ListBillsBetween(ctx context.Context, from, to core.Date) ([]core.Bill, error)
	}

	Registrar interface {
		CreateBill(ctx context.Context, b core.Bill) (core.Bill, error)
	}

	Changer interface {
		ChangeBill(ctx context.Context, c Change) error
	}

	// Backend is everything the web app needs from the bill store.
	Backend interface {
		Authenticator
		Lister
		Registrar
		Changer
	}
)

// ClaimChange builds the change that assigns a bill to the given identity.
func ClaimChange(id int64, who Identity) Change {
	name := who.Name
	uid := who.UserID
	return Change{ID: id, Responsible: &name, OwnerUserID: &uid}
}

// PaidChange builds the change that marks a bill as paid.
func PaidChange(id int64) Change {
	st := core.StatePaid
	return Change{ID: id, State: &st}
}
