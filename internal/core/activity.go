package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actions recorded in the activity log.
const (
	ActionClaim    Action = "claim"
	ActionMarkPaid Action = "mark_paid"
	ActionRegister Action = "register"
)

const (
	SyncPending SyncStatus = "pending"
	SyncDone    SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

type (
	Action string

	SyncStatus string

	// Activity is one successful bill mutation made through this app.
	Activity struct {
		ID              int64
		Ref             uuid.UUID
		UserID          int64
		UserName        string
		Action          Action
		BillID          int64
		BillDescription string
		Amount          decimal.NullDecimal
		DueDate         Date
		CreatedAt       time.Time
		SyncStatus      SyncStatus
	}
)

// Label is the Portuguese description shown in the activity panel.
func (a Action) Label() string {
	switch a {
	case ActionClaim:
		return "assumiu"
	case ActionMarkPaid:
		return "pagou"
	case ActionRegister:
		return "cadastrou"
	default:
		return string(a)
	}
}

// NewActivity describes action by who on b.
func NewActivity(action Action, userID int64, userName string, b Bill) Activity {
	return Activity{
		Ref:             uuid.New(),
		UserID:          userID,
		UserName:        userName,
		Action:          action,
		BillID:          b.ID,
		BillDescription: b.Description,
		Amount:          b.Amount,
		DueDate:         b.DueDate,
		SyncStatus:      SyncPending,
	}
}
