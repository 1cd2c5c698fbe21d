// Package services holds the user actions on bills: each one talks to the
// bill store, records what happened and refreshes the user's board.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"walletwise/internal/bills"
	"walletwise/internal/board"
	"walletwise/internal/core"
	applog "walletwise/internal/log"
)

type (
	// ActivityRecorder appends to the local activity log.
	ActivityRecorder interface {
		Record(ctx context.Context, a core.Activity) (core.Activity, error)
		Recent(ctx context.Context, limit int) ([]core.Activity, error)
	}

	// ActivityPublisher announces a recorded activity to the sync worker.
	ActivityPublisher interface {
		PublishActivity(ctx context.Context, a core.Activity) error
	}

	// MutationObserver counts action outcomes. local is true when the
	// action was rejected before reaching the bill store.
	MutationObserver interface {
		Mutation(action string, err error, local bool)
	}
)

// RegisterForm is the raw registration form as typed by the user.
type RegisterForm struct {
	Description  string
	Category     string
	Amount       string
	DueDate      string
	Responsible  string
	State        string
	ExternalCode string
}

type BillService struct {
	backend   bills.Backend
	boards    *board.Registry
	recorder  ActivityRecorder
	publisher ActivityPublisher
	observer  MutationObserver
	logger    *applog.Logger
	events    *applog.StructuredLogger
}

// Option configures optional collaborators of BillService.
type Option func(*BillService)

func WithRecorder(r ActivityRecorder) Option   { return func(s *BillService) { s.recorder = r } }
func WithPublisher(p ActivityPublisher) Option { return func(s *BillService) { s.publisher = p } }
func WithObserver(o MutationObserver) Option   { return func(s *BillService) { s.observer = o } }
func WithLogger(l *applog.Logger) Option       { return func(s *BillService) { s.logger = l } }

func NewBillService(backend bills.Backend, boards *board.Registry, opts ...Option) *BillService {
	s := &BillService{backend: backend, boards: boards}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = applog.Default(applog.ComponentBills)
	}
	s.logger = s.logger.WithComponent(applog.ComponentBills)
	s.events = applog.NewStructuredLogger(s.logger)
	return s
}

// Login checks credentials against the bill store.
func (s *BillService) Login(ctx context.Context, username, password string) (bills.Identity, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return bills.Identity{}, &bills.ValidationError{Message: "Informe usuário e senha"}
	}
	return s.backend.Login(ctx, username, password)
}

// Logout drops the user's board.
func (s *BillService) Logout(who bills.Identity) {
	s.boards.Forget(who.UserID)
}

// Load re-fetches the full bill list into the user's board.
func (s *BillService) Load(ctx context.Context, who bills.Identity) (board.Result, error) {
	res, err := s.boards.For(who.UserID).Refresh(ctx, s.backend.ListBills)
	if err != nil {
		return res, fmt.Errorf("load bills: %w", err)
	}
	if !res.Applied {
		s.logger.DebugContext(ctx, "Discarded stale bill list",
			applog.FieldUserID, who.UserID,
			applog.FieldGeneration, res.Generation)
	}
	return res, nil
}

// Snapshot returns the user's installed list without fetching.
func (s *BillService) Snapshot(who bills.Identity) ([]core.Bill, bool) {
	return s.boards.For(who.UserID).Snapshot()
}

// Find looks a bill up in the user's board, loading it first if it was never loaded.
func (s *BillService) Find(ctx context.Context, who bills.Identity, id int64) (core.Bill, error) {
	b := s.boards.For(who.UserID)
	if _, loaded := b.Snapshot(); !loaded {
		if _, err := s.Load(ctx, who); err != nil {
			return core.Bill{}, err
		}
	}
	bill, ok := b.Find(id)
	if !ok {
		return core.Bill{}, bills.ErrBillNotFound
	}
	return bill, nil
}

// Claim makes the session user responsible for the bill.
func (s *BillService) Claim(ctx context.Context, who bills.Identity, id int64) (board.Result, error) {
	bill, err := s.Find(ctx, who, id)
	if err != nil {
		s.logger.DebugContext(ctx, "Claiming a bill missing from the board",
			applog.FieldBillID, id,
			applog.FieldError, err)
		bill = core.Bill{ID: id}
	}

	err = s.backend.ChangeBill(ctx, bills.ClaimChange(id, who))
	s.observe(core.ActionClaim, err, false)
	if err != nil {
		return board.Result{}, fmt.Errorf("claim bill %d: %w", id, err)
	}

	s.events.LogBillChanged(ctx, applog.OpClaim, id, who.UserID)
	s.record(ctx, core.ActionClaim, who, bill)
	return s.reload(ctx, who), nil
}

// MarkPaid marks a bill paid. A bill nobody has claimed is rejected without
// contacting the bill store.
func (s *BillService) MarkPaid(ctx context.Context, who bills.Identity, id int64) (board.Result, error) {
	bill, err := s.Find(ctx, who, id)
	if err == nil && bill.Unassigned() {
		err = bills.ErrNoResponsible
	}
	if err != nil {
		s.observe(core.ActionMarkPaid, err, true)
		return board.Result{}, fmt.Errorf("mark bill %d paid: %w", id, err)
	}

	err = s.backend.ChangeBill(ctx, bills.PaidChange(id))
	s.observe(core.ActionMarkPaid, err, false)
	if err != nil {
		return board.Result{}, fmt.Errorf("mark bill %d paid: %w", id, err)
	}

	s.events.LogBillChanged(ctx, applog.OpMarkPaid, id, who.UserID)
	bill.State = core.StatePaid
	s.record(ctx, core.ActionMarkPaid, who, bill)
	return s.reload(ctx, who), nil
}

// Register validates the form, creates the bill and refreshes the board.
func (s *BillService) Register(ctx context.Context, who bills.Identity, form RegisterForm) (core.Bill, board.Result, error) {
	bill, err := ParseRegisterForm(form)
	if err != nil {
		s.observe(core.ActionRegister, err, true)
		return core.Bill{}, board.Result{}, err
	}

	created, err := s.backend.CreateBill(ctx, bill)
	s.observe(core.ActionRegister, err, false)
	if err != nil {
		return core.Bill{}, board.Result{}, fmt.Errorf("register bill: %w", err)
	}
	if created.ID == 0 {
		// some API versions answer with a bare message
		created = bill
	}

	s.events.LogBillChanged(ctx, applog.OpCreate, created.ID, who.UserID)
	s.record(ctx, core.ActionRegister, who, created)
	return created, s.reload(ctx, who), nil
}

// Period lists the bills due between from and to, inclusive.
func (s *BillService) Period(ctx context.Context, from, to core.Date) ([]core.Bill, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, &bills.ValidationError{Field: "fim", Message: "A data final deve ser posterior à inicial"}
	}
	list, err := s.backend.ListBillsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list bills between %s and %s: %w", from, to, err)
	}
	return list, nil
}

// RecentActivity returns the newest entries of the activity log, or nothing
// when no log is configured.
func (s *BillService) RecentActivity(ctx context.Context, limit int) ([]core.Activity, error) {
	if s.recorder == nil {
		return nil, nil
	}
	return s.recorder.Recent(ctx, limit)
}

// ParseRegisterForm turns the raw form into a bill ready to be sent.
func ParseRegisterForm(f RegisterForm) (core.Bill, error) {
	amount, err := core.ParseAmount(f.Amount)
	if err != nil {
		return core.Bill{}, &bills.ValidationError{Field: "valor", Message: "Informe um valor válido"}
	}
	if strings.TrimSpace(f.Description) == "" || strings.TrimSpace(f.DueDate) == "" {
		return core.Bill{}, &bills.ValidationError{Message: "Preencha todos os campos obrigatórios"}
	}
	due, err := core.ParseDate(strings.TrimSpace(f.DueDate))
	if err != nil {
		return core.Bill{}, &bills.ValidationError{Field: "data_vencimento", Message: "Informe uma data de vencimento válida"}
	}

	category := core.CategoryWater
	if strings.TrimSpace(f.Category) != "" {
		if category, err = core.ParseCategory(f.Category); err != nil {
			return core.Bill{}, &bills.ValidationError{Field: "tipo", Message: "Tipo de conta inválido"}
		}
	}
	state := core.StatePending
	if strings.TrimSpace(f.State) != "" {
		if state, err = core.ParsePaymentState(f.State); err != nil {
			return core.Bill{}, &bills.ValidationError{Field: "estado", Message: "Estado inválido"}
		}
	}

	bill := core.Bill{
		Description: strings.TrimSpace(f.Description),
		Category:    category,
		Amount:      decimal.NewNullDecimal(amount),
		DueDate:     due,
		Responsible: strings.TrimSpace(f.Responsible),
		State:       state,
	}
	if code := strings.TrimSpace(f.ExternalCode); code != "" {
		n, err := strconv.ParseInt(code, 10, 64)
		if err != nil {
			return core.Bill{}, &bills.ValidationError{Field: "campo_opcional", Message: "O código deve ser numérico"}
		}
		bill.ExternalCode = &n
	}
	if err := bill.Validate(); err != nil {
		return core.Bill{}, &bills.ValidationError{Message: validationMessage(err)}
	}
	return bill, nil
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrEmptyDescription), errors.Is(err, core.ErrInvalidDate):
		return "Preencha todos os campos obrigatórios"
	case errors.Is(err, core.ErrInvalidAmount):
		return "Informe um valor válido"
	default:
		return "A descrição deve ter no máximo 200 caracteres"
	}
}

// reload refreshes after a successful mutation. A failed refresh leaves the
// previous list in place; the mutation itself already succeeded.
func (s *BillService) reload(ctx context.Context, who bills.Identity) board.Result {
	res, err := s.Load(ctx, who)
	if err != nil {
		s.logger.WarnContext(ctx, "Refresh after mutation failed",
			applog.FieldUserID, who.UserID,
			applog.FieldError, err)
	}
	return res
}

// record writes the activity log and notifies the worker. Neither step can
// fail the user's action.
func (s *BillService) record(ctx context.Context, action core.Action, who bills.Identity, bill core.Bill) {
	if s.recorder == nil {
		return
	}
	a, err := s.recorder.Record(ctx, core.NewActivity(action, who.UserID, who.Name, bill))
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to record activity",
			applog.FieldBillID, bill.ID,
			applog.FieldError, err)
		return
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishActivity(ctx, a); err != nil {
		// the row stays pending and the worker sweep picks it up
		s.logger.WarnContext(ctx, "Failed to publish activity",
			applog.FieldActivityID, a.ID,
			applog.FieldError, err)
	}
}

func (s *BillService) observe(action core.Action, err error, local bool) {
	if s.observer != nil {
		s.observer.Mutation(string(action), err, local)
	}
}
