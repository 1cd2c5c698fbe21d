package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletwise/internal/bills"
	"walletwise/internal/bills/memory"
	"walletwise/internal/board"
	"walletwise/internal/core"
)

var ana = bills.Identity{UserID: 1, Name: "Ana"}

// countingBackend wraps the memory store and counts change calls.
type countingBackend struct {
	*memory.Store
	changes atomic.Int32
	failAll error
}

func (b *countingBackend) ChangeBill(ctx context.Context, c bills.Change) error {
	b.changes.Add(1)
	if b.failAll != nil {
		return b.failAll
	}
	return b.Store.ChangeBill(ctx, c)
}

type fakeRecorder struct {
	mu   sync.Mutex
	rows []core.Activity
	err  error
}

func (r *fakeRecorder) Record(_ context.Context, a core.Activity) (core.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return core.Activity{}, r.err
	}
	a.ID = int64(len(r.rows) + 1)
	r.rows = append(r.rows, a)
	return a, nil
}

func (r *fakeRecorder) Recent(_ context.Context, limit int) ([]core.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Activity
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.rows[i])
	}
	return out, nil
}

type fakePublisher struct {
	published []int64
	err       error
}

func (p *fakePublisher) PublishActivity(_ context.Context, a core.Activity) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, a.ID)
	return nil
}

type mutationLog struct {
	entries []string
}

func (m *mutationLog) Mutation(action string, err error, local bool) {
	out := "ok"
	switch {
	case err != nil && local:
		out = "rejected"
	case err != nil:
		out = "error"
	}
	m.entries = append(m.entries, action+":"+out)
}

func seedBills() []core.Bill {
	return []core.Bill{
		{ID: 1, Description: "Água", Category: core.CategoryWater, Amount: core.ParseNullAmount("80"), DueDate: core.NewDate(2025, 3, 10), State: core.StatePending},
		{ID: 2, Description: "Luz", Category: core.CategoryPower, Amount: core.ParseNullAmount("120.5"), DueDate: core.NewDate(2025, 3, 12), Responsible: "Leo", State: core.StatePending},
	}
}

type fixture struct {
	svc       *BillService
	backend   *countingBackend
	recorder  *fakeRecorder
	publisher *fakePublisher
	mutations *mutationLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend:   &countingBackend{Store: memory.New([]memory.User{{ID: 1, Name: "Ana", Username: "ana", Password: "x"}}, seedBills())},
		recorder:  &fakeRecorder{},
		publisher: &fakePublisher{},
		mutations: &mutationLog{},
	}
	f.svc = NewBillService(f.backend, board.NewRegistry(10, time.Hour, nil),
		WithRecorder(f.recorder),
		WithPublisher(f.publisher),
		WithObserver(f.mutations))
	return f
}

func TestClaim_UsesSessionIdentityAndRefreshes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Load(ctx, ana)
	require.NoError(t, err)

	res, err := f.svc.Claim(ctx, ana, 1)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	var claimed core.Bill
	for _, b := range res.Bills {
		if b.ID == 1 {
			claimed = b
		}
	}
	assert.Equal(t, "Ana", claimed.Responsible)
	require.NotNil(t, claimed.OwnerUserID)
	assert.Equal(t, int64(1), *claimed.OwnerUserID)

	require.Len(t, f.recorder.rows, 1)
	assert.Equal(t, core.ActionClaim, f.recorder.rows[0].Action)
	assert.Equal(t, "Água", f.recorder.rows[0].BillDescription)
	assert.Equal(t, []int64{1}, f.publisher.published)
	assert.Equal(t, []string{"claim:ok"}, f.mutations.entries)
}

func TestMarkPaid_RejectsUnassignedWithoutNetworkCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.MarkPaid(ctx, ana, 1)
	require.ErrorIs(t, err, bills.ErrNoResponsible)
	assert.Equal(t, int32(0), f.backend.changes.Load())
	assert.Empty(t, f.recorder.rows)
	assert.Equal(t, []string{"mark_paid:rejected"}, f.mutations.entries)
	assert.Equal(t, "Esta conta ainda não tem um responsável definido.", bills.UserMessage(err))
}

func TestMarkPaid_UnknownBill(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.MarkPaid(context.Background(), ana, 99)
	require.ErrorIs(t, err, bills.ErrBillNotFound)
	assert.Equal(t, int32(0), f.backend.changes.Load())
}

func TestMarkPaid_AfterClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Load(ctx, ana)
	require.NoError(t, err)

	_, err = f.svc.Claim(ctx, ana, 1)
	require.NoError(t, err)
	res, err := f.svc.MarkPaid(ctx, ana, 1)
	require.NoError(t, err)

	for _, b := range res.Bills {
		if b.ID == 1 {
			assert.Equal(t, core.StatePaid, b.State)
		}
	}
	require.Len(t, f.recorder.rows, 2)
	assert.Equal(t, core.ActionMarkPaid, f.recorder.rows[1].Action)
	assert.Equal(t, int32(2), f.backend.changes.Load())
}

// gatedBackend holds ListBills calls on gate once armed, reporting each
// blocked call on entered.
type gatedBackend struct {
	*countingBackend
	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

func (b *gatedBackend) arm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = make(chan struct{})
	b.entered = make(chan struct{}, 1)
}

func (b *gatedBackend) ListBills(ctx context.Context) ([]core.Bill, error) {
	b.mu.Lock()
	gate, entered := b.gate, b.entered
	b.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	return b.countingBackend.ListBills(ctx)
}

func TestMarkPaid_DuringClaimRefreshIsRejected(t *testing.T) {
	f := newFixture(t)
	gated := &gatedBackend{countingBackend: f.backend}
	svc := NewBillService(gated, board.NewRegistry(10, time.Hour, nil))
	ctx := context.Background()

	_, err := svc.Load(ctx, ana)
	require.NoError(t, err)
	gated.arm()

	claimDone := make(chan error, 1)
	go func() {
		_, err := svc.Claim(ctx, ana, 1)
		claimDone <- err
	}()

	select {
	case <-gated.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("claim never started its refresh")
	}

	_, err = svc.MarkPaid(ctx, ana, 1)
	require.ErrorIs(t, err, bills.ErrNoResponsible)
	assert.Equal(t, int32(1), f.backend.changes.Load())

	close(gated.gate)
	require.NoError(t, <-claimDone)

	bill, err := svc.Find(ctx, ana, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ana", bill.Responsible)
	assert.Equal(t, core.StatePending, bill.State)
}

func TestClaim_LoadsBoardForActivitySnapshot(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Claim(context.Background(), ana, 1)
	require.NoError(t, err)

	require.Len(t, f.recorder.rows, 1)
	assert.Equal(t, "Água", f.recorder.rows[0].BillDescription)
	assert.Equal(t, int32(1), f.backend.changes.Load())
}

func TestMarkPaid_APIErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.failAll = &bills.APIError{Status: 500, Message: "Falha ao atualizar"}

	_, err := f.svc.MarkPaid(ctx, ana, 2)
	var apiErr *bills.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Falha ao atualizar", bills.UserMessage(err))
	assert.Empty(t, f.recorder.rows)
	assert.Equal(t, []string{"mark_paid:error"}, f.mutations.entries)
}

func TestMutationSurvivesActivityLogFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publisher.err = errors.New("broker down")

	_, err := f.svc.Claim(ctx, ana, 1)
	require.NoError(t, err)
	assert.Len(t, f.recorder.rows, 1)

	f.recorder.err = errors.New("disk full")
	_, err = f.svc.Claim(ctx, ana, 2)
	require.NoError(t, err)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, res, err := f.svc.Register(ctx, ana, RegisterForm{
		Description:  "Internet",
		Category:     "internet",
		Amount:       "99,90",
		DueDate:      "2025-03-20",
		State:        "pendente",
		ExternalCode: "123",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), created.ID)
	assert.Len(t, res.Bills, 3)
	assert.True(t, created.Amount.Decimal.Equal(core.ParseNullAmount("99.9").Decimal))
	require.NotNil(t, created.ExternalCode)
	assert.Equal(t, int64(123), *created.ExternalCode)
	require.Len(t, f.recorder.rows, 1)
	assert.Equal(t, core.ActionRegister, f.recorder.rows[0].Action)
}

func TestParseRegisterForm_Messages(t *testing.T) {
	valid := RegisterForm{Description: "Luz", Amount: "10", DueDate: "2025-03-01"}
	cases := []struct {
		name   string
		mutate func(*RegisterForm)
		field  string
		msg    string
	}{
		{"bad amount", func(f *RegisterForm) { f.Amount = "dez" }, "valor", "Informe um valor válido"},
		{"empty amount", func(f *RegisterForm) { f.Amount = "" }, "valor", "Informe um valor válido"},
		{"negative amount", func(f *RegisterForm) { f.Amount = "-5" }, "valor", "Informe um valor válido"},
		{"missing description", func(f *RegisterForm) { f.Description = " " }, "", "Preencha todos os campos obrigatórios"},
		{"missing due date", func(f *RegisterForm) { f.DueDate = "" }, "", "Preencha todos os campos obrigatórios"},
		{"bad due date", func(f *RegisterForm) { f.DueDate = "31/02/2025" }, "data_vencimento", "Informe uma data de vencimento válida"},
		{"bad category", func(f *RegisterForm) { f.Category = "streaming" }, "tipo", "Tipo de conta inválido"},
		{"bad state", func(f *RegisterForm) { f.State = "quitado" }, "estado", "Estado inválido"},
		{"bad code", func(f *RegisterForm) { f.ExternalCode = "12a" }, "campo_opcional", "O código deve ser numérico"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := valid
			tc.mutate(&form)
			_, err := ParseRegisterForm(form)
			var ve *bills.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
			assert.Equal(t, tc.msg, ve.Message)
		})
	}

	b, err := ParseRegisterForm(valid)
	require.NoError(t, err)
	assert.Equal(t, core.CategoryWater, b.Category)
	assert.Equal(t, core.StatePending, b.State)
	assert.True(t, b.Unassigned())
}

func TestRegister_InvalidFormNeverReachesBackend(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Register(context.Background(), ana, RegisterForm{Description: "x", Amount: "abc", DueDate: "2025-01-01"})
	require.Error(t, err)
	bs, _ := f.backend.ListBills(context.Background())
	assert.Len(t, bs, 2)
	assert.Equal(t, []string{"register:rejected"}, f.mutations.entries)
}

func TestPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.svc.Period(ctx, core.NewDate(2025, 3, 11), core.NewDate(2025, 3, 31))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].ID)

	_, err = f.svc.Period(ctx, core.NewDate(2025, 4, 1), core.NewDate(2025, 3, 1))
	var ve *bills.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestLoginAndRecentActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Login(ctx, "ana", "x")
	require.NoError(t, err)
	assert.Equal(t, ana, id)

	_, err = f.svc.Login(ctx, "ana", "wrong")
	assert.ErrorIs(t, err, bills.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "", "")
	var ve *bills.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.Claim(ctx, ana, 1)
	require.NoError(t, err)
	recent, err := f.svc.RecentActivity(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	bare := NewBillService(f.backend, board.NewRegistry(1, time.Hour, nil))
	recent, err = bare.RecentActivity(ctx, 5)
	assert.NoError(t, err)
	assert.Nil(t, recent)
}
