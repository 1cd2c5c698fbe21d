package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"walletwise/internal/bills"
	"walletwise/internal/bills/memory"
	"walletwise/internal/board"
	"walletwise/internal/core"
	applog "walletwise/internal/log"
	"walletwise/internal/middleware/ratelimit"
	"walletwise/internal/services"
	"walletwise/internal/session"
)

var (
	fixedNow = time.Date(2025, 5, 12, 12, 0, 0, 0, time.UTC)
	ana      = bills.Identity{UserID: 1, Name: "Ana"}

	fiberCode int64 = 83640000001
)

type testServer struct {
	*Server
	sessions *session.Manager
}

func quietLogger() *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Output = io.Discard
	return applog.New(cfg)
}

func seedBills() []core.Bill {
	return []core.Bill{
		{
			ID: 1, Description: "Conta de agua", Category: core.CategoryWater,
			Amount: core.ParseNullAmount("100.00"), DueDate: core.NewDate(2025, 5, 10),
			State: core.StatePending,
		},
		{
			ID: 2, Description: "Internet fibra", Category: core.CategoryInternet,
			Amount: core.ParseNullAmount("80.50"), DueDate: core.NewDate(2025, 5, 15),
			Responsible: "Ana", State: core.StatePaid, ExternalCode: &fiberCode,
		},
	}
}

func newTestServer(t *testing.T, mutate func(*Deps)) *testServer {
	t.Helper()
	logger := quietLogger()
	store := memory.New([]memory.User{{ID: 1, Name: "Ana", Username: "ana", Password: "secret"}}, seedBills())
	svc := services.NewBillService(store, board.NewRegistry(16, time.Minute, nil), services.WithLogger(logger))
	sessions := session.NewManager("test-secret", time.Hour, false)

	deps := Deps{
		Bills:    svc,
		Sessions: sessions,
		Logger:   logger,
		Now:      func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &testServer{Server: NewServer(":0", deps), sessions: sessions}
}

func (ts *testServer) do(t *testing.T, r *http.Request, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	if authed {
		token, err := ts.sessions.Issue(ana)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		r.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec, r)
	return rec
}

func postForm(path string, form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("HX-Request", "true")
	return r
}

// notification decodes the show-notification trigger of a response.
func notification(t *testing.T, rec *httptest.ResponseRecorder) (kind, message string) {
	t.Helper()
	var triggers map[string]struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(rec.Header().Get("HX-Trigger")), &triggers); err != nil {
		t.Fatalf("decode HX-Trigger %q: %v", rec.Header().Get("HX-Trigger"), err)
	}
	n := triggers["show-notification"]
	return n.Type, n.Message
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, path, nil), false)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rec.Code, rec.Body)
		}
	}

	failing := newTestServer(t, func(d *Deps) {
		d.Checks = []ReadinessCheck{{Name: "activity_log", Check: func(context.Context) error {
			return errors.New("database is locked")
		}}}
	})
	rec := failing.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil), false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "database is locked") {
		t.Errorf("readyz body = %s", rec.Body)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/", nil), false)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("status=%d location=%q", rec.Code, rec.Header().Get("Location"))
	}

	req := httptest.NewRequest(http.MethodGet, "/ui/board", nil)
	req.Header.Set("HX-Request", "true")
	rec = ts.do(t, req, false)
	if rec.Code != http.StatusUnauthorized || rec.Header().Get("HX-Redirect") != "/login" {
		t.Fatalf("htmx status=%d redirect=%q", rec.Code, rec.Header().Get("HX-Redirect"))
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, postForm("/login", url.Values{"username": {"ana"}, "senha": {"wrong"}}), false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Usuário ou senha incorreta!") {
		t.Errorf("missing error message: %s", rec.Body)
	}

	rec = ts.do(t, postForm("/login", url.Values{"username": {"ana"}, "senha": {"secret"}}), false)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login status=%d", rec.Code)
	}
	var token string
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			token = c.Value
		}
	}
	sess, err := ts.sessions.Validate(token)
	if err != nil {
		t.Fatalf("issued cookie does not validate: %v", err)
	}
	if sess.UserID != 1 || sess.Name != "Ana" {
		t.Errorf("session = %+v", sess)
	}
}

// blockedUserStore rejects every login the way the bill API does for a
// disabled account.
type blockedUserStore struct {
	*memory.Store
}

func (blockedUserStore) Login(context.Context, string, string) (bills.Identity, error) {
	return bills.Identity{}, fmt.Errorf("%w: %w", bills.ErrInvalidCredentials,
		&bills.APIError{Status: http.StatusUnauthorized, Message: "Usuário bloqueado"})
}

func TestLoginShowsAPIMessage(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) {
		store := blockedUserStore{Store: memory.New(nil, nil)}
		d.Bills = services.NewBillService(store, board.NewRegistry(4, time.Minute, nil), services.WithLogger(d.Logger))
	})

	rec := ts.do(t, postForm("/login", url.Values{"username": {"ana"}, "senha": {"secret"}}), false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Usuário bloqueado") {
		t.Errorf("api message missing: %s", body)
	}
	if strings.Contains(body, "Usuário ou senha incorreta!") {
		t.Error("generic message shown instead of the api message")
	}
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/?year=2025&month=5", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Maio 2025",
		"Dom",
		"calendar__day--overdue",
		"/?year=2025&month=4",
		"R$ 100,00",
		"Contas Cadastradas",
		"Conta de agua",
		"10/05/2025",
		"Nenhuma atividade registrada",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers not applied")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id not set")
	}
}

func TestDayModal(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/ui/dia?data=2025-05-10", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Contas de 10/05/2025", "#1 Conta de agua", "---", "Assumir Conta", "Conta Paga"} {
		if !strings.Contains(body, want) {
			t.Errorf("day modal missing %q", want)
		}
	}
	if strings.Contains(body, "Internet fibra") {
		t.Error("bill of another day listed")
	}

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/ui/dia?data=ontem", nil), true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad date status=%d", rec.Code)
	}
}

func TestDayModalOffersCodeCopy(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/ui/dia?data=2025-05-15", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`data-copy="83640000001"`, "Copiar Código"} {
		if !strings.Contains(body, want) {
			t.Errorf("day modal missing %q", want)
		}
	}

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/ui/dia?data=2025-05-10", nil), true)
	if strings.Contains(rec.Body.String(), "Copiar Código") {
		t.Error("copy button shown for a bill without code")
	}
}

func TestMarkPaidWithoutResponsibleIsRejected(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, postForm("/contas/1/pagar?data=2025-05-10", nil), true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rec.Code)
	}
	kind, msg := notification(t, rec)
	if kind != "warning" || msg != "Esta conta ainda não tem um responsável definido." {
		t.Errorf("notification = %s %q", kind, msg)
	}
}

func TestClaimThenMarkPaid(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, postForm("/contas/1/assumir?data=2025-05-10", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status=%d body=%s", rec.Code, rec.Body)
	}
	trigger := rec.Header().Get("HX-Trigger")
	if !strings.Contains(trigger, `"bills:changed"`) || !strings.Contains(trigger, "Conta assumida com sucesso!") {
		t.Errorf("claim trigger = %s", trigger)
	}
	if !strings.Contains(rec.Body.String(), "<dd>Ana</dd>") {
		t.Errorf("day modal not refreshed: %s", rec.Body)
	}

	rec = ts.do(t, postForm("/contas/1/pagar?data=2025-05-10", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark paid status=%d body=%s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Header().Get("HX-Trigger"), "Conta marcada como paga!") {
		t.Errorf("mark paid trigger = %s", rec.Header().Get("HX-Trigger"))
	}
	if !strings.Contains(rec.Body.String(), "<dd>pago</dd>") {
		t.Errorf("bill not shown as paid: %s", rec.Body)
	}
}

func TestClaimUnknownBill(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, postForm("/contas/99/assumir", nil), true)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("HX-Trigger"), "Erro ao assumir conta: ") {
		t.Errorf("trigger = %s", rec.Header().Get("HX-Trigger"))
	}

	rec = ts.do(t, postForm("/contas/abc/assumir", nil), true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad id status=%d", rec.Code)
	}
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/ui/contas/nova", nil), true)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Cartão de Crédito") {
		t.Fatalf("form status=%d", rec.Code)
	}

	bad := url.Values{"descricao": {"Luz"}, "valor": {"abc"}, "data_vencimento": {"2025-05-20"}}
	rec = ts.do(t, postForm("/contas", bad), true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Informe um valor válido") {
		t.Errorf("form not re-rendered with error: %s", rec.Body)
	}
	if kind, msg := notification(t, rec); kind != "warning" || msg != "Informe um valor válido" {
		t.Errorf("notification = %s %q", kind, msg)
	}

	good := url.Values{"descricao": {"Luz"}, "tipo": {"luz"}, "valor": {"150,25"}, "data_vencimento": {"2025-05-20"}}
	rec = ts.do(t, postForm("/contas", good), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("register status=%d body=%s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Header().Get("HX-Trigger"), "Conta cadastrada com sucesso!") {
		t.Errorf("trigger = %s", rec.Header().Get("HX-Trigger"))
	}

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/ui/board?year=2025&month=5", nil), true)
	if !strings.Contains(rec.Body.String(), "20/05/2025") {
		t.Errorf("registered bill missing from board")
	}
}

func TestRegisterAcceptsJSON(t *testing.T) {
	ts := newTestServer(t, nil)

	body := `{"descricao": "Pet shop", "tipo": "pet", "valor": 59.9, "dataVencimento": "2025-05-25"}`
	req := httptest.NewRequest(http.MethodPost, "/contas", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(t, req, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
}

func TestPeriodAndExport(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/contas?inicio=2025-05-12&fim=2025-05-31", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("period status=%d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Internet fibra") || strings.Contains(body, "Conta de agua") {
		t.Errorf("period filter wrong: %s", body)
	}

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/contas?inicio=2025-05-31&fim=2025-05-01", nil), true)
	if !strings.Contains(rec.Body.String(), "A data final deve ser posterior à inicial") {
		t.Errorf("inverted period not reported")
	}

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/contas/export.xlsx", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status=%d body=%s", rec.Code, rec.Body)
	}
	if rec.Header().Get("Content-Type") != xlsxContentType {
		t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "contas_2025-05-01_2025-05-31.xlsx") {
		t.Errorf("content disposition = %q", got)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty workbook")
	}
}

func TestPostsAreRateLimited(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) {
		d.Limiter = ratelimit.NewLimiter(ratelimit.Config{Requests: 1, Window: time.Minute},
			ratelimit.WithLogger(d.Logger))
	})

	form := url.Values{"username": {"ana"}, "senha": {"wrong"}}
	if rec := ts.do(t, postForm("/login", form), false); rec.Code == http.StatusTooManyRequests {
		t.Fatal("first attempt limited")
	}
	rec := ts.do(t, postForm("/login", form), false)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second attempt status=%d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, postForm("/logout", nil), true)
	if rec.Code != http.StatusOK || rec.Header().Get("HX-Redirect") != "/login" {
		t.Fatalf("status=%d redirect=%q", rec.Code, rec.Header().Get("HX-Redirect"))
	}
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie not cleared")
	}
}
