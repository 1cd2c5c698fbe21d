package http

import (
	"fmt"
	"net/http"

	"walletwise/internal/board"
	"walletwise/internal/core"
	"walletwise/internal/export"
	applog "walletwise/internal/log"
	"walletwise/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, err := ParseBillID(r)
	if err != nil {
		actionError(err, "").Write(w)
		return
	}
	res, err := s.bills.Claim(r.Context(), identity(r), id)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Claim failed",
			applog.FieldBillID, id,
			applog.FieldError, err)
		actionError(err, "Erro ao assumir conta: ").Write(w)
		return
	}
	s.writeDayAfterMutation(w, r, res, id, "Conta assumida com sucesso!")
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := ParseBillID(r)
	if err != nil {
		actionError(err, "").Write(w)
		return
	}
	res, err := s.bills.MarkPaid(r.Context(), identity(r), id)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Mark paid failed",
			applog.FieldBillID, id,
			applog.FieldError, err)
		actionError(err, "Erro ao atualizar: ").Write(w)
		return
	}
	s.writeDayAfterMutation(w, r, res, id, "Conta marcada como paga!")
}

// writeDayAfterMutation re-renders the open day modal from the refreshed list
// and tells the board to redraw.
func (s *Server) writeDayAfterMutation(w http.ResponseWriter, r *http.Request, res board.Result, id int64, message string) {
	day, err := ParseDayParam(r.URL.Query())
	if err != nil {
		for _, b := range res.Bills {
			if b.ID == id {
				day = b.DueDate
				break
			}
		}
	}

	resp := NewHTMXResponse().TriggerBillsChanged().TriggerSuccessNotification(message)
	body, err := s.execute("day_modal", newDayModalView(res.Bills, day))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed", applog.FieldError, err, "template", "day_modal")
		resp.BodyHTML(`<div id="modal"></div>`).Write(w)
		return
	}
	resp.BodyHTML(string(body)).Write(w)
}

type registerView struct {
	Form       services.RegisterForm
	Categories []optionView
	States     []optionView
	Error      string
}

func newRegisterView(f services.RegisterForm, errMsg string) registerView {
	return registerView{
		Form:       f,
		Categories: categoryOptions(f.Category),
		States:     stateOptions(f.State),
		Error:      errMsg,
	}
}

func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register_form", newRegisterView(services.RegisterForm{}, ""))
}

// handleRegister accepts the form post from the modal or a JSON body with
// the same field names.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Formato de requisição inválido").Write(w)
		return
	}
	form := services.RegisterForm{
		Description:  p.Get("descricao"),
		Category:     p.Get("tipo"),
		Amount:       p.Get("valor"),
		DueDate:      p.Get("data_vencimento"),
		Responsible:  p.Get("responsavel"),
		State:        p.Get("estado"),
		ExternalCode: p.Get("campo_opcional"),
	}
	if form.DueDate == "" {
		form.DueDate = p.Get("dataVencimento")
	}

	created, _, err := s.bills.Register(r.Context(), identity(r), form)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Register failed", applog.FieldError, err)
		resp := actionError(err, "Erro ao cadastrar: ")
		if body, rerr := s.execute("register_form", newRegisterView(form, actionMessage(err, "Erro ao cadastrar: "))); rerr == nil {
			resp.BodyHTML(string(body))
		}
		resp.Write(w)
		return
	}

	s.logger.InfoContext(r.Context(), "Bill registered",
		applog.FieldBillID, created.ID,
		applog.FieldBillDesc, created.Description)
	NewHTMXResponse().
		TriggerBillsChanged().
		TriggerSuccessNotification("Conta cadastrada com sucesso!").
		BodyHTML(`<div id="modal"></div>`).
		Write(w)
}

type periodView struct {
	UserName string
	From     string
	To       string
	Bills    []billView
	Summary  summaryView
	Error    string
}

// handlePeriod lists bills due in the chosen window. Failures are shown on
// the page with an empty table.
func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	who := identity(r)
	p, err := ParsePeriodParams(r.URL.Query(), s.now())
	view := periodView{UserName: who.Name, From: p.From.String(), To: p.To.String()}

	var list []core.Bill
	if err == nil {
		list, err = s.bills.Period(r.Context(), p.From, p.To)
	}
	if err != nil {
		s.logger.WarnContext(r.Context(), "Period query failed", applog.FieldError, err)
		view.Error = actionMessage(err, "Erro ao buscar contas: ")
	}
	view.Bills = newBillViews(list)
	view.Summary = newSummaryView(core.Summarize(list, p.From.AddDays(-1), p.To.AddDays(1)))
	s.render(w, r, http.StatusOK, "period_page", view)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePeriodParams(r.URL.Query(), s.now())
	if err != nil {
		actionError(err, "").Write(w)
		return
	}
	list, err := s.bills.Period(r.Context(), p.From, p.To)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Export query failed", applog.FieldError, err)
		actionError(err, "Erro ao buscar contas: ").Write(w)
		return
	}
	data, err := export.BillsXLSX(list, p.From, p.To)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Export failed", applog.FieldError, err)
		InternalServerError("Erro ao gerar a planilha").Write(w)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="contas_%s_%s.xlsx"`, p.From, p.To))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
