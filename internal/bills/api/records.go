package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"walletwise/internal/bills"
	"walletwise/internal/core"
)

// looseText accepts a JSON string, number or null and keeps its text.
type looseText struct {
	Text  string
	Valid bool
}

func (t *looseText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = looseText{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = looseText{Text: s, Valid: true}
		return nil
	}
	*t = looseText{Text: string(b), Valid: true}
	return nil
}

type billRecord struct {
	AccountID      looseText `json:"account_id"`
	Descricao      string    `json:"descricao"`
	Tipo           *string   `json:"tipo"`
	Valor          looseText `json:"valor"`
	DataVencimento string    `json:"data_vencimento"`
	Responsavel    *string   `json:"responsavel"`
	Estado         *string   `json:"estado"`
	UserID         looseText `json:"user_id"`
	CampoOpcional  looseText `json:"campo_opcional"`
}

// newBillRequest is the body of POST /api/cadastro-conta. Both due date
// spellings are sent since older API versions read the camelCase one.
type newBillRequest struct {
	Descricao      string      `json:"descricao"`
	Tipo           string      `json:"tipo"`
	Valor          json.Number `json:"valor"`
	DataVencimento string      `json:"dataVencimento"`
	DataVencSnake  string      `json:"data_vencimento"`
	Responsavel    string      `json:"responsavel,omitempty"`
	Estado         string      `json:"estado"`
	CampoOpcional  *int64      `json:"campo_opcional,omitempty"`
	UserID         *int64      `json:"user_id,omitempty"`
}

// changeRequest is the body of POST /api/contas/mudar-estado.
type changeRequest struct {
	ID          int64   `json:"id"`
	Responsavel *string `json:"responsavel,omitempty"`
	UserID      *int64  `json:"user_id,omitempty"`
	Estado      *string `json:"estado,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Senha    string `json:"senha"`
}

type loginResponse struct {
	UserID looseText `json:"user_id"`
	Nome   string    `json:"nome"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// parseRecord validates one raw record and converts it into a bill.
func parseRecord(index int, raw json.RawMessage) (core.Bill, error) {
	if field, err := validateRecord(raw); err != nil {
		return core.Bill{}, &bills.ParseError{Index: index, Field: field, Reason: err.Error()}
	}
	var rec billRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return core.Bill{}, &bills.ParseError{Index: index, Reason: err.Error()}
	}
	return rec.toBill(index)
}

func (r billRecord) toBill(index int) (core.Bill, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.AccountID.Text), 10, 64)
	if err != nil {
		return core.Bill{}, &bills.ParseError{Index: index, Field: "account_id", Reason: "not an integer"}
	}
	due, err := core.ParseDate(r.DataVencimento)
	if err != nil {
		return core.Bill{}, &bills.ParseError{Index: index, Field: "data_vencimento", Reason: err.Error()}
	}

	b := core.Bill{
		ID:          id,
		Description: r.Descricao,
		Amount:      core.ParseNullAmount(r.Valor.Text),
		DueDate:     due,
		State:       core.StatePending,
	}
	if r.Tipo != nil {
		b.Category = core.Category(strings.ToLower(strings.TrimSpace(*r.Tipo)))
	}
	if r.Responsavel != nil {
		b.Responsible = strings.TrimSpace(*r.Responsavel)
	}
	if r.Estado != nil {
		st, err := core.ParsePaymentState(*r.Estado)
		if err != nil {
			return core.Bill{}, &bills.ParseError{Index: index, Field: "estado", Reason: err.Error()}
		}
		b.State = st
	}
	if v, ok := optionalInt(r.UserID); ok {
		b.OwnerUserID = &v
	}
	if v, ok := optionalInt(r.CampoOpcional); ok {
		b.ExternalCode = &v
	}
	return b, nil
}

// optionalInt treats empty or non-numeric display-only fields as absent.
func optionalInt(t looseText) (int64, bool) {
	if !t.Valid || strings.TrimSpace(t.Text) == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(t.Text), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func toNewBillRequest(b core.Bill) newBillRequest {
	due := b.DueDate.String()
	return newBillRequest{
		Descricao:      b.Description,
		Tipo:           string(b.Category),
		Valor:          json.Number(b.Amount.Decimal.StringFixed(2)),
		DataVencimento: due,
		DataVencSnake:  due,
		Responsavel:    b.Responsible,
		Estado:         string(b.State),
		CampoOpcional:  b.ExternalCode,
		UserID:         b.OwnerUserID,
	}
}

func toChangeRequest(c bills.Change) changeRequest {
	req := changeRequest{ID: c.ID, Responsavel: c.Responsible, UserID: c.OwnerUserID}
	if c.State != nil {
		st := string(*c.State)
		req.Estado = &st
	}
	return req
}
