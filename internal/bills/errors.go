package bills

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable wraps transport failures talking to the bill API.
	ErrUnreachable = errors.New("bill api unreachable")
	// ErrNoResponsible rejects marking a bill paid before someone claimed it.
	ErrNoResponsible = errors.New("bill has no responsible party")
	ErrBillNotFound  = errors.New("bill not found")
	// ErrInvalidCredentials is returned by Login for a rejected username or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError is a local input problem. Requests carrying one are never sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// APIError is a non-2xx answer from the bill API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bill api status %d: %s", e.Status, e.Message)
}

// ParseError describes a record that did not survive the boundary parse.
type ParseError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("record %d: field %q: %s", e.Index, e.Field, e.Reason)
}

// UserMessage returns the text shown to the user for an error from this package.
func UserMessage(err error) string {
	var ve *ValidationError
	var ae *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, ErrUnreachable):
		return "Não foi possível conectar ao servidor."
	case errors.Is(err, ErrNoResponsible):
		return "Esta conta ainda não tem um responsável definido."
	case errors.Is(err, ErrBillNotFound):
		return "Conta não encontrada."
	case errors.Is(err, ErrInvalidCredentials):
		if errors.As(err, &ae) && ae.Message != "" {
			return ae.Message
		}
		return "Usuário ou senha incorreta!"
	case errors.As(err, &ae):
		if ae.Message != "" {
			return ae.Message
		}
		return fmt.Sprintf("Erro %d", ae.Status)
	default:
		return "Erro inesperado."
	}
}
