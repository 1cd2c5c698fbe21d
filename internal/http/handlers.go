package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"walletwise/internal/bills"
	applog "walletwise/internal/log"
	"walletwise/internal/session"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

// handleReady reports whether templates loaded and every dependency answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			checks[c.Name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

type loginView struct {
	Username string
	Error    string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sessions.FromRequest(r); err == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login_page", loginView{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "login_page", loginView{Error: "Formato de requisição inválido"})
		return
	}
	username := sanitizeInput(r.PostForm.Get("username"))
	password := r.PostForm.Get("senha")

	who, err := s.bills.Login(r.Context(), username, password)
	if err != nil {
		status := http.StatusBadGateway
		var ve *bills.ValidationError
		switch {
		case errors.As(err, &ve):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, bills.ErrInvalidCredentials):
			status = http.StatusUnauthorized
		}
		s.logger.WarnContext(r.Context(), "Login failed",
			"username", username,
			applog.FieldError, err)
		s.render(w, r, status, "login_page", loginView{Username: username, Error: bills.UserMessage(err)})
		return
	}

	if err := s.sessions.SetCookie(w, who); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to issue session", applog.FieldError, err)
		s.render(w, r, http.StatusInternalServerError, "login_page", loginView{Username: username, Error: "Erro inesperado."})
		return
	}
	s.logger.InfoContext(r.Context(), "User logged in",
		applog.FieldUserID, who.UserID,
		"username", username)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, err := s.sessions.FromRequest(r); err == nil {
		s.bills.Logout(sess.Identity())
	}
	s.sessions.ClearCookie(w)
	if r.Header.Get("HX-Request") == "true" {
		NewHTMXResponse().Header("HX-Redirect", loginPath).Write(w)
		return
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

// identity is the acting user of a request behind session.Require.
func identity(r *http.Request) bills.Identity {
	sess, _ := session.FromContext(r.Context())
	return sess.Identity()
}

// execute renders a named template into memory so a failure never leaves a
// half-written response.
func (s *Server) execute(name string, data any) ([]byte, error) {
	if s.templates == nil {
		return nil, errors.New("templates not loaded")
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	body, err := s.execute(name, data)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			"template", name)
		http.Error(w, "Erro ao renderizar a página", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// actionError turns a failed user action into a notification. Problems the
// user can fix are warnings; everything else is an error.
func actionError(err error, apiPrefix string) *HTMXResponseBuilder {
	msg := actionMessage(err, apiPrefix)
	var ve *bills.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, bills.ErrNoResponsible):
		return UnprocessableEntityError(msg).TriggerWarningNotification(msg)
	case errors.Is(err, bills.ErrBillNotFound):
		return NotFoundError(msg).TriggerErrorNotification(msg)
	case errors.Is(err, bills.ErrUnreachable), isAPIError(err):
		return ErrorResponse(http.StatusBadGateway, msg).TriggerErrorNotification(msg)
	default:
		return InternalServerError(msg).TriggerErrorNotification(msg)
	}
}

// actionMessage is the text shown for err. apiPrefix goes in front of
// messages that come from the bill API.
func actionMessage(err error, apiPrefix string) string {
	if isAPIError(err) {
		return apiPrefix + bills.UserMessage(err)
	}
	return bills.UserMessage(err)
}

func isAPIError(err error) bool {
	var ae *bills.APIError
	return errors.As(err, &ae)
}
