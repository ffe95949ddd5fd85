package handler

import (
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/csrf"

	"github.com/dukerupert/habitual/internal/auth"
	"github.com/dukerupert/habitual/internal/email"
	"github.com/dukerupert/habitual/internal/middleware"
	"github.com/dukerupert/habitual/internal/model"
	"github.com/dukerupert/habitual/internal/store"
)

type AuthHandler struct {
	users        *store.UserStore
	sessions     *store.SessionStore
	codes        *store.LoginCodeStore
	sender       email.Sender
	tokens       *auth.Tokens
	templates    *template.Template
	secureCookie bool
	logger       *slog.Logger
	clock        clock
}

func NewAuthHandler(
	us *store.UserStore,
	ss *store.SessionStore,
	lcs *store.LoginCodeStore,
	sender email.Sender,
	tokens *auth.Tokens,
	tmpl *template.Template,
	secureCookie bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:        us,
		sessions:     ss,
		codes:        lcs,
		sender:       sender,
		tokens:       tokens,
		templates:    tmpl,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data map[string]any) {
	data["Title"] = "Sign in - Habitual"
	data["CSRFField"] = csrf.TemplateField(r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, "login.html", data); err != nil {
		h.logger.Error("template error", "template", "login.html", "error", err)
	}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if sess, err := h.sessions.GetByToken(cookie.Value); err == nil && sess != nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
	}
	h.renderLogin(w, r, http.StatusOK, map[string]any{})
}

// Login issues a code for the submitted address. The response is the same whether
// or not the address belongs to an account.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	emailAddr := store.NormalizeEmail(r.FormValue("email"))
	if !validEmail(emailAddr) {
		h.renderLogin(w, r, http.StatusUnprocessableEntity, map[string]any{
			"Email": emailAddr,
			"Error": "Enter a valid email address.",
		})
		return
	}

	code, _, err := h.codes.Create(emailAddr)
	if err != nil {
		h.logger.Error("create login code", "error", err)
	} else if err := h.sender.SendLoginCode(r.Context(), emailAddr, code); err != nil {
		h.logger.Error("send login code", "email", emailAddr, "error", err)
	}

	h.renderLogin(w, r, http.StatusOK, map[string]any{
		"Email":    emailAddr,
		"CodeSent": true,
	})
}

func validEmail(s string) bool {
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n") && len(s) <= 254
}

// validateCode checks the code for the given email, handling attempts and expiry.
// Returns the login code on success, or an error message on failure.
func (h *AuthHandler) validateCode(emailAddr, code string) (*model.LoginCode, string) {
	if emailAddr == "" || code == "" {
		return nil, "Email and code are required."
	}

	latest, err := h.codes.GetLatestByEmail(emailAddr)
	if err != nil {
		h.logger.Error("validate code lookup", "error", err)
		return nil, "Something went wrong. Please try again."
	}
	if latest == nil {
		return nil, "Code has expired or already been used. Please request a new one."
	}

	if latest.Attempts >= store.MaxLoginCodeAttempts {
		h.burnCode(latest.ID)
		return nil, "Too many incorrect attempts. Please request a new code."
	}

	if !store.Matches(latest, code) {
		attempts, err := h.codes.IncrementAttempts(latest.ID)
		if err != nil {
			h.logger.Error("increment attempts", "error", err)
		}
		if attempts >= store.MaxLoginCodeAttempts {
			h.burnCode(latest.ID)
			return nil, "Too many incorrect attempts. Please request a new code."
		}
		return nil, "Incorrect code. Please try again."
	}

	if err := h.codes.MarkUsed(latest.ID); err != nil {
		h.logger.Error("mark used", "error", err)
		return nil, "Something went wrong. Please try again."
	}
	return latest, ""
}

// burnCode marks a code used after too many wrong guesses.
func (h *AuthHandler) burnCode(id string) {
	if err := h.codes.MarkUsed(id); err != nil {
		h.logger.Error("mark used", "code_id", id, "error", err)
	}
}

// Verify exchanges a valid code for a session. The account is created on first
// sign-in.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	emailAddr := store.NormalizeEmail(r.FormValue("email"))
	code := strings.TrimSpace(r.FormValue("code"))

	lc, errMsg := h.validateCode(emailAddr, code)
	if errMsg != "" {
		h.renderLogin(w, r, http.StatusUnprocessableEntity, map[string]any{
			"Email":    emailAddr,
			"CodeSent": true,
			"Error":    errMsg,
		})
		return
	}

	user, err := h.users.GetOrCreate(lc.Email)
	if err != nil {
		h.logger.Error("verify user lookup", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	sess, err := h.sessions.Create(user.ID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(store.SessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookie,
	})
	h.logger.Info("signed in", "user_id", user.ID)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok && ac.SessionID != "" {
		if err := h.sessions.Delete(ac.SessionID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookie,
	})

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/login")
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Token handles POST /api/token. Only a browser session can mint a bearer token so a
// leaked token cannot extend itself.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if ac.Method != auth.MethodSession {
		writeError(w, http.StatusForbidden, "a session is required to issue tokens")
		return
	}
	if !h.tokens.Configured() {
		writeError(w, http.StatusServiceUnavailable, "token signing is not configured")
		return
	}

	token, expiresAt, err := h.tokens.Issue(ac.UserID, ac.Email, h.clock.now())
	if err != nil {
		h.logger.Error("issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expiresAt,
	})
}
