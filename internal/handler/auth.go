package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/campus-link/internal/auth"
)

const stateCookie = "oauth_state"

// authForm is what the sign-up and login pages show.
type authForm struct {
	Email         string
	GoogleEnabled bool
}

// AuthHandler serves sign-up, login, Google sign-in, email verification and
// logout. Every session change goes through the provider, which notifies
// the session registry before the handler writes its response.
type AuthHandler struct {
	provider auth.Provider
	guard    *Guard
	renderer *Renderer
	secure   bool
	logger   *slog.Logger
}

func NewAuthHandler(provider auth.Provider, guard *Guard, renderer *Renderer, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		guard:    guard,
		renderer: renderer,
		secure:   secureCookies,
		logger:   logger,
	}
}

// HTTP: GET /signup
func (h *AuthHandler) ShowSignup(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, "signup", "Sign Up", authForm{}, "")
}

// HandleSignup creates the account, signs it in and sends the verification
// link. A failed verification mail does not undo the sign-up.
//
// HTTP: POST /signup
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")

	sess, err := h.provider.SignUp(r.Context(), email, password)
	if err != nil {
		status, _ := statusFor(err)
		h.renderForm(w, r, status, "signup", "Sign Up", authForm{Email: email}, messageFor(err))
		return
	}

	if err := h.provider.SendVerification(r.Context(), sess.Identity.ID); err != nil {
		h.logger.Warn("verification email not sent",
			slog.String("account_id", sess.Identity.ID),
			slog.String("error", err.Error()),
		)
	}

	auth.SetSessionCookie(w, sess.Token, h.secure)
	http.Redirect(w, r, "/complete-profile", http.StatusSeeOther)
}

// HTTP: GET /login
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, "login", "Login", authForm{}, "")
}

// HTTP: POST /login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))

	sess, err := h.provider.SignIn(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		status, _ := statusFor(err)
		h.renderForm(w, r, status, "login", "Login", authForm{Email: email}, messageFor(err))
		return
	}

	auth.SetSessionCookie(w, sess.Token, h.secure)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleGoogleLogin starts the redirect flow. The state value is kept in a
// short-lived cookie and checked on callback.
//
// HTTP: GET /auth/google/login
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	target := h.provider.FederatedAuthURL(state)
	if target == "" {
		h.renderForm(w, r, http.StatusServiceUnavailable, "login", "Login", authForm{}, "Google sign-in is not available.")
		return
	}

	http.SetCookie(w, h.newStateCookie(state, 600))
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// newStateCookie builds the OAuth state cookie. A negative maxAge clears it.
func (h *AuthHandler) newStateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     stateCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// HTTP: GET /auth/google/callback?code=...&state=...
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || r.URL.Query().Get("state") != c.Value {
		h.logger.Warn("google callback: state mismatch")
		h.renderForm(w, r, http.StatusBadRequest, "login", "Login", authForm{}, "Sign-in could not be verified. Please try again.")
		return
	}

	// single use
	http.SetCookie(w, h.newStateCookie("", -1))

	if denied := r.URL.Query().Get("error"); denied != "" {
		h.logger.Info("google callback: authorization denied", slog.String("error", denied))
		h.renderForm(w, r, http.StatusUnauthorized, "login", "Login", authForm{}, "Google sign-in was cancelled.")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.renderForm(w, r, http.StatusBadRequest, "login", "Login", authForm{}, "Google sign-in failed, please try again")
		return
	}

	sess, err := h.provider.SignInFederated(r.Context(), code)
	if err != nil {
		status, _ := statusFor(err)
		h.renderForm(w, r, status, "login", "Login", authForm{}, messageFor(err))
		return
	}

	auth.SetSessionCookie(w, sess.Token, h.secure)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HTTP: GET /auth/verify?token=...
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	v := View{Title: "Email verification", Identity: h.guard.Current(r).Identity}

	if _, err := h.provider.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		status, _ := statusFor(err)
		v.Error = messageFor(err)
		h.renderer.Render(w, status, "verify", v)
		return
	}

	v.Notice = "Your email address is verified."
	h.renderer.Render(w, http.StatusOK, "verify", v)
}

// HandleLogout ends the session. The provider's nil notification drops the
// session's capability before the redirect is written.
//
// HTTP: POST /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		if err := h.provider.SignOut(r.Context(), sess.ID); err != nil {
			h.logger.Warn("sign out failed", slog.String("error", err.Error()))
		}
	}

	auth.ClearSessionCookie(w, h.secure)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, page, title string, form authForm, errMsg string) {
	form.GoogleEnabled = h.provider.FederatedAuthURL("probe") != ""
	h.renderer.Render(w, status, page, View{
		Title:    title,
		Identity: h.guard.Current(r).Identity,
		Error:    errMsg,
		Data:     form,
	})
}
