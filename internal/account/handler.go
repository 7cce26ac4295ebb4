package account

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"chatrooms/internal/flash"
	"chatrooms/internal/middleware"
	"chatrooms/internal/validate"
	"chatrooms/internal/web"
)

type Handler struct {
	svc      *Service
	renderer *web.Renderer
	flashes  flash.Store
	logger   zerolog.Logger
	secure   bool
}

func NewHandler(svc *Service, renderer *web.Renderer, flashes flash.Store, logger zerolog.Logger, secureCookies bool) *Handler {
	return &Handler{
		svc:      svc,
		renderer: renderer,
		flashes:  flashes,
		logger:   logger,
		secure:   secureCookies,
	}
}

type registerPage struct {
	Username  string
	Email     string
	Errors    validate.FieldErrors
	FormError string
}

type loginPage struct {
	Username  string
	Errors    validate.FieldErrors
	FormError string
}

func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.HTML(w, http.StatusOK, "register.html", registerPage{})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.HTML(w, http.StatusBadRequest, "register.html", registerPage{FormError: "Invalid form submission."})
		return
	}

	form := RegisterForm{
		Username: r.PostFormValue("username"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	page := registerPage{Username: form.Username, Email: form.Email}

	if errs := validate.Struct(form); errs != nil {
		page.Errors = errs
		h.renderer.HTML(w, http.StatusUnprocessableEntity, "register.html", page)
		return
	}

	if _, err := h.svc.Register(r.Context(), form); err != nil {
		if err == ErrUsernameTaken {
			page.Errors = validate.FieldErrors{"username": "This username is already taken."}
			h.renderer.HTML(w, http.StatusUnprocessableEntity, "register.html", page)
			return
		}
		h.logger.Error().Err(err).Msg("register failed")
		h.renderer.ServerError(w)
		return
	}

	// Log the new account straight in.
	token, _, err := h.svc.Login(r.Context(), LoginForm{Username: form.Username, Password: form.Password})
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	h.setSession(w, token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.HTML(w, http.StatusOK, "login.html", loginPage{})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.HTML(w, http.StatusBadRequest, "login.html", loginPage{FormError: "Invalid form submission."})
		return
	}

	form := LoginForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	page := loginPage{Username: form.Username}

	if errs := validate.Struct(form); errs != nil {
		page.Errors = errs
		h.renderer.HTML(w, http.StatusUnprocessableEntity, "login.html", page)
		return
	}

	token, _, err := h.svc.Login(r.Context(), form)
	if err != nil {
		if err == ErrInvalidCredentials {
			page.FormError = "Wrong username or password."
			h.renderer.HTML(w, http.StatusUnprocessableEntity, "login.html", page)
			return
		}
		h.logger.Error().Err(err).Msg("login failed")
		h.renderer.ServerError(w)
		return
	}

	h.setSession(w, token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type profilePage struct {
	Profile *Account
	IsSelf  bool
	Notices []flash.Notice
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	username := chi.URLParam(r, "username")
	profile, err := h.svc.ByUsername(r.Context(), username)
	if err != nil {
		h.logger.Error().Err(err).Msg("profile lookup failed")
		h.renderer.ServerError(w)
		return
	}
	if profile == nil {
		h.renderer.NotFound(w)
		return
	}

	notices, err := h.flashes.Pop(r.Context(), id.ID)
	if err != nil {
		h.logger.Warn().Err(err).Msg("flash pop failed")
	}

	h.renderer.HTML(w, http.StatusOK, "profile.html", profilePage{
		Profile: profile,
		IsSelf:  profile.ID == id.ID,
		Notices: notices,
	})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
		return
	}

	accounts, err := h.svc.Search(r.Context(), query)
	if err != nil {
		h.logger.Error().Err(err).Msg("account search failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(accounts)
}

func (h *Handler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   24 * 60 * 60,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
