package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	LoginRejected     = "Invalid credentials. Please try again."
	LoginFailed       = "An error occurred during login. Please try again."
	PasswordMismatch  = "Passwords do not match!"
	RegisterSucceeded = "Registration successful! Please login with your credentials."
	RegisterRejected  = "Registration failed. Please try again."
	RegisterFailed    = "An error occurred during registration. Please try again."
	loginCardSelector = "#login-card"
)

// loginCard is the login form. Email pre-fills the form after a successful
// registration; the password is never written back into the page.
type loginCard struct {
	Email string
	Alert *alert
}

func (h *Handler) authActions() []action {
	return []action{
		{trigger: trigger{http.MethodGet, "/login"}, effect: h.loginPage},
		{trigger: trigger{http.MethodPost, "/ui/login"}, effect: h.login},
		{trigger: trigger{http.MethodPost, "/ui/register"}, effect: h.register},
	}
}

func (h *Handler) loginPage(c *gin.Context) {
	h.render(c, http.StatusOK, "login", loginCard{})
}

func (h *Handler) login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")

	res, err := h.backend.Login(c.Request.Context(), email, password)
	if err != nil {
		h.logger.Error("login", zap.Error(err))
		h.render(c, http.StatusOK, "alert", dangerAlert(LoginFailed))
		return
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = LoginRejected
		}
		h.render(c, http.StatusOK, "alert", dangerAlert(msg))
		return
	}
	c.Header("HX-Redirect", "/")
	c.Status(http.StatusOK)
}

func (h *Handler) register(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")

	if password != c.PostForm("confirm_password") {
		h.render(c, http.StatusOK, "alert", dangerAlert(PasswordMismatch))
		return
	}

	res, err := h.backend.Register(c.Request.Context(), name, email, password)
	if err != nil {
		h.logger.Error("register", zap.Error(err))
		h.render(c, http.StatusOK, "alert", dangerAlert(RegisterFailed))
		return
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = RegisterRejected
		}
		h.render(c, http.StatusOK, "alert", dangerAlert(msg))
		return
	}

	ok := alert{Level: "success", Icon: "fa-check-circle", Message: RegisterSucceeded}
	c.Header("HX-Retarget", loginCardSelector)
	c.Header("HX-Reswap", "outerHTML")
	c.Header("HX-Trigger", "registered")
	h.render(c, http.StatusOK, "login-card", loginCard{Email: email, Alert: &ok})
}
